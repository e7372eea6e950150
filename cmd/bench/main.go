package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"
	"github.com/nulltea/latpir/core"
	"github.com/nulltea/latpir/fhe"
	"github.com/nulltea/latpir/pir"
)

type phases struct {
	query, answer, decode []float64
	querySize, replySize  int
}

func main() {
	count := flag.Int("n", 1<<12, "number of records")
	size := flag.Int("size", 288, "record size in bytes")
	logN := flag.Int("logN", 11, "log2 of the polynomial degree")
	logT := flag.Int("logt", 12, "plaintext modulus bits")
	d := flag.Int("d", 2, "number of database dimensions")
	runs := flag.Int("runs", 10, "queries to time")
	workers := flag.Int("workers", 0, "reply workers (0 = GOMAXPROCS)")
	backend := flag.String("backend", "bgv", "HE backend: [bgv|plain]")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	log := core.NewLogger("pir-bench", *verbosity)
	params := pir.Parameters{
		RecordCount:          *count,
		RecordSize:           *size,
		PolyDegree:           1 << *logN,
		PlaintextModulusBits: *logT,
		Dimensionality:       *d,
	}
	records, err := core.RandomRecords(*count, *size, 1)
	if err != nil {
		panic(err)
	}

	var res phases
	switch *backend {
	case "bgv":
		server := pir.NewServer(fhe.NewScheme, pir.WithLogger(log), pir.WithWorkers(*workers))
		res, err = bench(params, records, server, fhe.NewCryptor, *runs)
	case "plain":
		server := pir.NewServer(pir.NewPlainScheme, pir.WithLogger(log), pir.WithWorkers(*workers))
		res, err = bench(params, records, server, pir.NewPlainCryptor, *runs)
	default:
		err = fmt.Errorf("unknown backend %q", *backend)
	}
	if err != nil {
		panic(err)
	}

	fmt.Printf("Query size: %s, reply size: %s\n", humanize.Bytes(uint64(res.querySize)), humanize.Bytes(uint64(res.replySize)))
	report("Query", res.query)
	report("Answer", res.answer)
	report("Decode", res.decode)
}

func bench[C, P any](params pir.Parameters, records [][]byte, server *pir.Server[C, P], newCryptor pir.CryptorFactory[C], runs int) (phases, error) {
	ctx := context.Background()
	var res phases

	start := time.Now()
	if err := server.Load(ctx, params, records); err != nil {
		return res, err
	}
	fmt.Printf("Preprocessed %d records of %s in %s\n", len(records), humanize.Bytes(uint64(params.RecordSize)), time.Since(start))

	client, err := pir.NewClient(params, newCryptor)
	if err != nil {
		return res, err
	}
	fmt.Printf("Dimensions: %v\n", client.Geometry().Dimensions)

	for i := 0; i < runs; i++ {
		index := (i * 7919) % len(records)

		start := time.Now()
		q, pos, err := client.Query(index)
		if err != nil {
			return res, err
		}
		res.query = append(res.query, ms(time.Since(start)))

		start = time.Now()
		reply, err := server.Answer(ctx, q)
		if err != nil {
			return res, err
		}
		res.answer = append(res.answer, ms(time.Since(start)))

		start = time.Now()
		record, err := client.Decode(reply, pos)
		if err != nil {
			return res, err
		}
		res.decode = append(res.decode, ms(time.Since(start)))

		if string(record) != string(records[index]) {
			return res, fmt.Errorf("record %d decoded incorrectly", index)
		}
		res.querySize = len(q.Index) + len(q.GaloisKeys)
		res.replySize = 0
		for _, ct := range reply.Ciphertexts {
			res.replySize += len(ct)
		}
	}
	return res, nil
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func report(phase string, values []float64) {
	mean, _ := stats.Mean(values)
	median, _ := stats.Median(values)
	p95, _ := stats.Percentile(values, 95)
	stddev, _ := stats.StandardDeviation(values)

	fmt.Printf("%s over %d runs:\n", phase, len(values))
	fmt.Printf("  Mean: %.3f ms\n", mean)
	fmt.Printf("  Median: %.3f ms\n", median)
	fmt.Printf("  P95: %.3f ms\n", p95)
	fmt.Printf("  StdDev: %.3f ms\n", stddev)
}
