package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/nulltea/latpir/core"
	"github.com/nulltea/latpir/fhe"
	"github.com/nulltea/latpir/pir"
	"github.com/nulltea/latpir/service"
)

func main() {
	serverURL := flag.String("server", "http://localhost:50051/rpc", "JSON-RPC endpoint of the PIR server")
	index := flag.Int("index", 0, "record index to retrieve")
	backend := flag.String("backend", "bgv", "HE backend: [bgv|plain], must match the server")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	core.NewLogger("pir-client", *verbosity)
	if *index < 0 {
		fail(fmt.Errorf("record index must not be negative, got %d", *index))
	}

	ctx := context.Background()
	rpc := service.NewClient(*serverURL)
	params, digest, err := rpc.GetParams(ctx)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Database: %d records of %s, digest %x\n",
		params.RecordCount, humanize.Bytes(uint64(params.RecordSize)), digest[:min(8, len(digest))])

	var record []byte
	switch *backend {
	case "bgv":
		record, err = retrieve(ctx, rpc, params, fhe.NewCryptor, *index)
	case "plain":
		record, err = retrieve(ctx, rpc, params, pir.NewPlainCryptor, *index)
	default:
		err = fmt.Errorf("unknown backend %q", *backend)
	}
	if err != nil {
		fail(err)
	}

	color.Green("Record %d:", *index)
	fmt.Println(hex.Dump(record))
}

func retrieve[C any](ctx context.Context, rpc *service.Client, params pir.Parameters, newCryptor pir.CryptorFactory[C], index int) ([]byte, error) {
	client, err := pir.NewClient(params, newCryptor)
	if err != nil {
		return nil, err
	}
	q, pos, err := client.Query(index)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Query: %s ciphertext, %s rotation keys\n",
		humanize.Bytes(uint64(len(q.Index))), humanize.Bytes(uint64(len(q.GaloisKeys))))

	start := time.Now()
	reply, err := rpc.PrivateQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	size := 0
	for _, ct := range reply.Ciphertexts {
		size += len(ct)
	}
	fmt.Printf("Reply: %d ciphertexts, %s in %s\n", len(reply.Ciphertexts), humanize.Bytes(uint64(size)), time.Since(start))

	return client.Decode(reply, pos)
}

func fail(err error) {
	color.Red("error: %v", err)
	os.Exit(1)
}
