package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/nulltea/latpir/core"
	"github.com/nulltea/latpir/store"
)

func main() {
	count := flag.Int("n", 1000, "number of records")
	size := flag.Int("size", 256, "record size in bytes")
	out := flag.String("out", "db.bin", "output file")
	seed := flag.Uint64("seed", 0, "ChaCha20 seed of the record contents")
	flag.Parse()

	if *count < 1 || *size < 1 {
		fmt.Fprintf(os.Stderr, "record count and size must be at least 1, got %d and %d\n", *count, *size)
		os.Exit(2)
	}

	records, err := core.RandomRecords(*count, *size, *seed)
	if err != nil {
		panic(err)
	}
	if err := store.Save(*out, records); err != nil {
		panic(err)
	}
	info, err := os.Stat(*out)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Wrote %d records of %s to %s (%s)\n", *count, humanize.Bytes(uint64(*size)), *out,
		humanize.Bytes(uint64(info.Size())))
}
