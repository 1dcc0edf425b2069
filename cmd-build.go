package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"k8s.io/klog/v2"

	"github.com/rpcpool/lshforest/lshforest"
	"github.com/rpcpool/lshforest/sigio"
)

const buildBatchSize = 10_000

func newCmd_Build() *cli.Command {
	var dims, bands uint
	var sigsPath, outPath, dataPath string
	var random uint64
	var fileBacked bool
	return &cli.Command{
		Name:        "build",
		Usage:       "Build an LSH Forest index from a raw signature stream.",
		Description: "Reads consecutive little-endian uint32 records of width --dims from --sigs (or generates --random records), inserts them in batches, builds the prefix indexes and stores the dump at --out.",
		ArgsUsage:   "--dims=<d> --bands=<l> --sigs=<file> --out=<index>",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:        "dims",
				Usage:       "signature width in uint32 words",
				Destination: &dims,
				Required:    true,
			},
			&cli.UintFlag{
				Name:        "bands",
				Usage:       "number of LSH bands (must not exceed --dims)",
				Destination: &bands,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "sigs",
				Usage:       "path to the raw signature stream; '-' reads stdin",
				Destination: &sigsPath,
			},
			&cli.Uint64Flag{
				Name:        "random",
				Usage:       "generate this many random signatures instead of reading --sigs",
				Destination: &random,
			},
			&cli.StringFlag{
				Name:        "out",
				Usage:       "path to write the index dump to",
				Destination: &outPath,
				Required:    true,
			},
			&cli.BoolFlag{
				Name:        "file-backed",
				Usage:       "keep raw signatures in a backing file instead of memory",
				Destination: &fileBacked,
			},
			&cli.StringFlag{
				Name:        "data",
				Usage:       "backing file path for --file-backed",
				Value:       "data.dat",
				Destination: &dataPath,
			},
		},
		Action: func(c *cli.Context) error {
			if sigsPath == "" && random == 0 {
				return fmt.Errorf("either --sigs or --random is required")
			}
			forest, err := newForestFromFlags(uint32(dims), uint32(bands), fileBacked, dataPath)
			if err != nil {
				return err
			}

			startedAt := time.Now()
			var total uint64
			if random > 0 {
				total, err = buildRandom(forest, uint32(dims), random)
			} else {
				total, err = buildFromStream(forest, uint32(dims), sigsPath)
			}
			if err != nil {
				return err
			}
			klog.Infof("inserted %s signatures in %s", humanize.Comma(int64(total)), time.Since(startedAt).Truncate(time.Millisecond))

			indexStartedAt := time.Now()
			forest.Index()
			klog.Infof("built prefix indexes in %s", time.Since(indexStartedAt).Truncate(time.Millisecond))

			if err := forest.Store(outPath); err != nil {
				return fmt.Errorf("failed to store index: %w", err)
			}
			info, err := os.Stat(outPath)
			if err != nil {
				return err
			}
			klog.Infof("wrote %s (%s)", outPath, humanize.Bytes(uint64(info.Size())))
			return nil
		},
	}
}

func newForestFromFlags(dims, bands uint32, fileBacked bool, dataPath string) (*lshforest.Forest, error) {
	if fileBacked {
		return lshforest.NewFileBacked(dims, bands, dataPath)
	}
	return lshforest.NewWithStore(dims, bands)
}

func buildFromStream(forest *lshforest.Forest, dims uint32, path string) (uint64, error) {
	var reader *sigio.RecordReader
	var barTotal int64
	if path == "-" {
		reader = sigio.NewRecordReader(os.Stdin, dims)
	} else {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		barTotal = info.Size() / (int64(dims) * 4)
		reader, err = sigio.OpenRecords(path, dims)
		if err != nil {
			return 0, err
		}
	}
	defer reader.Close()

	progress := mpb.New(mpb.WithWidth(60))
	bar := progress.New(barTotal,
		mpb.BarStyle(),
		mpb.PrependDecorators(
			decor.Name("inserting "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	var total uint64
	batch := make([][]uint32, 0, buildBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := forest.BatchAdd(batch); err != nil {
			return err
		}
		bar.IncrBy(len(batch))
		total += uint64(len(batch))
		batch = batch[:0]
		return nil
	}
	for {
		sig, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		batch = append(batch, sig)
		if len(batch) == buildBatchSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	bar.SetTotal(int64(total), true)
	progress.Wait()
	return total, nil
}

func buildRandom(forest *lshforest.Forest, dims uint32, count uint64) (uint64, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var total uint64
	batch := make([][]uint32, 0, buildBatchSize)
	for i := uint64(0); i < count; i++ {
		sig := make([]uint32, dims)
		for j := range sig {
			sig[j] = rng.Uint32()
		}
		batch = append(batch, sig)
		if len(batch) == buildBatchSize || i == count-1 {
			if err := forest.BatchAdd(batch); err != nil {
				return 0, err
			}
			total += uint64(len(batch))
			batch = batch[:0]
		}
	}
	return total, nil
}
