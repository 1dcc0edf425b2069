package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/rpcpool/lshforest/lshforest"
)

type knnEdge struct {
	From   uint32  `json:"from"`
	To     uint32  `json:"to"`
	Weight float64 `json:"weight"`
}

func newCmd_KNNGraph() *cli.Command {
	var indexPath, outPath string
	var k, kc int
	var weighted bool
	return &cli.Command{
		Name:        "knn-graph",
		Usage:       "Compute the k-nearest-neighbor graph of a stored index.",
		ArgsUsage:   "--index=<dump> -k <k> --out=<file>",
		Description: "Restores the dump and computes, row-parallel, the refined k nearest neighbors of every stored signature; edges are written as JSON lines. The empty slots of under-filled rows are not written.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "index",
				Usage:       "path to the index dump",
				Destination: &indexPath,
				Required:    true,
			},
			&cli.IntFlag{
				Name:        "k",
				Usage:       "neighbors per signature",
				Value:       10,
				Destination: &k,
			},
			&cli.IntFlag{
				Name:        "kc",
				Usage:       "over-fetch multiplier",
				Value:       10,
				Destination: &kc,
			},
			&cli.BoolFlag{
				Name:        "weighted",
				Usage:       "use weighted Jaccard distance",
				Destination: &weighted,
			},
			&cli.StringFlag{
				Name:        "out",
				Usage:       "path to write JSON-line edges to; '-' writes stdout",
				Value:       "-",
				Destination: &outPath,
			},
		},
		Action: func(c *cli.Context) error {
			forest, err := lshforest.Open(indexPath)
			if err != nil {
				return fmt.Errorf("failed to restore index: %w", err)
			}
			klog.Infof("computing %d-NN graph over %s signatures", k, humanize.Comma(int64(forest.Size())))

			startedAt := time.Now()
			from, to, weight, err := forest.KNNGraph(k, kc, weighted)
			if err != nil {
				return err
			}
			klog.Infof("computed %s edges in %s", humanize.Comma(int64(len(from))), time.Since(startedAt).Truncate(time.Millisecond))

			out := os.Stdout
			if outPath != "-" {
				out, err = os.Create(outPath)
				if err != nil {
					return err
				}
				defer out.Close()
			}
			w := bufio.NewWriterSize(out, 1<<20)
			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
			written := 0
			for i := range from {
				if to[i] == lshforest.NoNeighbor {
					continue
				}
				if err := enc.Encode(knnEdge{From: from[i], To: to[i], Weight: weight[i]}); err != nil {
					return err
				}
				written++
			}
			if err := w.Flush(); err != nil {
				return err
			}
			klog.Infof("wrote %s edges", humanize.Comma(int64(written)))
			return nil
		},
	}
}
