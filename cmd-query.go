package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"

	"github.com/rpcpool/lshforest/lshforest"
)

func newCmd_Query() *cli.Command {
	var indexPath, sigSpec, excludeSpec string
	var byID uint64
	var k, kc int
	var refine, weighted bool
	return &cli.Command{
		Name:        "query",
		Usage:       "Query a stored index for approximate nearest neighbors.",
		ArgsUsage:   "--index=<dump> (--sig=\"w1,w2,..\" | --id=<n>) -k <k>",
		Description: "Restores the dump and runs a prefix-probe query; with --refine the candidate pool is over-fetched by --kc and refined to the top k by exact distance.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "index",
				Usage:       "path to the index dump",
				Destination: &indexPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "sig",
				Usage:       "query signature as comma-separated uint32 words",
				Destination: &sigSpec,
			},
			&cli.Uint64Flag{
				Name:        "id",
				Usage:       "query with the stored signature of this ID (requires a stored index)",
				Value:       uint64(lshforest.NoNeighbor),
				Destination: &byID,
			},
			&cli.IntFlag{
				Name:        "k",
				Usage:       "number of neighbors to return",
				Value:       10,
				Destination: &k,
			},
			&cli.IntFlag{
				Name:        "kc",
				Usage:       "over-fetch multiplier for --refine",
				Value:       10,
				Destination: &kc,
			},
			&cli.BoolFlag{
				Name:        "refine",
				Usage:       "refine candidates by exact distance",
				Destination: &refine,
			},
			&cli.BoolFlag{
				Name:        "weighted",
				Usage:       "use weighted Jaccard distance when refining",
				Destination: &weighted,
			},
			&cli.StringFlag{
				Name:        "exclude",
				Usage:       "comma-separated IDs to exclude from results",
				Destination: &excludeSpec,
			},
		},
		Action: func(c *cli.Context) error {
			forest, err := lshforest.Open(indexPath)
			if err != nil {
				return fmt.Errorf("failed to restore index: %w", err)
			}

			var sig []uint32
			switch {
			case sigSpec != "":
				sig, err = parseWords(sigSpec)
				if err != nil {
					return err
				}
				if uint32(len(sig)) != forest.Dims() {
					return fmt.Errorf("query signature has %d words, index is %d-dimensional", len(sig), forest.Dims())
				}
			case byID != uint64(lshforest.NoNeighbor):
				sig, err = forest.Signature(uint32(byID))
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("either --sig or --id is required")
			}

			exclude, err := parseWords(excludeSpec)
			if err != nil {
				return err
			}

			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
			if refine {
				neighbors, err := forest.QueryLinearScanExclude(sig, exclude, k, kc, weighted)
				if err != nil {
					return err
				}
				return enc.Encode(neighbors)
			}
			ids, err := forest.QueryExclude(sig, exclude, k)
			if err != nil {
				return err
			}
			return enc.Encode(ids)
		},
	}
}

func parseWords(list string) ([]uint32, error) {
	if list == "" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid word %q: %w", p, err)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}
