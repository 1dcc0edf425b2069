package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/rpcpool/lshforest/lshforest"
)

func newCmd_Info() *cli.Command {
	var indexPath string
	return &cli.Command{
		Name:        "info",
		Usage:       "Print the header of a stored index dump.",
		ArgsUsage:   "--index=<dump>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "index",
				Usage:       "path to the index dump",
				Destination: &indexPath,
				Required:    true,
			},
		},
		Action: func(c *cli.Context) error {
			info, err := lshforest.Inspect(indexPath)
			if err != nil {
				return err
			}
			fmt.Printf("File:       %s (%s)\n", indexPath, humanize.Bytes(uint64(info.FileSize)))
			fmt.Printf("Dims:       %d\n", info.Dims)
			fmt.Printf("Bands:      %d (width %d)\n", info.Bands, info.BandWidth)
			fmt.Printf("Signatures: %s\n", humanize.Comma(int64(info.Size)))
			fmt.Printf("Stored:     %t\n", info.Stored)
			fmt.Printf("Clean:      %t\n", info.Clean)
			for _, pair := range info.Meta.Pairs {
				fmt.Printf("Meta:       %s = %s\n", pair.Key, pair.Value)
			}
			return nil
		},
	}
}
