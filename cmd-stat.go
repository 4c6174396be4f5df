package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

type statOutput struct {
	Name         string `json:"name"`
	Length       int64  `json:"length"`
	ChunkSize    int    `json:"chunkSize"`
	Chunks       int64  `json:"chunks"`
	AcceptRanges bool   `json:"acceptRanges"`
}

func newCmd_Stat() *cli.Command {
	var asJSON bool
	return &cli.Command{
		Name:        "stat",
		Usage:       "Probe a remote file and print its length and chunking.",
		Description: "Sends one HEAD request and reports what the file handle would use.",
		ArgsUsage:   "<url>",
		Before: func(c *cli.Context) error {
			return nil
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the result as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(c *cli.Context) error {
			file, _, err := openTarget(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			length, err := file.Length(c.Context)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			chunkSize, err := file.ChunkSize(c.Context)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			caps, err := file.Capabilities(c.Context)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			out := statOutput{
				Name:         file.Name(),
				Length:       length,
				ChunkSize:    chunkSize,
				Chunks:       (length + int64(chunkSize) - 1) / int64(chunkSize),
				AcceptRanges: caps.AcceptRanges,
			}
			if asJSON {
				return fasterJson.NewEncoder(os.Stdout).Encode(out)
			}
			fmt.Printf("Name: %s\n", out.Name)
			fmt.Printf("Length: %s (%s bytes)\n", humanize.IBytes(uint64(out.Length)), humanize.Comma(out.Length))
			fmt.Printf("Chunk size: %s\n", humanize.IBytes(uint64(out.ChunkSize)))
			fmt.Printf("Chunks: %s\n", humanize.Comma(out.Chunks))
			fmt.Printf("Advertises byte ranges: %v\n", out.AcceptRanges)
			return nil
		},
	}
}
