package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rpcpool/lazy-remote-file/telemetry"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

func newCmd_Cat() *cli.Command {
	var offset int64
	var length int64
	var outPath string
	var showProgress bool
	return &cli.Command{
		Name:        "cat",
		Usage:       "Stream a range of a remote file to stdout or a local file.",
		Description: "Reads the range through the lazy file handle, one chunk at a time, so the read heads accelerate as they would for a sequential reader.",
		ArgsUsage:   "<url>",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "offset",
				Usage:       "first byte to read",
				Destination: &offset,
			},
			&cli.Int64Flag{
				Name:        "length",
				Usage:       "number of bytes to read; -1 reads to the end of the file",
				Value:       -1,
				Destination: &length,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "write to this file instead of stdout",
				Destination: &outPath,
			},
			&cli.BoolFlag{
				Name:        "progress",
				Usage:       "show a progress bar on stderr",
				Destination: &showProgress,
			},
		},
		Action: func(c *cli.Context) error {
			file, _, err := openTarget(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			ctx, _, done := telemetry.TraceFunctionExecution(c.Context, "lazyfile.cat")
			defer done()

			fileLength, err := file.Length(ctx)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			chunkSize, err := file.ChunkSize(ctx)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if offset < 0 {
				return cli.Exit(fmt.Sprintf("invalid offset %d", offset), 1)
			}
			end := fileLength
			if length >= 0 {
				end = min(offset+length, fileLength)
			}
			if offset >= end {
				klog.V(2).Infof("nothing to read at offset %d of a %d byte file", offset, fileLength)
				return nil
			}

			var out io.Writer = os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("failed to create output file: %s", err), 1)
				}
				defer f.Close()
				out = f
			}

			var src io.Reader = io.NewSectionReader(file.ReaderAt(ctx), offset, end-offset)
			if showProgress {
				bar := progressbar.NewOptions64(
					end-offset,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("reading"),
					progressbar.OptionShowBytes(true),
					progressbar.OptionShowCount(),
					progressbar.OptionThrottle(100*time.Millisecond),
					progressbar.OptionOnCompletion(func() {
						fmt.Fprintln(os.Stderr)
					}),
				)
				reader := progressbar.NewReader(src, bar)
				src = &reader
				defer bar.Finish()
			}

			// hide ReadFrom so that reads are chunk sized.
			written, err := io.CopyBuffer(struct{ io.Writer }{out}, src, make([]byte, chunkSize))
			if err != nil {
				return cli.Exit(fmt.Sprintf("copied %d bytes: %s", written, err), 1)
			}
			stats := file.Stats()
			klog.V(1).Infof(
				"copied %s with %d requests (%s fetched)",
				humanize.IBytes(uint64(written)),
				stats.Requests,
				humanize.IBytes(uint64(stats.FetchedBytes)),
			)
			return nil
		},
	}
}
