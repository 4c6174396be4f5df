package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	lazyfile "github.com/rpcpool/lazy-remote-file/lazy-file"
	"github.com/urfave/cli/v2"
)

type readRange struct {
	Start  int64
	Length int
}

// parseReadRanges parses "start:length" pairs.
func parseReadRanges(args []string) ([]readRange, error) {
	ranges := make([]readRange, 0, len(args))
	for _, arg := range args {
		startStr, lengthStr, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("invalid range %q: want start:length", arg)
		}
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || start < 0 {
			return nil, fmt.Errorf("invalid start in %q", arg)
		}
		length, err := strconv.Atoi(lengthStr)
		if err != nil || length < 0 {
			return nil, fmt.Errorf("invalid length in %q", arg)
		}
		ranges = append(ranges, readRange{Start: start, Length: length})
	}
	return ranges, nil
}

func newCmd_Pages() *cli.Command {
	var dump bool
	return &cli.Command{
		Name:        "pages",
		Usage:       "Replay a sequence of reads and print the resulting page reads and read heads.",
		Description: "Each argument is a start:length read. Useful to see how the read heads react to an access pattern.",
		ArgsUsage:   "<url> <start:length>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "dump",
				Usage:       "dump the final stats of the file handle",
				Destination: &dump,
			},
		},
		Action: func(c *cli.Context) error {
			file, rest, err := openTarget(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			ranges, err := parseReadRanges(rest)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if len(ranges) == 0 {
				return cli.Exit("no reads given", 1)
			}

			for i, r := range ranges {
				buf := make([]byte, r.Length)
				ctx := lazyfile.WithReason(c.Context, fmt.Sprintf("read #%d", i))
				n, err := file.CopyInto(ctx, buf, 0, r.Length, r.Start)
				if err != nil {
					return cli.Exit(fmt.Sprintf("read #%d (%d:%d): %s", i, r.Start, r.Length, err), 1)
				}
				heads := file.ReadHeads()
				fmt.Printf("read #%d %d:%d -> %d bytes, heads %v\n", i, r.Start, r.Length, n, heads)
			}
			printPageReads(file.PageReads())

			stats := file.Stats()
			fmt.Printf("%d requests, %d bytes fetched, %d chunks cached\n", stats.Requests, stats.FetchedBytes, stats.CachedChunks)
			if dump {
				spew.Dump(stats)
			}
			return nil
		},
	}
}
