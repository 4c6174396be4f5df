package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	lazyfile "github.com/rpcpool/lazy-remote-file/lazy-file"
	"github.com/urfave/cli/v2"
)

func newCmd_ReadAt() *cli.Command {
	return &cli.Command{
		Name:        "readat",
		Usage:       "Read one range of a remote file and print it as a hex dump, followed by the page reads it caused.",
		Description: "Read one range of a remote file and print it as a hex dump, followed by the page reads it caused.",
		ArgsUsage:   "<url> <offset> <length>",
		Flags:       []cli.Flag{},
		Action: func(c *cli.Context) error {
			file, rest, err := openTarget(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if len(rest) != 2 {
				return cli.Exit("expected <offset> <length>", 1)
			}
			offset, err := strconv.ParseInt(rest[0], 10, 64)
			if err != nil {
				return cli.Exit(fmt.Sprintf("invalid offset: %s", err), 1)
			}
			length, err := strconv.Atoi(rest[1])
			if err != nil || length < 0 {
				return cli.Exit(fmt.Sprintf("invalid length %q", rest[1]), 1)
			}

			buf := make([]byte, length)
			n, err := file.CopyInto(lazyfile.WithReason(c.Context, "readat"), buf, 0, length, offset)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Print(hex.Dump(buf[:n]))
			if n < length {
				fmt.Printf("(end of file after %d bytes)\n", n)
			}
			printPageReads(file.PageReads())
			return nil
		},
	}
}

func printPageReads(reads []lazyfile.PageRead) {
	fmt.Printf("%d page reads:\n", len(reads))
	for _, read := range reads {
		state := "miss"
		if read.WasCached {
			state = "hit "
		}
		line := fmt.Sprintf("  page %-8d %s prefetch %d", read.Page, state, read.Prefetch)
		if read.Reason != "" {
			line += " (" + read.Reason + ")"
		}
		fmt.Println(line)
	}
}
