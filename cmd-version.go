package main

import (
	"fmt"
	"runtime/debug"
	"slices"

	"github.com/urfave/cli/v2"
)

func newCmd_Version() *cli.Command {
	return &cli.Command{
		Name:        "version",
		Usage:       "Print version information of this binary.",
		Description: "Print version information of this binary.",
		Flags:       []cli.Flag{},
		Action: func(c *cli.Context) error {
			fmt.Println("LAZYFILE CLI")
			fmt.Printf("Tag/Branch: %s\n", GitTag)
			fmt.Printf("Commit: %s\n", firstNonEmpty(GitCommit, gitCommitSHA))
			if info, ok := debug.ReadBuildInfo(); ok {
				fmt.Printf("Go: %s\n", info.GoVersion)
				fmt.Printf("More info:\n")
				for _, setting := range info.Settings {
					if slices.Contains(buildSettingsShown, setting.Key) {
						fmt.Printf("  %s: %s\n", setting.Key, setting.Value)
					}
				}
			}
			return nil
		},
	}
}

var (
	GitCommit string
	GitTag    string
)

var buildSettingsShown = []string{
	"-compiler",
	"GOARCH",
	"GOOS",
	"GOAMD64",
	"vcs",
	"vcs.revision",
	"vcs.time",
	"vcs.modified",
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
