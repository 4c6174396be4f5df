package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

const envPrefix = "LAZYFILE_"

func envVarsFor(name string) []string {
	return []string{envPrefix + strings.ToUpper(name)}
}

// NewKlogFlagSet exposes the klog flags as cli flags, each with a LAZYFILE_*
// environment variable. Logs always go to stderr by default: stdout carries
// file contents.
func NewKlogFlagSet() []cli.Flag {
	fs := flag.NewFlagSet("klog", flag.PanicOnError)
	klog.InitFlags(fs)

	fs.Set("v", "1")
	fs.Set("log_file_max_size", "1800")
	fs.Set("logtostderr", "true")

	klogString := func(name, usage string) cli.Flag {
		return &cli.StringFlag{
			Name:    name,
			Usage:   usage,
			EnvVars: envVarsFor(name),
			Action: func(cctx *cli.Context, v string) error {
				if v != "" {
					return fs.Set(name, v)
				}
				return nil
			},
		}
	}
	klogBool := func(name, usage string, defaultValue bool) cli.Flag {
		return &cli.BoolFlag{
			Name:        name,
			Usage:       usage,
			EnvVars:     envVarsFor(name),
			Value:       defaultValue,
			DefaultText: fmt.Sprint(defaultValue),
			Action: func(cctx *cli.Context, v bool) error {
				return fs.Set(name, fmt.Sprint(v))
			},
		}
	}

	return []cli.Flag{
		klogString("log_dir", "If non-empty, write log files in this directory (no effect when -logtostderr=true)"),
		klogString("log_file", "If non-empty, use this log file (no effect when -logtostderr=true)"),
		&cli.Uint64Flag{
			Name:        "log_file_max_size",
			Usage:       "Defines the maximum size a log file can grow to (no effect when -logtostderr=true). Unit is megabytes. If the value is 0, the maximum file size is unlimited.",
			EnvVars:     envVarsFor("log_file_max_size"),
			DefaultText: "1800",
			Action: func(cctx *cli.Context, v uint64) error {
				return fs.Set("log_file_max_size", fmt.Sprint(v))
			},
		},
		klogBool("logtostderr", "log to standard error instead of files", true),
		klogBool("alsologtostderr", "log to standard error as well as files (no effect when -logtostderr=true)", false),
		&cli.IntFlag{
			Name:    "v",
			Usage:   "number for the log level verbosity (2: probe results, 3: every request, 4: every fetch decision)",
			EnvVars: envVarsFor("v"),
			Value:   1,
			Action: func(cctx *cli.Context, v int) error {
				return fs.Set("v", fmt.Sprint(v))
			},
		},
		klogBool("add_dir_header", "If true, adds the file directory to the header of the log messages", false),
		klogBool("skip_headers", "If true, avoid header prefixes in the log messages", false),
		klogBool("one_output", "If true, only write logs to their native severity level (vs also writing to each lower severity level; no effect when -logtostderr=true)", false),
		klogBool("skip_log_headers", "If true, avoid headers when opening log files (no effect when -logtostderr=true)", false),
		klogString("stderrthreshold", "logs at or above this threshold go to stderr when writing to files and stderr (no effect when -logtostderr=true or -alsologtostderr=false)"),
		klogString("vmodule", "comma-separated list of pattern=N settings for file-filtered logging"),
		klogString("log_backtrace_at", "when logging hits line file:N, emit a stack trace"),
	}
}
