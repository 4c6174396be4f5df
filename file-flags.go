package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	lazyfile "github.com/rpcpool/lazy-remote-file/lazy-file"
	rangemapper "github.com/rpcpool/lazy-remote-file/range-mapper"
	"github.com/urfave/cli/v2"
)

const registryMetadataKey = "registry"

func newFileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "manifest",
			Usage:   "YAML manifest of a file split across several remote pieces; replaces the <url> argument",
			EnvVars: []string{"LAZYFILE_MANIFEST"},
		},
		&cli.IntFlag{
			Name:    "chunk-size",
			Usage:   "cache granularity in bytes; should match the reader's page size",
			EnvVars: []string{"LAZYFILE_CHUNK_SIZE"},
			Value:   4096,
		},
		&cli.IntFlag{
			Name:    "max-read-heads",
			Usage:   "number of sequential read streams tracked per file",
			EnvVars: []string{"LAZYFILE_MAX_READ_HEADS"},
			Value:   lazyfile.DefaultMaxReadHeads,
		},
		&cli.StringFlag{
			Name:    "max-read-speed",
			Usage:   "maximum size of one prefetching request (e.g. 5MiB)",
			EnvVars: []string{"LAZYFILE_MAX_READ_SPEED"},
			Value:   "5MiB",
		},
		&cli.IntFlag{
			Name:    "max-cached-chunks",
			Usage:   "bound on the number of cached chunks per file, least recently used dropped first; 0 means unbounded",
			EnvVars: []string{"LAZYFILE_MAX_CACHED_CHUNKS"},
			Value:   0,
		},
		&cli.IntFlag{
			Name:    "retries",
			Usage:   "extra attempts for requests that get no response at all",
			EnvVars: []string{"LAZYFILE_RETRIES"},
			Value:   0,
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "if set, serve Prometheus metrics and file stats on this address while the command runs",
			EnvVars: []string{"LAZYFILE_METRICS_LISTEN"},
		},
		&cli.BoolFlag{
			Name:    "trace",
			Usage:   "enable OpenTelemetry tracing (OTLP when OTEL_EXPORTER_OTLP_ENDPOINT is set, stderr otherwise)",
			EnvVars: []string{"LAZYFILE_TRACE"},
		},
	}
}

type fileOptions struct {
	manifest        string
	chunkSize       int
	chunkSizeSet    bool
	maxReadHeads    int
	maxReadSpeed    int64
	maxCachedChunks int
	retries         int
}

func fileOptionsFromContext(cctx *cli.Context) (*fileOptions, error) {
	maxReadSpeed, err := humanize.ParseBytes(cctx.String("max-read-speed"))
	if err != nil {
		return nil, fmt.Errorf("invalid --max-read-speed: %w", err)
	}
	return &fileOptions{
		manifest:        cctx.String("manifest"),
		chunkSize:       cctx.Int("chunk-size"),
		chunkSizeSet:    cctx.IsSet("chunk-size"),
		maxReadHeads:    cctx.Int("max-read-heads"),
		maxReadSpeed:    int64(maxReadSpeed),
		maxCachedChunks: cctx.Int("max-cached-chunks"),
		retries:         cctx.Int("retries"),
	}, nil
}

// factory returns the registry factory for the options. Keys are URLs, or
// manifest paths when a manifest is used.
func (o *fileOptions) factory() lazyfile.Factory {
	return func(key string) (lazyfile.Config, error) {
		cfg := lazyfile.Config{
			RequestChunkSize: o.chunkSize,
			MaxReadHeads:     o.maxReadHeads,
			MaxReadSpeed:     o.maxReadSpeed,
			MaxCachedChunks:  o.maxCachedChunks,
			Retries:          o.retries,
			LogPageReads:     true,
		}
		if o.manifest == "" {
			cfg.RangeMapper = rangemapper.Identity(key)
			return cfg, nil
		}
		manifest, err := rangemapper.LoadManifest(key)
		if err != nil {
			return cfg, err
		}
		mapper, total, err := manifest.Mapper()
		if err != nil {
			return cfg, fmt.Errorf("invalid manifest %q: %w", key, err)
		}
		cfg.RangeMapper = mapper
		cfg.FileLength = total
		if manifest.ChunkSize > 0 && !o.chunkSizeSet {
			cfg.RequestChunkSize = manifest.ChunkSize
		}
		return cfg, nil
	}
}

// target returns the registry key of the file a command works on, and the
// remaining positional arguments.
func (o *fileOptions) target(cctx *cli.Context) (string, []string, error) {
	args := cctx.Args().Slice()
	if o.manifest != "" {
		return o.manifest, args, nil
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("missing <url> argument (or --manifest)")
	}
	return args[0], args[1:], nil
}

func newRegistry(cctx *cli.Context) (*lazyfile.Registry, error) {
	opts, err := fileOptionsFromContext(cctx)
	if err != nil {
		return nil, err
	}
	return lazyfile.NewRegistry(opts.factory()), nil
}

// openTarget opens the file named on the command line.
func openTarget(cctx *cli.Context) (*lazyfile.File, []string, error) {
	opts, err := fileOptionsFromContext(cctx)
	if err != nil {
		return nil, nil, err
	}
	key, rest, err := opts.target(cctx)
	if err != nil {
		return nil, nil, err
	}
	registry, ok := cctx.App.Metadata[registryMetadataKey].(*lazyfile.Registry)
	if !ok {
		return nil, nil, fmt.Errorf("no file registry configured")
	}
	file, err := registry.Open(key)
	if err != nil {
		return nil, nil, err
	}
	return file, rest, nil
}
