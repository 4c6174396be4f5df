package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	lazyfile "github.com/rpcpool/lazy-remote-file/lazy-file"
	"github.com/rpcpool/lazy-remote-file/telemetry"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

var gitCommitSHA = ""

func main() {
	defer klog.Flush()

	// set up a context that is canceled when a command is interrupted
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up a signal handler to cancel the context
	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Fprintln(os.Stderr)
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}

		// Allow any further SIGTERM or SIGINT to kill process
		signal.Stop(interrupt)
	}()

	shutdownTelemetry := func() {}
	stopMetrics := func() {}

	app := &cli.App{
		Name:        "lazyfile",
		Version:     gitCommitSHA,
		Description: "Random-access reads over remote files served with HTTP byte ranges, fetched lazily and cached in chunks.",
		Flags:       append(NewKlogFlagSet(), newFileFlags()...),
		Before: func(cctx *cli.Context) error {
			if cctx.Bool("trace") {
				shutdown, err := telemetry.InitTelemetry(cctx.Context, "lazyfile", os.Stderr)
				if err != nil {
					return fmt.Errorf("failed to init telemetry: %w", err)
				}
				shutdownTelemetry = shutdown
			}
			registry, err := newRegistry(cctx)
			if err != nil {
				return err
			}
			cctx.App.Metadata = map[string]any{registryMetadataKey: registry}
			if listenOn := cctx.String("metrics-listen"); listenOn != "" {
				stopMetrics = startMetricsServer(listenOn, registry)
			}
			return nil
		},
		After: func(cctx *cli.Context) error {
			stopMetrics()
			if registry, ok := cctx.App.Metadata[registryMetadataKey].(*lazyfile.Registry); ok {
				registry.Close()
			}
			shutdownTelemetry()
			return nil
		},
		Action: nil,
		Commands: []*cli.Command{
			newCmd_Stat(),
			newCmd_Cat(),
			newCmd_ReadAt(),
			newCmd_Pages(),
			newCmd_Version(),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}
