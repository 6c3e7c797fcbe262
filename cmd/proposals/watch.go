package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/c360studio/proposals/recorder"
	"github.com/c360studio/proposals/watcher"
	"github.com/spf13/cobra"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var (
		metricsAddr string
		template    string
		tag         string
		strict      bool
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Record input files whenever they change",
		Long: `Watch monitors a directory of YAML and JSON input files and records
each one when it is created or modified. Deleting an input never removes what
was recorded. With --metrics-addr, Prometheus counters are served on /metrics.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Watch.Dir = args[0]
			}
			if metricsAddr != "" {
				cfg.Metrics.Addr = metricsAddr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			app := NewApp(cfg, logger, strict)
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer app.Shutdown(shutdownTimeout)

			if cfg.Metrics.Addr != "" {
				stop := serveMetrics(app, cfg.Metrics.Addr, logger)
				defer stop()
			}

			w, err := watcher.New(watcher.Config{
				Dir:        cfg.Watch.Dir,
				Exclude:    []string{cfg.Output.Root},
				Debounce:   cfg.Watch.Debounce,
				Extensions: cfg.Watch.Extensions,
			}, logger)
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				w.Stop()
				return err
			}
			defer w.Stop()

			runWatch(ctx, w.Events(), app.Recorder(), cmd.OutOrStdout(), logger, recorder.Provenance{Template: template, Tag: tag})
			if n := w.DroppedEvents(); n > 0 {
				logger.Warn("Watch dropped change events", "count", n)
			}
			logger.Info("Watch stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().StringVar(&template, "template", "", "Template identifier stored in provenance.json")
	cmd.Flags().StringVar(&tag, "tag", "", "Version tag stored in provenance.json")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject records with missing keys or a non-numeric Version")
	return cmd
}

// runWatch records every changed input until the channel closes or ctx ends.
// A failing input is logged and does not stop the loop.
func runWatch(ctx context.Context, changes <-chan watcher.Event, rec *recorder.Recorder, out io.Writer, logger *slog.Logger, base recorder.Provenance) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			prov := base
			prov.SourcePath = ev.AbsPath
			if err := recordFile(ctx, rec, out, ev.AbsPath, prov); err != nil {
				logger.Error("Failed to record input", "path", ev.Path, "error", err)
			}
		}
	}
}

// serveMetrics starts the /metrics endpoint and returns its shutdown func.
func serveMetrics(app *App, addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Failed to stop metrics server", "error", err)
		}
	}
}
