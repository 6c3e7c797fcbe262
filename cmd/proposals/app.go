package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/proposals/config"
	"github.com/c360studio/proposals/events"
	"github.com/c360studio/proposals/export"
	"github.com/c360studio/proposals/metrics"
	"github.com/c360studio/proposals/recorder"
	"github.com/c360studio/proposals/storage"
)

// App wires the recorder to its configured side channels.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	strict bool

	// NATS
	natsConn *nats.Conn
	js       jetstream.JetStream

	index   *storage.Index
	events  *events.Publisher
	metrics *metrics.Metrics

	recorder *recorder.Recorder
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger, strict bool) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:     cfg,
		logger:  logger,
		strict:  strict,
		metrics: metrics.New(),
	}
}

// Start connects the optional side channels and builds the recorder.
// NATS problems are logged and leave the recorder without events or index.
func (a *App) Start(ctx context.Context) error {
	var sinks []recorder.Sink

	if a.cfg.NATS.URL != "" {
		if err := a.startNATS(ctx); err != nil {
			a.logger.Warn("NATS unavailable, recording without events or index", "error", err)
		} else {
			a.events = events.NewPublisher(a.natsConn, a.cfg.NATS.Subject)
			sinks = append(sinks, a.events)
			if a.index != nil {
				sinks = append(sinks, a.index)
			}
		}
	}

	opts := recorder.Options{
		Root:     a.cfg.Output.Root,
		Atomic:   a.cfg.AtomicWrites(),
		Strict:   a.strict,
		Observer: a.metrics,
		Sinks:    sinks,
		Logger:   a.logger,
	}
	if a.cfg.Output.Markdown {
		opts.Renderer = export.NewTransformer()
	}
	a.recorder = recorder.New(opts)
	return nil
}

func (a *App) startNATS(ctx context.Context) error {
	a.logger.Info("Connecting to NATS", "url", a.cfg.NATS.URL)
	conn, err := events.Connect(a.cfg.NATS.URL, a.cfg.NATS.Timeout)
	if err != nil {
		return wrapNATSError(err, a.cfg.NATS.URL)
	}
	a.natsConn = conn

	if a.cfg.NATS.Bucket == "" {
		return nil
	}

	js, err := jetstream.New(conn)
	if err != nil {
		a.logger.Warn("JetStream unavailable, index disabled", "error", err)
		return nil
	}
	a.js = js

	openCtx := ctx
	if a.cfg.NATS.Timeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, a.cfg.NATS.Timeout)
		defer cancel()
	}
	index, err := storage.OpenIndex(openCtx, js, a.cfg.NATS.Bucket)
	if err != nil {
		a.logger.Warn("Proposal index unavailable", "bucket", a.cfg.NATS.Bucket, "error", err)
		return nil
	}
	a.index = index
	return nil
}

// wrapNATSError provides guidance when the NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf("%w (is NATS running at %s? clear nats.url to record without it)", err, url)
	}
	return err
}

// Recorder returns the recorder built by Start.
func (a *App) Recorder() *recorder.Recorder {
	return a.recorder
}

// Shutdown flushes pending publishes and closes the NATS connection.
func (a *App) Shutdown(timeout time.Duration) {
	if a.natsConn == nil {
		return
	}
	if err := a.natsConn.FlushTimeout(timeout); err != nil {
		a.logger.Warn("Failed to flush NATS connection", "error", err)
	}
	a.natsConn.Close()
	a.natsConn = nil
}
