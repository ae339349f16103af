package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/thumbnailer"
	"github.com/root4loot/thumbnailer/internal/config"
	"github.com/root4loot/thumbnailer/internal/metrics"
	"github.com/root4loot/thumbnailer/internal/server"
	"github.com/root4loot/thumbnailer/internal/session"
)

// parseServeFlags applies the serve subcommand flags onto cfg.
func parseServeFlags(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	debug := cfg.Log.Level == "debug"
	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "")
	fs.StringVar(&cfg.Server.Addr, "a", cfg.Server.Addr, "")
	fs.BoolVar(&debug, "debug", debug, "")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	return nil
}

// runServe starts the operator web UI and blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	if err := parseServeFlags(cfg, args); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	cfg.ApplyLogLevel()

	engine, err := newEngine(cfg.Capture)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	runner := thumbnailer.NewRunnerWithOptions(engine, cfg.Runner)
	sess := session.New(m.Instrument(runner))

	log.Infof("Capturing with %s (%s)", cfg.Capture.Engine, cfg.Capture.BrowserBin)
	return server.New(cfg, sess, m, registry).Run(ctx)
}
