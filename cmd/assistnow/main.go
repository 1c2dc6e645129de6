package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"assistnow/internal/config"
)

func main() {
	var (
		configPath   string
		debug        bool
		traceSummary string
	)
	flag.StringVar(&configPath, "config", "./assistnow.yaml", "Path to YAML config")
	flag.BoolVar(&debug, "debug", false, "Log every block")
	flag.StringVar(&traceSummary, "trace-summary", "", "Print a summary of a trace log and exit")
	flag.Parse()

	if debug {
		level.Set(slog.LevelDebug)
	}

	if traceSummary != "" {
		if err := printTraceSummary(os.Stdout, traceSummary); err != nil {
			fmt.Fprintf(os.Stderr, "trace summary failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("config load failed", "path", configPath, "err", err)
		os.Exit(1)
	}
	configureLogging(cfg.Log, debug)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("assistnow failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	data, err := loadBundle(ctx, cfg, nil)
	if err != nil {
		return err
	}

	port, device, err := openLink(cfg)
	if err != nil {
		return err
	}
	slog.Info("link open", "device", device, "baud", cfg.Link.Baud)

	res, err := transfer(ctx, cfg, port, data)
	if err != nil {
		return err
	}
	if cfg.Transfer.Mode == config.ModeLegacy && res.Updated > 0 && cfg.Cache.Enable {
		// Keep the receiver's edits so the next run starts from them.
		if err := storeBundle(cfg, res.Data); err != nil {
			slog.Warn("storing updated legacy data failed", "err", err)
		}
	}
	return nil
}
