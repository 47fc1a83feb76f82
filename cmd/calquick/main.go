// Command calquick is the quick-edit engine daemon: it attaches to a
// calendar web app in Chrome, injects edit panels into quick popups, and
// pushes title edits through the host's own editor flow.
//
// Usage:
//
//	calquick -config calquick.yaml
//	calquick -url https://calendar.example.com/r/week
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/calquick"
	"github.com/hazyhaar/calquick/internal/diag"
)

func main() {
	configPath := flag.String("config", "", "path to calquick.yaml config file")
	url := flag.String("url", "", "calendar URL (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *url); err != nil {
		logger.Error("calquick: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, url string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if url != "" {
		cfg.Calendar.URL = url
	}
	if cfg.Calendar.URL == "" {
		fmt.Fprintln(os.Stderr, "usage: calquick -config <file> | -url <url>")
		os.Exit(1)
	}

	engine, err := calquick.New(cfg, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- engine.Run(ctx) }()

	if cfg.Diag.Listen != "" {
		go func() {
			var attempts diag.Attempts
			if j := engine.Journal(); j != nil {
				attempts = j
			}
			srv := diag.New(cfg.Diag.Listen, engine.Panels(), attempts, logger)
			errCh <- srv.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		engine.Stop()
		return nil
	case err := <-errCh:
		return err
	}
}

func loadConfig(path string) (*calquick.Config, error) {
	if path == "" {
		cfg := &calquick.Config{}
		cfg.ApplyDefaults()
		return cfg, nil
	}
	return calquick.LoadConfig(path)
}
