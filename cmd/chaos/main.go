// cmd/chaos/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"libradoc/internal/chaos"
	"libradoc/internal/config"
	"libradoc/internal/docstore"
	"libradoc/internal/library"
	"libradoc/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("Chaos game day failed: %v", err)
	}
}

// run plays the game day against throwaway documents so the configured data
// directory is never touched.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	shutdown, err := telemetry.Setup(ctx, cfg.ServiceName+"-chaos", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	dir, err := os.MkdirTemp("", "libradoc-chaos-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg.DataDir = dir
	cfg.BooksPath = filepath.Join(dir, "books.json")
	cfg.UsersPath = filepath.Join(dir, "users.json")
	cfg.RentalsPath = filepath.Join(dir, "rentals.json")
	cfg.AuthRatePerMinute = 0

	faults := chaos.NewFaults()
	lib, err := library.New(cfg,
		library.WithLogger(logger),
		library.WithStoreOptions(docstore.WithRenameFunc(faults.Rename)),
	)
	if err != nil {
		return err
	}

	engine := chaos.NewEngine(lib, faults, os.Stdout)
	engine.RegisterExperiments()

	gameDay := chaos.GameDay{
		Name:      "Weekly Chaos Game Day",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
		Pause:     time.Second,
	}

	passed, err := engine.ExecuteGameDay(ctx, gameDay)
	if err != nil {
		return err
	}
	if !passed {
		return errors.New("at least one hypothesis did not hold")
	}
	return nil
}
