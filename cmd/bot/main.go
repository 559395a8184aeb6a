package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hl-mm-bot/internal/app"
	"hl-mm-bot/internal/config"
	"hl-mm-bot/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "bot: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "bot: load .env: %v\n", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}

	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()
	log.Info("config loaded",
		zap.String("path", configPath),
		zap.String("strategy", cfg.Strategy.Name),
		zap.Int("venues", len(cfg.Venues)))

	application, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
