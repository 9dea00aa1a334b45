package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pci-pair-trader/internal/app"
	"pci-pair-trader/internal/config"
	"pci-pair-trader/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.example.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to .env file")
	resume := flag.Bool("resume", false, "restore stopped pair windows from the previous run")
	flag.Parse()

	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *resume {
		cfg.State.Resume = true
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.String("path", *configPath))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	log.Info("app initialized", zap.String("run_id", application.RunID()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("pipeline failed", zap.Error(err))
		os.Exit(1)
	}
}
