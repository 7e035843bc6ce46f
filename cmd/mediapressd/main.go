package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"mediapress/internal/config"
	"mediapress/internal/daemon"
	"mediapress/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("create daemon", "error", err)
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", "error", err)
		return
	}

	<-ctx.Done()
	logger.Info("mediapressd shutting down")
	d.Stop()
}
