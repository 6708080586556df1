package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"guardattend/internal/bootstrap"
	"guardattend/internal/config"
	"guardattend/internal/logging"
	"guardattend/internal/worker"
)

// Worker drains capture jobs published by the API into the attendance table.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log, err := logging.New(cfg.Env, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	if cfg.QueueBackend != "redis" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; the memory queue is drained inside the API process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	defer app.Close()

	q, redisClient := app.OpenQueue()
	if !redisClient.Healthy(ctx) {
		log.Warn("redis not reachable yet, consumer will retry", zap.String("addr", cfg.RedisAddr))
	}

	if err := worker.Run(ctx, q, app.Captures, log.Named("worker")); err != nil {
		log.Error("worker failed", zap.Error(err))
	}
}
