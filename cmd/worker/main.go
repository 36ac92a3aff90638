package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jjtheshooterr/autobot/cmd/mainconfig"
	"github.com/jjtheshooterr/autobot/internal/app/bootstrap"
	appconfig "github.com/jjtheshooterr/autobot/internal/config"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

func main() {
	// .env is optional, local development only.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool, err := bootstrap.BuildPGPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	conv, err := bootstrap.BuildConversation(ctx, cfg, awsConfig, pool, redisClient, logger)
	if err != nil {
		logger.Error("failed to build booking pipeline", "error", err)
		os.Exit(1)
	}

	conv.Worker.Start(ctx)
	logger.Info("booking worker started", "workers", cfg.WorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down booking worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		conv.Worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("booking worker stopped")
	case <-doneCtx.Done():
		logger.Error("booking worker shutdown timed out", "error", doneCtx.Err())
	}
}
