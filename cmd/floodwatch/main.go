package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"floodwatch/internal/app"
	"floodwatch/internal/config"
	"floodwatch/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := app.New(cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("service exited with error")
			os.Exit(1)
		}
		return
	}

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("shutdown finished with error")
			os.Exit(1)
		}
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timeout, exiting")
	}
}
