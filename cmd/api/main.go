package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockdesk-backend/internal/config"
	"stockdesk-backend/internal/interfaces/router"
	"stockdesk-backend/internal/reconcile"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	setupLogging(cfg)

	a, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}
	if a.Rdb != nil {
		if err := a.Rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		log.Info().Msg("Redis connected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	// Startup pass runs to completion before traffic is served.
	if cfg.ReconcileOnStartup {
		if rep, err := a.Reconcile.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Startup reconciliation failed")
		} else {
			log.Info().Int("requests", rep.Requests).Int("repairs", len(rep.Repairs)).Msg("Startup reconciliation done")
		}
	}
	if cfg.ReconcileInterval > 0 {
		runner := &reconcile.Runner{Service: a.Reconcile, Interval: cfg.ReconcileInterval}
		wg.Add(1)
		go func() {
			defer wg.Done()
			// the startup pass already ran; wait one interval before the next
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.ReconcileInterval):
			}
			runner.Start(ctx)
		}()
	}
	if cfg.LockTTL > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Locks.RunSweeper(ctx, cfg.LockSweepInterval)
		}()
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server running")
		if err := a.Fiber.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down server...")

	cancel()
	if err := a.Fiber.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	wg.Wait()

	if a.Rdb != nil {
		_ = a.Rdb.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
