package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qualiteair/hybride/services/api/config"
	httpserver "github.com/qualiteair/hybride/services/api/http"
	"github.com/qualiteair/hybride/services/internal/audit"
	hybridcfg "github.com/qualiteair/hybride/services/internal/config"
	"github.com/qualiteair/hybride/services/internal/hybrid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := audit.NewSlog(os.Stderr, cfg.Hybrid.LogLevel, cfg.Hybrid.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	retriever, err := hybrid.Open(ctx, cfg.Hybrid, logger)
	if err != nil {
		log.Fatalf("store connection error: %v", err)
	}
	defer retriever.Close()

	srv := httpserver.New(cfg, retriever.Config().Filters, func(f hybridcfg.Filters) httpserver.Reconciler {
		return retriever.WithFilters(f)
	})
	logger.Info("report API listening", "addr", cfg.ListenAddr())

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		cancel()
		retriever.Close()
		os.Exit(1)
	}
}
