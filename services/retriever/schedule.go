package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/qualiteair/hybride/services/internal/config"
	"github.com/qualiteair/hybride/services/internal/export"
)

type retrieveFunc func(ctx context.Context, cfg config.Config, logger *slog.Logger) (string, *export.Report, error)

// scheduleWith repeats fn every interval until ctx is done. Runs never
// overlap and a failed run is logged, not fatal.
func scheduleWith(ctx context.Context, cfg config.Config, every time.Duration, logger *slog.Logger, fn retrieveFunc) error {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	_, err := s.Every(every).Do(func() {
		path, rep, err := fn(ctx, cfg, logger)
		if err != nil {
			if rep != nil {
				logger.Error("scheduled retrieval failed", "error", err, "report", rep)
				return
			}
			logger.Error("scheduled retrieval failed", "error", err)
			return
		}
		logger.Info("scheduled retrieval exported", "path", path)
	})
	if err != nil {
		return err
	}

	s.StartAsync()
	logger.Info("scheduler started", "every", every.String())
	<-ctx.Done()
	s.Stop()
	logger.Info("scheduler stopped")
	return nil
}
