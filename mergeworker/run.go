// Package mergeworker boots the standalone merge resolution worker.
package mergeworker

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/notecore/notecore/internal/api"
	"github.com/notecore/notecore/internal/config"
	"github.com/notecore/notecore/internal/factory"
	"github.com/notecore/notecore/internal/ingest"
	"github.com/notecore/notecore/internal/logger"
	"github.com/notecore/notecore/internal/merge"
)

// Run starts the merge worker and blocks until shutdown or error.
func Run() error {
	log := logger.New("merge-worker")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Store adapter unavailable")
		return err
	}

	pipeline := ingest.New(st, api.NewEmbedder(cfg), log)
	resolver := merge.NewResolver(st, pipeline, log)
	worker := merge.NewWorker(resolver, merge.WorkerConfig{
		BatchSize: cfg.MergeBatchSize,
		Interval:  time.Duration(cfg.MergeIntervalSeconds) * time.Second,
	}, log)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("merge worker exit")
		return err
	}
	return nil
}
