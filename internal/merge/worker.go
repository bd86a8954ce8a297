package merge

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// WorkerConfig controls batch size and polling cadence.
type WorkerConfig struct {
	BatchSize int
	Interval  time.Duration
}

// Worker polls the merge job queue on a schedule. It is safe to run
// alongside ingestion; each job is independently transactional.
type Worker struct {
	resolver *Resolver
	cfg      WorkerConfig
	log      zerolog.Logger
}

func NewWorker(resolver *Resolver, cfg WorkerConfig, log zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Worker{resolver: resolver, cfg: cfg, log: log}
}

// Run starts the polling loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("batch", w.cfg.BatchSize).Dur("interval", w.cfg.Interval).Msg("merge worker starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("merge worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.resolver.ProcessPendingMergeJobs(ctx, w.cfg.BatchSize); err != nil {
				w.log.Error().Err(err).Msg("merge processOnce")
			}
		}
	}
}
