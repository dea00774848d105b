package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner repeats passes on a fixed interval. A zero interval runs once.
type Runner struct {
	Service  *Service
	Interval time.Duration
}

// Start makes a pass immediately, then one per tick until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.pass(ctx)
	if r.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciliation runner stopped")
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Runner) pass(ctx context.Context) {
	if _, err := r.Service.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Reconciliation pass failed")
	}
}
