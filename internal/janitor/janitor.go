// Package janitor runs the periodic storage sweeps: expired dialog history,
// expired knowledge cache entries, and stale idempotency records. One
// goroutine, one ticker, cancelled through its context. Sweeps are
// independent so a failure in one never blocks the others.
package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/dkurilov/go-companion-backend/internal/repo"
	"github.com/dkurilov/go-companion-backend/internal/services"
)

// Janitor owns the background retention sweeps.
type Janitor struct {
	db        *gorm.DB
	dialog    *services.DialogService
	knowledge *services.KnowledgeService
	interval  time.Duration
	lg        zerolog.Logger
}

// New constructs a Janitor sweeping every interval.
func New(db *gorm.DB, dialog *services.DialogService, knowledge *services.KnowledgeService, interval time.Duration) *Janitor {
	return &Janitor{
		db:        db,
		dialog:    dialog,
		knowledge: knowledge,
		interval:  interval,
		lg:        log.With().Str("component", "janitor").Logger(),
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// The immediate sweep matters after a restart: rows may have expired while
// the process was down.
func (j *Janitor) Run(ctx context.Context) {
	j.lg.Info().Dur("interval", j.interval).Msg("janitor started")

	j.sweep(ctx)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.lg.Info().Msg("janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// sweep runs every retention pass, logging per-pass results.
func (j *Janitor) sweep(ctx context.Context) {
	if n, err := j.dialog.PruneExpired(ctx); err != nil {
		j.lg.Error().Err(err).Msg("dialog prune failed")
	} else if n > 0 {
		j.lg.Info().Int64("rows", n).Msg("expired dialog messages pruned")
	}

	if n, err := j.knowledge.EvictExpired(ctx); err != nil {
		j.lg.Error().Err(err).Msg("cache eviction failed")
	} else if n > 0 {
		j.lg.Info().Int64("rows", n).Msg("expired cache entries evicted")
	}

	if n, err := repo.DeleteExpiredIdempotency(ctx, j.db, time.Now().UTC()); err != nil {
		j.lg.Error().Err(err).Msg("idempotency sweep failed")
	} else if n > 0 {
		j.lg.Info().Int64("rows", n).Msg("stale idempotency records removed")
	}
}
