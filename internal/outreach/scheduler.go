// Proactive outreach scheduler.
//
// One long-lived goroutine cycles Scanning → Dispatching → Sleeping until its
// context is cancelled. Every tick re-reads engagement state from storage:
// nothing from a previous scan is trusted, so a user who replies between
// scan and dispatch is re-evaluated against fresh timestamps. The loop is
// self-healing: a failed or panicking tick logs, sleeps the error backoff,
// and carries on.
package outreach

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkurilov/go-companion-backend/internal/delivery"
	"github.com/dkurilov/go-companion-backend/internal/domain"
	"github.com/dkurilov/go-companion-backend/internal/services"
)

var (
	// outreachSent counts successfully delivered proactive messages by the
	// mood pool they were drawn from.
	outreachSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_messages_total",
			Help: "Total proactive messages delivered, by mood.",
		},
		[]string{"mood"},
	)

	// outreachFailures counts dispatches that did not deliver, split into
	// permanent (recipient unreachable, state cleaned up) and transient
	// (user stays eligible next tick).
	outreachFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_failures_total",
			Help: "Total failed proactive dispatches, by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(outreachSent, outreachFailures)
}

// Deliverer is the outbound channel the scheduler sends through. A nil error
// means delivered, delivery.ErrUnreachable means the recipient is permanently
// gone, anything else is transient.
type Deliverer interface {
	Send(ctx context.Context, chatID, text string) error
}

// Config holds the scheduler tunables. All durations are validated by the
// config package before they reach here.
type Config struct {
	// Tick is the sleep between scans.
	Tick time.Duration
	// ErrorBackoff is the shorter sleep after a failed tick.
	ErrorBackoff time.Duration
	// BatchSize caps how many users one tick services.
	BatchSize int
	// DispatchDelay throttles consecutive dispatches within a tick.
	DispatchDelay time.Duration
	// EmbellishProb is the chance of appending a random embellishment.
	EmbellishProb float64
}

// Scheduler owns the proactive messaging loop.
type Scheduler struct {
	cfg        Config
	engagement *services.EngagementService
	dialog     *services.DialogService
	deliver    Deliverer
	rnd        *rand.Rand
	lg         zerolog.Logger
}

// New constructs a Scheduler. The random source is injected so tests can
// pin message selection; pass rand.New(rand.NewSource(time.Now().UnixNano()))
// in production.
func New(cfg Config, engagement *services.EngagementService, dialog *services.DialogService, deliver Deliverer, rnd *rand.Rand) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		engagement: engagement,
		dialog:     dialog,
		deliver:    deliver,
		rnd:        rnd,
		lg:         log.With().Str("component", "outreach").Logger(),
	}
}

// Run executes the scheduler loop until ctx is cancelled. It never returns
// early on tick failures; the process supervisor owns its lifetime.
func (s *Scheduler) Run(ctx context.Context) {
	s.lg.Info().
		Dur("tick", s.cfg.Tick).
		Int("batch", s.cfg.BatchSize).
		Msg("outreach scheduler started")

	for {
		wait := s.cfg.Tick
		if err := s.safeTick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.lg.Error().Err(err).Msg("tick failed, backing off")
			wait = s.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			s.lg.Info().Msg("outreach scheduler stopped")
			return
		case <-time.After(wait):
		}
	}
}

// safeTick runs one tick, converting panics into errors so a bug in a single
// dispatch can never take the loop (or the process) down.
func (s *Scheduler) safeTick(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tick panic: %v", rec)
		}
	}()
	return s.tick(ctx)
}

// tick scans for due users and dispatches to each in longest-neglected-first
// order.
func (s *Scheduler) tick(ctx context.Context) error {
	due, err := s.engagement.ListDue(ctx, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("scan due users: %w", err)
	}

	for i, scanned := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.dispatch(ctx, scanned.UserID)

		// Throttle between dispatches, not after the last one.
		if s.cfg.DispatchDelay > 0 && i < len(due)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.DispatchDelay):
			}
		}
	}
	return nil
}

// dispatch services one user: fresh state read, mood derivation, message
// selection, delivery, and the post-delivery bookkeeping. All failures are
// terminal for this user within this tick only.
func (s *Scheduler) dispatch(ctx context.Context, userID string) {
	// Re-read: the scan row may be stale if the user just replied.
	state, err := s.engagement.Status(ctx, userID)
	if err != nil {
		if !errors.Is(err, services.ErrUserNotFound) {
			s.lg.Warn().Err(err).Str("user_id", userID).Msg("state re-read failed")
		}
		return
	}
	if !s.engagement.Due(state) {
		return
	}

	mood := s.engagement.Mood(state)
	text := compose(s.rnd, mood, s.cfg.EmbellishProb)

	if err := s.deliver.Send(ctx, state.ChatID, text); err != nil {
		if errors.Is(err, delivery.ErrUnreachable) {
			s.cleanup(ctx, userID)
			outreachFailures.WithLabelValues("unreachable").Inc()
			return
		}
		s.lg.Warn().Err(err).Str("user_id", userID).Msg("dispatch failed, will retry next tick")
		outreachFailures.WithLabelValues("transient").Inc()
		return
	}

	// Record the outbound message; this also advances last_bot_message_at
	// so the user is not re-selected next tick.
	if _, err := s.dialog.Append(ctx, userID, state.ChatID, domain.RoleAssistant, text); err != nil {
		s.lg.Warn().Err(err).Str("user_id", userID).Msg("outreach message write failed")
	}
	outreachSent.WithLabelValues(string(mood)).Inc()
	s.lg.Info().Str("user_id", userID).Str("mood", string(mood)).Msg("outreach sent")
}

// cleanup removes all state for a permanently unreachable user. Not retried:
// if the user ever comes back, their first message recreates everything.
func (s *Scheduler) cleanup(ctx context.Context, userID string) {
	if err := s.engagement.Forget(ctx, userID); err != nil {
		s.lg.Error().Err(err).Str("user_id", userID).Msg("engagement cleanup failed")
	}
	if err := s.dialog.Clear(ctx, userID); err != nil {
		s.lg.Error().Err(err).Str("user_id", userID).Msg("history cleanup failed")
	}
	s.lg.Info().Str("user_id", userID).Msg("unreachable user forgotten")
}
