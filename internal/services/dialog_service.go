// Package services – DialogService
//
// This file implements the append-only, time-bounded conversation history.
// Every append also refreshes the user's engagement state (which timestamp
// moves depends on the author role), so the tracker never lags the log.
// Reads are bounded both ways: by the retention window in time and by an
// explicit limit in count.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/dkurilov/go-companion-backend/internal/domain"
	"github.com/dkurilov/go-companion-backend/internal/repo"
)

// DialogService owns the per-user message log and its retention policy.
type DialogService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// Retention is the maximum age of a row before it is excluded from
	// reads and eligible for pruning.
	Retention time.Duration
	// MaxContentRunes caps stored message length.
	MaxContentRunes int
}

// NewDialogService constructs a DialogService with the given retention
// window; non-positive values fall back to 24 hours.
func NewDialogService(db *gorm.DB, retention time.Duration, maxContentRunes int) *DialogService {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &DialogService{DB: db, Retention: retention, MaxContentRunes: maxContentRunes}
}

// Append inserts one message and touches the user's engagement state.
// Content is truncated to the configured maximum before insert. A failed
// engagement touch is logged but does not fail the append: the log row is
// the source of truth, the tracker is derived convenience state.
func (s *DialogService) Append(ctx context.Context, userID, chatID, role, content string) (*domain.DialogMessage, error) {
	content = clipRunes(strings.TrimSpace(content), s.MaxContentRunes)

	m, err := repo.CreateDialogMessage(ctx, s.DB, userID, chatID, role, content)
	if err != nil {
		return nil, err
	}
	if err := repo.TouchEngagement(ctx, s.DB, userID, chatID, role, m.CreatedAt); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("engagement touch failed")
	}
	return m, nil
}

// Window returns up to limit of the user's most recent in-retention messages,
// oldest first. Callers building a generation request must further clip the
// result to a small tail to bound prompt size.
func (s *DialogService) Window(ctx context.Context, userID string, limit int) ([]domain.DialogMessage, error) {
	since := time.Now().UTC().Add(-s.Retention)
	return repo.ListDialogWindow(ctx, s.DB, userID, since, limit)
}

// Page returns one page of the user's in-retention history plus the total
// in-retention count, for the history endpoint.
func (s *DialogService) Page(ctx context.Context, userID string, page, pageSize int) ([]domain.DialogMessage, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	since := time.Now().UTC().Add(-s.Retention)

	total, err := repo.CountDialogMessages(ctx, s.DB, userID, since)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.DialogMessage{}, 0, nil
	}
	items, err := repo.ListDialogPage(ctx, s.DB, userID, since, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Clear deletes the user's entire history. Idempotent: clearing a user with
// no rows succeeds.
func (s *DialogService) Clear(ctx context.Context, userID string) error {
	return repo.DeleteDialogForUser(ctx, s.DB, userID)
}

// PruneExpired deletes all rows older than the retention window and returns
// how many were removed. Run periodically by the janitor, independent of
// read/write traffic.
func (s *DialogService) PruneExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.Retention)
	return repo.DeleteDialogOlderThan(ctx, s.DB, cutoff)
}
