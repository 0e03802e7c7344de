// Package services – EngagementService
//
// This file wraps the user_engagement table with the operations the request
// path and the proactive scheduler share: touch on activity, raw status
// reads, permanent forget, and the due-for-outreach scan. Mood derivation
// itself lives in the domain package; this service only supplies the
// configured thresholds.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dkurilov/go-companion-backend/internal/domain"
	"github.com/dkurilov/go-companion-backend/internal/repo"
)

// EngagementService maintains per-user last-activity state and answers the
// scheduler's scan queries.
type EngagementService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// Thresholds configure mood derivation.
	Thresholds domain.EngagementThresholds
	// OutreachInterval is the bot-silence duration after which a user
	// becomes eligible for proactive outreach.
	OutreachInterval time.Duration
}

// Touch upserts the user's engagement row at the current instant, routing
// the message timestamp by role. The first touch creates the row.
func (s *EngagementService) Touch(ctx context.Context, userID, chatID, role string) error {
	return repo.TouchEngagement(ctx, s.DB, userID, chatID, role, time.Now().UTC())
}

// Status returns the raw stored engagement state for userID, or
// ErrUserNotFound. Derived values (mood, due-for-outreach) are computed by
// the caller against the current clock so thresholds can change without a
// migration.
func (s *EngagementService) Status(ctx context.Context, userID string) (*domain.UserEngagement, error) {
	e, err := repo.GetEngagement(ctx, s.DB, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return e, err
}

// Mood derives the user's current mood from a state row using the configured
// thresholds.
func (s *EngagementService) Mood(e *domain.UserEngagement) domain.Mood {
	return e.MoodAt(time.Now().UTC(), s.Thresholds)
}

// Due reports whether the user is currently eligible for proactive outreach.
func (s *EngagementService) Due(e *domain.UserEngagement) bool {
	return e.DueForOutreachAt(time.Now().UTC(), s.OutreachInterval)
}

// Forget removes the user's engagement row. Used when delivery to the user
// permanently fails; idempotent.
func (s *EngagementService) Forget(ctx context.Context, userID string) error {
	return repo.DeleteEngagement(ctx, s.DB, userID)
}

// ListDue returns up to limit users whose last bot message is older than the
// outreach interval, longest-neglected first.
func (s *EngagementService) ListDue(ctx context.Context, limit int) ([]domain.UserEngagement, error) {
	cutoff := time.Now().UTC().Add(-s.OutreachInterval)
	return repo.ListDueForOutreach(ctx, s.DB, cutoff, limit)
}
