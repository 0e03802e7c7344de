// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// UserEngagement model. All writes are single-row upserts or deletes scoped
// by user_id; correctness relies on the atomicity of those statements, not
// on application-level locks.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkurilov/go-companion-backend/internal/domain"
)

// TouchEngagement upserts the engagement row for userID at the given instant.
// The role decides which message timestamp moves: a user message advances
// last_user_message_at, an assistant message advances last_bot_message_at.
// last_seen_at always advances. The first touch for a user creates the row.
//
// The whole write is one INSERT ... ON CONFLICT DO UPDATE statement, so a
// race between the request path and the scheduler resolves to whichever
// write commits last (last-write-wins on the shared columns).
func TouchEngagement(ctx context.Context, db *gorm.DB, userID, chatID, role string, now time.Time) error {
	row := &domain.UserEngagement{
		UserID:     userID,
		ChatID:     chatID,
		LastSeenAt: now,
		UpdatedAt:  now,
	}
	updated := []string{"chat_id", "last_seen_at", "updated_at"}
	if role == domain.RoleAssistant {
		row.LastBotMessageAt = now
		updated = append(updated, "last_bot_message_at")
	} else {
		row.LastUserMessageAt = now
		updated = append(updated, "last_user_message_at")
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(updated),
		}).
		Create(row).Error
}

// GetEngagement fetches the engagement row for userID, or ErrNotFound when
// the user has never been seen (or was forgotten).
func GetEngagement(ctx context.Context, db *gorm.DB, userID string) (*domain.UserEngagement, error) {
	var e domain.UserEngagement
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEngagement removes the engagement row for userID. Deleting an absent
// row is not an error.
func DeleteEngagement(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.UserEngagement{}).Error
}

// ListDueForOutreach returns up to limit engagement rows whose last bot
// message is at or before the cutoff, ordered oldest-first so the
// longest-neglected user is serviced first within a tick. Rows with a zero
// last_bot_message_at sort before everything else, which is the intended
// ordering for users the bot has never messaged.
func ListDueForOutreach(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.UserEngagement, error) {
	var out []domain.UserEngagement
	q := db.WithContext(ctx).
		Where("last_bot_message_at <= ?", cutoff).
		Order("last_bot_message_at ASC, user_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
