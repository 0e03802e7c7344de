// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// DialogMessage model: append-only inserts, windowed reads, and the
// time-based deletes behind clear and prune.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkurilov/go-companion-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateDialogMessage inserts one message row. Rows are append-only; the
// content is expected to be pre-truncated by the service layer.
func CreateDialogMessage(ctx context.Context, db *gorm.DB, userID, chatID, role, content string) (*domain.DialogMessage, error) {
	m := &domain.DialogMessage{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetDialogMessage fetches one message by primary key. Used by the
// idempotency replay path to return a previously recorded reply.
func GetDialogMessage(ctx context.Context, db *gorm.DB, id string) (*domain.DialogMessage, error) {
	var m domain.DialogMessage
	if err := db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListDialogWindow returns up to limit of the user's most recent messages
// created after the since cutoff, reordered oldest-first so callers can feed
// them to a generation request chronologically.
//
// The query selects newest-first (so the limit keeps the most recent rows)
// and the slice is reversed in memory afterwards.
func ListDialogWindow(ctx context.Context, db *gorm.DB, userID string, since time.Time, limit int) ([]domain.DialogMessage, error) {
	var out []domain.DialogMessage
	q := db.WithContext(ctx).
		Where("user_id = ? AND created_at > ?", userID, since).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListDialogPage returns a page of the user's messages inside the retention
// window, ordered (CreatedAt ASC, ID ASC). Used by the history endpoint.
func ListDialogPage(ctx context.Context, db *gorm.DB, userID string, since time.Time, offset, limit int) ([]domain.DialogMessage, error) {
	var out []domain.DialogMessage
	err := db.WithContext(ctx).
		Where("user_id = ? AND created_at > ?", userID, since).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountDialogMessages returns the number of the user's messages inside the
// retention window.
func CountDialogMessages(ctx context.Context, db *gorm.DB, userID string, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.DialogMessage{}).
		Where("user_id = ? AND created_at > ?", userID, since).
		Count(&total).Error
	return total, err
}

// DeleteDialogForUser removes the user's entire history. Deleting a user who
// has no rows is not an error.
func DeleteDialogForUser(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.DialogMessage{}).Error
}

// DeleteDialogOlderThan removes every message created at or before the
// cutoff, regardless of user, and returns the number of rows removed.
// The criterion is age only, never row count.
func DeleteDialogOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("created_at <= ?", cutoff).
		Delete(&domain.DialogMessage{})
	return res.RowsAffected, res.Error
}
