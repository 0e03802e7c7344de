// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Idempotency model: a stored record lets a retried POST replay the
// original reply instead of generating a new one.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkurilov/go-companion-backend/internal/domain"
)

// ErrDuplicate reports that a record already exists for the
// (user_id, chat_id, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, chatID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND chat_id = ? AND key = ? AND expires_at > ?", userID, chatID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rec, err
}

// CreateIdempotency inserts a record for a freshly generated reply.
// A concurrent insert of the same tuple surfaces as ErrDuplicate.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, chatID, key, replyID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChatID:    chatID,
		Key:       key,
		ReplyID:   replyID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// IdempotencyStore bundles the idempotency helpers behind the narrow
// replay/record surface the HTTP layer consumes.
type IdempotencyStore struct {
	DB *gorm.DB
}

// Replay resolves a still-valid record for the tuple and loads the reply it
// points at. Any miss along the way reads as "nothing to replay".
func (s IdempotencyStore) Replay(ctx context.Context, userID, chatID, key string, now time.Time) (*domain.DialogMessage, bool) {
	rec, err := GetIdempotency(ctx, s.DB, userID, chatID, key, now)
	if err != nil || rec == nil {
		return nil, false
	}
	m, err := GetDialogMessage(ctx, s.DB, rec.ReplyID)
	if err != nil {
		return nil, false
	}
	return m, true
}

// Record stores the reply id for the tuple. A concurrent duplicate is not an
// error from the caller's point of view; the first record wins.
func (s IdempotencyStore) Record(ctx context.Context, userID, chatID, key, replyID string, status int, ttl time.Duration) error {
	_, err := CreateIdempotency(ctx, s.DB, userID, chatID, key, replyID, status, ttl)
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

// DeleteExpiredIdempotency removes every record whose expiry is at or before
// the given instant and returns the number of rows removed.
func DeleteExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
