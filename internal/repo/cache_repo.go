// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the CacheEntry
// model: live-entry lookup, atomic per-key upsert, and expiry sweeps.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkurilov/go-companion-backend/internal/domain"
)

// GetLiveCacheEntry fetches the entry for key if one exists and has not
// expired at the given instant. Expired rows are treated as absent even
// before the janitor physically removes them. Returns ErrNotFound when no
// live entry exists.
func GetLiveCacheEntry(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.CacheEntry, error) {
	var e domain.CacheEntry
	err := db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, now).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpsertCacheEntry writes a cache entry for key, replacing title, content,
// and expiry if a row already exists. The write is a single INSERT ... ON
// CONFLICT statement, so concurrent lookups never observe a partially
// updated row.
func UpsertCacheEntry(ctx context.Context, db *gorm.DB, key, title, content string, ttl time.Duration) (*domain.CacheEntry, error) {
	now := time.Now().UTC()
	e := &domain.CacheEntry{
		Key:       key,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "content", "created_at", "expires_at"}),
		}).
		Create(e).Error
	if err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteExpiredCacheEntries removes every row whose expiry is at or before
// the given instant and returns the number of rows removed. Safe to run
// concurrently with lookups and upserts.
func DeleteExpiredCacheEntries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.CacheEntry{})
	return res.RowsAffected, res.Error
}

// CountCacheEntries returns the total number of rows, live or expired.
// Used by tests and maintenance logging.
func CountCacheEntries(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.CacheEntry{}).Count(&total).Error
	return total, err
}
