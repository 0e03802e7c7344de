package janitor

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkurilov/go-companion-backend/internal/domain"
	"github.com/dkurilov/go-companion-backend/internal/repo"
	"github.com/dkurilov/go-companion-backend/internal/services"
)

func newJanitorDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("janitor_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestSweepRemovesOnlyExpiredRows(t *testing.T) {
	db := newJanitorDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	dialog := services.NewDialogService(db, 24*time.Hour, 4096)
	knowledge := &services.KnowledgeService{DB: db, TTL: 168 * time.Hour}

	// One live and one expired row per table.
	seedDialog(t, db, "u1", now.Add(-30*time.Hour)) // past retention
	seedDialog(t, db, "u1", now.Add(-time.Hour))    // inside retention

	seedCache(t, db, "stale", now.Add(-time.Minute))
	seedCache(t, db, "live", now.Add(time.Hour))

	seedIdempotency(t, db, "old-key", now.Add(-time.Minute))
	seedIdempotency(t, db, "new-key", now.Add(time.Hour))

	j := New(db, dialog, knowledge, time.Hour)
	j.sweep(ctx)

	win, err := dialog.Window(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(win) != 1 {
		t.Fatalf("dialog rows after sweep = %d, want 1", len(win))
	}

	var cacheCount int64
	if err := db.Model(&domain.CacheEntry{}).Count(&cacheCount).Error; err != nil {
		t.Fatalf("count cache: %v", err)
	}
	if cacheCount != 1 {
		t.Fatalf("cache rows after sweep = %d, want 1", cacheCount)
	}

	var idemCount int64
	if err := db.Model(&domain.Idempotency{}).Count(&idemCount).Error; err != nil {
		t.Fatalf("count idempotency: %v", err)
	}
	if idemCount != 1 {
		t.Fatalf("idempotency rows after sweep = %d, want 1", idemCount)
	}
}

func TestRunSweepsImmediatelyAndStopsOnCancel(t *testing.T) {
	db := newJanitorDB(t)
	now := time.Now().UTC()
	seedCache(t, db, "stale", now.Add(-time.Minute))

	dialog := services.NewDialogService(db, 24*time.Hour, 4096)
	knowledge := &services.KnowledgeService{DB: db, TTL: 168 * time.Hour}
	j := New(db, dialog, knowledge, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	// The startup sweep runs before the first tick.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var n int64
		if err := db.Model(&domain.CacheEntry{}).Count(&n).Error; err != nil {
			t.Fatalf("count cache: %v", err)
		}
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("startup sweep did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

var dialogSeq int

func seedDialog(t *testing.T, db *gorm.DB, userID string, at time.Time) {
	t.Helper()
	dialogSeq++
	row := domain.DialogMessage{
		ID:        fmt.Sprintf("m-%d", dialogSeq),
		UserID:    userID,
		ChatID:    "c1",
		Role:      domain.RoleUser,
		Content:   "msg",
		CreatedAt: at,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed dialog: %v", err)
	}
}

func seedCache(t *testing.T, db *gorm.DB, key string, expiresAt time.Time) {
	t.Helper()
	row := domain.CacheEntry{
		Key:       key,
		Title:     key,
		Content:   "cached",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed cache: %v", err)
	}
}

func seedIdempotency(t *testing.T, db *gorm.DB, key string, expiresAt time.Time) {
	t.Helper()
	row := domain.Idempotency{
		ID:        fmt.Sprintf("i-%s", key),
		UserID:    "u1",
		ChatID:    "c1",
		Key:       key,
		ReplyID:   "r1",
		Status:    200,
		ExpiresAt: expiresAt,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}
}
