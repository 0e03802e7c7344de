// Package services – KnowledgeService
//
// This file implements the external-knowledge cache. Lookups are served from
// the cache_entries table while a live (non-expired) row exists; otherwise
// the configured fetch collaborator is invoked and a successful result is
// stored with a fresh TTL. Fetch and cache-write failures are swallowed into
// a miss: the surrounding request proceeds without external context and no
// error crosses this boundary.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/dkurilov/go-companion-backend/internal/repo"
)

// cacheLookups counts knowledge lookups by terminal result. "hit" is a live
// cache row, "miss" a successful fetch, "empty" a fetch with no content, and
// "fetch_error" a failed fetch (all surfaced to callers as hit=false except
// the first).
var cacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "knowledge_cache_lookups_total",
		Help: "Total knowledge cache lookups by result.",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(cacheLookups)
}

// Fetcher is the black-box collaborator that retrieves and cleans external
// reference text for a query. An empty content result means "no relevant
// content", not an error.
type Fetcher interface {
	FetchAndClean(ctx context.Context, query string) (title, content string, err error)
}

// KnowledgeService caches fetched external knowledge with per-key expiry.
type KnowledgeService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Fetcher resolves cache misses. A nil Fetcher turns every miss into
	// an empty result.
	Fetcher Fetcher

	// TTL is how long a stored entry stays live.
	TTL time.Duration
	// MaxContentRunes caps stored content length.
	MaxContentRunes int
}

// queryFolder case-folds queries so that lookups are case-insensitive across
// scripts (the bot serves Cyrillic and Latin queries alike).
var queryFolder = cases.Fold()

// NormalizeQuery canonicalizes a raw query into a cache key: trimmed,
// case-folded, inner whitespace collapsed to single spaces.
func NormalizeQuery(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	return queryFolder.String(q)
}

// Lookup returns reference content for query and whether it was served from
// a live cache entry. On a miss it consults the fetch collaborator; a
// successful fetch is cached with a fresh TTL and returned with hit=false.
// Fetch failures and empty results yield ("", false) without caching.
func (s *KnowledgeService) Lookup(ctx context.Context, query string) (string, bool) {
	key := NormalizeQuery(query)
	if key == "" {
		return "", false
	}

	now := time.Now().UTC()
	if entry, err := repo.GetLiveCacheEntry(ctx, s.DB, key, now); err == nil {
		cacheLookups.WithLabelValues("hit").Inc()
		return entry.Content, true
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		// Read failure degrades to a miss; the fetch below may still serve.
		log.Warn().Err(err).Str("key", key).Msg("knowledge cache read failed")
	}

	if s.Fetcher == nil {
		cacheLookups.WithLabelValues("empty").Inc()
		return "", false
	}

	title, content, err := s.Fetcher.FetchAndClean(ctx, key)
	if err != nil {
		cacheLookups.WithLabelValues("fetch_error").Inc()
		log.Warn().Err(err).Str("key", key).Msg("knowledge fetch failed")
		return "", false
	}
	content = strings.TrimSpace(content)
	if content == "" {
		cacheLookups.WithLabelValues("empty").Inc()
		return "", false
	}
	content = clipRunes(content, s.MaxContentRunes)

	ttl := s.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if _, err := repo.UpsertCacheEntry(ctx, s.DB, key, title, content, ttl); err != nil {
		// A cache-store failure must not fail the surrounding request.
		log.Warn().Err(err).Str("key", key).Msg("knowledge cache write failed")
	}
	cacheLookups.WithLabelValues("miss").Inc()
	return content, false
}

// EvictExpired removes all entries whose expiry has passed and returns how
// many were removed. Safe to call concurrently with Lookup.
func (s *KnowledgeService) EvictExpired(ctx context.Context) (int64, error) {
	return repo.DeleteExpiredCacheEntries(ctx, s.DB, time.Now().UTC())
}

// clipRunes truncates s to at most max runes; max <= 0 disables clipping.
func clipRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
