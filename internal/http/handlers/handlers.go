// HTTP handler wiring.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Business rules (retention,
// mood thresholds, knowledge lookups) live entirely in the services layer.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkurilov/go-companion-backend/internal/domain"
	"github.com/dkurilov/go-companion-backend/internal/sysutil"
)

//
// Service contracts (context-aware)
//

// ReplyService produces an assistant reply for an inbound user message.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ReplyService interface {
	// Answer records the user message and returns the generated reply.
	Answer(ctx context.Context, userID, chatID, text string) (*domain.DialogMessage, error)
}

// DialogService exposes history reads and the clear operation.
type DialogService interface {
	// Page returns a page of the user's retained messages and the total count.
	Page(ctx context.Context, userID string, page, pageSize int) ([]domain.DialogMessage, int64, error)
	// Clear removes the user's entire history; clearing an unknown user is a no-op.
	Clear(ctx context.Context, userID string) error
}

// EngagementService exposes raw engagement state and its derived values.
type EngagementService interface {
	// Status returns the stored engagement row or services.ErrUserNotFound.
	Status(ctx context.Context, userID string) (*domain.UserEngagement, error)
	// Mood derives the user's current mood from a state row.
	Mood(e *domain.UserEngagement) domain.Mood
	// Due reports whether the user is eligible for proactive outreach.
	Due(e *domain.UserEngagement) bool
}

// IdempotencyStore persists and replays the results of idempotent POSTs.
// A nil store disables the Idempotency-Key replay path entirely.
type IdempotencyStore interface {
	// Replay returns the recorded assistant reply for (user, chat, key)
	// when a still-valid record exists.
	Replay(ctx context.Context, userID, chatID, key string, now time.Time) (*domain.DialogMessage, bool)
	// Record associates the reply with the tuple for future replays.
	Record(ctx context.Context, userID, chatID, key, replyID string, status int, ttl time.Duration) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for messages, history, and engagement.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	replySvc ReplyService
	dlgSvc   DialogService
	engSvc   EngagementService

	idem IdempotencyStore
	// idemTTL bounds how long a recorded Idempotency-Key stays replayable.
	idemTTL time.Duration
	// maxPromptRunes caps inbound message length at the edge; the reply
	// service enforces its own limit independently.
	maxPromptRunes int
}

// Options carries the request-path tunables that do not belong to any
// single service.
type Options struct {
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration
	MaxPromptRunes int
}

// New constructs and returns a Handlers instance bound to the given services.
func New(replySvc ReplyService, dlgSvc DialogService, engSvc EngagementService, opts Options) *Handlers {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.MaxPromptRunes <= 0 {
		opts.MaxPromptRunes = 4000
	}
	return &Handlers{
		replySvc:       replySvc,
		dlgSvc:         dlgSvc,
		engSvc:         engSvc,
		idem:           opts.Idempotency,
		idemTTL:        opts.IdempotencyTTL,
		maxPromptRunes: opts.MaxPromptRunes,
	}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		return strings.TrimSpace(sysutil.FirstNonEmpty(c.GetHeader("X-User-ID"), "demo-user"))
	}
	return "demo-user"
}

//
// Shared DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}
