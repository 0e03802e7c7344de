// Message HTTP handler.
//
// This file exposes the inbound message endpoint:
//   - POST /v1/messages   (record a user message and create the assistant reply)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, chat, key), the handler returns that recorded
// assistant reply and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/dkurilov/go-companion-backend/internal/domain"
	"github.com/dkurilov/go-companion-backend/internal/services"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a user message.
//
// Content is normalized by the handler (line endings and excessive blank
// lines) and length-capped before being passed to the service layer; the
// service enforces its own rune limit independently.
type PostMessageRequest struct {
	// ChatID identifies the conversation the message belongs to.
	ChatID string `json:"chat_id" binding:"required,min=1" example:"7429011"`
	// Content is the user message. It must be non-empty.
	Content string `json:"content" binding:"required,min=1" example:"Расскажи про Байкал"`
}

// PostMessageResponse is the JSON envelope for a generated assistant reply.
type PostMessageResponse struct {
	// Reply is the assistant message created as a result of the request.
	Reply *domain.DialogMessage `json:"reply"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// PostMessage records an inbound user message and returns the assistant
// reply. Supports idempotency via the Idempotency-Key header (same key →
// same result).
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat_id and content required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	content := sanitizeContent(req.Content)
	if utf8.RuneCountInString(content) > h.maxPromptRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", h.maxPromptRunes))
		return
	}
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	currentUser := userID(c)
	chatID := strings.TrimSpace(req.ChatID)

	// Idempotency (replay path) – serve the recorded reply if one exists.
	idemKey, _ := idempotencyKey(c)
	if idemKey != "" && h.idem != nil {
		if prev, found := h.idem.Replay(ctx, currentUser, chatID, idemKey, time.Now().UTC()); found {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, PostMessageResponse{Reply: prev})
			return
		}
	}

	// Normal processing (service has a second guard for length).
	m, err := h.replySvc.Answer(ctx, currentUser, chatID, content)
	if err != nil {
		switch err {
		case services.ErrTooLong:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", h.maxPromptRunes))
		case services.ErrEmptyMessage:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, err.Error())
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" && h.idem != nil {
		_ = h.idem.Record(ctx, currentUser, chatID, idemKey, m.ID, http.StatusOK, h.idemTTL)
	}

	ok(c, http.StatusOK, PostMessageResponse{Reply: m})
}

// idempotencyKey extracts an idempotency key if an upstream middleware has
// already validated/stashed it. The fallback behavior reads the
// "Idempotency-Key" header directly when no dedicated middleware exists.
func idempotencyKey(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}
