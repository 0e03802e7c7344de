// Engagement HTTP handler.
//
// This file exposes the read-only engagement state endpoint:
//   - GET /v1/users/{id}/engagement   (raw timestamps + derived mood)
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkurilov/go-companion-backend/internal/domain"
	"github.com/dkurilov/go-companion-backend/internal/services"
)

// EngagementResponse is the JSON envelope for a user's engagement state.
// Zero timestamps are omitted (the event has never happened).
type EngagementResponse struct {
	UserID            string      `json:"user_id"`
	ChatID            string      `json:"chat_id"`
	Mood              domain.Mood `json:"mood"`
	LastUserMessageAt *time.Time  `json:"last_user_message_at,omitempty"`
	LastBotMessageAt  *time.Time  `json:"last_bot_message_at,omitempty"`
	LastSeenAt        *time.Time  `json:"last_seen_at,omitempty"`
	DueForOutreach    bool        `json:"due_for_outreach"`
}

// GetEngagement returns the user's stored engagement timestamps together
// with the mood and outreach eligibility derived at request time.
func (h *Handlers) GetEngagement(c *gin.Context) {
	ctx := c.Request.Context()
	uid := c.Param("id")
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id required")
		return
	}

	state, err := h.engSvc.Status(ctx, uid)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	ok(c, http.StatusOK, EngagementResponse{
		UserID:            state.UserID,
		ChatID:            state.ChatID,
		Mood:              h.engSvc.Mood(state),
		LastUserMessageAt: nullableTime(state.LastUserMessageAt),
		LastBotMessageAt:  nullableTime(state.LastBotMessageAt),
		LastSeenAt:        nullableTime(state.LastSeenAt),
		DueForOutreach:    h.engSvc.Due(state),
	})
}

// nullableTime maps the zero time to nil so JSON omits it.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
