// Package handlers implements the HTTP handlers behind the public API.
//
// Every endpoint answers in one of two shapes: a plain JSON body on
// success, or an ErrorResponse envelope on failure. The helpers in this
// file keep that contract in one place so individual handlers never
// hand-roll status or error writing.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkurilov/go-companion-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by every endpoint.
// Clients branch on Code; Message is display text and RequestID lets a
// client error be matched against server logs.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"resource not found"`
}

// fail aborts the request with an ErrorResponse. Server-side failures
// (>= 500) also go to the request-scoped logger; 4xx are the client's
// problem and stay out of the error log.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail exposes fail to the router package for NoRoute/NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
