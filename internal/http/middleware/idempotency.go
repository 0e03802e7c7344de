// Idempotency-Key handling for unsafe methods.
//
// The middleware validates the header, stashes the key in the request
// context, and asks a pluggable lookup whether a completed result
// already exists for the (user, chat, key) tuple. It never serves the
// cached payload itself; the handler stays in charge of replays, this
// layer only flags them so the rate limiter can wave replays through.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen retry key. The value
// must be stable across retries of the same semantic operation.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys stashed by IdempotencyValidator, read via the accessors
// below and by the rate limiter.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key for this request, if any.
// Handlers should use this instead of reading the header again.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found a stored result for this
// request's key, meaning the handler may serve the persisted reply
// instead of recomputing.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions tunes header validation. TTL enforcement belongs
// to the lookup, not to this middleware.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 mean 200.
	MaxLen int
	// Pattern restricts allowed characters. Nil means the default
	// token pattern ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a still-valid stored result exists
// for (userID, chatID, key) at the given instant. Lookup errors must
// not block the request; return them only for the caller to log.
type IdempotencyLookup func(ctx context.Context, userID, chatID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator rejects malformed Idempotency-Key headers with a
// 400 and, when the lookup reports a hit, marks the request as a replay
// and as exempt from rate limiting. Requests without the header pass
// through untouched.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		// The chat scope travels in the optional X-Chat-ID header since
		// middleware must not consume the POST body. The handler
		// re-checks the stored record against the body before replaying.
		if lookup != nil {
			uid := userIDFromCtx(c)
			chatID := c.GetHeader("X-Chat-ID")
			now := time.Now().UTC()

			if exists, _ := lookup(c.Request.Context(), uid, chatID, key, now); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// userIDFromCtx resolves the caller identity the same way the handlers
// do: auth middleware first, then the X-User-ID header, then the
// development fallback.
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if h := c.GetHeader("X-User-ID"); h != "" {
		return h
	}
	return "demo-user"
}
