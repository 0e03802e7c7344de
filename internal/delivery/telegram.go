// Package delivery implements the outbound-delivery collaborator against the
// Telegram Bot API. The scheduler only cares about three outcomes: sent,
// recipient permanently unreachable (blocked the bot / chat gone), or a
// transient failure worth retrying on a later tick. The first maps to a nil
// error, the second to ErrUnreachable, the third to any other error.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnreachable indicates a permanent delivery failure: the recipient has
// blocked the bot or the chat no longer exists. Callers clean up state for
// such recipients instead of retrying.
var ErrUnreachable = errors.New("recipient unreachable")

// sendMessageRequest is the Bot API sendMessage payload.
type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// apiResponse is the Bot API envelope; only the error fields matter here.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Telegram sends messages through one bot token.
type Telegram struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures optional Telegram behavior.
type Option func(*Telegram)

// WithHTTPClient overrides the HTTP client (primarily for tests).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(t *Telegram) { t.httpClient = httpClient }
}

// WithBaseURL overrides the Bot API host (primarily for tests).
func WithBaseURL(baseURL string) Option {
	return func(t *Telegram) { t.baseURL = strings.TrimRight(baseURL, "/") }
}

// NewTelegram constructs a Telegram deliverer for the given bot token.
func NewTelegram(token string, opts ...Option) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("delivery: bot token must not be empty")
	}
	t := &Telegram{
		baseURL:    "https://api.telegram.org",
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Send delivers text to chatID. A nil return means delivered; ErrUnreachable
// means the recipient is permanently gone; anything else is transient.
func (t *Telegram) Send(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("delivery: marshal request: %w", err)
	}

	endpoint := t.baseURL + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("delivery: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("delivery: read response body: %w", err)
	}

	var payload apiResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("delivery: decode response (status %d): %w", res.StatusCode, err)
	}
	if payload.OK {
		return nil
	}
	if isUnreachable(payload.ErrorCode, payload.Description) {
		return fmt.Errorf("delivery: chat %s: %s: %w", chatID, payload.Description, ErrUnreachable)
	}
	return fmt.Errorf("delivery: chat %s: api error %d: %s", chatID, payload.ErrorCode, payload.Description)
}

// isUnreachable classifies Bot API failures that will never succeed on
// retry. 403 covers "bot was blocked by the user" and "user is deactivated";
// 400 "chat not found" means the chat id is stale.
func isUnreachable(code int, description string) bool {
	desc := strings.ToLower(description)
	switch code {
	case http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		return strings.Contains(desc, "chat not found")
	default:
		return false
	}
}
