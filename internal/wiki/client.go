// Package wiki implements the knowledge-fetch collaborator against the
// Wikipedia REST API. It fetches the page summary for a topic and returns a
// cleaned plain-text extract. "Page not found" is an empty result, not an
// error — the distinction matters because empty results are never cached
// while transport errors are retried on the next cache miss anyway.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// summaryResponse is the subset of the REST page-summary payload we use.
type summaryResponse struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	Type    string `json:"type"`
}

// Client fetches page summaries from one Wikipedia language edition.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (primarily for tests).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient constructs a Client for the given language edition ("ru", "en").
// An explicit baseURL (including scheme and host) overrides the edition.
func NewClient(lang, baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		if lang == "" {
			lang = "ru"
		}
		base = fmt.Sprintf("https://%s.wikipedia.org", lang)
	}
	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAndClean implements services.Fetcher. It returns the page title and a
// cleaned extract for the topic, or empty strings when no page exists or the
// page carries no prose (e.g. bare disambiguation stubs).
func (c *Client) FetchAndClean(ctx context.Context, query string) (string, string, error) {
	topic := strings.TrimSpace(query)
	if topic == "" {
		return "", "", nil
	}

	// The summary endpoint wants the topic as a single path segment with
	// spaces as underscores.
	segment := url.PathEscape(strings.ReplaceAll(topic, " ", "_"))
	endpoint := c.baseURL + "/api/rest_v1/page/summary/" + segment

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("wiki: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("wiki: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return "", "", nil
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", "", fmt.Errorf("wiki: unexpected status %d for %q", res.StatusCode, topic)
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("wiki: read response body: %w", err)
	}
	var payload summaryResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", "", fmt.Errorf("wiki: decode response: %w", err)
	}
	if payload.Type == "disambiguation" {
		return "", "", nil
	}
	return payload.Title, cleanExtract(payload.Extract), nil
}

// cleanExtract normalizes the extract for prompt embedding: line endings to
// LF, runs of whitespace inside lines collapsed, empty lines dropped.
func cleanExtract(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		fields := strings.Fields(ln)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}
