// Package httpapi implements dialogue.Client over the kiosk server's JSON
// HTTP API:
//
//	POST {base}/ask            {"text", "session_id"} → {"reply_text", "tts_url", "intent"}
//	POST {base}/reset-session  {"session_id"}
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voicekiosk/pkg/provider/dialogue"
)

const (
	// DefaultBaseURL is the address of a locally running kiosk server.
	DefaultBaseURL = "http://localhost:8000"

	defaultTimeout = 15 * time.Second

	// maxResponseBytes caps how much of a reply body is read.
	maxResponseBytes = 1 << 20
)

// Ensure Client implements dialogue.Client at compile time.
var _ dialogue.Client = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. The default has a 15 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.httpClient = &http.Client{Timeout: d} }
}

// Client talks to the dialogue service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client for the service at baseURL. An empty baseURL selects
// [DefaultBaseURL].
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the service root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

type askRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

type askResponse struct {
	ReplyText string `json:"reply_text"`
	TTSURL    string `json:"tts_url"`
	Intent    string `json:"intent"`
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

// Ask implements dialogue.Client.
func (c *Client) Ask(ctx context.Context, text, sessionID string) (dialogue.Reply, error) {
	var resp askResponse
	if err := c.post(ctx, "/ask", askRequest{Text: text, SessionID: sessionID}, &resp); err != nil {
		return dialogue.Reply{}, fmt.Errorf("httpapi: ask: %w", err)
	}
	return dialogue.Reply{
		Intent:      resp.Intent,
		Text:        resp.ReplyText,
		PlaybackRef: resp.TTSURL,
	}, nil
}

// ResetSession implements dialogue.Client.
func (c *Client) ResetSession(ctx context.Context, sessionID string) error {
	if err := c.post(ctx, "/reset-session", resetRequest{SessionID: sessionID}, nil); err != nil {
		return fmt.Errorf("httpapi: reset session: %w", err)
	}
	return nil
}

// Ping checks that the service answers HTTP at all. Any status below 500
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("httpapi: ping: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi: ping: %w: %w", dialogue.ErrUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("httpapi: ping: %w: HTTP %d", dialogue.ErrUnreachable, resp.StatusCode)
	}
	return nil
}

// post sends body as JSON and decodes a 200 response into out (if non-nil).
// Every failure wraps dialogue.ErrUnreachable.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", dialogue.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", dialogue.ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d: %s", dialogue.ErrUnreachable, resp.StatusCode, snippet(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", dialogue.ErrUnreachable, err)
	}
	return nil
}

// snippet returns a short single-line excerpt of an error body for logs.
func snippet(b []byte) string {
	s := strings.Join(strings.Fields(string(b)), " ")
	if len(s) > 120 {
		s = s[:120] + "…"
	}
	if s == "" {
		return "<empty body>"
	}
	return s
}
