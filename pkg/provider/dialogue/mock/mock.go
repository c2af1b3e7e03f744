// Package mock provides a test double for the dialogue.Client interface.
//
// Replies are consumed in order, one per Ask call. Once exhausted, Reply and
// AskErr are returned.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicekiosk/pkg/provider/dialogue"
)

// AskCall records a single invocation of Client.Ask.
type AskCall struct {
	Text      string
	SessionID string
}

// Response is one scripted Ask outcome.
type Response struct {
	Reply dialogue.Reply
	Err   error
}

// Client is a mock implementation of dialogue.Client.
type Client struct {
	mu sync.Mutex

	// Responses is the scripted sequence of Ask outcomes.
	Responses []Response

	// Reply is returned once Responses is exhausted.
	Reply dialogue.Reply

	// AskErr, if non-nil, is returned once Responses is exhausted.
	AskErr error

	// ResetErr, if non-nil, is returned by ResetSession.
	ResetErr error

	// --- Call records ---

	// AskCalls records every call to Ask in order.
	AskCalls []AskCall

	// ResetCalls records the session ID of every ResetSession call.
	ResetCalls []string
}

// Ask records the call and returns the next scripted response.
func (c *Client) Ask(_ context.Context, text, sessionID string) (dialogue.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AskCalls = append(c.AskCalls, AskCall{Text: text, SessionID: sessionID})
	if len(c.Responses) > 0 {
		r := c.Responses[0]
		c.Responses = c.Responses[1:]
		return r.Reply, r.Err
	}
	return c.Reply, c.AskErr
}

// ResetSession records the call and returns ResetErr.
func (c *Client) ResetSession(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResetCalls = append(c.ResetCalls, sessionID)
	return c.ResetErr
}

// Asks returns a snapshot of the recorded Ask calls.
func (c *Client) Asks() []AskCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AskCall, len(c.AskCalls))
	copy(out, c.AskCalls)
	return out
}

// Resets returns a snapshot of the recorded ResetSession calls.
func (c *Client) Resets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.ResetCalls))
	copy(out, c.ResetCalls)
	return out
}

// Ensure Client implements dialogue.Client at compile time.
var _ dialogue.Client = (*Client)(nil)
