package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voicekiosk/pkg/provider/dialogue"
)

// DialogueClient guards a [dialogue.Client] with a circuit breaker. While the
// breaker is open, calls fail immediately with an error wrapping both
// [dialogue.ErrUnreachable] and [ErrCircuitOpen], so the conversation falls
// back to listening without waiting on a service known to be down.
type DialogueClient struct {
	inner   dialogue.Client
	breaker *CircuitBreaker
}

var _ dialogue.Client = (*DialogueClient)(nil)

// NewDialogueClient wraps inner. Only errors wrapping [dialogue.ErrUnreachable]
// count against the breaker unless cfg.IsFailure says otherwise.
func NewDialogueClient(inner dialogue.Client, cfg CircuitBreakerConfig) *DialogueClient {
	if cfg.Name == "" {
		cfg.Name = "dialogue"
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return errors.Is(err, dialogue.ErrUnreachable) }
	}
	return &DialogueClient{inner: inner, breaker: NewCircuitBreaker(cfg)}
}

// Ask forwards to the wrapped client.
func (c *DialogueClient) Ask(ctx context.Context, text, sessionID string) (dialogue.Reply, error) {
	var reply dialogue.Reply
	err := c.breaker.Execute(func() error {
		var err error
		reply, err = c.inner.Ask(ctx, text, sessionID)
		return err
	})
	return reply, c.wrap("ask", err)
}

// ResetSession forwards to the wrapped client.
func (c *DialogueClient) ResetSession(ctx context.Context, sessionID string) error {
	err := c.breaker.Execute(func() error {
		return c.inner.ResetSession(ctx, sessionID)
	})
	return c.wrap("reset", err)
}

// State reports the breaker state.
func (c *DialogueClient) State() State { return c.breaker.State() }

func (c *DialogueClient) wrap(op string, err error) error {
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("resilience: dialogue %s: %w: %w", op, dialogue.ErrUnreachable, err)
	}
	return err
}
