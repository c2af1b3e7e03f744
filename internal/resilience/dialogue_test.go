package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/voicekiosk/pkg/provider/dialogue"
	dialoguemock "github.com/MrWong99/voicekiosk/pkg/provider/dialogue/mock"
)

func TestDialogueClient_PassesThrough(t *testing.T) {
	t.Parallel()
	inner := &dialoguemock.Client{Reply: dialogue.Reply{Intent: dialogue.IntentAddOrder, Text: "รับทราบ"}}
	c := NewDialogueClient(inner, CircuitBreakerConfig{})

	reply, err := c.Ask(context.Background(), "ลาเต้", "s1")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply.Intent != dialogue.IntentAddOrder {
		t.Errorf("intent = %q", reply.Intent)
	}
	if err := c.ResetSession(context.Background(), "s1"); err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	if got := inner.Resets(); len(got) != 1 || got[0] != "s1" {
		t.Errorf("resets = %v", got)
	}
}

func TestDialogueClient_OpenCircuitIsUnreachable(t *testing.T) {
	t.Parallel()
	inner := &dialoguemock.Client{AskErr: fmt.Errorf("httpapi: %w", dialogue.ErrUnreachable)}
	c := NewDialogueClient(inner, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	for range 2 {
		if _, err := c.Ask(context.Background(), "hi", "s1"); !errors.Is(err, dialogue.ErrUnreachable) {
			t.Fatalf("err = %v, want ErrUnreachable", err)
		}
	}
	if c.State() != StateOpen {
		t.Fatalf("state = %v, want open", c.State())
	}

	_, err := c.Ask(context.Background(), "hi", "s1")
	if !errors.Is(err, dialogue.ErrUnreachable) || !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrUnreachable and ErrCircuitOpen", err)
	}
	if n := len(inner.Asks()); n != 2 {
		t.Errorf("inner called %d times, want 2 (open circuit must short-circuit)", n)
	}
	if err := c.ResetSession(context.Background(), "s1"); !errors.Is(err, dialogue.ErrUnreachable) {
		t.Errorf("ResetSession err = %v, want ErrUnreachable while open", err)
	}
}

func TestDialogueClient_OtherErrorsDoNotTrip(t *testing.T) {
	t.Parallel()
	inner := &dialoguemock.Client{AskErr: context.Canceled}
	c := NewDialogueClient(inner, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	for range 3 {
		_, _ = c.Ask(context.Background(), "hi", "s1")
	}
	if c.State() != StateClosed {
		t.Errorf("state = %v, want closed", c.State())
	}
}
