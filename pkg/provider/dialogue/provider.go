// Package dialogue defines the Client interface for the remote dialogue
// service that understands a customer's words and decides the kiosk's reply.
//
// The service owns all order and conversation state for a session. The kiosk
// only forwards recognized text and acts on the returned intent.
package dialogue

import (
	"context"
	"errors"
)

// ErrUnreachable is returned when the dialogue service could not be reached
// or answered with a non-success status. Callers fall back to listening.
var ErrUnreachable = errors.New("dialogue: service unreachable")

// Well-known intents returned by the dialogue service.
const (
	IntentGreeting     = "greeting"
	IntentAddOrder     = "add_order"
	IntentConfirmOrder = "confirm_order"
	IntentCancelOrder  = "cancel_order"
	IntentThankYou     = "thank_you"
)

// Reply is the structured answer to one Ask.
type Reply struct {
	// Intent classifies the customer's utterance, e.g. "add_order".
	Intent string

	// Text is the reply the kiosk speaks, for logging.
	Text string

	// PlaybackRef locates the synthesized speech for Text, usually a path
	// relative to the service base URL. Empty when there is nothing to play.
	PlaybackRef string
}

// Client is the abstraction over the remote dialogue service.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Ask sends recognized text for sessionID and returns the service's reply.
	// Any failure is reported as an error wrapping [ErrUnreachable].
	Ask(ctx context.Context, text, sessionID string) (Reply, error)

	// ResetSession clears the service-side state of sessionID.
	ResetSession(ctx context.Context, sessionID string) error
}
