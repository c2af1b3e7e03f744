// Package dialogue drives a kiosk conversation through its turn-taking
// states.
//
// The package is split in two. [Rules.Transition] is a pure function from the
// current [State] and an [Event] to the next state plus a list of [Effect]
// values; it performs no I/O and is exhaustively unit tested. The [Driver]
// owns the collaborators (listener, recognizer, dialogue client, playback
// sink), executes the effects in order, turns their outcomes into follow-up
// events, and logs every state change.
package dialogue

import (
	"fmt"
	"log/slog"
	"time"
)

// State is one of the six dialogue states.
type State int

const (
	// StateStart resets the service-side session.
	StateStart State = iota

	// StateGreeting sends the greeting phrase to the dialogue service.
	StateGreeting

	// StateListening captures and recognizes the customer's next utterance.
	StateListening

	// StateConfirming captures the customer's answer to an order summary.
	StateConfirming

	// StateThankYou pauses before the interaction ends.
	StateThankYou

	// StateEnd loops straight back to StateStart.
	StateEnd
)

var stateNames = [...]string{
	StateStart:      "START",
	StateGreeting:   "GREETING",
	StateListening:  "LISTENING",
	StateConfirming: "CONFIRMING",
	StateThankYou:   "THANK_YOU",
	StateEnd:        "END",
}

// String returns the upper-case state name, e.g. "THANK_YOU".
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ─── Events ──────────────────────────────────────────────────────────────────

// Event is a closed set of inputs to [Rules.Transition].
type Event interface {
	// Name is a short label for logs and span attributes.
	Name() string
	isEvent()
}

// Entered fires when the machine arrives in a state and no other event is
// pending. It triggers the state's entry actions.
type Entered struct{}

// TextRecognized carries the recognized text of one utterance.
type TextRecognized struct {
	Text string
}

// ServerReplyReceived carries a structured reply from the dialogue service.
type ServerReplyReceived struct {
	Intent      string
	ReplyText   string
	PlaybackRef string
}

// RecognitionFailed reports an utterance that could not be transcribed.
type RecognitionFailed struct {
	Err error
}

// ServerUnreachable reports a failed or non-successful dialogue request.
type ServerUnreachable struct {
	Err error
}

// PlaybackRequested asks for a clip to be played without changing state.
type PlaybackRequested struct {
	Ref string
}

// Timeout reports a listening phase that ended without an utterance.
type Timeout struct{}

func (Entered) Name() string             { return "entered" }
func (TextRecognized) Name() string      { return "text_recognized" }
func (ServerReplyReceived) Name() string { return "server_reply_received" }
func (RecognitionFailed) Name() string   { return "recognition_failed" }
func (ServerUnreachable) Name() string   { return "server_unreachable" }
func (PlaybackRequested) Name() string   { return "playback_requested" }
func (Timeout) Name() string             { return "timeout" }

func (Entered) isEvent()             {}
func (TextRecognized) isEvent()      {}
func (ServerReplyReceived) isEvent() {}
func (RecognitionFailed) isEvent()   {}
func (ServerUnreachable) isEvent()   {}
func (PlaybackRequested) isEvent()   {}
func (Timeout) isEvent()             {}

// ─── Effects ─────────────────────────────────────────────────────────────────

// Effect is a side effect the [Driver] must execute before committing a
// transition.
type Effect interface {
	isEffect()
}

// ResetSession asks the dialogue service to forget the current session.
type ResetSession struct{}

// Ask sends Text to the dialogue service. The outcome becomes a
// [ServerReplyReceived] or [ServerUnreachable] event.
type Ask struct {
	Text string
}

// Listen captures one utterance and recognizes it. The outcome becomes a
// [TextRecognized], [RecognitionFailed], or [Timeout] event.
type Listen struct{}

// Play plays a synthesized-speech reference to completion.
type Play struct {
	Ref string
}

// Wait pauses the loop.
type Wait struct {
	Duration time.Duration
}

// Log writes one log entry in the context of the current state.
type Log struct {
	Level slog.Level
	Msg   string
	Attrs []any
}

func (ResetSession) isEffect() {}
func (Ask) isEffect()          {}
func (Listen) isEffect()       {}
func (Play) isEffect()         {}
func (Wait) isEffect()         {}
func (Log) isEffect()          {}
