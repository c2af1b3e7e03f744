package dialogue

import (
	"log/slog"
	"time"

	dialogueapi "github.com/MrWong99/voicekiosk/pkg/provider/dialogue"
)

// Defaults for [Rules].
const (
	DefaultGreeting      = "สวัสดี"
	DefaultThankYouDelay = 2 * time.Second
)

// intentRoutes maps reply intents to the next state. Unknown intents route
// to StateListening.
var intentRoutes = map[string]State{
	dialogueapi.IntentGreeting:     StateListening,
	dialogueapi.IntentAddOrder:     StateListening,
	dialogueapi.IntentConfirmOrder: StateConfirming,
	dialogueapi.IntentCancelOrder:  StateStart,
	dialogueapi.IntentThankYou:     StateThankYou,
}

// Rules holds the values the transition table depends on.
type Rules struct {
	// Greeting is the phrase sent to the dialogue service on entering
	// StateGreeting.
	Greeting string

	// ThankYouDelay is the pause in StateThankYou before StateEnd.
	ThankYouDelay time.Duration
}

// DefaultRules returns Rules with the package defaults.
func DefaultRules() Rules {
	return Rules{Greeting: DefaultGreeting, ThankYouDelay: DefaultThankYouDelay}
}

// Transition returns the next state and the effects to execute before the
// transition commits. It never performs I/O.
//
// When the effects produce no follow-up event the driver enters next with
// [Entered], even if next equals state. A self-transition without effects
// that produce events therefore restarts the state; LISTENING retries after a
// failed recognition this way.
func (r Rules) Transition(state State, ev Event) (State, []Effect) {
	switch ev := ev.(type) {
	case Entered:
		return r.enter(state)

	case ServerReplyReceived:
		var effects []Effect
		if ev.PlaybackRef != "" {
			effects = append(effects, Play{Ref: ev.PlaybackRef})
		}
		next, known := intentRoutes[ev.Intent]
		if !known {
			next = StateListening
			effects = append(effects, Log{
				Level: slog.LevelWarn,
				Msg:   "unknown intent, falling back to listening",
				Attrs: []any{"intent", ev.Intent},
			})
		}
		return next, effects

	case ServerUnreachable:
		return StateListening, []Effect{Log{
			Level: slog.LevelError,
			Msg:   "dialogue service unreachable, falling back to listening",
			Attrs: []any{"err", ev.Err},
		}}

	case PlaybackRequested:
		return state, []Effect{Play{Ref: ev.Ref}}

	case TextRecognized:
		if state == StateListening || state == StateConfirming {
			return state, []Effect{Ask{Text: ev.Text}}
		}

	case RecognitionFailed:
		if state == StateListening || state == StateConfirming {
			return StateListening, []Effect{Log{
				Level: slog.LevelInfo,
				Msg:   "speech not recognized, listening again",
				Attrs: []any{"err", ev.Err},
			}}
		}

	case Timeout:
		if state == StateListening || state == StateConfirming {
			return StateListening, []Effect{Log{
				Level: slog.LevelDebug,
				Msg:   "listen timed out, listening again",
			}}
		}
	}

	return state, []Effect{Log{
		Level: slog.LevelDebug,
		Msg:   "event ignored in this state",
		Attrs: []any{"event", ev.Name()},
	}}
}

// enter returns the entry actions of state.
func (r Rules) enter(state State) (State, []Effect) {
	switch state {
	case StateStart:
		return StateGreeting, []Effect{ResetSession{}}
	case StateGreeting:
		return StateGreeting, []Effect{Ask{Text: r.Greeting}}
	case StateListening, StateConfirming:
		return state, []Effect{Listen{}}
	case StateThankYou:
		return StateEnd, []Effect{Wait{Duration: r.ThankYouDelay}}
	case StateEnd:
		return StateStart, nil
	default:
		return StateStart, []Effect{Log{
			Level: slog.LevelError,
			Msg:   "entered unknown state, restarting",
			Attrs: []any{"state", state.String()},
		}}
	}
}

// Transition applies [DefaultRules].
func Transition(state State, ev Event) (State, []Effect) {
	return DefaultRules().Transition(state, ev)
}
