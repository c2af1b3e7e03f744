package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicekiosk/internal/listen"
	"github.com/MrWong99/voicekiosk/internal/observe"
	"github.com/MrWong99/voicekiosk/pkg/audio"
	dialogueapi "github.com/MrWong99/voicekiosk/pkg/provider/dialogue"
	"github.com/MrWong99/voicekiosk/pkg/provider/playback"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
)

// Listener captures one utterance. It is satisfied by [*listen.Listener].
type Listener interface {
	Listen(ctx context.Context) (*audio.Utterance, error)
}

// Config holds the session-level settings of a [Driver].
type Config struct {
	// SessionID identifies the conversation on the dialogue service.
	SessionID string

	// Language is the BCP-47 tag passed to the recognizer, e.g. "th-TH".
	Language string

	Rules Rules
}

// Session is a snapshot of the conversation as the kiosk sees it. History and
// order contents live on the dialogue service.
type Session struct {
	ID       string    `json:"session_id"`
	State    string    `json:"state"`
	LastText string    `json:"last_text,omitempty"`
	Since    time.Time `json:"since"`
	Turns    int       `json:"turns"`
}

// Driver executes the dialogue loop against real collaborators.
type Driver struct {
	cfg        Config
	listener   Listener
	recognizer stt.Recognizer
	client     dialogueapi.Client
	sink       playback.Sink
	metrics    *observe.Metrics

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	state   State
	since   time.Time
	last    string
	turns   int
	onEnter func(State)
}

// Option configures a [Driver].
type Option func(*Driver)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithStateHook registers fn to be called (on the loop goroutine) every time
// a state is committed.
func WithStateHook(fn func(State)) Option {
	return func(d *Driver) { d.onEnter = fn }
}

// NewDriver returns a Driver in StateStart.
func NewDriver(cfg Config, l Listener, r stt.Recognizer, c dialogueapi.Client, s playback.Sink, opts ...Option) *Driver {
	if cfg.Rules.Greeting == "" {
		cfg.Rules.Greeting = DefaultGreeting
	}
	if cfg.Rules.ThankYouDelay <= 0 {
		cfg.Rules.ThankYouDelay = DefaultThankYouDelay
	}
	d := &Driver{
		cfg:        cfg,
		listener:   l,
		recognizer: r,
		client:     c,
		sink:       s,
		sleep:      sleepCtx,
		state:      StateStart,
		since:      time.Now(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Run drives the conversation until ctx is cancelled or capture fails.
//
// Recognition failures, dialogue service failures, and playback failures are
// absorbed into state transitions. Run returns nil after cancellation and a
// non-nil error wrapping [audio.ErrDevice] when the capture device fails.
func (d *Driver) Run(ctx context.Context) error {
	var ev Event = Entered{}
	for {
		if ctx.Err() != nil {
			return nil
		}
		next, err := d.Step(ctx, ev)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		ev = next
	}
}

// Step feeds ev to the current state, executes the resulting effects, commits
// the transition, and returns the event to feed next.
func (d *Driver) Step(ctx context.Context, ev Event) (Event, error) {
	from := d.State()
	ctx, span, log := observe.StartTurn(ctx, from.String())
	defer span.End()

	to, effects := d.cfg.Rules.Transition(from, ev)

	var follow Event
	for _, eff := range effects {
		out, err := d.execute(ctx, log, eff)
		if err != nil {
			return nil, err
		}
		if out != nil {
			follow = out
		}
	}

	d.commit(ctx, log, from, to, ev)
	if follow == nil {
		follow = Entered{}
	}
	return follow, nil
}

// execute runs one effect and returns the event it produced, if any. Only
// capture-device failures and cancellation are returned as errors.
func (d *Driver) execute(ctx context.Context, log *slog.Logger, eff Effect) (Event, error) {
	switch eff := eff.(type) {
	case ResetSession:
		start := time.Now()
		err := d.client.ResetSession(ctx, d.cfg.SessionID)
		d.metrics.DialogueDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			d.metrics.RecordProviderError(ctx, "dialogue", "reset")
			log.Warn("session reset failed", "session_id", d.cfg.SessionID, "err", err)
			return nil, nil
		}
		d.metrics.RecordProviderRequest(ctx, "dialogue", "reset", "ok")
		log.Info("session reset", "session_id", d.cfg.SessionID)
		return nil, nil

	case Ask:
		start := time.Now()
		reply, err := d.client.Ask(ctx, eff.Text, d.cfg.SessionID)
		d.metrics.DialogueDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.metrics.RecordProviderError(ctx, "dialogue", "ask")
			return ServerUnreachable{Err: err}, nil
		}
		d.metrics.RecordProviderRequest(ctx, "dialogue", "ask", "ok")
		log.Info("dialogue reply", "intent", reply.Intent, "reply", reply.Text)
		return ServerReplyReceived{
			Intent:      reply.Intent,
			ReplyText:   reply.Text,
			PlaybackRef: reply.PlaybackRef,
		}, nil

	case Listen:
		return d.listen(ctx, log)

	case Play:
		start := time.Now()
		err := d.sink.Play(ctx, eff.Ref)
		d.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.metrics.RecordProviderError(ctx, "playback", "play")
			log.Warn("playback failed, continuing", "ref", eff.Ref, "err", err)
			return nil, nil
		}
		d.metrics.RecordProviderRequest(ctx, "playback", "play", "ok")
		return nil, nil

	case Wait:
		if err := d.sleep(ctx, eff.Duration); err != nil {
			return nil, err
		}
		return nil, nil

	case Log:
		log.Log(ctx, eff.Level, eff.Msg, eff.Attrs...)
		return nil, nil

	default:
		return nil, fmt.Errorf("dialogue: unknown effect %T", eff)
	}
}

// listen captures and recognizes one utterance.
func (d *Driver) listen(ctx context.Context, log *slog.Logger) (Event, error) {
	utt, err := d.listener.Listen(ctx)
	switch {
	case errors.Is(err, listen.ErrListenTimeout):
		return Timeout{}, nil
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("dialogue: listen: %w", err)
	}
	log.Debug("utterance captured", "frames", utt.Len(), "duration", utt.Duration())

	start := time.Now()
	text, err := d.recognizer.Recognize(ctx, *utt, d.cfg.Language)
	d.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, stt.ErrNotRecognized) {
			d.metrics.RecordProviderError(ctx, "stt", "recognize")
		}
		return RecognitionFailed{Err: err}, nil
	}
	d.metrics.RecordProviderRequest(ctx, "stt", "recognize", "ok")
	log.Info("speech recognized", "text", text)

	d.mu.Lock()
	d.last = text
	d.mu.Unlock()
	return TextRecognized{Text: text}, nil
}

// commit records the new state and logs the transition.
func (d *Driver) commit(ctx context.Context, log *slog.Logger, from, to State, ev Event) {
	d.mu.Lock()
	d.state = to
	if from != to {
		d.since = time.Now()
	}
	if from == StateStart && to == StateGreeting {
		d.turns = 0
		d.last = ""
	} else if _, ok := ev.(TextRecognized); ok {
		d.turns++
	}
	hook := d.onEnter
	d.mu.Unlock()

	d.metrics.RecordTransition(ctx, from.String(), to.String())
	level := slog.LevelDebug
	if from != to {
		level = slog.LevelInfo
	}
	log.Log(ctx, level, "state transition",
		"from", from.String(),
		"to", to.String(),
		"event", ev.Name(),
	)
	if hook != nil {
		hook(to)
	}
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Session returns a snapshot of the current conversation.
func (d *Driver) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Session{
		ID:       d.cfg.SessionID,
		State:    d.state.String(),
		LastText: d.last,
		Since:    d.since,
		Turns:    d.turns,
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
