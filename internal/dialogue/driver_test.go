package dialogue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voicekiosk/internal/listen"
	"github.com/MrWong99/voicekiosk/internal/observe"
	"github.com/MrWong99/voicekiosk/pkg/audio"
	dialogueapi "github.com/MrWong99/voicekiosk/pkg/provider/dialogue"
	dialoguemock "github.com/MrWong99/voicekiosk/pkg/provider/dialogue/mock"
	playbackmock "github.com/MrWong99/voicekiosk/pkg/provider/playback/mock"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
	sttmock "github.com/MrWong99/voicekiosk/pkg/provider/stt/mock"
)

// fakeListener returns scripted outcomes, then blocks until cancelled.
type fakeListener struct {
	mu      sync.Mutex
	results []error // nil entries yield an utterance
	calls   int
}

func (f *fakeListener) Listen(ctx context.Context) (*audio.Utterance, error) {
	f.mu.Lock()
	f.calls++
	if len(f.results) == 0 {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	err := f.results[0]
	f.results = f.results[1:]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &audio.Utterance{
		Frames:     []audio.AudioFrame{{Data: make([]byte, 2880), SampleRate: 48000, Channels: 1}},
		SampleRate: 48000,
	}, nil
}

type harness struct {
	driver   *Driver
	listener *fakeListener
	rec      *sttmock.Recognizer
	client   *dialoguemock.Client
	sink     *playbackmock.Sink
	reader   *sdkmetric.ManualReader
	slept    []time.Duration
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := &harness{
		listener: &fakeListener{},
		rec:      &sttmock.Recognizer{},
		client:   &dialoguemock.Client{},
		sink:     &playbackmock.Sink{},
		reader:   reader,
	}
	cfg := Config{
		SessionID: "kiosk-session-001",
		Language:  "th-TH",
		Rules:     Rules{Greeting: "สวัสดี", ThankYouDelay: 2 * time.Second},
	}
	h.driver = NewDriver(cfg, h.listener, h.rec, h.client, h.sink, append([]Option{WithMetrics(m)}, opts...)...)
	h.driver.sleep = func(_ context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return nil
	}
	return h
}

// step feeds ev and fails the test on error.
func (h *harness) step(t *testing.T, ev Event) Event {
	t.Helper()
	next, err := h.driver.Step(context.Background(), ev)
	if err != nil {
		t.Fatalf("Step(%s) in %v: %v", ev.Name(), h.driver.State(), err)
	}
	return next
}

func (h *harness) transitions(t *testing.T, from, to string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "voicekiosk.dialogue.transitions" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				f, _ := dp.Attributes.Value(attribute.Key("from"))
				g, _ := dp.Attributes.Value(attribute.Key("to"))
				if f.AsString() == from && g.AsString() == to {
					return dp.Value
				}
			}
		}
	}
	return 0
}

func TestDriver_StartGreetingListening(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.client.Reply = dialogueapi.Reply{Intent: "greeting", Text: "สวัสดีค่ะ", PlaybackRef: "/static/tts/hello.mp3"}

	ev := h.step(t, Entered{})
	if h.driver.State() != StateGreeting {
		t.Fatalf("state = %v, want GREETING", h.driver.State())
	}
	if got := h.client.Resets(); len(got) != 1 || got[0] != "kiosk-session-001" {
		t.Errorf("resets = %v, want one reset of kiosk-session-001", got)
	}

	ev = h.step(t, ev)
	if _, ok := ev.(ServerReplyReceived); !ok {
		t.Fatalf("event after greeting = %T, want ServerReplyReceived", ev)
	}
	if asks := h.client.Asks(); len(asks) != 1 || asks[0].Text != "สวัสดี" {
		t.Errorf("asks = %v, want the greeting phrase", asks)
	}

	ev = h.step(t, ev)
	if h.driver.State() != StateListening {
		t.Fatalf("state = %v, want LISTENING", h.driver.State())
	}
	if got := h.sink.Calls(); len(got) != 1 || got[0] != "/static/tts/hello.mp3" {
		t.Errorf("played = %v", got)
	}
	if _, ok := ev.(Entered); !ok {
		t.Errorf("next event = %T, want Entered", ev)
	}
	if h.transitions(t, "START", "GREETING") != 1 || h.transitions(t, "GREETING", "LISTENING") != 1 {
		t.Error("transitions not recorded")
	}
}

func TestDriver_OrderTurnToConfirming(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.driver.state = StateListening
	h.listener.results = []error{nil}
	h.rec.Text = "ลาเต้เย็นสองแก้ว"
	h.client.Reply = dialogueapi.Reply{Intent: "confirm_order", PlaybackRef: "/c.mp3"}

	ev := h.step(t, Entered{})
	tr, ok := ev.(TextRecognized)
	if !ok || tr.Text != "ลาเต้เย็นสองแก้ว" {
		t.Fatalf("event = %#v, want TextRecognized", ev)
	}
	if calls := h.rec.RecognizeCalls; len(calls) != 1 || calls[0].Language != "th-TH" {
		t.Errorf("recognize calls = %v", calls)
	}

	ev = h.step(t, ev)
	ev = h.step(t, ev)
	if h.driver.State() != StateConfirming {
		t.Fatalf("state = %v, want CONFIRMING", h.driver.State())
	}
	s := h.driver.Session()
	if s.LastText != "ลาเต้เย็นสองแก้ว" || s.Turns != 1 || s.State != "CONFIRMING" {
		t.Errorf("session = %+v", s)
	}
}

func TestDriver_ConfirmingRecognitionFailureFallsBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.driver.state = StateConfirming
	h.listener.results = []error{nil}
	h.rec.Err = fmt.Errorf("whisper: %w", stt.ErrNotRecognized)

	ev := h.step(t, Entered{})
	if _, ok := ev.(RecognitionFailed); !ok {
		t.Fatalf("event = %T, want RecognitionFailed", ev)
	}
	ev = h.step(t, ev)
	if h.driver.State() != StateListening {
		t.Errorf("state = %v, want LISTENING", h.driver.State())
	}
	if _, ok := ev.(Entered); !ok {
		t.Errorf("next event = %T, want Entered (listen again)", ev)
	}
	if len(h.client.Asks()) != 0 {
		t.Error("dialogue service called after failed recognition")
	}
}

func TestDriver_ListenTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.driver.state = StateListening
	h.listener.results = []error{listen.ErrListenTimeout}

	ev := h.step(t, Entered{})
	if _, ok := ev.(Timeout); !ok {
		t.Fatalf("event = %T, want Timeout", ev)
	}
	h.step(t, ev)
	if h.driver.State() != StateListening {
		t.Errorf("state = %v, want LISTENING", h.driver.State())
	}
	if h.rec.CallCount() != 0 {
		t.Error("recognizer called without an utterance")
	}
}

func TestDriver_ServerUnreachable(t *testing.T) {
	t.Parallel()

	for _, from := range []State{StateGreeting, StateListening, StateConfirming} {
		t.Run(from.String(), func(t *testing.T) {
			h := newHarness(t)
			h.driver.state = from
			h.client.AskErr = fmt.Errorf("httpapi: ask: %w", dialogueapi.ErrUnreachable)

			ev := h.step(t, askTrigger(from))
			if _, ok := ev.(ServerUnreachable); !ok {
				t.Fatalf("event = %T, want ServerUnreachable", ev)
			}
			h.step(t, ev)
			if h.driver.State() != StateListening {
				t.Errorf("state = %v, want LISTENING", h.driver.State())
			}
		})
	}
}

// askTrigger returns the event that makes state issue an Ask.
func askTrigger(state State) Event {
	if state == StateGreeting {
		return Entered{}
	}
	return TextRecognized{Text: "hello"}
}

func TestDriver_PlaybackFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.sink.PlayErr = errors.New("decode failed")

	h.step(t, ServerReplyReceived{Intent: "thank_you", PlaybackRef: "/bye.mp3"})
	if h.driver.State() != StateThankYou {
		t.Errorf("state = %v, want THANK_YOU", h.driver.State())
	}
}

func TestDriver_ThankYouWaitsThenRestarts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.driver.state = StateThankYou

	ev := h.step(t, Entered{})
	if h.driver.State() != StateEnd {
		t.Fatalf("state = %v, want END", h.driver.State())
	}
	if len(h.slept) != 1 || h.slept[0] != 2*time.Second {
		t.Errorf("slept = %v, want [2s]", h.slept)
	}
	h.step(t, ev)
	if h.driver.State() != StateStart {
		t.Errorf("state = %v, want START", h.driver.State())
	}
	if len(h.client.Resets()) != 0 {
		t.Error("END must not issue side effects")
	}
}

func TestDriver_RunStopsOnDeviceError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.client.Reply = dialogueapi.Reply{Intent: "greeting"}
	h.listener.results = []error{fmt.Errorf("listen: start source: %w", audio.ErrDevice)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := h.driver.Run(ctx)
	if !errors.Is(err, audio.ErrDevice) {
		t.Fatalf("Run() = %v, want ErrDevice", err)
	}
}

func TestDriver_RunReturnsNilOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []State
	h := newHarness(t, WithStateHook(func(s State) {
		seen = append(seen, s)
		if s == StateListening {
			cancel()
		}
	}))
	h.client.Reply = dialogueapi.Reply{Intent: "greeting"}

	if err := h.driver.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	want := []State{StateGreeting, StateGreeting, StateListening}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("states = %v, want %v", seen, want)
	}
}

func TestDriver_LogsTransitions(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := newHarness(t)
	h.step(t, Entered{})

	out := buf.String()
	if !strings.Contains(out, "from=START") || !strings.Contains(out, "to=GREETING") {
		t.Errorf("transition log missing labels:\n%s", out)
	}
}
