// Package listen turns a live stream of classified audio frames into discrete
// utterances.
//
// The [Segmenter] is the pure, synchronous core: feed it one classified frame
// at a time and it reports when an utterance has completed. The [Listener]
// wraps a Segmenter with an [audio.Source] and a [vad.Classifier] and runs one
// listening phase: drain stale audio, start the device, pull frames with a
// bounded wait, and return the first complete utterance.
package listen

import (
	"github.com/MrWong99/voicekiosk/pkg/audio"
)

// Default segmentation parameters. At 30 ms frames the hangover corresponds
// to roughly 180 ms of trailing silence.
const (
	DefaultWindowSize     = 10
	DefaultTriggerRatio   = 0.8
	DefaultHangoverFrames = 6
)

// State is the segmenter phase.
type State int

const (
	// StateIdle is the pre-trigger phase. Frames go into the rolling window.
	StateIdle State = iota

	// StateVoiced is the post-trigger phase. Frames go straight into the
	// utterance being built.
	StateVoiced
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVoiced:
		return "voiced"
	default:
		return "unknown"
	}
}

// SegmenterConfig holds the tunable segmentation parameters. Zero values are
// replaced by the package defaults, so a hangover of zero frames cannot be
// expressed.
type SegmenterConfig struct {
	// WindowSize is the rolling-window capacity W. Default: 10.
	WindowSize int

	// TriggerRatio is the fraction T of speech frames, measured against the
	// full window capacity, that must be exceeded to start an utterance.
	// Default: 0.8.
	TriggerRatio float64

	// HangoverFrames is the number H of consecutive non-speech frames that
	// may be absorbed into an utterance; the (H+1)th closes it. Default: 6.
	HangoverFrames int
}

func (c SegmenterConfig) withDefaults() SegmenterConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.TriggerRatio <= 0 {
		c.TriggerRatio = DefaultTriggerRatio
	}
	if c.HangoverFrames <= 0 {
		c.HangoverFrames = DefaultHangoverFrames
	}
	return c
}

// Segmenter detects utterance boundaries in a stream of classified frames.
//
// In [StateIdle] every frame is pushed into a [RollingWindow]. Once the number
// of speech frames in the window is strictly greater than TriggerRatio×W, the
// window contents (oldest first) seed a new utterance and the segmenter moves
// to [StateVoiced]. There every frame is appended to the utterance; a
// non-speech frame increments the silence counter and a speech frame resets
// it to zero. When the counter exceeds HangoverFrames the utterance is emitted
// and the segmenter returns to a freshly reset [StateIdle].
//
// Segmenter is not safe for concurrent use.
type Segmenter struct {
	cfg     SegmenterConfig
	trigger float64

	state   State
	window  *RollingWindow
	frames  []audio.AudioFrame
	silence int
}

// NewSegmenter returns an idle segmenter.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	cfg = cfg.withDefaults()
	return &Segmenter{
		cfg:     cfg,
		trigger: cfg.TriggerRatio * float64(cfg.WindowSize),
		window:  NewRollingWindow(cfg.WindowSize),
	}
}

// Push feeds one classified frame. When the frame completes an utterance it
// returns the utterance and true; otherwise it returns nil and false.
func (s *Segmenter) Push(f audio.AudioFrame, isSpeech bool) (*audio.Utterance, bool) {
	if s.state == StateIdle {
		s.window.Push(f, isSpeech)
		if float64(s.window.SpeechCount()) > s.trigger {
			s.frames = s.window.Frames()
			s.window.Reset()
			s.silence = 0
			s.state = StateVoiced
		}
		return nil, false
	}

	s.frames = append(s.frames, f)
	if isSpeech {
		s.silence = 0
		return nil, false
	}
	s.silence++
	if s.silence <= s.cfg.HangoverFrames {
		return nil, false
	}

	utt := &audio.Utterance{Frames: s.frames, SampleRate: s.frames[0].SampleRate}
	s.frames = nil
	s.Reset()
	return utt, true
}

// Reset discards any partial utterance and returns to an empty idle state.
func (s *Segmenter) Reset() {
	s.state = StateIdle
	s.window.Reset()
	s.frames = nil
	s.silence = 0
}

// State returns the current phase.
func (s *Segmenter) State() State { return s.state }

// Silence returns the current consecutive non-speech count while voiced.
func (s *Segmenter) Silence() int { return s.silence }

// Buffered returns the number of frames held in the window (idle) or in the
// partial utterance (voiced).
func (s *Segmenter) Buffered() int {
	if s.state == StateVoiced {
		return len(s.frames)
	}
	return s.window.Len()
}

// Config returns the effective configuration after defaults.
func (s *Segmenter) Config() SegmenterConfig { return s.cfg }
