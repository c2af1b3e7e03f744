// Package webrtc provides a VAD engine backed by the WebRTC voice activity
// detector (github.com/maxhawkins/go-webrtcvad, CGO).
//
// The detector supports 8, 16, 32 and 48 kHz mono 16-bit PCM in 10, 20 or
// 30 ms frames, and four aggressiveness modes (0–3).
package webrtc

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/voicekiosk/pkg/provider/vad"
)

// Compile-time assertion that Engine implements vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Engine creates WebRTC VAD classifiers.
type Engine struct{}

// New returns a WebRTC VAD engine.
func New() *Engine { return &Engine{} }

// NewClassifier validates cfg and allocates a detector instance in the
// requested aggressiveness mode.
func (e *Engine) NewClassifier(cfg vad.Config) (vad.Classifier, error) {
	if cfg.Aggressiveness < 0 || cfg.Aggressiveness > 3 {
		return nil, fmt.Errorf("webrtc vad: aggressiveness %d out of range [0, 3]", cfg.Aggressiveness)
	}
	inst, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create instance: %w", err)
	}
	if err := inst.SetMode(cfg.Aggressiveness); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %d: %w", cfg.Aggressiveness, err)
	}
	samples := cfg.SampleRate * cfg.FrameSizeMs / 1000
	if !inst.ValidRateAndFrameLength(cfg.SampleRate, samples) {
		return nil, fmt.Errorf("%w: %d Hz / %d ms is not supported by webrtc vad", vad.ErrFrameSize, cfg.SampleRate, cfg.FrameSizeMs)
	}
	return &classifier{inst: inst, cfg: cfg, frameBytes: cfg.FrameBytes()}, nil
}

// classifier wraps one detector instance. The underlying C state is not
// thread-safe, so Classify is serialised.
type classifier struct {
	mu         sync.Mutex
	inst       *webrtcvad.VAD
	cfg        vad.Config
	frameBytes int
	closed     bool
}

// Classify implements vad.Classifier.
func (c *classifier) Classify(frame []byte) (bool, error) {
	if len(frame) != c.frameBytes {
		return false, fmt.Errorf("%w: got %d bytes, want %d", vad.ErrFrameSize, len(frame), c.frameBytes)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, fmt.Errorf("webrtc vad: classifier is closed")
	}
	speech, err := c.inst.Process(c.cfg.SampleRate, frame)
	if err != nil {
		return false, fmt.Errorf("webrtc vad: process frame: %w", err)
	}
	return speech, nil
}

// Close marks the classifier closed. The detector memory is released by the
// library's finalizer.
func (c *classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.inst = nil
	return nil
}
