// Package energy provides a pure-Go VAD engine that classifies frames by their
// root-mean-square energy. It needs no CGO and is useful on hosts where the
// WebRTC detector is unavailable, and as a deterministic engine in tests.
package energy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/MrWong99/voicekiosk/pkg/provider/vad"
)

// thresholds maps aggressiveness 0–3 to an RMS level in 16-bit PCM units
// (0–32 767). 300 corresponds to near-silence on a typical kiosk microphone.
var thresholds = [4]float64{200, 300, 450, 650}

// Compile-time assertion that Engine implements vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithThreshold fixes the RMS threshold, overriding the aggressiveness mapping.
func WithThreshold(rms float64) Option {
	return func(e *Engine) {
		e.threshold = rms
	}
}

// Engine creates RMS-threshold classifiers.
type Engine struct {
	threshold float64
}

// New returns an energy VAD engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewClassifier implements vad.Engine.
func (e *Engine) NewClassifier(cfg vad.Config) (vad.Classifier, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d, frame %d ms", vad.ErrFrameSize, cfg.SampleRate, cfg.FrameSizeMs)
	}
	threshold := e.threshold
	if threshold <= 0 {
		if cfg.Aggressiveness < 0 || cfg.Aggressiveness > 3 {
			return nil, fmt.Errorf("energy vad: aggressiveness %d out of range [0, 3]", cfg.Aggressiveness)
		}
		threshold = thresholds[cfg.Aggressiveness]
	}
	return &classifier{threshold: threshold, frameBytes: cfg.FrameBytes()}, nil
}

type classifier struct {
	threshold  float64
	frameBytes int
}

// Classify implements vad.Classifier. It holds no state and is safe for
// concurrent use.
func (c *classifier) Classify(frame []byte) (bool, error) {
	if len(frame) != c.frameBytes {
		return false, fmt.Errorf("%w: got %d bytes, want %d", vad.ErrFrameSize, len(frame), c.frameBytes)
	}
	return RMS(frame) >= c.threshold, nil
}

func (c *classifier) Close() error { return nil }

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer. Returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
