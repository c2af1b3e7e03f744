// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (e.g., WebRTC VAD or an
// energy threshold) and surfaces it as a per-stream [Classifier]. A classifier
// answers one question per frame: does this frame contain speech? Smoothing
// across frames (trigger windows, hangover) is deliberately left to the caller
// so that the segmentation policy can be tuned and tested independently of the
// detector.
//
// Classification is synchronous by design: Classify returns immediately, making
// it suitable for the listening loop that must keep pace with the capture
// device.
//
// Engines must be safe for concurrent use. A single Classifier should not be
// shared across goroutines unless the implementation explicitly documents
// thread safety for that type.
package vad

import "errors"

// ErrFrameSize is wrapped by Classify when the supplied frame does not match the
// configured sample rate and frame duration.
var ErrFrameSize = errors.New("vad: invalid frame size")

// Config holds the parameters for a classifier.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to Classify. Common values: 8000, 16000, 32000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Most VAD
	// models operate on fixed frame sizes (e.g., 10, 20, or 30 ms).
	FrameSizeMs int

	// Aggressiveness trades false positives for missed speech. Range: [0, 3];
	// 3 filters out the most non-speech. Engines without a notion of
	// aggressiveness map it onto their own threshold.
	Aggressiveness int
}

// FrameBytes returns the expected PCM byte length of one mono 16-bit frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// Classifier is a stateful speech/non-speech detector for a single audio
// stream. It is an interface so that test code can supply mock implementations
// without a live engine.
type Classifier interface {
	// Classify reports whether frame contains speech. The frame must be raw
	// little-endian mono PCM at the SampleRate and FrameSizeMs configured when
	// the classifier was created; otherwise an error wrapping [ErrFrameSize] is
	// returned.
	//
	// This method is called synchronously in the listening loop; it must not
	// block.
	Classify(frame []byte) (bool, error)

	// Close releases all resources associated with the classifier. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for classifiers. It is the top-level interface
// implemented by each VAD backend.
type Engine interface {
	// NewClassifier creates a classifier with the given configuration. Returns
	// an error if the configuration is invalid (e.g., unsupported sample rate,
	// frame size, or aggressiveness out of range).
	NewClassifier(cfg Config) (Classifier, error)
}
