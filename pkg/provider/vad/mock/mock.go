// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that classifiers are created with the expected Config.
// Use Classifier to script per-frame verdicts and inspect the frames that were
// submitted for classification.
//
// Example:
//
//	cls := &mock.Classifier{Verdicts: []bool{true, true, false}}
//	eng := &mock.Engine{Classifier: cls}
//	c, _ := eng.NewClassifier(cfg)
package mock

import (
	"sync"

	"github.com/MrWong99/voicekiosk/pkg/provider/vad"
)

// NewClassifierCall records a single invocation of Engine.NewClassifier.
type NewClassifierCall struct {
	// Cfg is the Config passed to NewClassifier.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Classifier is returned by NewClassifier. If nil, NewClassifier returns a
	// new default Classifier.
	Classifier vad.Classifier

	// NewClassifierErr, if non-nil, is returned as the error from NewClassifier.
	NewClassifierErr error

	// NewClassifierCalls records every call to NewClassifier in order.
	NewClassifierCalls []NewClassifierCall
}

// NewClassifier records the call and returns Classifier, NewClassifierErr.
func (e *Engine) NewClassifier(cfg vad.Config) (vad.Classifier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewClassifierCalls = append(e.NewClassifierCalls, NewClassifierCall{Cfg: cfg})
	if e.NewClassifierErr != nil {
		return nil, e.NewClassifierErr
	}
	if e.Classifier != nil {
		return e.Classifier, nil
	}
	return &Classifier{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Classifier is a mock implementation of vad.Classifier.
//
// Verdicts are consumed in order, one per Classify call. Once exhausted,
// Default is returned. If Func is set it takes precedence over both.
type Classifier struct {
	mu sync.Mutex

	// Func, if non-nil, decides every verdict from the frame bytes.
	Func func(frame []byte) bool

	// Verdicts is the scripted sequence of results.
	Verdicts []bool

	// Default is returned once Verdicts is exhausted.
	Default bool

	// ClassifyErr, if non-nil, is returned by every Classify call.
	ClassifyErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ClassifyCallCount is the number of times Classify was called.
	ClassifyCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Classify records the call and returns the next scripted verdict.
func (c *Classifier) Classify(frame []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClassifyCallCount++
	if c.ClassifyErr != nil {
		return false, c.ClassifyErr
	}
	if c.Func != nil {
		return c.Func(frame), nil
	}
	if len(c.Verdicts) > 0 {
		v := c.Verdicts[0]
		c.Verdicts = c.Verdicts[1:]
		return v, nil
	}
	return c.Default, nil
}

// Close records the call and returns CloseErr.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCallCount++
	return c.CloseErr
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)
