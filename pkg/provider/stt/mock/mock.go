// Package mock provides a test double for the stt.Recognizer interface.
//
// Results are consumed in order, one per Recognize call. Once exhausted,
// Text and Err are returned.
//
// Example:
//
//	rec := &mock.Recognizer{Results: []mock.Result{{Text: "two lattes"}}}
//	text, err := rec.Recognize(ctx, utt, "th-TH")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicekiosk/pkg/audio"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
)

// Result is one scripted Recognize outcome.
type Result struct {
	Text string
	Err  error
}

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	// Utterance is the utterance passed to Recognize.
	Utterance audio.Utterance
	// Language is the language tag passed to Recognize.
	Language string
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Results is the scripted sequence of outcomes.
	Results []Result

	// Text is returned once Results is exhausted.
	Text string

	// Err, if non-nil, is returned once Results is exhausted.
	Err error

	// RecognizeCalls records every call to Recognize in order.
	RecognizeCalls []RecognizeCall
}

// Recognize records the call and returns the next scripted result.
func (r *Recognizer) Recognize(_ context.Context, utt audio.Utterance, language string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RecognizeCalls = append(r.RecognizeCalls, RecognizeCall{Utterance: utt, Language: language})
	if len(r.Results) > 0 {
		res := r.Results[0]
		r.Results = r.Results[1:]
		return res.Text, res.Err
	}
	return r.Text, r.Err
}

// CallCount returns the number of Recognize calls so far.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.RecognizeCalls)
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)
