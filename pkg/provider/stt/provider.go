// Package stt defines the Recognizer interface for speech-to-text backends.
//
// A Recognizer turns one complete utterance into text. Recognition is a
// blocking batch call: the kiosk never streams audio to a recognizer while
// the user is still speaking, because the segmenter only emits an utterance
// after trailing silence.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/voicekiosk/pkg/audio"
)

// ErrNotRecognized is returned when an utterance was captured but produced no
// usable text. Callers treat it as a recoverable recognition failure.
var ErrNotRecognized = errors.New("stt: speech not recognized")

// Recognizer is the abstraction over any speech-to-text backend.
type Recognizer interface {
	// Recognize transcribes utt. language is a BCP-47 tag such as "th-TH";
	// an empty string lets the backend choose.
	//
	// Returns [ErrNotRecognized] (possibly wrapped) when the backend answered
	// but found no speech, and any other error for transport or backend
	// failures.
	Recognize(ctx context.Context, utt audio.Utterance, language string) (string, error)
}

// Clean trims recognizer output and maps an empty result to
// [ErrNotRecognized].
func Clean(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNotRecognized
	}
	return text, nil
}

// BaseLanguage returns the primary subtag of a BCP-47 tag ("th-TH" → "th"),
// lower-cased. Whisper-family backends accept only the primary subtag.
func BaseLanguage(tag string) string {
	base, _, _ := strings.Cut(tag, "-")
	base, _, _ = strings.Cut(base, "_")
	return strings.ToLower(strings.TrimSpace(base))
}
