// Package playback defines the Sink interface for playing synthesized speech.
//
// Playback is synchronous: Play returns only after the clip has finished
// playing (or failed). The dialogue loop relies on this so the microphone is
// never open while the kiosk is speaking.
package playback

import (
	"context"
	"errors"
)

// ErrPlayback is wrapped by every fetch, decode, or device failure. Callers
// log it and carry on as if there had been nothing to play.
var ErrPlayback = errors.New("playback: failed")

// Sink plays a synthesized-speech reference to completion.
type Sink interface {
	// Play resolves ref to an audio resource, plays it, and blocks until it
	// has finished.
	Play(ctx context.Context, ref string) error
}
