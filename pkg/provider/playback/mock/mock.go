// Package mock provides a test double for the playback.Sink interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicekiosk/pkg/provider/playback"
)

// Sink is a mock implementation of playback.Sink.
type Sink struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by every Play call.
	PlayErr error

	// OnPlay, if set, is called with each ref before Play returns.
	OnPlay func(ref string)

	// PlayCalls records the ref of every Play call in order.
	PlayCalls []string
}

// Play records the call and returns PlayErr.
func (s *Sink) Play(_ context.Context, ref string) error {
	s.mu.Lock()
	s.PlayCalls = append(s.PlayCalls, ref)
	onPlay, err := s.OnPlay, s.PlayErr
	s.mu.Unlock()
	if onPlay != nil {
		onPlay(ref)
	}
	return err
}

// Calls returns a snapshot of the recorded refs.
func (s *Sink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.PlayCalls))
	copy(out, s.PlayCalls)
	return out
}

// Ensure Sink implements playback.Sink at compile time.
var _ playback.Sink = (*Sink)(nil)
