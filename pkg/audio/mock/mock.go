// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Player] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := mock.NewSource(audio.Format{SampleRate: 48000, Channels: 1}, 64)
//	src.Script = frames // pushed into the queue on Start
//	utt, err := listener.Listen(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicekiosk/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source]. Frames listed in Script
// are pushed into the queue when Start is called; tests may also push frames
// directly via Frames().Push at any time.
type Source struct {
	mu sync.Mutex

	queue  *audio.FrameQueue
	format audio.Format

	// Script holds frames pushed into the queue on every successful Start
	// that transitions the source from stopped to running.
	Script []audio.AudioFrame

	// StartErr, if non-nil, is returned by Start and the source stays stopped.
	StartErr error

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// OnStart, if set, is called (without the lock held) after a successful
	// Start, so tests can feed frames from a goroutine.
	OnStart func(q *audio.FrameQueue)

	running bool

	// --- Call records ---

	// StartCallCount is the number of times Start was called.
	StartCallCount int

	// StopCallCount is the number of times Stop was called.
	StopCallCount int
}

// NewSource returns a stopped Source with a queue of the given capacity.
func NewSource(format audio.Format, queueSize int) *Source {
	return &Source{
		queue:  audio.NewFrameQueue(queueSize),
		format: format,
	}
}

// Start implements [audio.Source].
func (s *Source) Start(_ context.Context) error {
	s.mu.Lock()
	s.StartCallCount++
	if s.StartErr != nil {
		s.mu.Unlock()
		return s.StartErr
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	for _, f := range s.Script {
		s.queue.Push(f)
	}
	onStart := s.OnStart
	s.mu.Unlock()

	if onStart != nil {
		onStart(s.queue)
	}
	return nil
}

// Stop implements [audio.Source].
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCallCount++
	s.running = false
	return s.StopErr
}

// Frames implements [audio.Source].
func (s *Source) Frames() *audio.FrameQueue { return s.queue }

// Format implements [audio.Source].
func (s *Source) Format() audio.Format { return s.format }

// Running reports whether the source is between Start and Stop.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records a single invocation of Player.Play.
type PlayCall struct {
	// PCM is a copy of the bytes passed to Play.
	PCM []byte

	// Format is the format passed to Play.
	Format audio.Format
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by every Play call.
	PlayErr error

	// PlayCalls records every call to Play in order.
	PlayCalls []PlayCall
}

// Play records the call and returns PlayErr.
func (p *Player) Play(_ context.Context, pcm []byte, format audio.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.PlayCalls = append(p.PlayCalls, PlayCall{PCM: cp, Format: format})
	return p.PlayErr
}

// Calls returns a snapshot of the recorded Play calls.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.PlayCalls))
	copy(out, p.PlayCalls)
	return out
}

// Ensure Player implements audio.Player at compile time.
var _ audio.Player = (*Player)(nil)

// ─── Backend ──────────────────────────────────────────────────────────────────

// Backend is a mock implementation of [audio.Backend].
type Backend struct {
	mu sync.Mutex

	// Src and Out are returned by Source and Player.
	Src *Source
	Out *Player

	// CheckErr, if non-nil, is returned by Check.
	CheckErr error

	// CloseCallCount is the number of Close calls.
	CloseCallCount int
}

// Source implements [audio.Backend].
func (b *Backend) Source() audio.Source { return b.Src }

// Player implements [audio.Backend].
func (b *Backend) Player() audio.Player { return b.Out }

// Check returns CheckErr.
func (b *Backend) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.CheckErr
}

// Close records the call.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCallCount++
	return nil
}

// Ensure Backend implements audio.Backend at compile time.
var _ audio.Backend = (*Backend)(nil)
