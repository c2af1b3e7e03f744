// Package audio defines the frame types, capture and playback interfaces, and
// the bounded hand-off queue used by the kiosk's listening pipeline.
//
// The two device-facing abstractions are:
//
//   - [Source] owns a capture device and pushes one [AudioFrame] per device
//     tick into a [FrameQueue].
//   - [Player] writes PCM to an output device and blocks until it has been
//     played.
//
// Implementations live in backend packages (e.g., audio/portaudio). The
// interfaces are intentionally narrow so that the listener and dialogue driver
// can be tested against the in-memory doubles in audio/mock.
package audio

import (
	"context"
	"errors"
)

// ErrDevice is the sentinel wrapped by every capture or playback device
// failure (device missing, open failure, stream closed underneath us). It is
// the only error class allowed to terminate a listening session.
var ErrDevice = errors.New("audio device error")

// Source produces a continuous sequence of fixed-duration PCM frames from a
// capture device.
//
// The device callback must never block: implementations push each frame into
// the queue returned by [Source.Frames], which drops the oldest unread frame
// when full.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Start opens the device and begins capture. Calling Start while the
	// source is already running is a no-op and returns nil. A failure to open
	// the device returns an error wrapping [ErrDevice]; any partially acquired
	// resources are released before Start returns.
	Start(ctx context.Context) error

	// Stop ends capture and closes the device handle. It is safe to call Stop
	// more than once and on a source that was never started.
	Stop() error

	// Frames returns the hand-off queue that receives captured frames. The
	// queue outlives individual Start/Stop cycles.
	Frames() *FrameQueue

	// Format reports the sample rate and channel count of produced frames.
	Format() Format
}

// Player plays raw PCM on an output device.
//
// Implementations must be safe for concurrent use, but the kiosk only ever
// plays one clip at a time.
type Player interface {
	// Play writes pcm (16-bit signed little-endian samples, interleaved if
	// format.Channels > 1) to the device and blocks until the audio has been
	// played or ctx is cancelled. Device failures wrap [ErrDevice].
	Play(ctx context.Context, pcm []byte, format Format) error
}

// Backend bundles the capture source and the output player of one host audio
// system together with its lifecycle.
type Backend interface {
	Source() Source
	Player() Player

	// Check reports whether the configured input and output devices are
	// present. Used by readiness probes; it must not open a stream.
	Check(ctx context.Context) error

	// Close releases the audio system. The source must be stopped first.
	Close() error
}
