package portaudio

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voicekiosk/pkg/audio"
)

// Backend is an [audio.Backend] owning the PortAudio library lifetime.
type Backend struct {
	capture   *Capture
	player    *Player
	input     string
	output    string
	terminate func() error
}

var _ audio.Backend = (*Backend)(nil)

// NewBackend initialises PortAudio and returns a backend with a stopped
// capture source and a player. Close terminates the library.
func NewBackend(capture CaptureConfig, player PlayerConfig) (*Backend, error) {
	terminate, err := Init()
	if err != nil {
		return nil, err
	}
	b := &Backend{
		capture:   NewCapture(capture),
		player:    NewPlayer(player),
		input:     capture.Device,
		output:    player.Device,
		terminate: terminate,
	}
	if err := b.Check(context.Background()); err != nil {
		return nil, errors.Join(err, terminate())
	}
	return b, nil
}

// Source returns the capture source.
func (b *Backend) Source() audio.Source { return b.capture }

// Player returns the output player.
func (b *Backend) Player() audio.Player { return b.player }

// Check resolves both configured devices.
func (b *Backend) Check(_ context.Context) error {
	if _, err := findDevice(b.input, true); err != nil {
		return fmt.Errorf("portaudio: input device %q: %w: %w", b.input, audio.ErrDevice, err)
	}
	if _, err := findDevice(b.output, false); err != nil {
		return fmt.Errorf("portaudio: output device %q: %w: %w", b.output, audio.ErrDevice, err)
	}
	return nil
}

// Close stops capture and terminates PortAudio.
func (b *Backend) Close() error {
	return errors.Join(b.capture.Stop(), b.terminate())
}
