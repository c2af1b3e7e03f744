package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voicekiosk/pkg/audio"
)

// defaultPlayerBuffer is the number of frames written per blocking Write.
const defaultPlayerBuffer = 4096

// PlayerConfig configures a [Player].
type PlayerConfig struct {
	// Device selects the output device by (partial, case-insensitive) name.
	// Empty selects the host default output device.
	Device string

	// FramesPerBuffer is the number of frames written per blocking write.
	// Default: 4096.
	FramesPerBuffer int
}

// Player is an [audio.Player] that opens a blocking PortAudio output stream
// for each clip, writes it, and closes the stream once the device has drained.
type Player struct {
	cfg PlayerConfig
}

// Compile-time interface assertion.
var _ audio.Player = (*Player)(nil)

// NewPlayer returns a Player for the configured output device.
func NewPlayer(cfg PlayerConfig) *Player {
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = defaultPlayerBuffer
	}
	return &Player{cfg: cfg}
}

// Play writes pcm to the output device and returns after the last buffer has
// been played. Stopping the stream blocks until queued buffers have drained,
// so playback and the next listen never overlap.
func (p *Player) Play(ctx context.Context, pcm []byte, format audio.Format) (err error) {
	if len(pcm) == 0 {
		return nil
	}
	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}

	dev, err := findDevice(p.cfg.Device, false)
	if err != nil {
		return fmt.Errorf("portaudio: find output device: %w: %w", audio.ErrDevice, err)
	}

	out := make([]int16, p.cfg.FramesPerBuffer*channels)
	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = p.cfg.FramesPerBuffer

	stream, err := portaudio.OpenStream(params, &out)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream on %q: %w: %w", dev.Name, audio.ErrDevice, err)
	}
	defer func() {
		if e := stream.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("portaudio: close output stream: %w", e))
		}
	}()

	if err = stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w: %w", audio.ErrDevice, err)
	}
	defer func() {
		if e := stream.Stop(); e != nil {
			err = errors.Join(err, fmt.Errorf("portaudio: stop output stream: %w", e))
		}
	}()

	for chunk := range slices.Chunk(audio.PCMToInt16(pcm), len(out)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		copy(out, chunk)
		clear(out[len(chunk):])
		if err := stream.Write(); err != nil {
			if errors.Is(err, portaudio.OutputUnderflowed) {
				slog.Debug("audio output underflowed", "err", err)
				continue
			}
			return fmt.Errorf("portaudio: write output stream: %w: %w", audio.ErrDevice, err)
		}
	}
	return nil
}
