package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voicekiosk/pkg/audio"
)

// warnInterval rate-limits warnings emitted from the device callback.
const warnInterval = time.Second

// CaptureConfig configures a [Capture] source.
type CaptureConfig struct {
	// SampleRate in Hz. Default: 48000.
	SampleRate int

	// FrameMs is the duration of each delivered frame. Default: 30.
	FrameMs int

	// QueueSize is the hand-off queue capacity in frames. Default:
	// [audio.DefaultQueueSize].
	QueueSize int

	// Device selects the input device by (partial, case-insensitive) name.
	// Empty selects the host default input device.
	Device string
}

// Capture is an [audio.Source] reading mono 16-bit PCM from a PortAudio input
// device in callback mode. The callback only copies the device buffer and
// pushes it into the queue; it never blocks.
type Capture struct {
	cfg   CaptureConfig
	queue *audio.FrameQueue

	mu     sync.Mutex
	stream *portaudio.Stream

	frameCount   atomic.Int64
	lastDropWarn atomic.Int64
	lastFlagWarn atomic.Int64
}

// Compile-time interface assertion.
var _ audio.Source = (*Capture)(nil)

// NewCapture returns a stopped capture source. No device is opened until
// [Capture.Start].
func NewCapture(cfg CaptureConfig) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.FrameMs <= 0 {
		cfg.FrameMs = 30
	}
	return &Capture{
		cfg:   cfg,
		queue: audio.NewFrameQueue(cfg.QueueSize),
	}
}

// Start opens the input device and starts the stream. It is a no-op while
// the stream is already running.
func (c *Capture) Start(_ context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	dev, err := findDevice(c.cfg.Device, true)
	if err != nil {
		return fmt.Errorf("portaudio: find input device: %w: %w", audio.ErrDevice, err)
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(c.cfg.SampleRate)
	params.FramesPerBuffer = audio.FrameSize(c.cfg.SampleRate, c.cfg.FrameMs)

	c.frameCount.Store(0)
	stream, err := portaudio.OpenStream(params, c.onFrame)
	if err != nil {
		return fmt.Errorf("portaudio: open input stream on %q: %w: %w", dev.Name, audio.ErrDevice, err)
	}
	if err := stream.Start(); err != nil {
		if cerr := stream.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return fmt.Errorf("portaudio: start input stream: %w: %w", audio.ErrDevice, err)
	}
	c.stream = stream

	slog.Info("audio capture started",
		"device", dev.Name,
		"format", c.Format().String(),
		"frame_ms", c.cfg.FrameMs,
	)
	return nil
}

// Stop stops and closes the input stream. Both steps are attempted even if
// the first fails.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	stream := c.stream
	c.stream = nil

	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: stop input stream: %w", err))
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close input stream: %w", err))
	}
	slog.Debug("audio capture stopped", "frames", c.frameCount.Load(), "dropped", c.queue.Dropped())
	return errors.Join(errs...)
}

// Frames implements [audio.Source].
func (c *Capture) Frames() *audio.FrameQueue { return c.queue }

// Format implements [audio.Source].
func (c *Capture) Format() audio.Format {
	return audio.Format{SampleRate: c.cfg.SampleRate, Channels: 1}
}

// onFrame runs on the PortAudio callback thread.
func (c *Capture) onFrame(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	n := c.frameCount.Add(1) - 1
	frame := audio.AudioFrame{
		Data:       audio.Int16ToPCM(in),
		SampleRate: c.cfg.SampleRate,
		Channels:   1,
		Timestamp:  time.Duration(n) * time.Duration(c.cfg.FrameMs) * time.Millisecond,
	}

	if flags&portaudio.InputOverflow != 0 && c.allow(&c.lastFlagWarn) {
		slog.Warn("audio capture: input overflow reported by device")
	}

	// Drops are counted by the queue and reported per listen as
	// voicekiosk.audio.dropped_frames; here they are only logged.
	if c.queue.Push(frame) && c.allow(&c.lastDropWarn) {
		slog.Warn("audio capture: hand-off queue full, dropping oldest frame",
			"dropped_total", c.queue.Dropped(),
			"queue_size", c.queue.Cap(),
		)
	}
}

// allow reports whether a rate-limited warning tracked by last may be
// emitted now, and records the emission.
func (c *Capture) allow(last *atomic.Int64) bool {
	now := time.Now().UnixNano()
	prev := last.Load()
	if now-prev < int64(warnInterval) {
		return false
	}
	return last.CompareAndSwap(prev, now)
}
