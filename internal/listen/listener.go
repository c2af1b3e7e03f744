package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicekiosk/internal/observe"
	"github.com/MrWong99/voicekiosk/pkg/audio"
	"github.com/MrWong99/voicekiosk/pkg/provider/vad"
)

// ErrListenTimeout is returned by [Listener.Listen] when no utterance was
// completed within the configured listen timeout.
var ErrListenTimeout = errors.New("listen: timed out waiting for an utterance")

// DefaultPollInterval bounds each wait on the frame queue so cancellation
// and the listen timeout are observed promptly.
const DefaultPollInterval = time.Second

// Config configures a [Listener].
type Config struct {
	Segmenter SegmenterConfig

	// Timeout bounds a whole listening phase. Zero means no limit.
	Timeout time.Duration

	// PollInterval bounds a single wait for the next frame. Default: 1s.
	PollInterval time.Duration
}

// Option configures a [Listener].
type Option func(*Listener)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// Listener runs listening phases against a capture source. Calls to Listen
// must not overlap.
type Listener struct {
	src        audio.Source
	classifier vad.Classifier
	seg        *Segmenter
	metrics    *observe.Metrics

	mu      sync.Mutex
	cfg     Config
	pending *Config
}

// New returns a Listener reading from src and classifying with classifier.
func New(src audio.Source, classifier vad.Classifier, cfg Config, opts ...Option) *Listener {
	cfg = cfg.withDefaults()
	l := &Listener{
		src:        src,
		classifier: classifier,
		seg:        NewSegmenter(cfg.Segmenter),
		cfg:        cfg,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	c.Segmenter = c.Segmenter.withDefaults()
	return c
}

// Reconfigure replaces the segmentation and timeout settings. The change takes
// effect at the start of the next Listen call; a phase already in progress
// keeps its settings. Safe to call from any goroutine.
func (l *Listener) Reconfigure(cfg Config) {
	cfg = cfg.withDefaults()
	l.mu.Lock()
	l.pending = &cfg
	l.mu.Unlock()
}

// Config returns the effective configuration, including any pending change.
func (l *Listener) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != nil {
		return *l.pending
	}
	return l.cfg
}

// settings applies a pending reconfiguration and returns the settings for one
// listening phase.
func (l *Listener) settings() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != nil {
		l.cfg = *l.pending
		l.pending = nil
		l.seg = NewSegmenter(l.cfg.Segmenter)
		slog.Info("listen: applied new segmentation settings",
			"window", l.cfg.Segmenter.WindowSize,
			"trigger_ratio", l.cfg.Segmenter.TriggerRatio,
			"hangover", l.cfg.Segmenter.HangoverFrames,
			"timeout", l.cfg.Timeout,
		)
	}
	return l.cfg
}

// Listen captures audio until one utterance completes and returns it.
//
// Frames left in the queue from before the call are discarded. The source is
// started on entry and stopped on every return path. A source that fails to
// start yields an error wrapping [audio.ErrDevice]. If ctx is cancelled the
// partial utterance is discarded and ctx.Err() is returned. If the listen
// timeout elapses first, [ErrListenTimeout] is returned.
func (l *Listener) Listen(ctx context.Context) (_ *audio.Utterance, err error) {
	cfg := l.settings()
	q := l.src.Frames()
	if n := q.Drain(); n > 0 {
		slog.Debug("listen: discarded stale frames", "frames", n)
	}
	l.seg.Reset()
	droppedBefore := q.Dropped()

	if err := l.src.Start(ctx); err != nil {
		return nil, fmt.Errorf("listen: start source: %w", err)
	}
	l.metrics.ActiveListens.Add(ctx, 1)
	defer func() {
		l.metrics.ActiveListens.Add(context.WithoutCancel(ctx), -1)
		if dropped := q.Dropped() - droppedBefore; dropped > 0 {
			l.metrics.DroppedFrames.Add(context.WithoutCancel(ctx), int64(dropped))
		}
		if serr := l.src.Stop(); serr != nil {
			slog.Warn("listen: failed to stop source", "err", serr)
		}
		if err != nil {
			l.seg.Reset()
		}
	}()

	var deadline time.Time
	if cfg.Timeout > 0 {
		deadline = time.Now().Add(cfg.Timeout)
	}

	for {
		wait := cfg.PollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, ErrListenTimeout
			}
			wait = min(wait, remaining)
		}

		f, ok, err := q.Pop(ctx, wait)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		speech, cerr := l.classifier.Classify(f.Data)
		if cerr != nil {
			slog.Debug("listen: classify failed, treating frame as silence", "err", cerr)
			speech = false
		}

		if utt, done := l.seg.Push(f, speech); done {
			l.metrics.RecordUtterance(ctx, utt.Duration().Seconds())
			slog.Debug("listen: utterance complete",
				"frames", utt.Len(),
				"duration", utt.Duration(),
			)
			return utt, nil
		}
	}
}
