package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// stamp identifies one version of the config file on disk.
type stamp struct {
	mod  time.Time
	size int64
	sum  [sha256.Size]byte
}

// sameFile reports whether the file metadata is unchanged; content is only
// hashed when it is not.
func (s stamp) sameFile(fi os.FileInfo) bool {
	return s.mod.Equal(fi.ModTime()) && s.size == fi.Size()
}

// Watcher polls the kiosk config file and hands every new valid version to a
// callback. Edits that fail to parse or validate are logged and skipped, so
// [Watcher.Current] always holds a usable configuration.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	seen    stamp
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultWatchInterval]. Non-positive values are
// ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path once and returns a watcher holding it. Polling starts
// with [Watcher.Run]. onChange may be nil; when set it receives the previous
// and the new config, and [Diff] tells which settings can be applied live.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, st
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is cancelled and then returns nil. Errors on
// individual polls are logged, never returned.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := w.Check(); err != nil {
				slog.Warn("config reload skipped", "path", w.path, "err", err)
			}
		}
	}
}

// Check performs a single poll. It reports whether a new configuration was
// adopted; in that case onChange has already returned. An error means the file
// could not be read or holds an invalid config, and the current config stays.
func (w *Watcher) Check() (bool, error) {
	fi, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	unchanged := w.seen.sameFile(fi)
	w.mu.Unlock()
	if unchanged {
		return false, nil
	}

	cfg, st, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if st.sum == w.seen.sum {
		w.seen = st
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.seen = cfg, st
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true, nil
}

func (w *Watcher) read() (*Config, stamp, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, stamp{}, err
	}
	fi, err := os.Stat(w.path)
	if err != nil {
		return nil, stamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, stamp{}, err
	}
	return cfg, stamp{mod: fi.ModTime(), size: fi.Size(), sum: sha256.Sum256(data)}, nil
}
