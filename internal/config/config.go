// Package config provides the configuration schema, loader, and provider registry
// for the voicekiosk ordering kiosk.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the kiosk.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto an slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for voicekiosk.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Kiosk      KioskConfig      `yaml:"kiosk"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds the observability endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /healthz, /readyz, /status and
	// /metrics (e.g., ":9090"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// KioskConfig holds the conversation-level settings.
type KioskConfig struct {
	// SessionID identifies this kiosk's conversation on the dialogue service.
	SessionID string `yaml:"session_id"`

	// Language is the BCP-47 tag passed to the recognizer (e.g., "th-TH").
	Language string `yaml:"language"`

	// Greeting is the phrase sent to the dialogue service on GREETING entry.
	Greeting string `yaml:"greeting"`

	// ThankYouDelay is how long THANK_YOU waits before ending the session.
	ThankYouDelay time.Duration `yaml:"thank_you_delay"`
}

// AudioConfig describes the capture and output devices.
type AudioConfig struct {
	// SampleRate is the capture rate in Hz. Default: 48000.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the capture frame duration. WebRTC VAD accepts 10, 20 or 30.
	// Default: 30.
	FrameMs int `yaml:"frame_ms"`

	// QueueSize is the capture hand-off queue capacity in frames.
	QueueSize int `yaml:"queue_size"`

	// InputDevice and OutputDevice select devices by partial name. Empty
	// selects the host default.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`

	// OutputSampleRate is the rate replies are resampled to before playback.
	// Default: 48000.
	OutputSampleRate int `yaml:"output_sample_rate"`
}

// VADConfig holds the classifier and segmentation tuning. Everything except
// Aggressiveness is hot-reloadable and applied at the next listening phase.
type VADConfig struct {
	// Aggressiveness is the detector mode in [0, 3]. Default: 3.
	Aggressiveness *int `yaml:"aggressiveness"`

	// WindowSize is the rolling-window capacity in frames. 0 or unset
	// selects the default of 10.
	WindowSize int `yaml:"window_size"`

	// TriggerRatio is the fraction of speech frames in the window that must be
	// exceeded to begin an utterance, in (0, 1). 0 or unset selects the
	// default of 0.8; the lowest setting is therefore a small positive ratio.
	TriggerRatio float64 `yaml:"trigger_ratio"`

	// HangoverFrames is the number of trailing silent frames absorbed into an
	// utterance. 0 or unset selects the default of 6, so the shortest
	// configurable hangover is 1 frame.
	HangoverFrames int `yaml:"hangover_frames"`

	// ListenTimeout bounds one listening phase. Zero means wait forever.
	ListenTimeout time.Duration `yaml:"listen_timeout"`

	// PollInterval bounds one wait on the capture queue. Default: 1s.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ProvidersConfig declares which implementation to use for each collaborator.
// Each entry selects a named factory registered in the [Registry].
type ProvidersConfig struct {
	VAD      ProviderEntry `yaml:"vad"`
	STT      ProviderEntry `yaml:"stt"`
	Dialogue ProviderEntry `yaml:"dialogue"`
	Playback ProviderEntry `yaml:"playback"`
	Audio    ProviderEntry `yaml:"audio"`

	// STTFallbacks are tried in order when the primary recognizer fails.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "webrtc", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// ResilienceConfig tunes the circuit breakers guarding remote collaborators.
type ResilienceConfig struct {
	// MaxFailures is the number of consecutive failures that opens a breaker.
	// Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker waits before probing again.
	// Default: 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// Option returns the string value of key in e.Options, or "" when absent.
func (e ProviderEntry) Option(key string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Duration returns the duration value of key in e.Options. Strings are
// parsed with [time.ParseDuration]; integers are read as seconds.
func (e ProviderEntry) Duration(key string) (time.Duration, bool) {
	switch v := e.Options[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	case int:
		return time.Duration(v) * time.Second, true
	case float64:
		return time.Duration(v * float64(time.Second)), true
	}
	return 0, false
}

// Int returns the integer value of key in e.Options.
func (e ProviderEntry) Int(key string) (int, bool) {
	switch v := e.Options[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
