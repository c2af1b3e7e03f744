package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":9090"
	DefaultSessionID        = "kiosk-session-001"
	DefaultLanguage         = "th-TH"
	DefaultGreeting         = "สวัสดี"
	DefaultThankYouDelay    = 2 * time.Second
	DefaultSampleRate       = 48000
	DefaultFrameMs          = 30
	DefaultQueueSize        = 256
	DefaultAggressiveness   = 3
	DefaultWindowSize       = 10
	DefaultTriggerRatio     = 0.8
	DefaultHangoverFrames   = 6
	DefaultPollInterval     = time.Second
	DefaultDialogueURL      = "http://localhost:8000"
	DefaultMaxFailures      = 5
	DefaultResetTimeout     = 30 * time.Second
	DefaultVADProvider      = "webrtc"
	DefaultSTTProvider      = "whisper"
	DefaultDialogueProvider = "http"
	DefaultPlaybackProvider = "http"
	DefaultAudioProvider    = "portaudio"
)

// KnownProviders names the implementations compiled into cmd/voicekiosk, per
// provider kind. Other names are accepted with a warning so that programs
// embedding this package can register their own.
var KnownProviders = map[string][]string{
	"vad":      {"webrtc", "energy"},
	"stt":      {"whisper", "whisper-native", "openai"},
	"dialogue": {"http"},
	"playback": {"http"},
	"audio":    {"portaudio"},
}

// Load reads the file at path and returns it decoded, defaulted and
// validated. Errors name the path; a missing file wraps [os.ErrNotExist].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader is [Load] for an already opened document. Unknown keys are
// rejected and an empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with the package defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Kiosk.SessionID == "" {
		cfg.Kiosk.SessionID = DefaultSessionID
	}
	if cfg.Kiosk.Language == "" {
		cfg.Kiosk.Language = DefaultLanguage
	}
	if cfg.Kiosk.Greeting == "" {
		cfg.Kiosk.Greeting = DefaultGreeting
	}
	if cfg.Kiosk.ThankYouDelay == 0 {
		cfg.Kiosk.ThankYouDelay = DefaultThankYouDelay
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.FrameMs == 0 {
		cfg.Audio.FrameMs = DefaultFrameMs
	}
	if cfg.Audio.QueueSize == 0 {
		cfg.Audio.QueueSize = DefaultQueueSize
	}
	if cfg.Audio.OutputSampleRate == 0 {
		cfg.Audio.OutputSampleRate = DefaultSampleRate
	}

	if cfg.VAD.Aggressiveness == nil {
		a := DefaultAggressiveness
		cfg.VAD.Aggressiveness = &a
	}
	if cfg.VAD.WindowSize == 0 {
		cfg.VAD.WindowSize = DefaultWindowSize
	}
	if cfg.VAD.TriggerRatio == 0 {
		cfg.VAD.TriggerRatio = DefaultTriggerRatio
	}
	if cfg.VAD.HangoverFrames == 0 {
		cfg.VAD.HangoverFrames = DefaultHangoverFrames
	}
	if cfg.VAD.PollInterval == 0 {
		cfg.VAD.PollInterval = DefaultPollInterval
	}

	if cfg.Providers.VAD.Name == "" {
		cfg.Providers.VAD.Name = DefaultVADProvider
	}
	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = DefaultSTTProvider
	}
	if cfg.Providers.Dialogue.Name == "" {
		cfg.Providers.Dialogue.Name = DefaultDialogueProvider
	}
	if cfg.Providers.Dialogue.BaseURL == "" {
		cfg.Providers.Dialogue.BaseURL = DefaultDialogueURL
	}
	if cfg.Providers.Playback.Name == "" {
		cfg.Providers.Playback.Name = DefaultPlaybackProvider
	}
	if cfg.Providers.Playback.BaseURL == "" {
		cfg.Providers.Playback.BaseURL = cfg.Providers.Dialogue.BaseURL
	}
	if cfg.Providers.Audio.Name == "" {
		cfg.Providers.Audio.Name = DefaultAudioProvider
	}

	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultResetTimeout
	}
}

// problems accumulates validation failures keyed by their YAML path.
type problems []error

func (p *problems) addf(field, format string, args ...any) {
	*p = append(*p, fmt.Errorf(field+" "+format, args...))
}

// Validate reports every invalid field of cfg in one joined error. Unknown
// provider names are only logged.
func Validate(cfg *Config) error {
	var p problems

	if lvl := cfg.Server.LogLevel; lvl != "" && !lvl.IsValid() {
		p.addf("server.log_level", "%q is not one of debug, info, warn, error", lvl)
	}
	if cfg.Kiosk.ThankYouDelay < 0 {
		p.addf("kiosk.thank_you_delay", "%s is negative", cfg.Kiosk.ThankYouDelay)
	}

	a := cfg.Audio
	if a.SampleRate < 0 {
		p.addf("audio.sample_rate", "%d is negative", a.SampleRate)
	}
	if a.FrameMs != 0 && a.FrameMs != 10 && a.FrameMs != 20 && a.FrameMs != 30 {
		p.addf("audio.frame_ms", "%d is not 10, 20 or 30", a.FrameMs)
	}
	if a.QueueSize < 0 {
		p.addf("audio.queue_size", "%d is negative", a.QueueSize)
	}
	if a.OutputSampleRate < 0 {
		p.addf("audio.output_sample_rate", "%d is negative", a.OutputSampleRate)
	}

	v := cfg.VAD
	if v.Aggressiveness != nil && (*v.Aggressiveness < 0 || *v.Aggressiveness > 3) {
		p.addf("vad.aggressiveness", "%d is outside 0..3", *v.Aggressiveness)
	}
	if v.WindowSize < 0 {
		p.addf("vad.window_size", "%d is negative", v.WindowSize)
	}
	if v.TriggerRatio < 0 || v.TriggerRatio >= 1 {
		p.addf("vad.trigger_ratio", "%.2f must lie in (0, 1)", v.TriggerRatio)
	}
	if v.HangoverFrames < 0 {
		p.addf("vad.hangover_frames", "%d is negative", v.HangoverFrames)
	}
	if v.ListenTimeout < 0 {
		p.addf("vad.listen_timeout", "%s is negative", v.ListenTimeout)
	}
	if v.PollInterval < 0 {
		p.addf("vad.poll_interval", "%s is negative", v.PollInterval)
	}

	pr := cfg.Providers
	warnUnknown("vad", pr.VAD.Name)
	warnUnknown("stt", pr.STT.Name)
	warnUnknown("dialogue", pr.Dialogue.Name)
	warnUnknown("playback", pr.Playback.Name)
	warnUnknown("audio", pr.Audio.Name)
	checkSTT(&p, "providers.stt", pr.STT)
	for i, fb := range pr.STTFallbacks {
		field := fmt.Sprintf("providers.stt_fallbacks[%d]", i)
		if fb.Name == "" {
			p.addf(field+".name", "is required")
			continue
		}
		warnUnknown("stt", fb.Name)
		checkSTT(&p, field, fb)
	}

	if cfg.Resilience.MaxFailures < 0 {
		p.addf("resilience.max_failures", "%d is negative", cfg.Resilience.MaxFailures)
	}
	if cfg.Resilience.ResetTimeout < 0 {
		p.addf("resilience.reset_timeout", "%s is negative", cfg.Resilience.ResetTimeout)
	}
	return errors.Join(p...)
}

// checkSTT applies the per-implementation requirements of a recognizer
// entry, for the primary and every fallback alike.
func checkSTT(p *problems, field string, e ProviderEntry) {
	switch e.Name {
	case "openai":
		if e.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
			slog.Warn("no OpenAI api key configured, requests will be rejected", "entry", field)
		}
	case "whisper-native":
		if e.Model == "" && e.Option("model_path") == "" {
			p.addf(field, "whisper-native requires model (path to a ggml model file)")
		}
	}
}

func warnUnknown(kind, name string) {
	known := KnownProviders[kind]
	if name == "" || known == nil || slices.Contains(known, name) {
		return
	}
	slog.Warn("provider name not built in", "kind", kind, "name", name, "built_in", known)
}
