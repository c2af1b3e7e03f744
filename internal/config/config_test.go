package config_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voicekiosk/internal/config"
	"github.com/MrWong99/voicekiosk/pkg/audio"
	audiomock "github.com/MrWong99/voicekiosk/pkg/audio/mock"
	"github.com/MrWong99/voicekiosk/pkg/provider/dialogue"
	dialoguemock "github.com/MrWong99/voicekiosk/pkg/provider/dialogue/mock"
	"github.com/MrWong99/voicekiosk/pkg/provider/playback"
	playbackmock "github.com/MrWong99/voicekiosk/pkg/provider/playback/mock"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
	sttmock "github.com/MrWong99/voicekiosk/pkg/provider/stt/mock"
	"github.com/MrWong99/voicekiosk/pkg/provider/vad"
	vadmock "github.com/MrWong99/voicekiosk/pkg/provider/vad/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9191"
  log_level: info

kiosk:
  session_id: kiosk-lobby
  language: th-TH
  greeting: สวัสดี
  thank_you_delay: 3s

audio:
  sample_rate: 48000
  frame_ms: 30
  queue_size: 128
  input_device: USB
  output_sample_rate: 44100

vad:
  aggressiveness: 2
  window_size: 12
  trigger_ratio: 0.75
  hangover_frames: 8
  listen_timeout: 20s
  poll_interval: 500ms

providers:
  vad:
    name: webrtc
  stt:
    name: whisper
    base_url: http://localhost:8080
    options:
      timeout: 15s
  stt_fallbacks:
    - name: openai
      api_key: sk-test
      model: whisper-1
  dialogue:
    name: http
    base_url: http://orders.local:8000
  playback:
    name: http
  audio:
    name: portaudio

resilience:
  max_failures: 3
  reset_timeout: 10s
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── LoadFromReader ───────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":9191" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Kiosk.SessionID != "kiosk-lobby" || cfg.Kiosk.ThankYouDelay != 3*time.Second {
		t.Errorf("kiosk: got %+v", cfg.Kiosk)
	}
	if cfg.Audio.InputDevice != "USB" || cfg.Audio.OutputSampleRate != 44100 {
		t.Errorf("audio: got %+v", cfg.Audio)
	}
	if *cfg.VAD.Aggressiveness != 2 || cfg.VAD.WindowSize != 12 || cfg.VAD.TriggerRatio != 0.75 {
		t.Errorf("vad: got %+v", cfg.VAD)
	}
	if cfg.VAD.ListenTimeout != 20*time.Second || cfg.VAD.PollInterval != 500*time.Millisecond {
		t.Errorf("vad timing: got %s / %s", cfg.VAD.ListenTimeout, cfg.VAD.PollInterval)
	}
	if d, ok := cfg.Providers.STT.Duration("timeout"); !ok || d != 15*time.Second {
		t.Errorf("stt timeout option: got %s, %v", d, ok)
	}
	if len(cfg.Providers.STTFallbacks) != 1 || cfg.Providers.STTFallbacks[0].Model != "whisper-1" {
		t.Errorf("stt_fallbacks: got %+v", cfg.Providers.STTFallbacks)
	}
	if cfg.Providers.Playback.BaseURL != "http://orders.local:8000" {
		t.Errorf("playback base_url should default to the dialogue base_url, got %q", cfg.Providers.Playback.BaseURL)
	}
	if cfg.Resilience.MaxFailures != 3 || cfg.Resilience.ResetTimeout != 10*time.Second {
		t.Errorf("resilience: got %+v", cfg.Resilience)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "")

	if cfg.Kiosk.Greeting != config.DefaultGreeting {
		t.Errorf("greeting: got %q, want default", cfg.Kiosk.Greeting)
	}
	if cfg.VAD.WindowSize != 10 || cfg.VAD.TriggerRatio != 0.8 || cfg.VAD.HangoverFrames != 6 {
		t.Errorf("vad defaults: got %+v", cfg.VAD)
	}
	if *cfg.VAD.Aggressiveness != 3 {
		t.Errorf("aggressiveness default: got %d, want 3", *cfg.VAD.Aggressiveness)
	}
	if cfg.Providers.Dialogue.BaseURL != config.DefaultDialogueURL {
		t.Errorf("dialogue base_url default: got %q", cfg.Providers.Dialogue.BaseURL)
	}
	if cfg.VAD.ListenTimeout != 0 {
		t.Errorf("listen_timeout should default to unbounded, got %s", cfg.VAD.ListenTimeout)
	}
}

func TestLoadFromReader_ExplicitZeroAggressiveness(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "vad:\n  aggressiveness: 0\n")
	if *cfg.VAD.Aggressiveness != 0 {
		t.Errorf("aggressiveness: got %d, want 0", *cfg.VAD.Aggressiveness)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := mustLoad(t, "")

	if cfg.Server != def.Server || cfg.Kiosk != def.Kiosk || cfg.Audio != def.Audio || cfg.Resilience != def.Resilience {
		t.Errorf("example diverges from the defaults it documents:\n got %+v %+v %+v %+v\nwant %+v %+v %+v %+v",
			cfg.Server, cfg.Kiosk, cfg.Audio, cfg.Resilience, def.Server, def.Kiosk, def.Audio, def.Resilience)
	}
	v, dv := cfg.VAD, def.VAD
	if *v.Aggressiveness != *dv.Aggressiveness || v.WindowSize != dv.WindowSize || v.TriggerRatio != dv.TriggerRatio ||
		v.HangoverFrames != dv.HangoverFrames || v.ListenTimeout != dv.ListenTimeout || v.PollInterval != dv.PollInterval {
		t.Errorf("example vad = %+v, want defaults %+v", v, dv)
	}
	if len(cfg.Providers.STTFallbacks) != 1 || cfg.Providers.STTFallbacks[0].Name != "openai" {
		t.Errorf("stt_fallbacks = %+v, want one openai entry", cfg.Providers.STTFallbacks)
	}
}

func TestLoadFromReader_ZeroTuningSelectsDefaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "vad:\n  window_size: 0\n  trigger_ratio: 0\n  hangover_frames: 0\n")
	v := cfg.VAD
	if v.WindowSize != config.DefaultWindowSize || v.TriggerRatio != config.DefaultTriggerRatio || v.HangoverFrames != config.DefaultHangoverFrames {
		t.Errorf("explicit zeros = %d/%.2f/%d, want the defaults", v.WindowSize, v.TriggerRatio, v.HangoverFrames)
	}

	cfg = mustLoad(t, "vad:\n  trigger_ratio: 0.05\n  hangover_frames: 1\n")
	if cfg.VAD.TriggerRatio != 0.05 || cfg.VAD.HangoverFrames != 1 {
		t.Errorf("smallest settings = %.2f/%d, want 0.05/1", cfg.VAD.TriggerRatio, cfg.VAD.HangoverFrames)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("kiosk:\n  greting: hi\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/voicekiosk.yaml")
	if err == nil || !strings.Contains(err.Error(), "/nonexistent/voicekiosk.yaml") {
		t.Fatalf("expected error naming the path, got %v", err)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}

	checks := map[string]func() error{
		"vad":      func() error { _, err := reg.CreateVAD(entry); return err },
		"stt":      func() error { _, err := reg.CreateSTT(entry); return err },
		"dialogue": func() error { _, err := reg.CreateDialogue(entry); return err },
		"playback": func() error { _, err := reg.CreatePlayback(entry, &audiomock.Player{}); return err },
		"audio":    func() error { _, err := reg.CreateAudio(entry); return err },
	}
	for kind, create := range checks {
		t.Run(kind, func(t *testing.T) {
			if err := create(); !errors.Is(err, config.ErrProviderNotRegistered) {
				t.Errorf("got %v, want ErrProviderNotRegistered", err)
			}
		})
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	reg.RegisterVAD("mock", func(e config.ProviderEntry) (vad.Engine, error) {
		gotEntry = e
		return &vadmock.Engine{}, nil
	})
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Recognizer, error) {
		return &sttmock.Recognizer{}, nil
	})
	reg.RegisterDialogue("mock", func(config.ProviderEntry) (dialogue.Client, error) {
		return &dialoguemock.Client{}, nil
	})
	var gotPlayer audio.Player
	reg.RegisterPlayback("mock", func(_ config.ProviderEntry, p audio.Player) (playback.Sink, error) {
		gotPlayer = p
		return &playbackmock.Sink{}, nil
	})
	reg.RegisterAudio("mock", func(config.ProviderEntry) (audio.Backend, error) {
		return &audiomock.Backend{}, nil
	})

	entry := config.ProviderEntry{Name: "mock", Options: map[string]any{"threshold": 450}}
	if _, err := reg.CreateVAD(entry); err != nil {
		t.Fatalf("CreateVAD: %v", err)
	}
	if n, ok := gotEntry.Int("threshold"); !ok || n != 450 {
		t.Errorf("factory received options %v", gotEntry.Options)
	}
	if _, err := reg.CreateSTT(entry); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := reg.CreateDialogue(entry); err != nil {
		t.Errorf("CreateDialogue: %v", err)
	}
	player := &audiomock.Player{}
	if _, err := reg.CreatePlayback(entry, player); err != nil {
		t.Errorf("CreatePlayback: %v", err)
	}
	if gotPlayer != player {
		t.Error("playback factory did not receive the player")
	}
	b, err := reg.CreateAudio(entry)
	if err != nil {
		t.Fatalf("CreateAudio: %v", err)
	}
	if err := b.Check(context.Background()); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantErr := errors.New("model file missing")
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Recognizer, error) {
		return nil, wantErr
	})

	_, err := reg.CreateSTT(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}

func TestRegistry_FactoryErrorDropsTypedNil(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSTT("half-built", func(config.ProviderEntry) (stt.Recognizer, error) {
		var r *sttmock.Recognizer
		return r, errors.New("model file missing")
	})

	rec, err := reg.CreateSTT(config.ProviderEntry{Name: "half-built"})
	if err == nil {
		t.Fatal("expected factory error")
	}
	if rec != nil {
		t.Errorf("CreateSTT returned %#v alongside an error, want nil interface", rec)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	for _, name := range []string{"whisper", "openai", "whisper-native"} {
		reg.RegisterSTT(name, func(config.ProviderEntry) (stt.Recognizer, error) { return nil, nil })
	}

	want := []string{"openai", "whisper", "whisper-native"}
	if got := reg.Names("stt"); !slices.Equal(got, want) {
		t.Errorf("Names(stt) = %v, want %v", got, want)
	}
	if got := reg.Names("vad"); len(got) != 0 {
		t.Errorf("Names(vad) = %v, want empty", got)
	}
}

// ── ProviderEntry options ────────────────────────────────────────────────────

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{
		"model_path": "/models/ggml-small.bin",
		"timeout":    "2m",
		"retries":    3,
		"seconds":    1.5,
		"bogus":      "soon",
	}}

	if got := e.Option("model_path"); got != "/models/ggml-small.bin" {
		t.Errorf("Option(model_path) = %q", got)
	}
	if got := e.Option("retries"); got != "" {
		t.Errorf("Option on non-string = %q, want empty", got)
	}
	if d, ok := e.Duration("timeout"); !ok || d != 2*time.Minute {
		t.Errorf("Duration(timeout) = %s, %v", d, ok)
	}
	if d, ok := e.Duration("retries"); !ok || d != 3*time.Second {
		t.Errorf("Duration(retries) = %s, %v", d, ok)
	}
	if d, ok := e.Duration("seconds"); !ok || d != 1500*time.Millisecond {
		t.Errorf("Duration(seconds) = %s, %v", d, ok)
	}
	if _, ok := e.Duration("bogus"); ok {
		t.Error("Duration(bogus) should not parse")
	}
	if n, ok := e.Int("retries"); !ok || n != 3 {
		t.Errorf("Int(retries) = %d, %v", n, ok)
	}
	if _, ok := e.Int("missing"); ok {
		t.Error("Int(missing) should report absent")
	}
}
