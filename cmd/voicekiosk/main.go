// Command voicekiosk is the entry point for the voice ordering kiosk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MrWong99/voicekiosk/internal/app"
	"github.com/MrWong99/voicekiosk/internal/config"
	"github.com/MrWong99/voicekiosk/internal/observe"
	"github.com/MrWong99/voicekiosk/pkg/audio"
	"github.com/MrWong99/voicekiosk/pkg/audio/portaudio"
	"github.com/MrWong99/voicekiosk/pkg/provider/dialogue"
	"github.com/MrWong99/voicekiosk/pkg/provider/dialogue/httpapi"
	"github.com/MrWong99/voicekiosk/pkg/provider/playback"
	"github.com/MrWong99/voicekiosk/pkg/provider/playback/httpaudio"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
	sttopenai "github.com/MrWong99/voicekiosk/pkg/provider/stt/openai"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt/whisper"
	"github.com/MrWong99/voicekiosk/pkg/provider/vad"
	"github.com/MrWong99/voicekiosk/pkg/provider/vad/energy"
	"github.com/MrWong99/voicekiosk/pkg/provider/vad/webrtc"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "voicekiosk.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "print the available audio devices and exit")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "voicekiosk: no config at %q (see configs/example.yaml)\n", *configPath)
		return 1
	case err != nil:
		fmt.Fprintf(os.Stderr, "voicekiosk: %v\n", err)
		return 1
	}

	level := installLogger(cfg.Server.LogLevel)
	slog.Info("voicekiosk starting",
		"version", version,
		"config", *configPath,
		"session", cfg.Kiosk.SessionID,
		"level", level.Level(),
	)

	flushTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "voicekiosk",
		ServiceVersion: version,
		InstanceID:     cfg.Kiosk.SessionID,
	})
	if err != nil {
		slog.Error("telemetry setup failed", "err", err)
		return 1
	}
	defer withTimeout(5*time.Second, func(ctx context.Context) {
		if err := flushTelemetry(ctx); err != nil {
			slog.Warn("telemetry flush failed", "err", err)
		}
	})

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("provider setup failed", "err", err)
		return 1
	}

	kiosk, err := app.New(cfg, providers, app.WithLevelVar(level))
	if err != nil {
		slog.Error("kiosk setup failed", "err", err)
		if cerr := providers.Close(); cerr != nil {
			slog.Warn("releasing providers", "err", cerr)
		}
		return 1
	}
	writeSummary(os.Stdout, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if w, err := config.NewWatcher(*configPath, kiosk.Reload); err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		go func() { _ = w.Run(ctx) }()
	}

	code := 0
	if err := kiosk.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("kiosk stopped with error", "err", err)
		code = 1
	}

	withTimeout(15*time.Second, func(ctx context.Context) {
		if err := kiosk.Shutdown(ctx); err != nil {
			slog.Error("shutdown incomplete", "err", err)
			code = 1
		}
	})
	slog.Info("voicekiosk stopped", "exit_code", code)
	return code
}

// installLogger makes a text handler at lvl the default logger and returns
// the level variable that config reloads adjust.
func installLogger(lvl config.LogLevel) *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(lvl.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: v})))
	return v
}

func withTimeout(d time.Duration, fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	fn(ctx)
}

// registerBuiltinProviders adds a factory for every implementation compiled
// into the binary. cfg supplies the audio format shared by capture and
// playback, which provider entries do not carry.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	reg.RegisterVAD("webrtc", func(config.ProviderEntry) (vad.Engine, error) {
		return webrtc.New(), nil
	})

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if n, ok := entry.Int("threshold"); ok {
			opts = append(opts, energy.WithThreshold(float64(n)))
		}
		return energy.New(opts...), nil
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if d, ok := entry.Duration("timeout"); ok {
			opts = append(opts, whisper.WithHTTPClient(&http.Client{Timeout: d}))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.Option("model_path")
		}
		var opts []whisper.NativeOption
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if d, ok := entry.Duration("timeout"); ok {
			opts = append(opts, sttopenai.WithTimeout(d))
		}
		if n, ok := entry.Int("max_retries"); ok {
			opts = append(opts, sttopenai.WithMaxRetries(n))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterDialogue("http", func(entry config.ProviderEntry) (dialogue.Client, error) {
		var opts []httpapi.Option
		if d, ok := entry.Duration("timeout"); ok {
			opts = append(opts, httpapi.WithTimeout(d))
		}
		return httpapi.New(entry.BaseURL, opts...), nil
	})

	reg.RegisterPlayback("http", func(entry config.ProviderEntry, player audio.Player) (playback.Sink, error) {
		opts := []httpaudio.Option{httpaudio.WithOutputRate(cfg.Audio.OutputSampleRate)}
		if d, ok := entry.Duration("timeout"); ok {
			opts = append(opts, httpaudio.WithHTTPClient(&http.Client{Timeout: d}))
		}
		return httpaudio.New(entry.BaseURL, player, opts...), nil
	})

	reg.RegisterAudio("portaudio", func(config.ProviderEntry) (audio.Backend, error) {
		return portaudio.NewBackend(
			portaudio.CaptureConfig{
				SampleRate: cfg.Audio.SampleRate,
				FrameMs:    cfg.Audio.FrameMs,
				QueueSize:  cfg.Audio.QueueSize,
				Device:     cfg.Audio.InputDevice,
			},
			portaudio.PlayerConfig{Device: cfg.Audio.OutputDevice},
		)
	})

	for _, kind := range []string{"vad", "stt", "dialogue", "playback", "audio"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders creates the providers cfg selects. If any step fails, the
// ones already created are closed.
func buildProviders(cfg *config.Config, reg *config.Registry) (_ *app.Providers, err error) {
	ps := &app.Providers{}
	defer func() {
		if err != nil {
			_ = ps.Close()
		}
	}()

	ps.Audio, err = reg.CreateAudio(cfg.Providers.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio provider %q: %w", cfg.Providers.Audio.Name, err)
	}
	logCreated("audio", cfg.Providers.Audio)

	ps.VAD, err = reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", cfg.Providers.VAD.Name, err)
	}
	logCreated("vad", cfg.Providers.VAD)

	ps.STT, err = reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	logCreated("stt", cfg.Providers.STT)

	for i, entry := range cfg.Providers.STTFallbacks {
		rec, ferr := reg.CreateSTT(entry)
		if errors.Is(ferr, config.ErrProviderNotRegistered) {
			slog.Warn("skipping unknown stt fallback", "index", i, "name", entry.Name, "available", reg.Names("stt"))
			continue
		}
		if ferr != nil {
			return nil, fmt.Errorf("create stt fallback %d %q: %w", i, entry.Name, ferr)
		}
		ps.STTFallbacks = append(ps.STTFallbacks, app.NamedRecognizer{Name: entry.Name, Recognizer: rec})
		logCreated("stt_fallback", entry)
	}

	ps.Dialogue, err = reg.CreateDialogue(cfg.Providers.Dialogue)
	if err != nil {
		return nil, fmt.Errorf("create dialogue provider %q: %w", cfg.Providers.Dialogue.Name, err)
	}
	logCreated("dialogue", cfg.Providers.Dialogue)

	ps.Playback, err = reg.CreatePlayback(cfg.Providers.Playback, ps.Audio.Player())
	if err != nil {
		return nil, fmt.Errorf("create playback provider %q: %w", cfg.Providers.Playback.Name, err)
	}
	logCreated("playback", cfg.Providers.Playback)

	return ps, nil
}

func logCreated(kind string, entry config.ProviderEntry) {
	slog.Info("provider created", "kind", kind, "name", entry.Name, "base_url", entry.BaseURL)
}

// writeSummary prints the wiring chosen from cfg as an aligned table.
func writeSummary(out io.Writer, cfg *config.Config) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	row := func(k, v string) {
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", k, v)
	}
	fmt.Fprintln(tw, "voicekiosk "+version)
	row("session", cfg.Kiosk.SessionID)
	row("language", cfg.Kiosk.Language)
	row("audio", fmt.Sprintf("%s %d Hz, %d ms frames", cfg.Providers.Audio.Name, cfg.Audio.SampleRate, cfg.Audio.FrameMs))
	row("vad", cfg.Providers.VAD.Name)
	row("stt", sttChain(cfg))
	row("dialogue", cfg.Providers.Dialogue.BaseURL)
	row("playback", cfg.Providers.Playback.Name)
	row("http", cfg.Server.ListenAddr)
	_ = tw.Flush()
}

// sttChain renders the recognizer order, e.g. "whisper(base.en) > openai".
func sttChain(cfg *config.Config) string {
	entries := append([]config.ProviderEntry{cfg.Providers.STT}, cfg.Providers.STTFallbacks...)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Model != "" {
			names = append(names, e.Name+"("+e.Model+")")
		} else {
			names = append(names, e.Name)
		}
	}
	return strings.Join(names, " > ")
}

// printDevices lists PortAudio devices for picking audio.input_device and
// audio.output_device.
func printDevices() int {
	terminate, err := portaudio.Init()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicekiosk: %v\n", err)
		return 1
	}
	defer func() { _ = terminate() }()

	devices, err := portaudio.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicekiosk: %v\n", err)
		return 1
	}
	for i, d := range devices {
		fmt.Printf("%2d  %-40s  %-12s in=%d out=%d  %.0fHz\n",
			i, d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}
	return 0
}
