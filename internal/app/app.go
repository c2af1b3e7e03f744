// Package app assembles a running kiosk from its providers.
//
// [New] turns a [Providers] bundle into a listener, breaker-guarded
// recognizer and dialogue client, and a dialogue driver, plus the HTTP
// handler for probes, /status and /metrics. [App.Run] drives the
// conversation until the context ends or the capture device fails;
// [App.Shutdown] releases everything in creation order.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicekiosk/internal/config"
	"github.com/MrWong99/voicekiosk/internal/dialogue"
	"github.com/MrWong99/voicekiosk/internal/health"
	"github.com/MrWong99/voicekiosk/internal/listen"
	"github.com/MrWong99/voicekiosk/internal/observe"
	"github.com/MrWong99/voicekiosk/internal/resilience"
	"github.com/MrWong99/voicekiosk/pkg/audio"
	dialogueapi "github.com/MrWong99/voicekiosk/pkg/provider/dialogue"
	"github.com/MrWong99/voicekiosk/pkg/provider/playback"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
	"github.com/MrWong99/voicekiosk/pkg/provider/vad"
)

// serverShutdownTimeout bounds the graceful stop of the HTTP server.
const serverShutdownTimeout = 5 * time.Second

// NamedRecognizer is a fallback recognizer together with the label used in
// logs and breaker metrics.
type NamedRecognizer struct {
	Name       string
	Recognizer stt.Recognizer
}

// Providers holds one interface value per provider slot. All slots except
// STTFallbacks are required. Populated by main.go via the config registry.
type Providers struct {
	Audio        audio.Backend
	VAD          vad.Engine
	STT          stt.Recognizer
	STTFallbacks []NamedRecognizer
	Dialogue     dialogueapi.Client
	Playback     playback.Sink
}

// Close releases every provider that holds resources, the audio backend
// last. Unset slots are skipped. It is for callers that built providers but
// never got a running [App]; after a successful [New], use [App.Shutdown].
func (p *Providers) Close() error {
	var errs []error
	release := func(name string, v any) {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("app: close %s: %w", name, err))
			}
		}
	}
	for _, fb := range p.STTFallbacks {
		release(fb.Name, fb.Recognizer)
	}
	release("stt", p.STT)
	release("audio", p.Audio)
	return errors.Join(errs...)
}

// Status is the JSON document served on /status.
type Status struct {
	dialogue.Session
	DialogueBreaker string   `json:"dialogue_breaker"`
	Recognizers     []string `json:"recognizers"`
}

// App owns all subsystem lifetimes and runs the kiosk conversation.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	level     *slog.LevelVar

	classifier vad.Classifier
	listener   *listen.Listener
	recognizer *resilience.Recognizer
	client     *resilience.DialogueClient
	driver     *dialogue.Driver
	handler    http.Handler

	driverOpts []dialogue.Option

	resources []resource
	stopOnce  sync.Once
}

// resource is something Shutdown must release.
type resource struct {
	name  string
	close func() error
}

// Option configures an [App].
type Option func(*App)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar gives the App control over the process log level so that
// config reloads can change it.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithDriverOptions passes extra options to the dialogue driver.
func WithDriverOptions(opts ...dialogue.Option) Option {
	return func(a *App) { a.driverOpts = append(a.driverOpts, opts...) }
}

// New wires providers according to cfg. On error nothing is started, but
// providers stay open; the caller owns them until New succeeds.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := requireProviders(providers); err != nil {
		return nil, err
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	aggr := config.DefaultAggressiveness
	if cfg.VAD.Aggressiveness != nil {
		aggr = *cfg.VAD.Aggressiveness
	}
	classifier, err := providers.VAD.NewClassifier(vad.Config{
		SampleRate:     cfg.Audio.SampleRate,
		FrameSizeMs:    cfg.Audio.FrameMs,
		Aggressiveness: aggr,
	})
	if err != nil {
		return nil, fmt.Errorf("app: create vad classifier: %w", err)
	}
	a.classifier = classifier
	a.own("vad", classifier.Close)

	a.listener = listen.New(providers.Audio.Source(), classifier, listenConfig(cfg.VAD),
		listen.WithMetrics(a.metrics))

	breaker := resilience.CircuitBreakerConfig{
		MaxFailures:   cfg.Resilience.MaxFailures,
		ResetTimeout:  cfg.Resilience.ResetTimeout,
		OnStateChange: a.recordBreaker,
	}

	a.recognizer = resilience.NewRecognizer(providers.STT, cfg.Providers.STT.Name,
		resilience.FallbackConfig{CircuitBreaker: breaker})
	a.ownIfCloser(cfg.Providers.STT.Name, providers.STT)
	for _, fb := range providers.STTFallbacks {
		a.recognizer.AddFallback(fb.Name, fb.Recognizer)
		a.ownIfCloser(fb.Name, fb.Recognizer)
	}

	a.client = resilience.NewDialogueClient(providers.Dialogue, breaker)

	driverOpts := append([]dialogue.Option{dialogue.WithMetrics(a.metrics)}, a.driverOpts...)
	a.driver = dialogue.NewDriver(dialogue.Config{
		SessionID: cfg.Kiosk.SessionID,
		Language:  cfg.Kiosk.Language,
		Rules: dialogue.Rules{
			Greeting:      cfg.Kiosk.Greeting,
			ThankYouDelay: cfg.Kiosk.ThankYouDelay,
		},
	}, a.listener, a.recognizer, a.client, providers.Playback, driverOpts...)

	checkers := []health.Checker{{Name: "audio", Check: providers.Audio.Check}}
	if p, ok := providers.Dialogue.(health.Pinger); ok {
		checkers = append(checkers, health.PingChecker("dialogue", p))
	}
	mux := http.NewServeMux()
	health.New(checkers, health.WithStatus(func() any { return a.Status() })).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	a.handler = observe.Middleware(a.metrics)(mux)

	// Capture is released after everything that reads from it.
	a.own("audio", providers.Audio.Close)

	slog.Debug("kiosk assembled", "session_id", cfg.Kiosk.SessionID, "recognizers", a.recognizer.Names())
	return a, nil
}

func requireProviders(p *Providers) error {
	if p == nil {
		return errors.New("app: nil providers")
	}
	slots := []struct {
		kind string
		set  bool
	}{
		{"audio", p.Audio != nil},
		{"vad", p.VAD != nil},
		{"stt", p.STT != nil},
		{"dialogue", p.Dialogue != nil},
		{"playback", p.Playback != nil},
	}
	var errs []error
	for _, s := range slots {
		if !s.set {
			errs = append(errs, fmt.Errorf("app: %s provider is required", s.kind))
		}
	}
	return errors.Join(errs...)
}

func (a *App) own(name string, release func() error) {
	a.resources = append(a.resources, resource{name: name, close: release})
}

// ownIfCloser hands v to Shutdown when it holds resources. Remote
// recognizers usually do not.
func (a *App) ownIfCloser(name string, v any) {
	if c, ok := v.(io.Closer); ok {
		a.own(name, c.Close)
	}
}

func (a *App) recordBreaker(name string, _, to resilience.State) {
	a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
}

// listenConfig converts the VAD section into listener settings.
func listenConfig(v config.VADConfig) listen.Config {
	return listen.Config{
		Segmenter: listen.SegmenterConfig{
			WindowSize:     v.WindowSize,
			TriggerRatio:   v.TriggerRatio,
			HangoverFrames: v.HangoverFrames,
		},
		Timeout:      v.ListenTimeout,
		PollInterval: v.PollInterval,
	}
}

// Handler returns the HTTP handler serving health, status and metrics.
func (a *App) Handler() http.Handler { return a.handler }

// Driver returns the dialogue driver.
func (a *App) Driver() *dialogue.Driver { return a.driver }

// Status returns a snapshot of the conversation and breaker state.
func (a *App) Status() Status {
	return Status{
		Session:         a.driver.Session(),
		DialogueBreaker: a.client.State().String(),
		Recognizers:     a.recognizer.Names(),
	}
}

// Run starts the conversation loop and, when a listen address is configured,
// the HTTP server. It blocks until ctx is cancelled or a component fails.
// Cancellation is not an error; a capture device failure is returned wrapped.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.driver.Run(gctx); err != nil {
			return fmt.Errorf("app: dialogue: %w", err)
		}
		return nil
	})

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Reload applies the hot-reloadable parts of a config change. It has the
// signature expected by [config.NewWatcher].
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VADChanged {
		a.listener.Reconfigure(listenConfig(d.NewVAD))
	}
	for _, section := range d.RestartRequired {
		slog.Warn("config change requires restart", "section", section)
	}
}

// Shutdown releases resources in creation order. Only the first call does
// any work. Once ctx is done the remaining resources are left open and the
// context error is returned; close errors are logged and joined.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		for i, r := range a.resources {
			if cerr := ctx.Err(); cerr != nil {
				slog.Warn("shutdown cut short", "left_open", len(a.resources)-i)
				err = errors.Join(err, cerr)
				return
			}
			if cerr := r.close(); cerr != nil {
				slog.Warn("release failed", "resource", r.name, "err", cerr)
				err = errors.Join(err, fmt.Errorf("app: close %s: %w", r.name, cerr))
			}
		}
		slog.Debug("resources released", "count", len(a.resources))
	})
	return err
}
