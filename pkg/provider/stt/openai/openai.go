// Package openai provides a speech recognizer backed by the OpenAI audio
// transcription API (or any server implementing the same endpoint).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voicekiosk/pkg/audio"
	"github.com/MrWong99/voicekiosk/pkg/audio/wavenc"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
)

// DefaultModel is the default transcription model.
const DefaultModel = oai.AudioModelWhisper1

// uploadSampleRate keeps uploads small; transcription models resample to
// 16 kHz internally anyway.
const uploadSampleRate = 16000

// Ensure Recognizer implements the stt.Recognizer interface.
var _ stt.Recognizer = (*Recognizer)(nil)

// Recognizer implements stt.Recognizer using the OpenAI API.
type Recognizer struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the recognizer.
type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Recognizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries failed requests. The
// kiosk falls back to listening on failure, so the default is 0.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a Recognizer. If model is empty, DefaultModel is used. An
// empty apiKey leaves the SDK default in place, which reads OPENAI_API_KEY.
func New(apiKey string, model string, opts ...Option) (*Recognizer, error) {
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithMaxRetries(cfg.maxRetries)}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Recognizer{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Recognize implements stt.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, utt audio.Utterance, language string) (string, error) {
	pcm := audio.ResampleMono16(utt.PCM(), utt.SampleRate, uploadSampleRate)
	if len(pcm) == 0 {
		return "", fmt.Errorf("openai stt: empty utterance: %w", stt.ErrNotRecognized)
	}
	wav, err := wavenc.Encode(pcm, audio.Format{SampleRate: uploadSampleRate, Channels: 1})
	if err != nil {
		return "", fmt.Errorf("openai stt: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		Model: r.model,
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", wavenc.ContentType),
	}
	if lang := stt.BaseLanguage(language); lang != "" {
		params.Language = oai.String(lang)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return stt.Clean(resp.Text)
}
