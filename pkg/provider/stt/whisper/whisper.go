// Package whisper provides whisper.cpp-backed speech recognizers.
//
// [Recognizer] talks to a running whisper-server binary, which exposes a REST
// API at POST /inference. Each utterance is resampled to 16 kHz, wrapped in a
// WAV container, and uploaded as multipart/form-data. [NativeRecognizer] links
// whisper.cpp directly through its Go bindings and needs no server.
//
//	r, err := whisper.New("http://localhost:8080", whisper.WithLanguage("th"))
//	text, err := r.Recognize(ctx, utt, "th-TH")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/voicekiosk/pkg/audio"
	"github.com/MrWong99/voicekiosk/pkg/audio/wavenc"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
)

const (
	// modelSampleRate is the only input rate whisper models accept.
	modelSampleRate = 16000

	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
)

var _ stt.Recognizer = (*Recognizer)(nil)

// Option configures a [Recognizer].
type Option func(*Recognizer)

// WithModel names the model the server should use ("base", "small", ...).
// Empty, the default, leaves the choice to the server.
func WithModel(model string) Option {
	return func(r *Recognizer) { r.model = model }
}

// WithLanguage sets the language sent when Recognize gets an empty tag.
// Default "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Recognizer) { r.client = c }
}

// Recognizer transcribes utterances on a whisper.cpp server.
type Recognizer struct {
	endpoint string
	model    string
	language string
	client   *http.Client
}

// New returns a recognizer for the server at serverURL, for example
// "http://localhost:8080".
func New(serverURL string, opts ...Option) (*Recognizer, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	r := &Recognizer{
		endpoint: strings.TrimRight(serverURL, "/") + "/inference",
		language: defaultLanguage,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Recognize posts utt to /inference. Silence or an empty transcript yields
// [stt.ErrNotRecognized].
func (r *Recognizer) Recognize(ctx context.Context, utt audio.Utterance, language string) (string, error) {
	pcm := audio.ResampleMono16(utt.PCM(), utt.SampleRate, modelSampleRate)
	if len(pcm) == 0 {
		return "", fmt.Errorf("whisper: empty utterance: %w", stt.ErrNotRecognized)
	}
	wav, err := wavenc.Encode(pcm, audio.Format{SampleRate: modelSampleRate, Channels: 1})
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	lang := stt.BaseLanguage(language)
	if lang == "" {
		lang = r.language
	}

	body, contentType, err := inferenceForm(wav, map[string]string{
		"language":        lang,
		"model":           r.model,
		"response_format": "json",
	})
	if err != nil {
		return "", fmt.Errorf("whisper: build form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return stt.Clean(out.Text)
}

// inferenceForm encodes wav as the "file" part followed by the non-empty
// fields, in sorted order.
func inferenceForm(wav []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", err
	}
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if v := fields[k]; v != "" {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
