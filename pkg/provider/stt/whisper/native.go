package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voicekiosk/pkg/audio"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
)

// Compile-time assertion that NativeRecognizer implements stt.Recognizer.
var _ stt.Recognizer = (*NativeRecognizer)(nil)

// NativeRecognizer runs whisper.cpp in-process through its cgo bindings. The
// model is loaded once; every Recognize call creates its own whisper context.
type NativeRecognizer struct {
	model    whisperlib.Model
	language string

	// mu serialises inference. A context is not thread-safe and running
	// several at once on a kiosk only competes for the same CPU cores.
	mu sync.Mutex
}

// NativeOption is a functional option for configuring a NativeRecognizer.
type NativeOption func(*NativeRecognizer)

// WithNativeLanguage sets the fallback language code (e.g., "th"). Defaults
// to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(r *NativeRecognizer) { r.language = lang }
}

// NewNative loads the ggml model at modelPath.
func NewNative(modelPath string, opts ...NativeOption) (*NativeRecognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &NativeRecognizer{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the model.
func (r *NativeRecognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Recognize transcribes utt in-process. ctx is checked before inference
// starts; whisper.cpp itself cannot be interrupted.
func (r *NativeRecognizer) Recognize(ctx context.Context, utt audio.Utterance, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pcm := audio.ResampleMono16(utt.PCM(), utt.SampleRate, modelSampleRate)
	if len(pcm) == 0 {
		return "", fmt.Errorf("whisper: empty utterance: %w", stt.ErrNotRecognized)
	}
	lang := stt.BaseLanguage(language)
	if lang == "" {
		lang = r.language
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	if err := wctx.Process(audio.PCMToFloat32(pcm), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return stt.Clean(strings.Join(parts, " "))
}
