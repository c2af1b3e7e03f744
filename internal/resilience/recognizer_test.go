package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/voicekiosk/pkg/audio"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
	sttmock "github.com/MrWong99/voicekiosk/pkg/provider/stt/mock"
)

var testUtterance = audio.Utterance{
	Frames:     []audio.AudioFrame{{Data: make([]byte, 960), SampleRate: 16000, Channels: 1}},
	SampleRate: 16000,
}

func TestRecognizer_PrimarySuccess(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Recognizer{Text: "กาแฟเย็น"}
	secondary := &sttmock.Recognizer{Text: "unused"}

	r := NewRecognizer(primary, "whisper", FallbackConfig{})
	r.AddFallback("openai", secondary)

	text, err := r.Recognize(context.Background(), testUtterance, "th-TH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "กาแฟเย็น" {
		t.Errorf("text = %q", text)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.CallCount())
	}
	if primary.RecognizeCalls[0].Language != "th-TH" {
		t.Errorf("language = %q", primary.RecognizeCalls[0].Language)
	}
}

func TestRecognizer_Failover(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Recognizer{Err: errors.New("whisper: connection refused")}
	secondary := &sttmock.Recognizer{Text: "ชาไทย"}

	r := NewRecognizer(primary, "whisper", FallbackConfig{})
	r.AddFallback("openai", secondary)

	text, err := r.Recognize(context.Background(), testUtterance, "th")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ชาไทย" {
		t.Errorf("text = %q, want fallback transcript", text)
	}
}

func TestRecognizer_NotRecognizedDoesNotFailOver(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Recognizer{Err: fmt.Errorf("whisper: %w", stt.ErrNotRecognized)}
	secondary := &sttmock.Recognizer{Text: "should not run"}

	r := NewRecognizer(primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	r.AddFallback("openai", secondary)

	for range 3 {
		_, err := r.Recognize(context.Background(), testUtterance, "th")
		if !errors.Is(err, stt.ErrNotRecognized) {
			t.Fatalf("err = %v, want ErrNotRecognized", err)
		}
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.CallCount())
	}
	if primary.CallCount() != 3 {
		t.Errorf("primary called %d times, want 3 (breaker must stay closed)", primary.CallCount())
	}
}

func TestRecognizer_AllFail(t *testing.T) {
	t.Parallel()
	r := NewRecognizer(&sttmock.Recognizer{Err: errTest}, "whisper", FallbackConfig{})
	r.AddFallback("openai", &sttmock.Recognizer{Err: errTest})

	_, err := r.Recognize(context.Background(), testUtterance, "th")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if got := r.Names(); len(got) != 2 || got[1] != "openai" {
		t.Errorf("Names() = %v", got)
	}
}

func TestRecognizer_CancelledContext(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Recognizer{Text: "x"}
	r := NewRecognizer(primary, "whisper", FallbackConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Recognize(ctx, testUtterance, "th")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if primary.CallCount() != 0 {
		t.Error("recognizer called with a cancelled context")
	}
}
