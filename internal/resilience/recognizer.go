package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/voicekiosk/pkg/audio"
	"github.com/MrWong99/voicekiosk/pkg/provider/stt"
)

// Recognizer implements [stt.Recognizer] with failover across several
// recognizers, each behind its own circuit breaker.
//
// An empty transcript ([stt.ErrNotRecognized]) is a definitive answer: it is
// returned immediately and never counts as a provider failure.
type Recognizer struct {
	group *FallbackGroup[stt.Recognizer]
}

var _ stt.Recognizer = (*Recognizer)(nil)

// NewRecognizer creates a [Recognizer] with primary as the preferred backend.
// cfg.Terminal defaults to [IsTerminalRecognition].
func NewRecognizer(primary stt.Recognizer, primaryName string, cfg FallbackConfig) *Recognizer {
	if cfg.Terminal == nil {
		cfg.Terminal = IsTerminalRecognition
	}
	return &Recognizer{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional recognizer, tried after those already
// registered.
func (r *Recognizer) AddFallback(name string, rec stt.Recognizer) {
	r.group.AddFallback(name, rec)
}

// Names returns the backend names in trial order.
func (r *Recognizer) Names() []string { return r.group.Names() }

// Recognize transcribes utt with the first healthy backend.
func (r *Recognizer) Recognize(ctx context.Context, utt audio.Utterance, language string) (string, error) {
	return ExecuteWithResult(r.group, func(rec stt.Recognizer) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return rec.Recognize(ctx, utt, language)
	})
}

// IsTerminalRecognition reports whether err ends a recognition attempt
// without failover: nothing was recognized or the caller gave up.
func IsTerminalRecognition(err error) bool {
	return errors.Is(err, stt.ErrNotRecognized) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
