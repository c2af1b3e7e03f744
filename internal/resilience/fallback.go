package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed means no member of a [FallbackGroup] produced a result, either
// because each one failed or because its breaker was open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is copied for every member, with Name set to the
	// member's name.
	CircuitBreaker CircuitBreakerConfig

	// Terminal marks errors that are the answer rather than an outage, such
	// as a cancelled context or "nothing was said". They are returned at once,
	// the remaining members are not tried, and no breaker counts them.
	Terminal func(error) bool
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds interchangeable implementations of one collaborator and
// tries them in order, skipping those whose breaker is open.
//
// Members are added during setup; the group must not be modified once calls
// are running.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup returns a group whose first member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a member behind those already present.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	if terminal := fg.cfg.Terminal; terminal != nil {
		counts := bc.IsFailure
		bc.IsFailure = func(err error) bool {
			switch {
			case err == nil, terminal(err):
				return false
			case counts != nil:
				return counts(err)
			}
			return true
		}
	}
	fg.members = append(fg.members, member[T]{name: name, value: fallback, breaker: NewCircuitBreaker(bc)})
}

// Names lists the members in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, 0, len(fg.members))
	for _, m := range fg.members {
		names = append(names, m.name)
	}
	return names
}

// Breaker returns the named member's breaker, or nil for an unknown name.
func (fg *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for _, m := range fg.members {
		if m.name == name {
			return m.breaker
		}
	}
	return nil
}

// Execute is [ExecuteWithResult] for calls without a result.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) { return struct{}{}, fn(v) })
	return err
}

// ExecuteWithResult calls fn with each member in turn and returns the first
// success. A terminal error is returned as is, together with whatever result
// accompanied it. Otherwise the error wraps [ErrAllFailed] and the last
// member's error.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var last error
	for _, m := range fg.members {
		var out R
		err := m.breaker.Execute(func() (err error) {
			out, err = fn(m.value)
			return err
		})
		switch {
		case err == nil:
			return out, nil
		case fg.cfg.Terminal != nil && fg.cfg.Terminal(err):
			return out, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider skipped, circuit open", "provider", m.name)
		default:
			slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
		}
		last = err
	}
	var zero R
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, last)
}
