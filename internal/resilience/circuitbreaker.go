// Package resilience guards the kiosk's remote collaborators.
//
// A [CircuitBreaker] stops the kiosk from waiting on a dialogue service or
// recognizer that is known to be down. A [FallbackGroup] puts one breaker in
// front of each of several interchangeable implementations and tries them in
// order. [Recognizer] and [DialogueClient] apply both to the kiosk's
// interfaces.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of calling the guarded function while the
// breaker is open, or while all half-open probe slots are taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker's mode.
type State int

const (
	StateClosed   State = iota // calls pass through and failures are counted
	StateOpen                  // calls are rejected until ResetTimeout has passed
	StateHalfOpen              // a few probe calls decide between closed and open
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values select the
// defaults noted per field.
type CircuitBreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures consecutive failures open a closed breaker. Default 5.
	MaxFailures int

	// ResetTimeout is the time spent open before probing. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax successful probes close a half-open breaker; it is also the
	// number of probes allowed in flight at once. Default 1.
	HalfOpenMax int

	// IsFailure classifies the guarded call's error. Default: any non-nil
	// error. Errors it rejects are passed through without being counted, and
	// a rejected error during a probe counts as a success.
	IsFailure func(error) bool

	// OnStateChange is invoked once per transition, outside the breaker's
	// lock. It must not block.
	OnStateChange func(name string, from, to State)

	// Now is the clock. Default time.Now.
	Now func() time.Time
}

// CircuitBreaker implements the closed, open and half-open cycle.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive failures while closed
	openedAt time.Time // last failure that opened or kept the breaker open
	probes   int       // half-open calls admitted
	passed   int       // half-open calls that succeeded
}

// transition is one state change pending notification.
type transition struct{ from, to State }

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute calls fn unless the breaker rejects it with [ErrCircuitOpen], and
// returns fn's error unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, ok := cb.admit()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	cb.settle(probe, cb.cfg.IsFailure(err))
	return err
}

// admit decides whether a call may proceed and whether it is a half-open
// probe.
func (cb *CircuitBreaker) admit() (probe, ok bool) {
	var changed []transition

	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			cb.mu.Unlock()
			return false, false
		}
		changed = cb.moveTo(changed, StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			cb.mu.Unlock()
			cb.announce(changed)
			return false, false
		}
		cb.probes++
		probe = true
	}
	cb.mu.Unlock()

	cb.announce(changed)
	return probe, true
}

// settle books the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe, failed bool) {
	var changed []transition

	cb.mu.Lock()
	switch {
	case failed:
		cb.openedAt = cb.cfg.Now()
		if probe {
			changed = cb.moveTo(changed, StateOpen)
			break
		}
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			changed = cb.moveTo(changed, StateOpen)
		}
	case probe:
		// A Reset or a failed sibling probe may have moved the breaker on.
		if cb.state == StateHalfOpen {
			cb.passed++
			if cb.passed >= cb.cfg.HalfOpenMax {
				changed = cb.moveTo(changed, StateClosed)
			}
		}
	default:
		cb.failures = 0
	}
	cb.mu.Unlock()

	cb.announce(changed)
}

// moveTo switches to s and clears the counters that belong to the old
// state. cb.mu must be held.
func (cb *CircuitBreaker) moveTo(changed []transition, s State) []transition {
	if cb.state == s {
		return changed
	}
	changed = append(changed, transition{from: cb.state, to: s})
	cb.state = s
	cb.probes, cb.passed = 0, 0
	if s == StateClosed {
		cb.failures = 0
	}
	return changed
}

// announce logs and reports transitions. cb.mu must not be held.
func (cb *CircuitBreaker) announce(changed []transition) {
	for _, t := range changed {
		level := slog.LevelInfo
		if t.to == StateOpen {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "circuit breaker state change",
			"name", cb.cfg.Name, "from", t.from.String(), "to", t.to.String())
		if cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
		}
	}
}

// State reports the current state. An open breaker whose timeout has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and forgets all failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.moveTo(nil, StateClosed)
	cb.failures = 0
	cb.mu.Unlock()
	cb.announce(changed)
}
