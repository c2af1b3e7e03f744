// Package health serves the kiosk's probe and status endpoints:
//
//   - GET /healthz answers 200 while the process can serve HTTP.
//   - GET /readyz answers 200 only if every [Checker] passes, 503 otherwise.
//   - GET /status returns the snapshot configured with [WithStatus].
//
// Probe bodies look like {"status":"ok","checks":{"audio":"ok"}}; a failing
// check is reported as "fail: <error>".
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil when it is usable and must
// return promptly once ctx is done.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Pinger is implemented by collaborators with a cheap reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker adapts a [Pinger] to a [Checker].
func PingChecker(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithStatus makes /status serve fn's return value as JSON. fn is called once
// per request and must be safe for concurrent use.
func WithStatus(fn func() any) Option {
	return func(h *Handler) { h.status = fn }
}

// Handler serves the endpoints. Its checkers are fixed by [New].
type Handler struct {
	checkers []Checker
	status   func() any
}

func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{checkers: append([]Checker(nil), checkers...)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts the three routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /status", h.Status)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers in parallel, each under its own timeout derived
// from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	outcomes := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			outcomes[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	res, code := result{Status: "ok"}, http.StatusOK
	if len(h.checkers) > 0 {
		res.Checks = make(map[string]string, len(h.checkers))
	}
	for i, c := range h.checkers {
		if err := outcomes[i]; err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status, code = "fail", http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, code, res)
}

// Status answers 404 when no snapshot source was configured.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
