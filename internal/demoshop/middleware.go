// internal/demoshop/middleware.go
package demoshop

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// flakyGate fails the first n requests to each wrapped route with a 503.
// This is the shop's deliberate unreliability; the suite's polling layer is
// expected to absorb it.
type flakyGate struct {
	mu        sync.Mutex
	n         int
	remaining map[string]int
}

func newFlakyGate(n int) *flakyGate {
	return &flakyGate{n: n, remaining: make(map[string]int)}
}

func (g *flakyGate) take(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	left, ok := g.remaining[key]
	if !ok {
		left = g.n
	}
	if left <= 0 {
		return false
	}
	g.remaining[key] = left - 1
	return true
}

// wrap returns a handler that 503s until the route's failure budget is used
// up, then passes through.
func (g *flakyGate) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.take(r.Method + " " + r.URL.Path) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "service briefly unavailable, retry shortly", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects requests above the global token bucket with a 429.
// The health endpoint is exempt so readiness probes never consume tokens.
func rateLimit(l *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && !l.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the final status and body size for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// syncWriter serializes writes so concurrent request lines never interleave.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (sw *syncWriter) Write(p []byte) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(p)
}

// accessLog writes one line per request:
//
//	<RFC3339Nano ts> <method> <uri> <status> <latency> <bytes>
//
// The runner tails this file to correlate server-side errors with failing
// scenarios, so the field order is part of the shop's contract.
func accessLog(out io.Writer, logger *zap.Logger, next http.Handler) http.Handler {
	sw := &syncWriter{w: out}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		fmt.Fprintf(sw, "%s %s %s %d %s %d\n",
			start.UTC().Format(time.RFC3339Nano),
			r.Method,
			r.URL.RequestURI(),
			rec.status,
			elapsed.Round(time.Microsecond),
			rec.bytes,
		)
		logger.Debug("Request served.",
			zap.String("method", r.Method),
			zap.String("uri", r.URL.RequestURI()),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed),
		)
	})
}
