// Package tracker stamps every inbound HTTP request with an id and measures
// how long the service took to answer it.
package tracker

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aigoflow/classifier-service/internal/metrics"
)

const (
	HeaderRequestID   = "X-Request-ID"
	HeaderProcessTime = "X-Process-Time"
)

type contextKey int

const requestIDKey contextKey = 0

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Tracker is the request-tracking middleware.
type Tracker struct {
	metrics *metrics.Registry
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) { t.newID = fn }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New returns a tracker that counts requests in m and logs through logger.
func New(m *metrics.Registry, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		metrics: m,
		logger:  logger,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Middleware wraps next. X-Process-Time is set just before the status line is
// written, so it reflects the handler's time up to that point.
func (t *Tracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := t.now()
		id := t.newID()
		t.metrics.Inc(metrics.Requests)

		ctx := WithRequestID(r.Context(), id)

		w.Header().Set(HeaderRequestID, id)
		tw := &trackingWriter{ResponseWriter: w, start: start, now: t.now}

		next.ServeHTTP(tw, r.WithContext(ctx))

		if !tw.wroteHeader {
			tw.WriteHeader(http.StatusOK)
		}

		t.logger.Info("Request completed",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", tw.status,
			"duration_ms", float64(t.now().Sub(start).Microseconds())/1000)
	})
}

type trackingWriter struct {
	http.ResponseWriter
	start       time.Time
	now         func() time.Time
	status      int
	wroteHeader bool
}

func (w *trackingWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.Header().Set(HeaderProcessTime, FormatSeconds(w.now().Sub(w.start)))
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.wroteHeader {
			w.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

func (w *trackingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// FormatSeconds renders d as decimal seconds, e.g. "0.0123".
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
