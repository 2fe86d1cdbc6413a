// Package metrics holds the process-wide service counters and renders them in
// the Prometheus text exposition format.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Counter names one of the service counters.
type Counter string

const (
	Requests     Counter = "total_requests"
	Predictions  Counter = "total_predictions"
	Errors       Counter = "total_errors"
	HealthChecks Counter = "total_health_checks"
)

// ContentType is the media type of Snapshot output.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

var counterHelp = map[Counter]string{
	Requests:     "Total number of requests",
	Predictions:  "Total number of predictions made",
	Errors:       "Total number of errors",
	HealthChecks: "Total number of health checks",
}

// Registry owns the counters and the startup timestamp. Counters only go up.
type Registry struct {
	startup  time.Time
	now      func() time.Time
	reg      *prometheus.Registry
	counters map[Counter]prometheus.Counter
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for startup and uptime.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates the counters on a dedicated prometheus registry and
// records the startup time.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now:      time.Now,
		reg:      prometheus.NewRegistry(),
		counters: make(map[Counter]prometheus.Counter, len(counterHelp)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startup = r.now()

	for name, help := range counterHelp {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "app",
			Name:      string(name),
			Help:      help,
		})
		r.reg.MustRegister(c)
		r.counters[name] = c
	}

	r.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "app",
		Name:      "uptime_seconds",
		Help:      "Application uptime in seconds",
	}, func() float64 {
		return math.Round(r.Uptime().Seconds()*100) / 100
	}))

	return r
}

// Inc adds one to the named counter.
func (r *Registry) Inc(name Counter) {
	c, ok := r.counters[name]
	if !ok {
		slog.Warn("Unknown metrics counter", "counter", name)
		return
	}
	c.Inc()
}

// Value reads the current value of the named counter.
func (r *Registry) Value(name Counter) float64 {
	c, ok := r.counters[name]
	if !ok {
		return 0
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}


// Uptime is the time elapsed since startup, computed at call time.
func (r *Registry) Uptime() time.Duration { return r.now().Sub(r.startup) }

// WriteTo renders every metric with its HELP and TYPE lines.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return 0, fmt.Errorf("gather metrics: %w", err)
	}
	var total int64
	for _, mf := range families {
		n, err := expfmt.MetricFamilyToText(w, mf)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Snapshot returns the text exposition as a string.
func (r *Registry) Snapshot() (string, error) {
	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
