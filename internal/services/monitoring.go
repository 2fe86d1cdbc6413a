package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aigoflow/classifier-service/internal/config"
)

// LoadStatus classifies queued plus in-flight work against the threshold.
type LoadStatus string

const (
	LoadHealthy  LoadStatus = "healthy"
	LoadWarning  LoadStatus = "warning"
	LoadCritical LoadStatus = "critical"
)

// MonitoringService tracks work-queue depth and publishes backpressure
// reports: every second while messages are pending, every ten seconds
// otherwise.
type MonitoringService struct {
	config  *config.Config
	publish func(subject string, data []byte) error
	logger  *slog.Logger

	pending atomic.Int64
	active  atomic.Int64

	busyInterval time.Duration
	idleInterval time.Duration
}

type BackpressureReport struct {
	ModelName        string     `json:"model_name"`
	PendingMessages  int64      `json:"pending_messages"`
	ActiveProcessing int64      `json:"active_processing"`
	Timestamp        time.Time  `json:"timestamp"`
	WorkerCount      int        `json:"worker_count"`
	QueueCapacity    int        `json:"queue_capacity"`
	Status           LoadStatus `json:"status"`
}

func NewMonitoringService(natsConn *nats.Conn, cfg *config.Config) *MonitoringService {
	m := &MonitoringService{
		config:       cfg,
		logger:       slog.Default().With("component", "monitoring"),
		busyInterval: time.Second,
		idleInterval: 10 * time.Second,
	}
	if natsConn != nil {
		m.publish = natsConn.Publish
	}
	return m
}

// Start reports until ctx is cancelled.
func (m *MonitoringService) Start(ctx context.Context) error {
	m.logger.Info("Starting backpressure monitoring",
		"topic", m.Topic(),
		"threshold", m.config.BackpressureThreshold)

	go m.run(ctx)
	return nil
}

// Topic is the subject backpressure reports are published on.
func (m *MonitoringService) Topic() string {
	return fmt.Sprintf("%s.%s", m.config.MonitoringTopic, m.config.ModelName)
}

func (m *MonitoringService) run(ctx context.Context) {
	interval := m.idleInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			pending, active := m.Pending(), m.Active()
			m.report(pending, active)

			next := m.idleInterval
			if pending > 0 {
				next = m.busyInterval
			}
			if next != interval {
				m.logger.Debug("Changed report interval", "interval", next, "pending", pending)
				interval = next
			}
			timer.Reset(interval)
		}
	}
}

func (m *MonitoringService) buildReport(pending, active int64) BackpressureReport {
	return BackpressureReport{
		ModelName:        m.config.ModelName,
		PendingMessages:  pending,
		ActiveProcessing: active,
		Timestamp:        time.Now(),
		WorkerCount:      m.config.Concurrency,
		QueueCapacity:    m.config.MaxMsgs,
		Status:           m.classify(pending, active),
	}
}

func (m *MonitoringService) report(pending, active int64) {
	if m.publish == nil {
		return
	}
	rep := m.buildReport(pending, active)

	data, err := json.Marshal(rep)
	if err != nil {
		m.logger.Error("Failed to marshal backpressure report", "error", err)
		return
	}
	if err := m.publish(m.Topic(), data); err != nil {
		m.logger.Warn("Failed to publish backpressure report", "error", err)
		return
	}

	if pending > 0 || rep.Status != LoadHealthy {
		m.logger.Info("Backpressure report",
			"pending", pending,
			"active", active,
			"status", rep.Status)
	}
}

func (m *MonitoringService) classify(pending, active int64) LoadStatus {
	total := pending + active
	switch {
	case total == 0:
		return LoadHealthy
	case total < int64(m.config.BackpressureThreshold):
		return LoadWarning
	default:
		return LoadCritical
	}
}

// CurrentStatus classifies the present load.
func (m *MonitoringService) CurrentStatus() LoadStatus {
	return m.classify(m.Pending(), m.Active())
}

// TrackPending counts a fetched message until the returned func is called.
func (m *MonitoringService) TrackPending() (done func()) {
	m.pending.Add(1)
	return func() { m.pending.Add(-1) }
}

// TrackActive counts a message under prediction until the returned func is called.
func (m *MonitoringService) TrackActive() (done func()) {
	m.active.Add(1)
	return func() { m.active.Add(-1) }
}

func (m *MonitoringService) Pending() int64 { return m.pending.Load() }

func (m *MonitoringService) Active() int64 { return m.active.Load() }
