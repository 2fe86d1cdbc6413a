package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aigoflow/classifier-service/internal/config"
	"github.com/aigoflow/classifier-service/internal/metrics"
	"github.com/aigoflow/classifier-service/internal/model"
)

// ModelStateReporter is implemented by model.Handle.
type ModelStateReporter interface {
	State() model.State
	Path() string
	Loaded() model.Classifier
}

type HealthService struct {
	nats       *nats.Conn
	config     *config.Config
	models     ModelStateReporter
	metrics    *metrics.Registry
	monitoring *MonitoringService
	interval   time.Duration
}

type HealthStatus struct {
	ModelName        string     `json:"model_name"`
	Status           string     `json:"status"` // online, busy, degraded
	ModelState       string     `json:"model_state"`
	ModelPath        string     `json:"model_path"`
	ModelID          string     `json:"model_id,omitempty"`
	LastActivity     time.Time  `json:"last_activity"`
	Capabilities     []string   `json:"capabilities"`
	Endpoint         string     `json:"endpoint"`
	NATSTopic        string     `json:"nats_topic"`
	Version          string     `json:"version"`
	UptimeSeconds    float64    `json:"uptime_seconds"`
	TotalPredictions float64    `json:"total_predictions"`
	TotalErrors      float64    `json:"total_errors"`
	Backpressure     LoadStatus `json:"backpressure,omitempty"`
}

// Version is reported in health replies and heartbeats.
const Version = "1.0.0"

func NewHealthService(natsConn *nats.Conn, cfg *config.Config, models ModelStateReporter, m *metrics.Registry, monitoring *MonitoringService) *HealthService {
	return &HealthService{
		nats:       natsConn,
		config:     cfg,
		models:     models,
		metrics:    m,
		monitoring: monitoring,
		interval:   30 * time.Second,
	}
}

func (h *HealthService) Start(ctx context.Context) error {
	// Subscribe to health check requests for this model
	healthTopic := fmt.Sprintf("models.%s.health", h.config.ModelName)

	sub, err := h.nats.Subscribe(healthTopic, func(msg *nats.Msg) {
		statusData, err := json.Marshal(h.getHealthStatus())
		if err != nil {
			slog.Error("Failed to marshal health status", "error", err)
			return
		}

		reply := replySubject(msg)
		if reply == "" {
			slog.Warn("Health check without reply subject", "topic", healthTopic)
			return
		}
		if err := h.nats.Publish(reply, statusData); err != nil {
			slog.Error("Failed to respond to health check", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to health topic: %w", err)
	}

	slog.Info("Health service started", "topic", healthTopic)

	// Publish periodic heartbeats
	go func() {
		h.publishHeartbeats(ctx)
		_ = sub.Unsubscribe()
	}()

	return nil
}

// replySubject prefers the transport reply and falls back to reply_to in the payload.
func replySubject(msg *nats.Msg) string {
	if msg.Reply != "" {
		return msg.Reply
	}
	var body struct {
		ReplyTo string `json:"reply_to"`
	}
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		return ""
	}
	return body.ReplyTo
}

func (h *HealthService) publishHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	heartbeatTopic := fmt.Sprintf("models.%s.heartbeat", h.config.ModelName)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statusData, err := json.Marshal(h.getHealthStatus())
			if err != nil {
				continue
			}
			if err := h.nats.Publish(heartbeatTopic, statusData); err != nil {
				slog.Warn("Failed to publish heartbeat", "error", err)
			}
		}
	}
}

func (h *HealthService) getHealthStatus() HealthStatus {
	status := HealthStatus{
		ModelName:        h.config.ModelName,
		Status:           "online",
		ModelState:       h.models.State().String(),
		LastActivity:     time.Now(),
		ModelPath:        h.models.Path(),
		Capabilities:     []string{"classification"},
		Endpoint:         fmt.Sprintf("http://%s", h.config.HTTPAddr),
		NATSTopic:        h.config.Subject,
		Version:          Version,
		UptimeSeconds:    h.metrics.Uptime().Seconds(),
		TotalPredictions: h.metrics.Value(metrics.Predictions),
		TotalErrors:      h.metrics.Value(metrics.Errors),
	}

	if clf := h.models.Loaded(); clf != nil {
		status.ModelID = clf.ID()
		if _, ok := clf.(model.ProbabilityEstimator); ok {
			status.Capabilities = append(status.Capabilities, "class-probabilities")
		}
	}
	if h.models.State() != model.StateLoaded {
		status.Status = "degraded"
	}
	if h.monitoring != nil {
		status.Backpressure = h.monitoring.CurrentStatus()
		if status.Backpressure == LoadCritical && status.Status == "online" {
			status.Status = "busy"
		}
	}
	return status
}
