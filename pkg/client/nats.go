package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

// NATSClient talks to the service through its work queue and health topic.
// Replies arrive on a per-request subject that is subscribed before the
// request is published.
type NATSClient struct {
	conn          *nats.Conn
	clientID      string
	timeout       time.Duration
	healthTimeout time.Duration
}

// NewNATSClient connects to natsURL.
func NewNATSClient(natsURL, clientID string) (*NATSClient, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSClient(conn, clientID), nil
}

func newNATSClient(conn *nats.Conn, clientID string) *NATSClient {
	if clientID == "" {
		clientID = "classifier-client"
	}
	return &NATSClient{
		conn:          conn,
		clientID:      clientID,
		timeout:       30 * time.Second,
		healthTimeout: 5 * time.Second,
	}
}

// Predict queues one prediction on subject (e.g. "prediction.request.iris")
// and waits for the worker's reply. A prediction failure is returned in the
// response's Error and ErrorKind, not as an error.
func (c *NATSClient) Predict(ctx context.Context, subject string, features map[string]float64) (*PredictionResponse, error) {
	reqID := ulid.Make().String()
	replySubject := fmt.Sprintf("prediction.response.%s.%s", c.clientID, reqID)

	request := PredictionRequest{
		ReqID:    reqID,
		Features: features,
		ReplyTo:  replySubject,
	}

	slog.Debug("Sending prediction request",
		"subject", subject,
		"req_id", reqID,
		"reply_subject", replySubject)

	var response PredictionResponse
	if err := c.roundTrip(ctx, subject, replySubject, request, &response, c.timeout); err != nil {
		return nil, err
	}
	return &response, nil
}

// CheckHealth asks the instance serving model for its status.
func (c *NATSClient) CheckHealth(ctx context.Context, model string) (*HealthStatus, error) {
	healthTopic := fmt.Sprintf("models.%s.health", model)

	reqID := ulid.Make().String()
	replySubject := fmt.Sprintf("health.response.%s.%s", c.clientID, reqID)

	request := map[string]interface{}{
		"req_id":   reqID,
		"reply_to": replySubject,
	}

	var health HealthStatus
	if err := c.roundTrip(ctx, healthTopic, replySubject, request, &health, c.healthTimeout); err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return &health, nil
}

// Heartbeats delivers every heartbeat published for model until ctx ends.
func (c *NATSClient) Heartbeats(ctx context.Context, model string) (<-chan HealthStatus, error) {
	out := make(chan HealthStatus, 16)
	sub, err := c.conn.Subscribe(fmt.Sprintf("models.%s.heartbeat", model), func(msg *nats.Msg) {
		var status HealthStatus
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			slog.Warn("Failed to parse heartbeat", "subject", msg.Subject, "error", err)
			return
		}
		select {
		case out <- status:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to heartbeats: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return out, nil
}

func (c *NATSClient) roundTrip(ctx context.Context, subject, replySubject string, request, response interface{}, timeout time.Duration) error {
	requestBytes, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	// Subscribe first so a fast reply cannot be missed
	replyChan := make(chan *nats.Msg, 1)
	sub, err := c.conn.Subscribe(replySubject, func(msg *nats.Msg) {
		select {
		case replyChan <- msg:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to reply: %w", err)
	}
	defer sub.Unsubscribe()

	if err := c.conn.Publish(subject, requestBytes); err != nil {
		return fmt.Errorf("failed to publish request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-replyChan:
		if err := json.Unmarshal(msg.Data, response); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("request timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the NATS connection
func (c *NATSClient) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// SetTimeout configures the prediction timeout
func (c *NATSClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}
