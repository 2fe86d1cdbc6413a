package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"

	"github.com/aigoflow/classifier-service/internal/config"
	"github.com/aigoflow/classifier-service/internal/features"
)

func newWorkerID() string {
	return "worker-" + ulid.Make().String()
}

// PredictionRequest is the JSON message consumed from the work queue.
type PredictionRequest struct {
	TraceID  string             `json:"trace_id,omitempty"`
	ReqID    string             `json:"req_id"`
	Features map[string]float64 `json:"features"`
	ReplyTo  string             `json:"reply_to,omitempty"`
}

// PredictionResponse is published to the request's reply_to subject.
type PredictionResponse struct {
	ReqID         string    `json:"req_id"`
	Prediction    *int      `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
	DurationMs    int64     `json:"duration_ms"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	Error         string    `json:"error,omitempty"`
}

var errBadMessage = errors.New("unparseable prediction message")

// queuedMsg is the JetStream acknowledgement surface of a fetched message.
type queuedMsg interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// NATSService consumes prediction requests from a JetStream work queue.
type NATSService struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	predictor  *PredictionService
	cfg        *config.Config
	monitoring *MonitoringService
	logger     *slog.Logger
}

func NewNATSService(cfg *config.Config, predictor *PredictionService) (*NATSService, error) {
	conn, err := nats.Connect(cfg.NatsURL, nats.Name("classifier-service."+cfg.ModelName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATSService{
		conn:       conn,
		js:         js,
		predictor:  predictor,
		cfg:        cfg,
		monitoring: NewMonitoringService(conn, cfg),
		logger:     slog.Default().With("component", "nats"),
	}, nil
}

// Start runs the workers and blocks until ctx is cancelled.
func (s *NATSService) Start(ctx context.Context) error {
	if err := s.ensureStream(); err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}
	consumer, err := s.createConsumer()
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	s.logger.Info("Consuming prediction requests",
		"stream", s.cfg.Stream,
		"subject", s.cfg.Subject,
		"durable", s.cfg.Durable,
		"workers", s.cfg.Concurrency)

	_ = s.monitoring.Start(ctx)

	runWorkers(ctx, s.cfg.Concurrency, func(ctx context.Context, id string) {
		s.worker(ctx, consumer, id)
	})
	s.logger.Info("Stopped consuming prediction requests")
	return nil
}

// runWorkers starts n workers and returns once ctx is done and every worker
// has returned.
func runWorkers(ctx context.Context, n int, work func(ctx context.Context, workerID string)) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			work(ctx, id)
		}(newWorkerID())
	}
	<-ctx.Done()
	wg.Wait()
}

// ensureStream creates the work-queue stream, or adds our subject to an
// existing stream of the same name.
func (s *NATSService) ensureStream() error {
	info, err := s.js.StreamInfo(s.cfg.Stream)
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		if _, err := s.js.AddStream(s.streamConfig()); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		s.logger.Info("Created stream", "stream", s.cfg.Stream)
		return nil
	case err != nil:
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	for _, subject := range info.Config.Subjects {
		if subject == s.cfg.Subject {
			s.logger.Debug("Stream ready", "stream", s.cfg.Stream, "messages", info.State.Msgs)
			return nil
		}
	}

	updated := info.Config
	updated.Subjects = append(updated.Subjects, s.cfg.Subject)
	if _, err := s.js.UpdateStream(&updated); err != nil {
		return fmt.Errorf("failed to add subject %s to stream: %w", s.cfg.Subject, err)
	}
	s.logger.Info("Added subject to stream", "stream", s.cfg.Stream, "subject", s.cfg.Subject)
	return nil
}

func (s *NATSService) streamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      s.cfg.Stream,
		Subjects:  []string{s.cfg.Subject},
		MaxMsgs:   int64(s.cfg.MaxMsgs),
		MaxAge:    s.cfg.MaxAge,
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
	}
}

func (s *NATSService) createConsumer() (*nats.Subscription, error) {
	sub, err := s.js.PullSubscribe(s.cfg.Subject, s.cfg.Durable, nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("failed to create pull consumer %s: %w", s.cfg.Durable, err)
	}
	return sub, nil
}

func (s *NATSService) worker(ctx context.Context, consumer *nats.Subscription, workerID string) {
	log := s.logger.With("worker_id", workerID)
	log.Debug("Worker started")
	defer log.Debug("Worker stopped")

	for ctx.Err() == nil {
		msgs, err := consumer.Fetch(1, nats.MaxWait(time.Second))
		switch {
		case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			log.Error("Fetch failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			done := s.monitoring.TrackPending()
			s.processMessage(ctx, msg.Subject, msg.Data, msg, workerID)
			done()
		}
	}
}

// processMessage answers one message. Unparseable payloads are terminated so
// JetStream does not redeliver them; other failures are Nak'ed for retry.
func (s *NATSService) processMessage(ctx context.Context, subject string, data []byte, msg queuedMsg, workerID string) {
	defer s.monitoring.TrackActive()()

	req, reply, err := s.handleMessage(ctx, subject, data, workerID)
	if errors.Is(err, errBadMessage) {
		s.logger.Error("Dropped unparseable prediction message",
			"worker_id", workerID,
			"error", err,
			"data", string(data))
		_ = msg.Term()
		return
	}
	if err != nil {
		s.logger.Error("Prediction message failed", "worker_id", workerID, "error", err)
		_ = msg.Nak()
		return
	}

	if req.ReplyTo != "" {
		if err := s.conn.Publish(req.ReplyTo, reply); err != nil {
			s.logger.Error("Failed to publish prediction reply",
				"worker_id", workerID,
				"req_id", req.ReqID,
				"reply_to", req.ReplyTo,
				"error", err)
		}
	}
	if err := msg.Ack(); err != nil {
		s.logger.Warn("Ack failed", "worker_id", workerID, "req_id", req.ReqID, "error", err)
	}
}

// handleMessage runs one queued prediction and returns the encoded reply.
// Prediction failures are reported inside the reply, not as an error.
func (s *NATSService) handleMessage(ctx context.Context, subject string, data []byte, workerID string) (*PredictionRequest, []byte, error) {
	start := time.Now()

	var req PredictionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errBadMessage, err)
	}
	if req.TraceID == "" {
		req.TraceID = req.ReqID
	}

	s.logger.Debug("Prediction request",
		"worker_id", workerID,
		"req_id", req.ReqID,
		"trace_id", req.TraceID,
		"subject", subject)

	ctx = WithRequestMeta(ctx, RequestMeta{
		TraceID:  req.TraceID,
		ReqID:    req.ReqID,
		WorkerID: workerID,
		Source:   "nats." + subject,
	})
	result, err := s.predictor.Predict(ctx, features.Input(req.Features))

	response := PredictionResponse{
		ReqID:      req.ReqID,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		response.ErrorKind, response.Error = Describe(err)
		s.logger.Warn("Prediction failed",
			"worker_id", workerID,
			"req_id", req.ReqID,
			"duration_ms", response.DurationMs,
			"error", err)
	} else {
		label := result.Label
		response.Prediction = &label
		response.Probabilities = result.Probabilities
		s.logger.Info("Prediction completed",
			"worker_id", workerID,
			"req_id", req.ReqID,
			"duration_ms", response.DurationMs,
			"label", label)
	}

	responseData, err := json.Marshal(response)
	if err != nil {
		return &req, nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return &req, responseData, nil
}

// Close drains the connection so in-flight replies are flushed.
func (s *NATSService) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Drain()
	if errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}

func (s *NATSService) Conn() *nats.Conn { return s.conn }

func (s *NATSService) Monitoring() *MonitoringService { return s.monitoring }
