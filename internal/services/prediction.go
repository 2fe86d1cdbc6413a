package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aigoflow/classifier-service/internal/features"
	"github.com/aigoflow/classifier-service/internal/metrics"
	"github.com/aigoflow/classifier-service/internal/model"
	"github.com/aigoflow/classifier-service/internal/models"
	"github.com/aigoflow/classifier-service/internal/repository"
)

// PredictionResult is the answer for one feature vector. Probabilities is nil
// when the classifier cannot estimate them.
type PredictionResult struct {
	Label         int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
}

func (r PredictionResult) clone() *PredictionResult {
	out := r
	if r.Probabilities != nil {
		out.Probabilities = append([]float64(nil), r.Probabilities...)
	}
	return &out
}

// ModelProvider hands out the loaded classifier.
type ModelProvider interface {
	Get(ctx context.Context) (model.Classifier, error)
}

// RequestMeta identifies the caller of a prediction in logs and the request log.
type RequestMeta struct {
	TraceID  string
	ReqID    string
	WorkerID string
	Source   string
}

type metaKey struct{}

// WithRequestMeta attaches meta to ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

func requestMeta(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(metaKey{}).(RequestMeta)
	if meta.TraceID == "" {
		meta.TraceID = meta.ReqID
	}
	return meta
}

type cacheKey struct {
	modelID string
	vector  features.ModelVector
}

type PredictionService struct {
	models  ModelProvider
	metrics *metrics.Registry
	repo    repository.Repository
	cache   *lru.Cache[cacheKey, PredictionResult]
	tracer  trace.Tracer
	logger  *slog.Logger
}

// PredictionOption configures a PredictionService.
type PredictionOption func(*PredictionService)

// WithRepository records every prediction through repo.
func WithRepository(repo repository.Repository) PredictionOption {
	return func(s *PredictionService) { s.repo = repo }
}

// WithCache keeps up to size recent results. Zero disables caching.
func WithCache(size int) PredictionOption {
	return func(s *PredictionService) {
		if size <= 0 {
			s.cache = nil
			return
		}
		cache, err := lru.New[cacheKey, PredictionResult](size)
		if err != nil {
			slog.Warn("Prediction cache disabled", "size", size, "error", err)
			return
		}
		s.cache = cache
	}
}

// WithTracer sets the tracer for prediction spans.
func WithTracer(tracer trace.Tracer) PredictionOption {
	return func(s *PredictionService) { s.tracer = tracer }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) PredictionOption {
	return func(s *PredictionService) { s.logger = logger }
}

func NewPredictionService(provider ModelProvider, m *metrics.Registry, opts ...PredictionOption) *PredictionService {
	s := &PredictionService{
		models:  provider,
		metrics: m,
		tracer:  otel.Tracer("github.com/aigoflow/classifier-service/internal/services"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict classifies one record given by name.
func (s *PredictionService) Predict(ctx context.Context, in features.Input) (*PredictionResult, error) {
	return s.run(ctx, func() (features.Input, error) { return in, nil })
}

// PredictPayload decodes a JSON feature payload and classifies it.
func (s *PredictionService) PredictPayload(ctx context.Context, payload []byte) (*PredictionResult, error) {
	return s.run(ctx, func() (features.Input, error) {
		v, err := features.DecodeVector(payload)
		if err != nil {
			return nil, err
		}
		return v.Input(), nil
	})
}

// PredictBody reads and decodes body, then predicts. A read failure, including
// an http.MaxBytesError, is returned wrapped in features.ErrMalformed and is
// counted like any other failed prediction.
func (s *PredictionService) PredictBody(ctx context.Context, body io.Reader) (*PredictionResult, error) {
	return s.run(ctx, func() (features.Input, error) {
		payload, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("%w: could not read request body: %w", features.ErrMalformed, err)
		}
		v, err := features.DecodeVector(payload)
		if err != nil {
			return nil, err
		}
		return v.Input(), nil
	})
}

// run counts the invocation before anything can fail, so that
// total_predictions counts attempts and total_errors counts failures.
func (s *PredictionService) run(ctx context.Context, input func() (features.Input, error)) (*PredictionResult, error) {
	s.metrics.Inc(metrics.Predictions)
	start := time.Now()
	meta := requestMeta(ctx)

	ctx, span := s.tracer.Start(ctx, "prediction.predict",
		trace.WithAttributes(attribute.String("req_id", meta.ReqID), attribute.String("source", meta.Source)))
	defer span.End()

	var (
		result  *PredictionResult
		outcome inferenceOutcome
		vector  features.ModelVector
	)
	in, err := input()
	if err == nil {
		vector, err = features.Map(in)
	}
	if err == nil {
		result, outcome, err = s.infer(ctx, vector)
	}
	duration := time.Since(start)

	s.record(ctx, meta, in, result, outcome, duration, err)

	if err != nil {
		s.metrics.Inc(metrics.Errors)
		kind, _ := Describe(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		s.logger.Warn("Prediction failed",
			"req_id", meta.ReqID,
			"source", meta.Source,
			"kind", kind,
			"error", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("prediction.label", result.Label), attribute.Bool("prediction.cached", outcome.cached))
	s.logger.Debug("Prediction completed",
		"req_id", meta.ReqID,
		"source", meta.Source,
		"label", result.Label,
		"cached", outcome.cached,
		"duration_ms", float64(duration.Microseconds())/1000)
	return result, nil
}

type inferenceOutcome struct {
	modelID string
	cached  bool
}

func (s *PredictionService) infer(ctx context.Context, x features.ModelVector) (result *PredictionResult, outcome inferenceOutcome, err error) {
	clf, err := s.models.Get(ctx)
	if err != nil {
		return nil, outcome, err
	}
	outcome.modelID = clf.ID()

	key := cacheKey{modelID: clf.ID(), vector: x}
	if s.cache != nil {
		if hit, ok := s.cache.Get(key); ok {
			outcome.cached = true
			return hit.clone(), outcome, nil
		}
	}

	// Add service-level crash recovery
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Classifier panic", "model_id", outcome.modelID, "panic", fmt.Sprint(r))
			result, err = nil, ErrInference
		}
	}()

	label, err := clf.Classify(x.Slice())
	if err != nil {
		s.logger.Error("Classification failed", "model_id", outcome.modelID, "error", err)
		return nil, outcome, ErrInference
	}

	var probs []float64
	if pe, ok := clf.(model.ProbabilityEstimator); ok {
		probs, err = pe.PredictProba(x.Slice())
		if err != nil {
			s.logger.Error("Probability estimation failed", "model_id", outcome.modelID, "error", err)
			return nil, outcome, ErrInference
		}
		if err := checkProbabilities(probs, len(clf.Classes())); err != nil {
			s.logger.Error("Invalid probabilities", "model_id", outcome.modelID,
				"probabilities", fmt.Sprint(probs), "error", err)
			return nil, outcome, ErrInference
		}
	}

	computed := PredictionResult{Label: label, Probabilities: probs}
	if s.cache != nil {
		s.cache.Add(key, *computed.clone())
	}
	return &computed, outcome, nil
}

// record writes the prediction log entry. Failures to log never fail the prediction.
func (s *PredictionService) record(ctx context.Context, meta RequestMeta, in features.Input, result *PredictionResult,
	outcome inferenceOutcome, duration time.Duration, predictErr error) {
	if s.repo == nil {
		return
	}

	entry := &models.PredictionLog{
		Timestamp:    time.Now().Add(-duration),
		TraceID:      meta.TraceID,
		ReqID:        meta.ReqID,
		WorkerID:     meta.WorkerID,
		Source:       meta.Source,
		ModelID:      outcome.modelID,
		FeaturesJSON: toJSON(in),
		Cached:       outcome.cached,
		DurationMs:   float64(duration.Microseconds()) / 1000,
		Status:       "ok",
	}
	if predictErr != nil {
		kind, _ := Describe(predictErr)
		entry.Status = "error"
		entry.Error = string(kind)
	}
	if result != nil {
		label := result.Label
		entry.Label = &label
		entry.ProbabilitiesJSON = toJSON(result.Probabilities)
	}

	if err := s.repo.Prediction().LogPrediction(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("Failed to record prediction", "req_id", meta.ReqID, "error", err)
	}
}

// GetPredictionLogs retrieves recent prediction logs through the repository.
func (s *PredictionService) GetPredictionLogs(ctx context.Context, limit int) ([]*models.PredictionLog, error) {
	if s.repo == nil {
		return []*models.PredictionLog{}, nil
	}
	return s.repo.Prediction().GetPredictionLogs(ctx, limit)
}

// LogsEnabled reports whether predictions are being recorded.
func (s *PredictionService) LogsEnabled() bool { return s.repo != nil }

// probabilitySumTolerance bounds how far a probability row may sum from 1.
const probabilitySumTolerance = 0.01

func checkProbabilities(probs []float64, classes int) error {
	if len(probs) != classes {
		return fmt.Errorf("got %d probabilities for %d classes", len(probs), classes)
	}
	var sum float64
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
			return fmt.Errorf("probability %d out of range: %v", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > probabilitySumTolerance {
		return fmt.Errorf("probabilities sum to %v", sum)
	}
	return nil
}

func toJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
