// Package app assembles the service: it loads the model before anything
// listens, and then runs the HTTP server and the optional NATS workers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/aigoflow/classifier-service/internal/config"
	"github.com/aigoflow/classifier-service/internal/features"
	"github.com/aigoflow/classifier-service/internal/handlers"
	"github.com/aigoflow/classifier-service/internal/metrics"
	"github.com/aigoflow/classifier-service/internal/model"
	"github.com/aigoflow/classifier-service/internal/repository"
	"github.com/aigoflow/classifier-service/internal/services"
	"github.com/aigoflow/classifier-service/internal/store"
	"github.com/aigoflow/classifier-service/internal/telemetry"
	"github.com/aigoflow/classifier-service/internal/tracker"
	"github.com/aigoflow/classifier-service/pkg/server"
)

const serviceName = "classifier-service"

type App struct {
	cfg    *config.Config
	logger *slog.Logger

	db      *store.DB
	repo    repository.Repository
	tracing *telemetry.Tracing

	handle      *model.Handle
	metrics     *metrics.Registry
	predictions *services.PredictionService
	router      http.Handler

	nats   *services.NATSService
	health *services.HealthService
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	logger *slog.Logger
	loader model.LoaderFunc
}

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithModelLoader replaces the artifact loader.
func WithModelLoader(fn model.LoaderFunc) Option {
	return func(o *options) { o.loader = fn }
}

// New builds every component and loads the model. A model that cannot be
// loaded is fatal: New returns the model error and nothing is started.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:     cfg,
		logger:  o.logger,
		metrics: metrics.NewRegistry(),
	}

	tracing, err := telemetry.NewTracing(ctx, telemetry.TraceConfig{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: serviceName,
		SampleRate:  cfg.OTelSampleRate,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracing = tracing
	if tracing.Enabled() {
		a.logger.Info("Tracing enabled", "endpoint", cfg.OTelEndpoint, "sample_rate", cfg.OTelSampleRate)
	}

	if cfg.RequestLogEnabled() {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		a.repo = repository.NewSQLiteRepository(db)
	}

	a.event(ctx, "info", "startup", "Server starting", map[string]interface{}{
		"model_name": cfg.ModelName,
		"http_addr":  cfg.HTTPAddr,
		"db_path":    cfg.DBPath,
	})

	handleOpts := []model.Option{
		model.WithLogger(a.logger),
		model.WithSchema(features.CanonicalNames[:]...),
	}
	if o.loader != nil {
		handleOpts = append(handleOpts, model.WithLoader(o.loader))
	}
	a.handle = model.NewHandle(cfg.ModelPath, handleOpts...)

	a.logger.Info("Loading model", "model_path", cfg.ModelPath)
	clf, err := a.handle.Get(ctx)
	if err != nil {
		a.event(ctx, "error", "model.failed", "Model loading failed", map[string]interface{}{
			"model_path": cfg.ModelPath,
			"error":      err.Error(),
		})
		a.Close()
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	a.event(ctx, "info", "model.loaded", "Model loaded successfully", map[string]interface{}{
		"model_path": cfg.ModelPath,
		"model_id":   clf.ID(),
		"classes":    clf.Classes(),
	})

	predictionOpts := []services.PredictionOption{
		services.WithCache(cfg.CacheSize),
		services.WithLogger(a.logger),
		services.WithTracer(a.tracing.Tracer()),
	}
	if a.repo != nil {
		predictionOpts = append(predictionOpts, services.WithRepository(a.repo))
	}
	a.predictions = services.NewPredictionService(a.handle, a.metrics, predictionOpts...)

	a.router = server.NewRouter(server.RouterConfig{
		ServiceName: serviceName,
		Tracker:     tracker.New(a.metrics, a.logger),
		Prediction:  handlers.NewPredictionHandler(a.predictions),
		Health:      handlers.NewHealthHandler(a.metrics),
	})

	if cfg.NATSEnabled() {
		natsService, err := services.NewNATSService(cfg, a.predictions)
		if err != nil {
			a.event(ctx, "error", "nats.failed", "NATS service initialization failed", map[string]interface{}{
				"nats_url": cfg.NatsURL,
				"error":    err.Error(),
			})
			a.Close()
			return nil, err
		}
		a.nats = natsService
		a.health = services.NewHealthService(natsService.Conn(), cfg, a.handle, a.metrics, natsService.Monitoring())
	}

	return a, nil
}

// Handler returns the HTTP handler with all middleware applied.
func (a *App) Handler() http.Handler { return a.router }

// Predictions returns the prediction service shared by every transport.
func (a *App) Predictions() *services.PredictionService { return a.predictions }

// Metrics returns the process-wide metrics registry.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// Run serves until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := server.NewServer(a.cfg.HTTPAddr, a.router, a.cfg.ShutdownTimeout).Start(gctx)
		if err != nil {
			a.event(context.Background(), "error", "http.failed", "HTTP server failed", map[string]interface{}{"error": err.Error()})
		}
		return err
	})

	if a.nats != nil {
		g.Go(func() error {
			return a.nats.Start(gctx)
		})
		if err := a.health.Start(gctx); err != nil {
			a.logger.Error("Health service failed", "error", err)
		}
	}

	a.event(ctx, "info", "server.ready", "Server ready to accept requests", map[string]interface{}{
		"http_addr":  a.cfg.HTTPAddr,
		"model_name": a.cfg.ModelName,
		"nats":       a.nats != nil,
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.event(context.Background(), "info", "shutdown", "Server stopped", nil)
	return err
}

// Close releases the model and every open resource. Safe to call more than once.
func (a *App) Close() error {
	if a.handle != nil {
		a.handle.Reset()
	}
	if a.nats != nil {
		_ = a.nats.Close()
		a.nats = nil
	}
	var errs []error
	if a.tracing != nil {
		if err := a.tracing.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
		a.tracing = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
		a.db = nil
		a.repo = nil
	}
	return errors.Join(errs...)
}

func (a *App) event(ctx context.Context, level, code, msg string, meta map[string]interface{}) {
	if a.repo == nil {
		return
	}
	if err := a.repo.Event().LogEvent(ctx, level, code, msg, meta); err != nil {
		a.logger.Warn("Failed to record event", "code", code, "error", err)
	}
}
