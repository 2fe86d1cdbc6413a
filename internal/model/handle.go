package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle position of a Handle.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// LoaderFunc turns an artifact path into a classifier.
type LoaderFunc func(path string) (Classifier, error)

// Option configures a Handle.
type Option func(*Handle)

// WithLoader replaces the file loader.
func WithLoader(fn LoaderFunc) Option {
	return func(h *Handle) {
		h.loader = fn
	}
}

// WithLogger sets the logger used for load events.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handle) {
		h.logger = logger
	}
}

// WithSchema makes a load fail with ErrModelLoad unless the artifact's
// feature names equal names, in order. Callers pass vectors by position.
func WithSchema(names ...string) Option {
	return func(h *Handle) {
		h.schema = append([]string(nil), names...)
	}
}

const loadKey = "model"

// Handle owns the process-wide classifier. The first Get loads it; concurrent
// first callers share one load. Failed loads are not remembered, so the next
// Get tries again.
type Handle struct {
	path   string
	loader LoaderFunc
	logger *slog.Logger
	schema []string

	group   singleflight.Group
	loading atomic.Int32

	mu      sync.RWMutex
	current Classifier
	gen     uint64
}

// NewHandle returns an unloaded handle for the artifact at path.
func NewHandle(path string, opts ...Option) *Handle {
	h := &Handle{
		path:   path,
		loader: LoadFile,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Path returns the artifact location.
func (h *Handle) Path() string { return h.path }

// Get returns the loaded classifier, loading it first if needed. A cancelled
// ctx releases the caller; the shared load keeps running for the others.
func (h *Handle) Get(ctx context.Context) (Classifier, error) {
	if c := h.Loaded(); c != nil {
		return c, nil
	}

	ch := h.group.DoChan(loadKey, h.load)
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Classifier), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State reports whether the classifier is loaded, being loaded, or absent.
func (h *Handle) State() State {
	if h.Loaded() != nil {
		return StateLoaded
	}
	if h.loading.Load() > 0 {
		return StateLoading
	}
	return StateUnloaded
}

// Reset drops the classifier. A load already in flight still answers its
// callers, but its result is not kept.
func (h *Handle) Reset() {
	h.mu.Lock()
	h.current = nil
	h.gen++
	h.mu.Unlock()
	h.group.Forget(loadKey)
}

// Loaded returns the current classifier, or nil when none is loaded. It never
// triggers a load.
func (h *Handle) Loaded() Classifier {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *Handle) load() (interface{}, error) {
	h.mu.RLock()
	current, gen := h.current, h.gen
	h.mu.RUnlock()
	if current != nil {
		return current, nil
	}

	h.loading.Add(1)
	defer h.loading.Add(-1)

	start := time.Now()
	c, err := h.callLoader()
	if err != nil {
		h.logger.Error("Model load failed", "model_path", h.path, "error", err)
		return nil, err
	}

	h.mu.Lock()
	kept := h.gen == gen
	if kept {
		h.current = c
	}
	h.mu.Unlock()

	h.logger.Info("Model loaded",
		"model_path", h.path,
		"model_id", c.ID(),
		"classes", len(c.Classes()),
		"duration_ms", time.Since(start).Milliseconds(),
		"kept", kept)
	return c, nil
}

func (h *Handle) callLoader() (c Classifier, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("%w: loader panic: %v", ErrModelLoad, r)
		}
	}()
	c, err = h.loader(h.path)
	if err == nil && c == nil {
		err = fmt.Errorf("%w: loader returned no classifier", ErrModelLoad)
	}
	if err == nil && h.schema != nil {
		if err = checkSchema(c.FeatureNames(), h.schema); err != nil {
			c = nil
		}
	}
	return c, err
}

func checkSchema(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: artifact has %d features, want %d (%s)",
			ErrModelLoad, len(got), len(want), strings.Join(want, ", "))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("%w: feature %d is %q, want %q", ErrModelLoad, i, got[i], want[i])
		}
	}
	return nil
}
