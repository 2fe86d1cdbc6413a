package services

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/classifier-service/internal/features"
	"github.com/aigoflow/classifier-service/internal/metrics"
	"github.com/aigoflow/classifier-service/internal/model"
	"github.com/aigoflow/classifier-service/internal/repository"
	"github.com/aigoflow/classifier-service/internal/store"
)

func irisArtifact() *model.Artifact {
	return &model.Artifact{
		Kind:         model.KindLogisticRegression,
		FeatureNames: features.CanonicalNames[:],
		Classes:      []int{0, 1, 2},
		Logistic: &model.LogisticParams{
			Coef: [][]float64{
				{-0.42, 0.97, -2.52, -1.08},
				{0.53, -0.32, -0.21, -0.94},
				{-0.11, -0.65, 2.73, 2.02},
			},
			Intercept: []float64{9.85, 2.24, -12.09},
		},
	}
}

func newHandle(t *testing.T, loads *atomic.Int32) *model.Handle {
	t.Helper()
	return model.NewHandle("unused", model.WithLoader(func(string) (model.Classifier, error) {
		if loads != nil {
			loads.Add(1)
		}
		return model.Build(irisArtifact())
	}))
}

// stubClassifier lets tests force classifier failures.
type stubClassifier struct {
	label    int
	err      error
	panicMsg string
	calls    atomic.Int32
}

func (c *stubClassifier) Classify(x []float64) (int, error) {
	c.calls.Add(1)
	if c.panicMsg != "" {
		panic(c.panicMsg)
	}
	return c.label, c.err
}
func (c *stubClassifier) Classes() []int         { return []int{0, 1} }
func (c *stubClassifier) FeatureNames() []string { return features.CanonicalNames[:] }
func (c *stubClassifier) ID() string             { return "stub" }

type stubProvider struct {
	clf model.Classifier
	err error
}

func (p stubProvider) Get(context.Context) (model.Classifier, error) { return p.clf, p.err }

var setosa = features.Input{"feature1": 5.1, "feature2": 3.5, "feature3": 1.4, "feature4": 0.2, "feature5": 0.1}

func TestPredictSetosa(t *testing.T) {
	m := metrics.NewRegistry()
	svc := NewPredictionService(newHandle(t, nil), m)

	res, err := svc.Predict(context.Background(), setosa)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Label)
	require.Len(t, res.Probabilities, 3)
	assert.Greater(t, res.Probabilities[0], 0.9)

	var sum float64
	for _, p := range res.Probabilities {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 0.01)
	assert.Equal(t, 1.0, m.Value(metrics.Predictions))
	assert.Equal(t, 0.0, m.Value(metrics.Errors))
}

func TestPredictIsDeterministic(t *testing.T) {
	svc := NewPredictionService(newHandle(t, nil), metrics.NewRegistry())
	in := features.Input{"feature1": 6.1, "feature2": 2.8, "feature3": 4.7, "feature4": 1.2, "feature5": 9}

	first, err := svc.Predict(context.Background(), in)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		again, err := svc.Predict(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPredictPayload(t *testing.T) {
	m := metrics.NewRegistry()
	svc := NewPredictionService(newHandle(t, nil), m)

	res, err := svc.PredictPayload(context.Background(), []byte(`{"feature1": 6.3, "feature2": 3.3, "feature3": 6.0, "feature4": 2.5, "feature5": 0.3}`))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Label)

	_, err = svc.PredictPayload(context.Background(), []byte(`{"feature1": 6.3}`))
	assert.ErrorIs(t, err, features.ErrSchema)

	_, err = svc.PredictPayload(context.Background(), []byte(`{"feature1": `))
	assert.ErrorIs(t, err, features.ErrMalformed)

	assert.Equal(t, 3.0, m.Value(metrics.Predictions))
	assert.Equal(t, 2.0, m.Value(metrics.Errors))
}

func TestPredictCountsAttemptsAndFailures(t *testing.T) {
	m := metrics.NewRegistry()
	svc := NewPredictionService(newHandle(t, nil), m)

	const successes, failures = 7, 3
	for i := 0; i < successes; i++ {
		_, err := svc.Predict(context.Background(), setosa)
		require.NoError(t, err)
	}
	for i := 0; i < failures; i++ {
		_, err := svc.Predict(context.Background(), features.Input{"unknown": 1})
		require.ErrorIs(t, err, features.ErrSchema)
	}

	assert.Equal(t, float64(successes+failures), m.Value(metrics.Predictions))
	assert.Equal(t, float64(failures), m.Value(metrics.Errors))
}

func TestPredictModelErrorsPassThrough(t *testing.T) {
	for _, want := range []error{model.ErrModelNotFound, model.ErrModelLoad} {
		m := metrics.NewRegistry()
		svc := NewPredictionService(stubProvider{err: want}, m)

		_, err := svc.Predict(context.Background(), setosa)
		assert.ErrorIs(t, err, want)
		assert.Equal(t, 1.0, m.Value(metrics.Errors))
	}
}

func TestPredictHidesClassifierErrors(t *testing.T) {
	secret := errors.New("coefficient matrix at 0xdeadbeef is singular")
	svc := NewPredictionService(stubProvider{clf: &stubClassifier{err: secret}}, metrics.NewRegistry())

	_, err := svc.Predict(context.Background(), setosa)
	require.ErrorIs(t, err, ErrInference)
	assert.NotContains(t, err.Error(), "0xdeadbeef")

	kind, msg := Describe(err)
	assert.Equal(t, KindInference, kind)
	assert.Equal(t, "Prediction failed due to an internal error", msg)
}

func TestPredictRecoversClassifierPanic(t *testing.T) {
	m := metrics.NewRegistry()
	svc := NewPredictionService(stubProvider{clf: &stubClassifier{panicMsg: "index out of range"}}, m)

	_, err := svc.Predict(context.Background(), setosa)
	assert.ErrorIs(t, err, ErrInference)
	assert.Equal(t, 1.0, m.Value(metrics.Errors))
}

func TestPredictWithoutProbabilityEstimator(t *testing.T) {
	svc := NewPredictionService(stubProvider{clf: &stubClassifier{label: 1}}, metrics.NewRegistry())

	res, err := svc.Predict(context.Background(), setosa)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Label)
	assert.Nil(t, res.Probabilities)
}

// stubEstimator reports a fixed probability row.
type stubEstimator struct {
	stubClassifier
	probs []float64
}

func (c *stubEstimator) PredictProba([]float64) ([]float64, error) { return c.probs, nil }

func TestPredictRejectsInvalidProbabilities(t *testing.T) {
	tests := []struct {
		name  string
		probs []float64
	}{
		{"nan", []float64{math.NaN(), 0.5}},
		{"infinite", []float64{math.Inf(1), 0}},
		{"negative", []float64{-0.2, 1.2}},
		{"above one", []float64{1.5, 0.5}},
		{"bad sum", []float64{0.3, 0.3}},
		{"wrong length", []float64{0.2, 0.3, 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewRegistry()
			svc := NewPredictionService(stubProvider{clf: &stubEstimator{probs: tt.probs}}, m)

			_, err := svc.Predict(context.Background(), setosa)
			assert.ErrorIs(t, err, ErrInference)
			assert.Equal(t, 1.0, m.Value(metrics.Errors))
		})
	}

	svc := NewPredictionService(stubProvider{clf: &stubEstimator{probs: []float64{0.25, 0.749}}}, metrics.NewRegistry())
	res, err := svc.Predict(context.Background(), setosa)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.749}, res.Probabilities)
}

func TestPredictCacheServesRepeatedVectors(t *testing.T) {
	clf := &stubClassifier{label: 1}
	svc := NewPredictionService(stubProvider{clf: clf}, metrics.NewRegistry(), WithCache(8))

	for i := 0; i < 3; i++ {
		res, err := svc.Predict(context.Background(), setosa)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Label)
	}
	assert.Equal(t, int32(1), clf.calls.Load())
}

func TestPredictCacheReturnsCopies(t *testing.T) {
	svc := NewPredictionService(newHandle(t, nil), metrics.NewRegistry(), WithCache(8))

	first, err := svc.Predict(context.Background(), setosa)
	require.NoError(t, err)
	want := first.Probabilities[0]
	first.Probabilities[0] = -1

	second, err := svc.Predict(context.Background(), setosa)
	require.NoError(t, err)
	assert.Equal(t, want, second.Probabilities[0])
}

func TestPredictCacheKeyedByModelInstance(t *testing.T) {
	var loads atomic.Int32
	h := newHandle(t, &loads)
	svc := NewPredictionService(h, metrics.NewRegistry(), WithCache(8))

	_, err := svc.Predict(context.Background(), setosa)
	require.NoError(t, err)
	h.Reset()
	_, err = svc.Predict(context.Background(), setosa)
	require.NoError(t, err)

	assert.Equal(t, int32(2), loads.Load())
	assert.Equal(t, 2, svc.cache.Len())
}

func TestConcurrentPredictionsShareOneLoad(t *testing.T) {
	var loads atomic.Int32
	m := metrics.NewRegistry()
	svc := NewPredictionService(newHandle(t, &loads), m)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Predict(context.Background(), setosa)
			assert.NoError(t, err)
			if res != nil {
				assert.Equal(t, 0, res.Label)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, float64(n), m.Value(metrics.Predictions))
}

func TestPredictRecordsToRepository(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "log.sqlite"))
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewSQLiteRepository(db)

	svc := NewPredictionService(newHandle(t, nil), metrics.NewRegistry(), WithRepository(repo))
	assert.True(t, svc.LogsEnabled())

	ctx := WithRequestMeta(context.Background(), RequestMeta{ReqID: "req-42", Source: "http"})
	_, err = svc.Predict(ctx, setosa)
	require.NoError(t, err)
	_, err = svc.Predict(ctx, features.Input{})
	require.Error(t, err)

	logs, err := svc.GetPredictionLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "error", logs[0].Status)
	assert.Equal(t, string(KindSchema), logs[0].Error)

	assert.Equal(t, "ok", logs[1].Status)
	assert.Equal(t, "req-42", logs[1].ReqID)
	assert.Equal(t, "req-42", logs[1].TraceID)
	require.NotNil(t, logs[1].Label)
	assert.Equal(t, 0, *logs[1].Label)
	assert.Contains(t, logs[1].FeaturesJSON, `"feature1":5.1`)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{features.ErrMalformed, KindMalformed},
		{features.ErrSchema, KindSchema},
		{model.ErrModelNotFound, KindModelNotFound},
		{model.ErrModelLoad, KindModelLoad},
		{ErrInference, KindInference},
		{errors.New("anything else"), KindInference},
	}
	for _, tt := range tests {
		kind, msg := Describe(tt.err)
		assert.Equal(t, tt.kind, kind)
		assert.NotEmpty(t, msg)
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestPredictBodyCountsReadFailures(t *testing.T) {
	m := metrics.NewRegistry()
	svc := NewPredictionService(newHandle(t, nil), m)

	readErr := errors.New("connection reset")
	_, err := svc.PredictBody(context.Background(), failingReader{readErr})
	assert.ErrorIs(t, err, features.ErrMalformed)
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, 1.0, m.Value(metrics.Predictions))
	assert.Equal(t, 1.0, m.Value(metrics.Errors))

	res, err := svc.PredictBody(context.Background(), strings.NewReader(`{"feature1": 5.1, "feature2": 3.5, "feature3": 1.4, "feature4": 0.2, "feature5": 0.1}`))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Label)
	assert.Equal(t, 2.0, m.Value(metrics.Predictions))
	assert.Equal(t, 1.0, m.Value(metrics.Errors))
}
