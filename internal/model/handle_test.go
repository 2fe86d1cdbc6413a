package model

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(calls *atomic.Int32, delay time.Duration, err error) LoaderFunc {
	return func(path string) (Classifier, error) {
		calls.Add(1)
		time.Sleep(delay)
		if err != nil {
			return nil, err
		}
		return Build(logisticArtifact())
	}
}

func TestHandleConcurrentFirstGetLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	h := NewHandle("unused", WithLoader(countingLoader(&calls, 50*time.Millisecond, nil)))

	const n = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]Classifier, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = h.Get(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, StateLoaded, h.State())
}

func TestHandleReturnsCachedInstance(t *testing.T) {
	var calls atomic.Int32
	h := NewHandle("unused", WithLoader(countingLoader(&calls, 0, nil)))

	a, err := h.Get(context.Background())
	require.NoError(t, err)
	b, err := h.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHandleResetReloads(t *testing.T) {
	var calls atomic.Int32
	h := NewHandle("unused", WithLoader(countingLoader(&calls, 0, nil)))

	a, err := h.Get(context.Background())
	require.NoError(t, err)

	h.Reset()
	assert.Equal(t, StateUnloaded, h.State())

	b, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, int32(2), calls.Load())
}

func TestHandleFailuresAreShared(t *testing.T) {
	var calls atomic.Int32
	loadErr := errors.New("disk on fire")
	h := NewHandle("unused", WithLoader(countingLoader(&calls, 50*time.Millisecond, loadErr)))

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.Get(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, loadErr)
	}
	assert.Equal(t, StateUnloaded, h.State())
}

func TestHandleRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	h := NewHandle("unused", WithLoader(func(path string) (Classifier, error) {
		if calls.Add(1) == 1 {
			return nil, ErrModelLoad
		}
		return Build(logisticArtifact())
	}))

	_, err := h.Get(context.Background())
	require.ErrorIs(t, err, ErrModelLoad)

	c, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHandleResetDuringLoadDiscardsResult(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var calls atomic.Int32
	h := NewHandle("unused", WithLoader(func(path string) (Classifier, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return Build(logisticArtifact())
	}))

	done := make(chan Classifier)
	go func() {
		c, err := h.Get(context.Background())
		assert.NoError(t, err)
		done <- c
	}()

	<-entered
	assert.Equal(t, StateLoading, h.State())
	h.Reset()
	close(release)

	inflight := <-done
	require.NotNil(t, inflight)
	assert.Equal(t, StateUnloaded, h.State())

	fresh, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, inflight.ID(), fresh.ID())
	assert.Equal(t, int32(2), calls.Load())
}

func TestHandleRecoversLoaderPanic(t *testing.T) {
	h := NewHandle("unused", WithLoader(func(path string) (Classifier, error) {
		panic("boom")
	}))

	_, err := h.Get(context.Background())
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestHandleCancelledCallerReturnsEarly(t *testing.T) {
	release := make(chan struct{})
	h := NewHandle("unused", WithLoader(func(path string) (Classifier, error) {
		<-release
		return Build(logisticArtifact())
	}))
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandleDefaultLoaderMissingFile(t *testing.T) {
	h := NewHandle(filepath.Join(t.TempDir(), "model.pkl"))
	_, err := h.Get(context.Background())
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.Equal(t, StateUnloaded, h.State())
}

func TestHandleSchemaMismatch(t *testing.T) {
	tests := []struct {
		name  string
		names []string
	}{
		{"permuted", []string{"petal width (cm)", "sepal width (cm)", "petal length (cm)", "sepal length (cm)"}},
		{"renamed", []string{"sepal length (cm)", "bogus", "petal length (cm)", "petal width (cm)"}},
		{"short", irisFeatures[:3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := logisticArtifact()
			a.FeatureNames = tt.names
			if len(tt.names) == 3 {
				for i := range a.Logistic.Coef {
					a.Logistic.Coef[i] = a.Logistic.Coef[i][:3]
				}
			}
			h := NewHandle("unused", WithSchema(irisFeatures...), WithLoader(func(string) (Classifier, error) {
				return Build(a)
			}))

			_, err := h.Get(context.Background())
			assert.ErrorIs(t, err, ErrModelLoad)
			assert.Equal(t, StateUnloaded, h.State())
		})
	}
}

func TestHandleSchemaMatch(t *testing.T) {
	h := NewHandle("unused", WithSchema(irisFeatures...), WithLoader(func(string) (Classifier, error) {
		return Build(logisticArtifact())
	}))
	c, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, irisFeatures, c.FeatureNames())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unloaded", StateUnloaded.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "loaded", StateLoaded.String())
}
