package tracker

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/classifier-service/internal/metrics"
)

func TestMiddlewareSetsHeaders(t *testing.T) {
	m := metrics.NewRegistry()
	var seenID string
	h := New(m, nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestID(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	id := rec.Header().Get(HeaderRequestID)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, seenID, id)

	elapsed, err := strconv.ParseFloat(rec.Header().Get(HeaderProcessTime), 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 0.0)

	assert.Equal(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, 1.0, m.Value(metrics.Requests))
}

func TestMiddlewareHeadersOnErrorAndEmptyResponses(t *testing.T) {
	m := metrics.NewRegistry()
	tr := New(m, nil)

	for _, handler := range []http.HandlerFunc{
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnprocessableEntity) },
		func(w http.ResponseWriter, r *http.Request) {},
	} {
		rec := httptest.NewRecorder()
		tr.Middleware(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", nil))
		assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
		assert.NotEmpty(t, rec.Header().Get(HeaderProcessTime))
	}
	assert.Equal(t, 2.0, m.Value(metrics.Requests))
}

func TestMiddlewareMeasuresWithClock(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	calls := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return base.Add(time.Duration(calls-1) * 250 * time.Millisecond)
	}

	h := New(metrics.NewRegistry(), nil, WithClock(clock), WithIDGenerator(func() string { return "fixed-id" })).
		Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "fixed-id", rec.Header().Get(HeaderRequestID))
	assert.Equal(t, "0.25", rec.Header().Get(HeaderProcessTime))
}

func TestRequestIDsAreUnique(t *testing.T) {
	tr := New(metrics.NewRegistry(), nil)
	h := tr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		id := rec.Header().Get(HeaderRequestID)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "1.5", FormatSeconds(1500*time.Millisecond))
	assert.Equal(t, "0.000123", FormatSeconds(123*time.Microsecond))
}
