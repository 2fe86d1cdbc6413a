package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestHandlerFormats(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newHandler(&buf, LogConfig{Level: "info", Format: "json"})).Info("Model loaded", "model_path", "models/model.pkl")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Model loaded", entry["msg"])
	assert.Equal(t, "models/model.pkl", entry["model_path"])

	buf.Reset()
	slog.New(newHandler(&buf, LogConfig{Level: "warn", Format: "text"})).Info("dropped")
	assert.Empty(t, buf.String())
}

func TestDisabledTracing(t *testing.T) {
	tr, err := NewTracing(context.Background(), TraceConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, tr.Enabled())
	assert.NotNil(t, tr.Tracer())
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestHTTPMiddlewarePassesThrough(t *testing.T) {
	h := HTTPMiddleware("classifier-service")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
