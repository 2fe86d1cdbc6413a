package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/classifier-service/pkg/client"
)

func fakeService(t *testing.T, predictions *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		var f client.Features
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if predictions != nil {
			predictions.Add(1)
		}
		label := 0
		switch {
		case f.Feature3 > 5:
			label = 2
		case f.Feature3 > 2.5:
			label = 1
		}
		_ = json.NewEncoder(w).Encode(client.Prediction{Label: label, Probabilities: []float64{0.2, 0.3, 0.5}})
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("app_total_predictions 7\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		outputFmt = "text"
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestHealthCommand(t *testing.T) {
	srv := fakeService(t, nil)

	out, err := execute(t, "health", "--api-url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Status: ok\n", out)

	out, err = execute(t, "health", "--api-url", srv.URL, "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "ok"}`, out)
}

func TestHealthCommandUnreachable(t *testing.T) {
	srv := fakeService(t, nil)
	url := srv.URL
	srv.Close()

	_, err := execute(t, "health", "--api-url", url)
	assert.Error(t, err)
}

func TestPredictCommand(t *testing.T) {
	srv := fakeService(t, nil)

	out, err := execute(t, "predict", "--api-url", srv.URL,
		"--feature1", "6.3", "--feature2", "3.3", "--feature3", "6.0", "--feature4", "2.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Prediction: 2")
	assert.Contains(t, out, "2=0.5000")
}

func TestPredictCommandRejectsUnknownTransport(t *testing.T) {
	t.Cleanup(func() { predictTransport = "http" })
	_, err := execute(t, "predict", "--transport", "carrier-pigeon",
		"--feature1", "1", "--feature2", "1", "--feature3", "1", "--feature4", "1")
	assert.ErrorContains(t, err, "unknown transport")
}

func TestMetricsCommand(t *testing.T) {
	srv := fakeService(t, nil)

	out, err := execute(t, "metrics", "--api-url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "app_total_predictions 7\n", out)
}

func TestBenchCommand(t *testing.T) {
	var predictions atomic.Int32
	srv := fakeService(t, &predictions)

	out, err := execute(t, "bench", "--api-url", srv.URL, "-n", "6")
	require.NoError(t, err)
	assert.Equal(t, int32(6), predictions.Load())
	assert.Contains(t, out, "Requests:   6 (0 failed)")
	assert.Contains(t, out, "Label 0:    2")
	assert.Contains(t, out, "Label 1:    2")
	assert.Contains(t, out, "Label 2:    2")
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(6), percentile(sorted, 0.5))
	assert.Equal(t, time.Duration(10), percentile(sorted, 0.95))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
}

func TestPrintHeartbeat(t *testing.T) {
	var buf bytes.Buffer
	printHeartbeat(&buf, client.HealthStatus{
		ModelName:        "iris",
		Status:           "online",
		ModelState:       "loaded",
		UptimeSeconds:    90,
		TotalPredictions: 12,
		LastActivity:     time.Now(),
	})
	line := buf.String()
	assert.Contains(t, line, "iris")
	assert.Contains(t, line, "online")
	assert.Contains(t, line, "1m30s")
	assert.Contains(t, line, "12")
}
