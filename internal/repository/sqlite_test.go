package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/classifier-service/internal/models"
	"github.com/aigoflow/classifier-service/internal/store"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "predictions.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db)
}

func TestPredictionLogRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	label := 2

	require.NoError(t, repo.Prediction().LogPrediction(ctx, &models.PredictionLog{
		Timestamp:         time.Now(),
		ReqID:             "req-1",
		Source:            "http",
		ModelID:           "01HZX",
		FeaturesJSON:      `{"feature1":6.3}`,
		Label:             &label,
		ProbabilitiesJSON: `[0.01,0.1,0.89]`,
		DurationMs:        1.5,
		Status:            "ok",
	}))
	require.NoError(t, repo.Prediction().LogPrediction(ctx, &models.PredictionLog{
		Timestamp: time.Now(),
		ReqID:     "req-2",
		Source:    "nats.prediction.request.iris",
		Status:    "error",
		Error:     "schema_error",
	}))

	logs, err := repo.Prediction().GetPredictionLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	// newest first
	assert.Equal(t, "req-2", logs[0].ReqID)
	assert.Nil(t, logs[0].Label)
	assert.Equal(t, "error", logs[0].Status)

	assert.Equal(t, "req-1", logs[1].ReqID)
	require.NotNil(t, logs[1].Label)
	assert.Equal(t, 2, *logs[1].Label)
	assert.Equal(t, `[0.01,0.1,0.89]`, logs[1].ProbabilitiesJSON)
	assert.WithinDuration(t, time.Now(), logs[1].Timestamp, time.Minute)

	limited, err := repo.Prediction().GetPredictionLogs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestEmptyPredictionLogIsNotNil(t *testing.T) {
	logs, err := newTestRepo(t).Prediction().GetPredictionLogs(context.Background(), 50)
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

func TestEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Event().LogEvent(ctx, "info", "startup", "Server starting", map[string]interface{}{"port": 8000}))
	require.NoError(t, repo.Event().LogEvent(ctx, "error", "model.failed", "Model loading failed", nil))

	events, err := repo.Event().GetEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "model.failed", events[0].Code)
	assert.Equal(t, `{"port":8000}`, events[1].MetaJSON)
}
