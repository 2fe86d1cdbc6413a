package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aigoflow/classifier-service/internal/services"
	"github.com/aigoflow/classifier-service/internal/tracker"
)

const (
	maxBodyBytes    = 1 << 20
	defaultLogLimit = 50
	maxLogLimit     = 1000
)

type PredictionHandler struct {
	predictionService *services.PredictionService
}

func NewPredictionHandler(predictionService *services.PredictionService) *PredictionHandler {
	return &PredictionHandler{
		predictionService: predictionService,
	}
}

func (h *PredictionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/predict", h.handlePredict)
	if h.predictionService.LogsEnabled() {
		r.Get("/logs", h.handleLogs)
	}
}

func (h *PredictionHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx := services.WithRequestMeta(r.Context(), services.RequestMeta{
		TraceID: r.Header.Get("X-Trace-ID"),
		ReqID:   tracker.RequestID(r.Context()),
		Source:  "http",
	})

	result, err := h.predictionService.PredictBody(ctx, http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PredictionHandler) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusUnprocessableEntity, "Validation error: limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}

	logs, err := h.predictionService.GetPredictionLogs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get logs: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
