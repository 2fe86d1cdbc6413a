package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aigoflow/classifier-service/internal/services"
)

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Detail: message})
}

// StatusFor maps a prediction failure kind to its HTTP status.
func StatusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindMalformed:
		return http.StatusBadRequest
	case services.KindSchema:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	kind, message := services.Describe(err)
	writeError(w, StatusFor(kind), message)
}

// NotFound answers unknown paths in the same JSON shape as other errors.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not Found")
}

// MethodNotAllowed answers a known path called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}
