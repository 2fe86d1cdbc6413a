package services

import (
	"errors"

	"github.com/aigoflow/classifier-service/internal/features"
	"github.com/aigoflow/classifier-service/internal/model"
)

// ErrInference covers any failure inside the classifier itself. Its cause is
// logged and never shown to callers.
var ErrInference = errors.New("inference failed")

// ErrorKind is the caller-facing category of a prediction failure.
type ErrorKind string

const (
	KindMalformed     ErrorKind = "malformed_request"
	KindSchema        ErrorKind = "schema_error"
	KindModelNotFound ErrorKind = "model_not_found"
	KindModelLoad     ErrorKind = "model_load_error"
	KindInference     ErrorKind = "inference_error"
)

// Describe maps err to its kind and the message that is safe to return to a
// caller.
func Describe(err error) (ErrorKind, string) {
	switch {
	case errors.Is(err, features.ErrMalformed):
		return KindMalformed, "Invalid input data: " + err.Error()
	case errors.Is(err, features.ErrSchema):
		return KindSchema, "Validation error: " + err.Error()
	case errors.Is(err, model.ErrModelNotFound):
		return KindModelNotFound, "Model not available: artifact not found"
	case errors.Is(err, model.ErrModelLoad):
		return KindModelLoad, "Model not available: artifact could not be loaded"
	default:
		return KindInference, "Prediction failed due to an internal error"
	}
}
