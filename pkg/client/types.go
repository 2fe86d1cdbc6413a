package client

import "time"

// Features is one record in the generic HTTP schema. Feature5 is accepted
// by the service and ignored by the model.
type Features struct {
	Feature1 float64 `json:"feature1"`
	Feature2 float64 `json:"feature2"`
	Feature3 float64 `json:"feature3"`
	Feature4 float64 `json:"feature4"`
	Feature5 float64 `json:"feature5"`
}

// Map returns f keyed by the generic field names.
func (f Features) Map() map[string]float64 {
	return map[string]float64{
		"feature1": f.Feature1,
		"feature2": f.Feature2,
		"feature3": f.Feature3,
		"feature4": f.Feature4,
		"feature5": f.Feature5,
	}
}

// Prediction is the result of a successful classification.
type Prediction struct {
	Label         int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
}

// PredictionRequest is published on the prediction work queue
type PredictionRequest struct {
	TraceID  string             `json:"trace_id,omitempty"`
	ReqID    string             `json:"req_id"`
	Features map[string]float64 `json:"features"`
	ReplyTo  string             `json:"reply_to,omitempty"`
}

// PredictionResponse is the reply to a queued prediction
type PredictionResponse struct {
	ReqID         string    `json:"req_id"`
	Prediction    *int      `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
	DurationMs    int64     `json:"duration_ms"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// HealthStatus represents model health information published over NATS
type HealthStatus struct {
	ModelName        string    `json:"model_name"`
	Status           string    `json:"status"`
	ModelState       string    `json:"model_state"`
	ModelPath        string    `json:"model_path"`
	ModelID          string    `json:"model_id,omitempty"`
	LastActivity     time.Time `json:"last_activity"`
	Capabilities     []string  `json:"capabilities"`
	Endpoint         string    `json:"endpoint"`
	NATSTopic        string    `json:"nats_topic"`
	Version          string    `json:"version"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
	TotalPredictions float64   `json:"total_predictions"`
	TotalErrors      float64   `json:"total_errors"`
	Backpressure     string    `json:"backpressure,omitempty"`
}
