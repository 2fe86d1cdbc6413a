package models

import "time"

// PredictionLog represents one recorded prediction, successful or not
type PredictionLog struct {
	Timestamp         time.Time `json:"ts"`
	TraceID           string    `json:"trace_id"`
	ReqID             string    `json:"req_id"`
	WorkerID          string    `json:"worker_id"`
	Source            string    `json:"source"`
	ModelID           string    `json:"model_id"`
	FeaturesJSON      string    `json:"features_json"`
	Label             *int      `json:"prediction"`
	ProbabilitiesJSON string    `json:"probabilities_json"`
	Cached            bool      `json:"cached"`
	DurationMs        float64   `json:"dur_ms"`
	Status            string    `json:"status"`
	Error             string    `json:"error"`
}

// Event is an entry of the lifecycle event log
type Event struct {
	Timestamp time.Time `json:"ts"`
	Level     string    `json:"level"`
	Code      string    `json:"code"`
	Message   string    `json:"msg"`
	MetaJSON  string    `json:"meta"`
}
