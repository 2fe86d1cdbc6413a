package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the HTTP API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Detail)
}

// HTTPClient calls the REST surface of the service.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient returns a client for the service at baseURL, e.g.
// "http://localhost:8000".
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Health calls GET /health and returns the reported status.
func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &body); err != nil {
		return "", err
	}
	return body.Status, nil
}

// Predict calls POST /predict.
func (c *HTTPClient) Predict(ctx context.Context, f Features) (*Prediction, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal features: %w", err)
	}
	var p Prediction
	if err := c.do(ctx, http.MethodPost, "/predict", payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Metrics returns the raw text of GET /metrics.
func (c *HTTPClient) Metrics(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, "/metrics", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics: %w", err)
	}
	return string(text), nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// send performs the request and turns non-2xx answers into *APIError.
func (c *HTTPClient) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode, Detail: http.StatusText(resp.StatusCode)}
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err == nil && detail.Detail != "" {
		apiErr.Detail = detail.Detail
	}
	return nil, apiErr
}
