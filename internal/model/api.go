package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeUnavailable   = "UNAVAILABLE"
)

// CreateRunRequest is the request body for POST /v1/runs.
type CreateRunRequest struct {
	Input string `json:"input"`
}

// TraceResponse is the body of GET /v1/traces/{trace_id}.
type TraceResponse struct {
	TraceID          string  `json:"trace_id"`
	TotalLatencySecs float64 `json:"total_latency_s"`
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	Spans            []Span  `json:"spans"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Storage       string `json:"storage"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
