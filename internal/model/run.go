// Package model defines the core domain types for the incident response loop.
//
// Types are plain structs with JSON tags so they can be rendered in logs,
// reports and prompts without extra mapping.
package model

import "time"

// RunStatus represents the lifecycle state of an orchestration run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusResolved   RunStatus = "resolved"
	RunStatusUnresolved RunStatus = "unresolved"
	RunStatusFailed     RunStatus = "failed"
)

// Run is the outcome of one orchestration run. Corresponds to one trace.
type Run struct {
	TraceID     string         `json:"trace_id"`
	Input       string         `json:"input"`
	Status      RunStatus      `json:"status"`
	Loops       int            `json:"loops"`
	Report      map[string]any `json:"report"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
