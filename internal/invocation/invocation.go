// Package invocation defines the unit of plugin work flowing through the
// fanout queue and worker.
package invocation

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a queued invocation.
type Status string

const (
	// StatusPending means the invocation is waiting to be claimed by the consumer.
	StatusPending Status = "pending"
	// StatusRunning means the invocation has been claimed and is executing.
	StatusRunning Status = "running"
	// StatusCompleted means the invocation was executed and a result was recorded.
	StatusCompleted Status = "completed"
	// StatusFailed means execution errored terminally after exhausting attempts.
	StatusFailed Status = "failed"
)

// Invocation is one unit of plugin work submitted for execution.
type Invocation struct {
	ID         string          `json:"id"`
	PluginName string          `json:"plugin"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
	Status     Status          `json:"status"`
	Attempt    int             `json:"attempt"`
	NotBefore  time.Time       `json:"not_before,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Result is the outcome of executing one invocation.
//
// Success reflects what the plugin itself reported. A plugin that runs to
// completion but reports a failure still produces a Result; only process-level
// errors (spawn failure, timeout, open circuit) surface as Go errors instead.
type Result struct {
	InvocationID string          `json:"invocation_id"`
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	FinishedAt   time.Time       `json:"finished_at"`
}
