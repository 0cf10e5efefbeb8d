package runs

import "time"

// Status represents the state of a scenario run. Transitions are
// monotonic: pending -> running -> (succeeded | failed).
type Status string

const (
	// StatusPending indicates the run is queued for the engine.
	StatusPending Status = "pending"
	// StatusRunning indicates the engine is walking the node list.
	StatusRunning Status = "running"
	// StatusSucceeded indicates every node completed (or there were none).
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates a node failed and execution halted.
	StatusFailed Status = "failed"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Run is one execution instance of a scenario, created per matched webhook
// delivery. The correlation ID is immutable and exists for traceability,
// not dedup.
type Run struct {
	ID                   string     `json:"id"`
	ScenarioID           string     `json:"scenario_id"`
	TriggerKey           string     `json:"trigger_key"`
	ConnectionID         string     `json:"connection_id,omitempty"`
	CorrelationID        string     `json:"correlation_id"`
	Payload              string     `json:"payload"` // normalized envelope data, JSON
	Status               Status     `json:"status"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	DurationMs           int64      `json:"duration_ms"`
	CurrentNodeID        string     `json:"current_node_id,omitempty"`
	Progress             int        `json:"progress"` // 0-100, nodes completed
	EstimatedRemainingMs *int64     `json:"estimated_remaining_ms,omitempty"`
	Error                string     `json:"error,omitempty"`
}

// NodeResultStatus is the outcome of one node execution.
type NodeResultStatus string

const (
	NodeResultSuccess NodeResultStatus = "success"
	NodeResultFailure NodeResultStatus = "failure"
)

// NodeResult records one node execution within a run. Results are
// append-only and feed per-node-type aggregate metrics.
type NodeResult struct {
	ID         string           `json:"id"`
	RunID      string           `json:"run_id"`
	NodeID     string           `json:"node_id"`
	NodeType   string           `json:"node_type"`
	Status     NodeResultStatus `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	DurationMs int64            `json:"duration_ms"`
	Attempts   int              `json:"attempts"`
	Error      string           `json:"error,omitempty"`
}
