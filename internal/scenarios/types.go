package scenarios

import "time"

// Status represents the lifecycle state of a scenario.
type Status string

const (
	// StatusDraft indicates the scenario is being edited and never matches.
	StatusDraft Status = "draft"
	// StatusActive indicates the scenario matches inbound triggers.
	StatusActive Status = "active"
	// StatusDisabled indicates the scenario is paused. Disabling only
	// prevents new runs; in-flight runs complete on their own.
	StatusDisabled Status = "disabled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusDisabled:
		return true
	}
	return false
}

// NodeSpec is one executable step within a scenario. Position values are
// unique within a scenario and define execution order.
type NodeSpec struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Position int            `json:"position"`
	Config   map[string]any `json:"config"`
}

// Scenario is a stored, ordered list of node specifications executed
// together in response to a matching trigger key.
type Scenario struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Name           string     `json:"name"`
	TriggerKey     string     `json:"trigger_key"`
	Status         Status     `json:"status"`
	Nodes          []NodeSpec `json:"nodes"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
