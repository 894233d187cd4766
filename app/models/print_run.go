package models

import "time"

// RunState is the position of a print run in its state machine
type RunState string

const (
	RunReceived             RunState = "received"
	RunDuplicateCheck       RunState = "duplicate_check"
	RunAwaitingConfirmation RunState = "awaiting_confirmation"
	RunRendering            RunState = "rendering"
	RunDispatching          RunState = "dispatching"
	RunCommitted            RunState = "committed"
	RunAborted              RunState = "aborted"
)

func (s RunState) String() string {
	return string(s)
}

// Terminal reports whether no further transition can happen
func (s RunState) Terminal() bool {
	return s == RunCommitted || s == RunAborted
}

// PrintRequest is what the UI hands to the orchestrator
type PrintRequest struct {
	OrderID  string      `json:"order_id"`
	Customer string      `json:"customer"`
	BoxCount int         `json:"box_count"`
	Target   PrintTarget `json:"target"`
}

// PrintRun is a snapshot of one print request and its outcome
type PrintRun struct {
	ID           string      `json:"id"`
	OrderID      string      `json:"order_id"`
	Customer     string      `json:"customer"`
	BoxCount     int         `json:"box_count"`
	Target       PrintTarget `json:"target"`
	State        RunState    `json:"state"`
	Duplicate    bool        `json:"duplicate"`
	PriorPrints  int         `json:"prior_prints"`
	CopiesSent   int         `json:"copies_sent"`
	FailedCopy   int         `json:"failed_copy,omitempty"`
	ArtifactPath string      `json:"artifact_path,omitempty"`
	Error        string      `json:"error,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
