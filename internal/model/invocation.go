package model

import (
	"encoding/json"
	"time"
)

// Invocation status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning:   true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether status is a final state.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// Invocation is the persisted record of one function request.
type Invocation struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Function      string          `json:"function"`
	Datasource    string          `json:"datasource"`
	Account       string          `json:"account,omitempty"`
	InputHash     string          `json:"input_hash,omitempty"`
	Input         json.RawMessage `json:"input,omitempty"`
	Outputs       []Output        `json:"outputs,omitempty"`
	SubOperations *int            `json:"sub_operations,omitempty"`
	Error         string          `json:"error,omitempty"`
	DurationMS    *int            `json:"duration_ms,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// NewInvocation builds a pending invocation record for req.
func NewInvocation(req Request) *Invocation {
	return &Invocation{
		ID:         NewID(),
		Status:     StatusPending,
		Function:   req.Function,
		Datasource: req.Identity.Datasource,
		Account:    req.Identity.Account,
		InputHash:  req.InputKey(),
		Input:      req.Input,
		CreatedAt:  time.Now().UTC(),
	}
}
