package store

import (
	"context"
	"errors"

	"github.com/seantiz/vantage/internal/model"
)

var (
	// ErrNotFound is returned when an invocation does not exist.
	ErrNotFound = errors.New("invocation not found")

	// ErrInvalidTransition is returned when an invocation status transition is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ListFilter narrows ListInvocations. Empty fields match everything.
type ListFilter struct {
	Function   string
	Datasource string
	Status     string
	Limit      int
	Offset     int
}

// InvocationStats holds aggregate invocation statistics.
type InvocationStats struct {
	Total             int            `json:"total"`
	CountByStatus     map[string]int `json:"count_by_status"`
	CountByFunction   map[string]int `json:"count_by_function"`
	CountByDatasource map[string]int `json:"count_by_datasource"`
	AvgDurationMS     float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for invocations.
type Store interface {
	CreateInvocation(ctx context.Context, inv *model.Invocation) error
	GetInvocation(ctx context.Context, id string) (*model.Invocation, error)
	ListInvocations(ctx context.Context, f ListFilter) ([]*model.Invocation, int, error)
	UpdateInvocationStatus(ctx context.Context, id, status string) error
	UpdateInvocation(ctx context.Context, inv *model.Invocation) error
	GetInvocationStats(ctx context.Context) (*InvocationStats, error)
	Ping(ctx context.Context) error
	Close() error
}
