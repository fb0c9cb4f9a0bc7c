package upstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/seantiz/vantage/internal/model"
)

// ErrUnknownDatasource is returned when a request names a datasource that is
// not registered.
var ErrUnknownDatasource = errors.New("unknown datasource")

// Client is a connection to one monitoring API. Every query carries the
// account it runs under; implementations must be safe for concurrent use.
type Client interface {
	// QuerySeries returns the series of one metric over a time range.
	QuerySeries(ctx context.Context, q SeriesQuery) ([]model.Series, error)

	// ListEntities returns the monitored entities matching q.
	ListEntities(ctx context.Context, q EntityQuery) ([]Entity, error)

	// ListMetrics returns the metric names starting with prefix.
	ListMetrics(ctx context.Context, account, prefix string) ([]string, error)

	// Info describes the datasource.
	Info() DatasourceInfo
}

// SeriesQuery selects the series of one metric.
type SeriesQuery struct {
	Account string            `json:"-"`
	Metric  string            `json:"metric"`
	Filter  map[string]string `json:"filter,omitempty"`
	Range   model.TimeRange   `json:"range"`
	// StepSeconds is the sample resolution; zero lets the datasource choose.
	StepSeconds int `json:"step_seconds,omitempty"`
}

// EntityQuery selects monitored entities.
type EntityQuery struct {
	Account string `json:"-"`
	Type    string `json:"type,omitempty"`
	Search  string `json:"search,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Entity is a monitored host, service or application.
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// DatasourceInfo describes a registered datasource.
type DatasourceInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// RemoteError is a failed call to a monitoring API. Status is zero when the
// call failed before a response was received.
type RemoteError struct {
	Datasource string
	Op         string
	Status     int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Datasource, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: status %d: %v", e.Datasource, e.Op, e.Status, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
