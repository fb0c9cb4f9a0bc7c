package function

import (
	"context"
	"fmt"

	"github.com/seantiz/vantage/internal/model"
)

// MultiSeriesInput selects several metrics sharing a filter.
type MultiSeriesInput struct {
	Metrics     []string          `json:"metrics"`
	Filter      map[string]string `json:"filter,omitempty"`
	StepSeconds int               `json:"step_seconds,omitempty"`
}

// MultiSeries is the composite form of Series: one call per metric, outputs
// in the order the metrics were listed.
type MultiSeries struct{}

func (MultiSeries) Name() string { return "multi_series" }

func (m MultiSeries) Describe() Description {
	return Description{
		Name:      m.Name(),
		Summary:   "Time series of several metrics, fetched concurrently.",
		Output:    model.OutputSeries,
		Composite: true,
		Cached:    true,
	}
}

func (MultiSeries) Decompose(_ context.Context, req model.Request) ([]model.Request, error) {
	var in MultiSeriesInput
	if err := decodeInput(req, &in); err != nil {
		return nil, err
	}
	if len(in.Metrics) > 0 {
		if err := validateRange(req); err != nil {
			return nil, err
		}
	}

	calls := make([]model.Request, 0, len(in.Metrics))
	for i, metric := range in.Metrics {
		sub := SeriesInput{Metric: metric, Filter: in.Filter, StepSeconds: in.StepSeconds}
		if err := sub.validate(); err != nil {
			return nil, fmt.Errorf("metrics[%d]: %w", i, err)
		}
		call, err := req.WithInput(Series{}.Name(), sub)
		if err != nil {
			return nil, fmt.Errorf("%w: encode metrics[%d]: %v", ErrInvalidInput, i, err)
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// Execute refuses to run: multi_series only exists as its decomposition into
// series calls.
func (m MultiSeries) Execute(context.Context, Env, model.Request) ([]model.Output, error) {
	return nil, fmt.Errorf("%s: %w", m.Name(), ErrNotExecutable)
}
