package function

import (
	"context"
	"fmt"
	"strings"

	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/upstream"
)

// SeriesInput selects one metric.
type SeriesInput struct {
	Metric      string            `json:"metric"`
	Filter      map[string]string `json:"filter,omitempty"`
	StepSeconds int               `json:"step_seconds,omitempty"`
}

func (in SeriesInput) validate() error {
	if strings.TrimSpace(in.Metric) == "" {
		return fmt.Errorf("%w: metric is required", ErrInvalidInput)
	}
	if in.StepSeconds < 0 {
		return fmt.Errorf("%w: step_seconds must not be negative", ErrInvalidInput)
	}
	return nil
}

// Series returns the series of one metric. Results are cached.
type Series struct{}

func (Series) Name() string { return "series" }

func (s Series) Describe() Description {
	return Description{
		Name:    s.Name(),
		Summary: "Time series of one metric, optionally filtered by label.",
		Output:  model.OutputSeries,
		Cached:  true,
	}
}

func (Series) Decompose(_ context.Context, req model.Request) ([]model.Request, error) {
	var in SeriesInput
	if err := decodeInput(req, &in); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := validateRange(req); err != nil {
		return nil, err
	}
	return []model.Request{req}, nil
}

func (Series) Execute(ctx context.Context, env Env, req model.Request) ([]model.Output, error) {
	var in SeriesInput
	if err := decodeInput(req, &in); err != nil {
		return nil, err
	}
	return querySeries(ctx, env, req, in)
}

// querySeries fetches in through the cache. It is shared by every operation
// that reads series.
func querySeries(ctx context.Context, env Env, req model.Request, in SeriesInput) ([]model.Output, error) {
	client, err := env.Upstream.Resolve(req.Identity)
	if err != nil {
		return nil, err
	}

	req.Function = Series{}.Name()
	return cached(ctx, env, req, in, func(ctx context.Context) ([]model.Output, error) {
		series, err := client.QuerySeries(ctx, upstream.SeriesQuery{
			Account:     req.Identity.Account,
			Metric:      in.Metric,
			Filter:      in.Filter,
			Range:       req.Range,
			StepSeconds: in.StepSeconds,
		})
		if err != nil {
			return nil, err
		}
		out := make([]model.Output, 0, len(series))
		for _, s := range series {
			out = append(out, model.SeriesOutput(s))
		}
		return out, nil
	})
}
