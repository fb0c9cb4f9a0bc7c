package function

import (
	"context"
	"fmt"
	"strings"

	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/task"
	"github.com/seantiz/vantage/internal/upstream"
)

const (
	defaultEntityLimit = 20
	maxEntityLimit     = 200
)

// EntitySeriesInput selects one metric for each entity matching a query.
type EntitySeriesInput struct {
	Metric      string `json:"metric"`
	EntityType  string `json:"entity_type,omitempty"`
	Search      string `json:"search,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	StepSeconds int    `json:"step_seconds,omitempty"`
}

// EntitySeries lists entities and then fetches a metric for each of them on
// the identity's query executor. Each series carries an "entity" label.
type EntitySeries struct{}

func (EntitySeries) Name() string { return "entity_series" }

func (e EntitySeries) Describe() Description {
	return Description{
		Name:    e.Name(),
		Summary: "One metric per matching entity, queried concurrently.",
		Output:  model.OutputSeries,
		Cached:  true,
	}
}

func (EntitySeries) decode(req model.Request) (EntitySeriesInput, error) {
	var in EntitySeriesInput
	if err := decodeInput(req, &in); err != nil {
		return in, err
	}
	if strings.TrimSpace(in.Metric) == "" {
		return in, fmt.Errorf("%w: metric is required", ErrInvalidInput)
	}
	if in.Limit < 0 || in.Limit > maxEntityLimit {
		return in, fmt.Errorf("%w: limit must be between 0 and %d", ErrInvalidInput, maxEntityLimit)
	}
	if in.Limit == 0 {
		in.Limit = defaultEntityLimit
	}
	return in, validateRange(req)
}

func (e EntitySeries) Decompose(_ context.Context, req model.Request) ([]model.Request, error) {
	if _, err := e.decode(req); err != nil {
		return nil, err
	}
	return []model.Request{req}, nil
}

func (e EntitySeries) Execute(ctx context.Context, env Env, req model.Request) ([]model.Output, error) {
	in, err := e.decode(req)
	if err != nil {
		return nil, err
	}

	client, err := env.Upstream.Resolve(req.Identity)
	if err != nil {
		return nil, err
	}
	entities, err := client.ListEntities(ctx, upstream.EntityQuery{
		Account: req.Identity.Account,
		Type:    in.EntityType,
		Search:  in.Search,
		Limit:   in.Limit,
	})
	if err != nil {
		return nil, err
	}

	units := make([]task.Unit[[]model.Output], len(entities))
	for i, ent := range entities {
		sub := SeriesInput{
			Metric:      in.Metric,
			Filter:      map[string]string{"entity": ent.Name},
			StepSeconds: in.StepSeconds,
		}
		units[i] = task.Unit[[]model.Output]{
			Operation: Series{}.Name(),
			InputID:   ent.ID,
			Run: func(ctx context.Context) ([]model.Output, error) {
				return querySeries(ctx, env, req, sub)
			},
		}
	}

	pool, err := env.Executors.QueryExecutor(req.Identity)
	if err != nil {
		return nil, err
	}
	var runner task.Runner[[]model.Output]
	results, err := runner.RunAll(ctx, units, pool, true)
	if err != nil {
		return nil, err
	}

	byEntity := make(map[string][]model.Output, len(results))
	for _, r := range results {
		byEntity[r.InputID] = r.Output
	}
	out := []model.Output{}
	for _, ent := range entities {
		out = append(out, byEntity[ent.ID]...)
	}
	return out, nil
}
