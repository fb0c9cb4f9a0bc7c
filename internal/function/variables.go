package function

import (
	"context"
	"fmt"

	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/upstream"
)

// Variable sources.
const (
	SourceMetrics  = "metrics"
	SourceEntities = "entities"
)

// VariablesInput selects the values of a dashboard variable.
type VariablesInput struct {
	Source     string `json:"source"`
	Prefix     string `json:"prefix,omitempty"`
	EntityType string `json:"entity_type,omitempty"`
	Search     string `json:"search,omitempty"`
}

// Variables lists metric names or entity names as variable values. Results
// are cached.
type Variables struct{}

func (Variables) Name() string { return "variables" }

func (v Variables) Describe() Description {
	return Description{
		Name:    v.Name(),
		Summary: "Metric or entity names for a dashboard variable.",
		Output:  model.OutputVariables,
		Cached:  true,
	}
}

func (Variables) decode(req model.Request) (VariablesInput, error) {
	var in VariablesInput
	if err := decodeInput(req, &in); err != nil {
		return in, err
	}
	switch in.Source {
	case SourceMetrics, SourceEntities:
		return in, nil
	default:
		return in, fmt.Errorf("%w: source must be %q or %q, got %q", ErrInvalidInput, SourceMetrics, SourceEntities, in.Source)
	}
}

func (v Variables) Decompose(_ context.Context, req model.Request) ([]model.Request, error) {
	if _, err := v.decode(req); err != nil {
		return nil, err
	}
	return []model.Request{req}, nil
}

func (v Variables) Execute(ctx context.Context, env Env, req model.Request) ([]model.Output, error) {
	in, err := v.decode(req)
	if err != nil {
		return nil, err
	}
	client, err := env.Upstream.Resolve(req.Identity)
	if err != nil {
		return nil, err
	}

	// Variable values do not depend on the dashboard's time range.
	req.Range = model.TimeRange{}
	return cached(ctx, env, req, in, func(ctx context.Context) ([]model.Output, error) {
		var vars []model.Variable
		switch in.Source {
		case SourceMetrics:
			names, err := client.ListMetrics(ctx, req.Identity.Account, in.Prefix)
			if err != nil {
				return nil, err
			}
			for _, n := range names {
				vars = append(vars, model.Variable{Text: n, Value: n})
			}
		case SourceEntities:
			entities, err := client.ListEntities(ctx, upstream.EntityQuery{
				Account: req.Identity.Account,
				Type:    in.EntityType,
				Search:  in.Search,
			})
			if err != nil {
				return nil, err
			}
			for _, e := range entities {
				vars = append(vars, model.Variable{Text: e.Name, Value: e.ID})
			}
		}
		return []model.Output{model.VariablesOutput(vars)}, nil
	})
}
