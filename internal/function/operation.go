package function

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/seantiz/vantage/internal/cache"
	"github.com/seantiz/vantage/internal/executor"
	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/upstream"
)

// Resolver returns the datasource client of an identity.
// *upstream.Registry satisfies it.
type Resolver interface {
	Resolve(identity model.ClientIdentity) (upstream.Client, error)
}

// QueryExecutors hands out the query executor of an identity.
// *executor.Registry satisfies it.
type QueryExecutors interface {
	QueryExecutor(identity model.ClientIdentity) (*executor.Executor, error)
}

// Env is what operations execute against.
type Env struct {
	Upstream  Resolver
	Executors QueryExecutors
	// Cache, when set, holds function outputs by identity and input.
	Cache *cache.Cache[[]model.Output]
}

// Description is the catalogue entry of an operation.
type Description struct {
	Name      string `json:"name"`
	Summary   string `json:"summary"`
	Output    string `json:"output"`
	Composite bool   `json:"composite"`
	Cached    bool   `json:"cached"`
}

// Operation is one query function.
type Operation interface {
	Name() string
	Describe() Description

	// Decompose validates req and returns the calls it is made of. Simple
	// operations return req itself.
	Decompose(ctx context.Context, req model.Request) ([]model.Request, error)

	// Execute runs req against env.
	Execute(ctx context.Context, env Env, req model.Request) ([]model.Output, error)
}

// decodeInput strictly decodes req's input into v.
func decodeInput(req model.Request, v any) error {
	if len(bytes.TrimSpace(req.Input)) == 0 {
		return fmt.Errorf("%w: %s requires an input object", ErrInvalidInput, req.Function)
	}
	dec := json.NewDecoder(bytes.NewReader(req.Input))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s input: %v", ErrInvalidInput, req.Function, err)
	}
	return nil
}

func validateRange(req model.Request) error {
	if req.Range.From.IsZero() || req.Range.To.IsZero() {
		return fmt.Errorf("%w: %s requires a time range", ErrInvalidInput, req.Function)
	}
	if !req.Range.To.After(req.Range.From) {
		return fmt.Errorf("%w: time range ends before it starts", ErrInvalidInput)
	}
	return nil
}

// cacheShape is the identity-independent part of a cache key.
type cacheShape struct {
	Function string          `json:"function"`
	Input    any             `json:"input"`
	Range    model.TimeRange `json:"range"`
}

// cached serves compute through env's cache when there is one. input must be
// the decoded input so that equivalent encodings share an entry.
func cached(ctx context.Context, env Env, req model.Request, input any, compute func(context.Context) ([]model.Output, error)) ([]model.Output, error) {
	if env.Cache == nil {
		return compute(ctx)
	}
	key, err := cache.Key(req.Identity, cacheShape{Function: req.Function, Input: input, Range: req.Range})
	if err != nil {
		return nil, err
	}
	return env.Cache.GetOrCompute(ctx, key, compute)
}
