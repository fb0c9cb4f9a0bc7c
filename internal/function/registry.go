package function

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/vantage/internal/dispatch"
	"github.com/seantiz/vantage/internal/model"
)

// Builtins returns the operations every deployment registers.
func Builtins() []Operation {
	return []Operation{
		Series{},
		MultiSeries{},
		EntitySeries{},
		Variables{},
	}
}

// Registry maps function names to operations and binds them to an Env.
type Registry struct {
	env Env

	mu  sync.RWMutex
	ops map[string]Operation
}

var _ dispatch.Registry = (*Registry)(nil)

// NewRegistry creates a registry executing against env with ops registered.
func NewRegistry(env Env, ops ...Operation) *Registry {
	r := &Registry{env: env, ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		r.Register(op)
	}
	return r
}

// Register adds op under its name, replacing any previous operation.
func (r *Registry) Register(op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op.Name()] = op
}

func (r *Registry) operation(name string) (Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	return op, nil
}

// Decompose validates req and returns the calls it is made of.
func (r *Registry) Decompose(ctx context.Context, req model.Request) ([]model.Request, error) {
	op, err := r.operation(req.Function)
	if err != nil {
		return nil, err
	}
	return op.Decompose(ctx, req)
}

// Lookup returns a handler running the named operation against the
// registry's Env.
func (r *Registry) Lookup(function string) (dispatch.Handler, error) {
	op, err := r.operation(function)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, req model.Request) ([]model.Output, error) {
		return op.Execute(ctx, r.env, req)
	}, nil
}

// List returns the registered operations sorted by name.
func (r *Registry) List() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Description, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op.Describe())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
