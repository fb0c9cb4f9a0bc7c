package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/seantiz/vantage/internal/executor"
	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/task"
	"github.com/seantiz/vantage/internal/telemetry"
)

// Handler executes one call that needs no further decomposition.
type Handler func(ctx context.Context, req model.Request) ([]model.Output, error)

// Registry maps requests to the calls they decompose into and function names
// to the handlers that execute them.
type Registry interface {
	// Decompose returns the calls req is made of, in output order. A request
	// that is not composite decomposes into itself.
	Decompose(ctx context.Context, req model.Request) ([]model.Request, error)

	// Lookup returns the handler for a function name.
	Lookup(function string) (Handler, error)
}

// Executors hands out the function executor of a client identity.
// *executor.Registry satisfies it.
type Executors interface {
	FunctionExecutor(identity model.ClientIdentity) (*executor.Executor, error)
}

// Call is one scheduled call of a decomposed request.
type Call struct {
	Request model.Request
	InputID string
	handler Handler
}

// Report describes how a request was dispatched.
type Report struct {
	Outputs []model.Output
	// Calls is the number of calls the request decomposed into, before
	// identical calls were merged.
	Calls  int
	Unique int
	Failed int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFailFast sets whether the first failing call aborts the request.
// Without it, failed calls are logged and left out of the response. If every
// call failed there is nothing left to return, so the request still fails with
// ErrCompositeFailed wrapping the first failure.
func WithFailFast(failFast bool) Option {
	return func(d *Dispatcher) {
		d.failFast = failFast
	}
}

// WithRunner replaces the task runner, e.g. to trace through a test provider.
func WithRunner(r *task.Runner[[]model.Output]) Option {
	return func(d *Dispatcher) {
		d.runner = r
	}
}

// Dispatcher runs requests through a Registry. It is safe for concurrent use.
type Dispatcher struct {
	registry  Registry
	executors Executors
	runner    *task.Runner[[]model.Output]
	failFast  bool
}

// New creates a dispatcher. Fail-fast is on unless disabled with WithFailFast.
func New(registry Registry, executors Executors, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		executors: executors,
		runner:    &task.Runner[[]model.Output]{},
		failFast:  true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process runs req and returns its outputs in decomposition order.
func (d *Dispatcher) Process(ctx context.Context, req model.Request) ([]model.Output, error) {
	rep, err := d.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return rep.Outputs, nil
}

// Plan decomposes req and resolves a handler for every call.
func (d *Dispatcher) Plan(ctx context.Context, req model.Request) ([]Call, error) {
	subs, err := d.registry.Decompose(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("decompose %s: %w", req.Function, err)
	}

	calls := make([]Call, 0, len(subs))
	for _, sub := range subs {
		h, err := d.registry.Lookup(sub.Function)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", sub.Function, err)
		}
		calls = append(calls, Call{Request: sub, InputID: sub.InputKey(), handler: h})
	}
	return calls, nil
}

// Run is Process with dispatch bookkeeping.
func (d *Dispatcher) Run(ctx context.Context, req model.Request) (Report, error) {
	calls, err := d.Plan(ctx, req)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Outputs: []model.Output{}, Calls: len(calls)}
	if len(calls) == 0 {
		requestsTotal.WithLabelValues(pathEmpty).Inc()
		return rep, nil
	}

	// Identical calls run once; order keeps every position that asked for them.
	order := make([]string, len(calls))
	units := make([]task.Unit[[]model.Output], 0, len(calls))
	scheduled := make(map[string]bool, len(calls))
	for i, c := range calls {
		order[i] = c.InputID
		if scheduled[c.InputID] {
			deduplicatedTotal.Inc()
			continue
		}
		scheduled[c.InputID] = true
		units = append(units, task.Unit[[]model.Output]{
			Operation: c.Request.Function,
			InputID:   c.InputID,
			Run: func(ctx context.Context) ([]model.Output, error) {
				return c.handler(ctx, c.Request)
			},
		})
	}
	rep.Unique = len(units)

	var pool task.Pool
	if len(units) > 1 {
		requestsTotal.WithLabelValues(pathComposite).Inc()
		callsPerRequest.Observe(float64(len(units)))
		exec, err := d.executors.FunctionExecutor(req.Identity)
		if err != nil {
			return Report{}, fmt.Errorf("function executor for %s: %w", req.Identity, err)
		}
		pool = exec
	} else {
		requestsTotal.WithLabelValues(pathDirect).Inc()
	}

	results, err := d.runner.RunAll(ctx, units, pool, d.failFast)
	if err != nil {
		var unitErr *task.UnitError
		if errors.As(err, &unitErr) {
			failedCallsTotal.Inc()
			return Report{}, fmt.Errorf("%w: %w", ErrCompositeFailed, err)
		}
		return Report{}, err
	}

	logger := telemetry.Logger(ctx)
	byID := make(map[string]task.Result[[]model.Output], len(results))
	var firstFailure *task.Result[[]model.Output]
	for _, r := range results {
		if !scheduled[r.InputID] {
			logger.Debug("dropping result for unknown input", "operation", r.Operation, "input_id", r.InputID)
			continue
		}
		if r.Failed() {
			failedCallsTotal.Inc()
			rep.Failed++
			logger.Warn("call failed, excluded from response",
				"operation", r.Operation, "input_id", r.InputID, "error", r.Err)
			if firstFailure == nil {
				firstFailure = &r
			}
			continue
		}
		byID[r.InputID] = r
	}

	if len(byID) == 0 && firstFailure != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrCompositeFailed, &task.UnitError{
			Operation: firstFailure.Operation,
			InputID:   firstFailure.InputID,
			Err:       firstFailure.Err,
		})
	}

	for _, id := range order {
		r, ok := byID[id]
		if !ok {
			continue
		}
		rep.Outputs = append(rep.Outputs, r.Output...)
	}
	return rep, nil
}
