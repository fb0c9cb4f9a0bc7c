package task

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/seantiz/vantage/internal/telemetry"
)

// Pool runs submitted functions on a bounded set of workers. A function whose
// ctx ends before a worker picks it up may be dropped without running.
// *executor.Executor satisfies Pool.
type Pool interface {
	Submit(ctx context.Context, fn func(context.Context))
}

// Unit is one independent piece of work in a batch.
type Unit[T any] struct {
	Operation string
	InputID   string
	Run       func(ctx context.Context) (T, error)
}

// Result is the outcome of one Unit, tagged with the unit's identity.
type Result[T any] struct {
	Operation string
	InputID   string
	Output    T
	Err       error
	Duration  time.Duration
}

// Failed reports whether the unit returned an error or panicked.
func (r Result[T]) Failed() bool {
	return r.Err != nil
}

// Runner executes batches of units. The zero value is ready to use and traces
// through the global tracer provider.
type Runner[T any] struct {
	// Tracer overrides the tracer used for unit spans.
	Tracer trace.Tracer
}

// RunAll submits every unit to pool and gathers results in completion order.
//
// Without failFast, RunAll waits for every unit and returns a nil error;
// individual failures are reported in the results. With failFast, the first
// failure cancels the context shared by the batch and RunAll returns at once
// with the results gathered so far and a *UnitError; results arriving later
// are discarded.
//
// If ctx ends first, RunAll returns the results that completed together with
// ctx.Err(). A batch of one unit runs on the calling goroutine.
func (r *Runner[T]) RunAll(ctx context.Context, units []Unit[T], pool Pool, failFast bool) ([]Result[T], error) {
	switch len(units) {
	case 0:
		return nil, nil
	case 1:
		res := r.run(ctx, units[0])
		results := []Result[T]{res}
		if failFast && res.Failed() {
			return results, unitError(res)
		}
		return results, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so units finishing after an early return never block a worker.
	done := make(chan Result[T], len(units))
	for _, u := range units {
		pool.Submit(runCtx, func(ctx context.Context) {
			done <- r.run(ctx, u)
		})
	}

	results := make([]Result[T], 0, len(units))
	for len(results) < len(units) {
		select {
		case res := <-done:
			results = append(results, res)
			if failFast && res.Failed() {
				cancel()
				return results, unitError(res)
			}
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}
	return results, nil
}

func (r *Runner[T]) run(ctx context.Context, u Unit[T]) (res Result[T]) {
	ctx, span := r.tracer().Start(ctx, "task.unit", trace.WithAttributes(
		attribute.String("vantage.operation", u.Operation),
		attribute.String("vantage.input_id", u.InputID),
	))
	ctx, logger := telemetry.With(ctx, "operation", u.Operation, "input_id", u.InputID)

	res = Result[T]{Operation: u.Operation, InputID: u.InputID}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			logger.Debug("unit failed", "error", res.Err, "duration_ms", res.Duration.Milliseconds())
		}
		span.End()
	}()

	res.Output, res.Err = u.Run(ctx)
	return res
}

func (r *Runner[T]) tracer() trace.Tracer {
	if r.Tracer != nil {
		return r.Tracer
	}
	return telemetry.Tracer()
}

func unitError[T any](res Result[T]) *UnitError {
	return &UnitError{Operation: res.Operation, InputID: res.InputID, Err: res.Err}
}
