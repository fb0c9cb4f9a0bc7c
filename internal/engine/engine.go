package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/vantage/internal/dispatch"
	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/store"
	"github.com/seantiz/vantage/internal/telemetry"
)

// DefaultTimeout bounds one invocation when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Invocation modes.
const (
	modeSync  = "sync"
	modeAsync = "async"
)

// Processor runs a request. *dispatch.Dispatcher satisfies it.
type Processor interface {
	Run(ctx context.Context, req model.Request) (dispatch.Report, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds every invocation.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// Engine runs requests and records their lifecycle.
type Engine struct {
	store     store.Store
	processor Processor
	logger    *slog.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
	broker    *EventBroker
}

// NewEngine creates a new execution engine.
func NewEngine(s store.Store, p Processor, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		processor: p,
		logger:    logger,
		timeout:   DefaultTimeout,
		broker:    NewEventBroker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Invoke records req and runs it on the calling goroutine. It returns the
// finished invocation, and the request's error when it failed; a failed
// invocation is still returned so callers can report its ID.
func (e *Engine) Invoke(ctx context.Context, req model.Request) (*model.Invocation, error) {
	inv := model.NewInvocation(req)
	if err := e.store.CreateInvocation(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invocation: %w", err)
	}

	err := e.execute(ctx, modeSync, inv, req)
	return inv, err
}

// Submit records req as pending and runs it in the background. The returned
// invocation is a snapshot of the pending record. The background run keeps
// ctx's values but not its cancellation.
func (e *Engine) Submit(ctx context.Context, req model.Request) (*model.Invocation, error) {
	inv := model.NewInvocation(req)
	if err := e.store.CreateInvocation(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invocation: %w", err)
	}

	snapshot := *inv
	bg := context.WithoutCancel(ctx)
	e.wg.Go(func() {
		_ = e.execute(bg, modeAsync, inv, req)
	})

	return &snapshot, nil
}

// Wait blocks until all in-flight background invocations complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// execute runs the invocation lifecycle: pending→running→completed/failed/cancelled.
// It updates inv in place.
func (e *Engine) execute(ctx context.Context, mode string, inv *model.Invocation, req model.Request) error {
	// Close the event stream when execution finishes, regardless of outcome.
	defer e.broker.Close(inv.ID)

	logger := e.logger.With("invocation_id", inv.ID, "function", inv.Function, "datasource", inv.Datasource)
	ctx = telemetry.WithLogger(ctx, logger)

	if err := e.store.UpdateInvocationStatus(ctx, inv.ID, model.StatusRunning); err != nil {
		logger.Error("failed to transition to running", "error", err)
		e.finish(ctx, mode, inv, nil, fmt.Errorf("start invocation: %w", err))
		return err
	}

	start := time.Now().UTC()
	inv.Status = model.StatusRunning
	inv.StartedAt = &start
	e.broker.Publish(Event{InvocationID: inv.ID, Status: model.StatusRunning, Time: start})

	inflightInvocations.Inc()
	defer inflightInvocations.Dec()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rep, err := e.processor.Run(runCtx, req)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("invocation timed out after %v: %w", e.timeout, err)
	}
	if err == nil {
		inv.Outputs = rep.Outputs
		subOps := rep.Calls
		inv.SubOperations = &subOps
	}

	e.finish(ctx, mode, inv, &start, err)
	return err
}

// finish records the terminal state of inv. startedAt is nil if execution
// never started.
func (e *Engine) finish(ctx context.Context, mode string, inv *model.Invocation, startedAt *time.Time, runErr error) {
	now := time.Now().UTC()
	var durationMS int
	if startedAt != nil {
		durationMS = int(now.Sub(*startedAt).Milliseconds())
		invocationDuration.WithLabelValues(mode).Observe(now.Sub(*startedAt).Seconds())
	}

	switch {
	case runErr == nil:
		inv.Status = model.StatusCompleted
	case errors.Is(runErr, context.Canceled):
		inv.Status = model.StatusCancelled
		inv.Error = runErr.Error()
	default:
		inv.Status = model.StatusFailed
		inv.Error = runErr.Error()
	}
	inv.DurationMS = &durationMS
	inv.FinishedAt = &now
	invocationsTotal.WithLabelValues(mode, inv.Status).Inc()

	// The request context may already be cancelled; the record must still land.
	storeCtx := context.WithoutCancel(ctx)
	if err := e.store.UpdateInvocation(storeCtx, inv); err != nil {
		telemetry.Logger(ctx).Error("failed to record finished invocation", "status", inv.Status, "error", err)
	}

	e.broker.Publish(Event{
		InvocationID:  inv.ID,
		Status:        inv.Status,
		Time:          now,
		SubOperations: inv.SubOperations,
		DurationMS:    inv.DurationMS,
		Error:         inv.Error,
	})
	telemetry.Logger(ctx).Info("invocation finished",
		"status", inv.Status, "duration_ms", durationMS, "error", inv.Error)
}
