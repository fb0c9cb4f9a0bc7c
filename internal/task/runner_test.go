package task_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/seantiz/vantage/internal/executor"
	"github.com/seantiz/vantage/internal/task"
)

// countingPool records submissions and runs them on a real executor.
type countingPool struct {
	exec      *executor.Executor
	submitted atomic.Int64
}

func newCountingPool(workers int) *countingPool {
	return &countingPool{exec: executor.NewExecutor(executor.RoleFunction, workers)}
}

func (p *countingPool) Submit(ctx context.Context, fn func(context.Context)) {
	p.submitted.Add(1)
	p.exec.Submit(ctx, fn)
}

func valueUnit(id string, v int, delay time.Duration) task.Unit[int] {
	return task.Unit[int]{
		Operation: "series",
		InputID:   id,
		Run: func(ctx context.Context) (int, error) {
			select {
			case <-time.After(delay):
				return v, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		},
	}
}

func TestRunAllEmptyBatch(t *testing.T) {
	var r task.Runner[int]
	pool := newCountingPool(2)

	results, err := r.RunAll(context.Background(), nil, pool, true)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
	if pool.submitted.Load() != 0 {
		t.Error("empty batch submitted work")
	}
}

func TestRunAllSingleUnitRunsInline(t *testing.T) {
	var r task.Runner[int]
	pool := newCountingPool(2)

	results, err := r.RunAll(context.Background(), []task.Unit[int]{valueUnit("a", 7, 0)}, pool, true)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if pool.submitted.Load() != 0 {
		t.Error("single unit was submitted to the pool")
	}
	if len(results) != 1 || results[0].Output != 7 || results[0].InputID != "a" || results[0].Operation != "series" {
		t.Errorf("results = %+v, want one result for a with output 7", results)
	}
}

func TestRunAllSingleUnitFailureMatchesBatchShape(t *testing.T) {
	boom := errors.New("upstream 500")
	failing := task.Unit[int]{Operation: "series", InputID: "a", Run: func(context.Context) (int, error) {
		return 0, boom
	}}

	var r task.Runner[int]
	single, singleErr := r.RunAll(context.Background(), []task.Unit[int]{failing}, newCountingPool(2), true)
	batch, batchErr := r.RunAll(context.Background(), []task.Unit[int]{failing, valueUnit("b", 1, 200*time.Millisecond)}, newCountingPool(2), true)

	var singleUnitErr, batchUnitErr *task.UnitError
	if !errors.As(singleErr, &singleUnitErr) || !errors.As(batchErr, &batchUnitErr) {
		t.Fatalf("errors = %v / %v, want *task.UnitError from both", singleErr, batchErr)
	}
	if singleUnitErr.InputID != batchUnitErr.InputID || !errors.Is(singleErr, boom) || !errors.Is(batchErr, boom) {
		t.Errorf("single-unit error %v differs from batch error %v", singleErr, batchErr)
	}
	if len(single) != 1 || !single[0].Failed() {
		t.Errorf("single results = %+v, want one failed result", single)
	}
	if len(batch) != 1 || !batch[0].Failed() {
		t.Errorf("batch results = %+v, want one failed result", batch)
	}
}

func TestRunAllWaitsForEveryUnit(t *testing.T) {
	var r task.Runner[int]
	pool := newCountingPool(4)

	units := make([]task.Unit[int], 10)
	for i := range units {
		units[i] = valueUnit(fmt.Sprint(i), i, time.Duration(10-i)*time.Millisecond)
	}

	results, err := r.RunAll(context.Background(), units, pool, false)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	got := make([]int, 0, len(results))
	for _, res := range results {
		got = append(got, res.Output)
	}
	sort.Ints(got)
	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAllWithoutFailFastReportsFailures(t *testing.T) {
	var r task.Runner[int]
	boom := errors.New("bad metric")

	units := []task.Unit[int]{
		valueUnit("a", 1, 0),
		{Operation: "series", InputID: "b", Run: func(context.Context) (int, error) { return 0, boom }},
		valueUnit("c", 3, 5*time.Millisecond),
	}

	results, err := r.RunAll(context.Background(), units, newCountingPool(2), false)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for _, res := range results {
		if res.InputID == "b" && !errors.Is(res.Err, boom) {
			t.Errorf("result b error = %v, want %v", res.Err, boom)
		}
		if res.InputID != "b" && res.Failed() {
			t.Errorf("result %s failed: %v", res.InputID, res.Err)
		}
	}
}

func TestRunAllFailFastReturnsBeforeSlowUnits(t *testing.T) {
	var r task.Runner[int]
	boom := errors.New("upstream 503")

	var cancelled atomic.Int64
	slow := func(id string) task.Unit[int] {
		return task.Unit[int]{Operation: "series", InputID: id, Run: func(ctx context.Context) (int, error) {
			select {
			case <-time.After(5 * time.Second):
				return 1, nil
			case <-ctx.Done():
				cancelled.Add(1)
				return 0, ctx.Err()
			}
		}}
	}
	units := []task.Unit[int]{
		slow("1"), slow("2"),
		{Operation: "series", InputID: "3", Run: func(context.Context) (int, error) {
			time.Sleep(10 * time.Millisecond)
			return 0, boom
		}},
		slow("4"), slow("5"),
	}

	pool := newCountingPool(8)
	start := time.Now()
	_, err := r.RunAll(context.Background(), units, pool, true)
	elapsed := time.Since(start)

	if !errors.Is(err, boom) {
		t.Fatalf("RunAll error = %v, want %v", err, boom)
	}
	var unitErr *task.UnitError
	if !errors.As(err, &unitErr) || unitErr.InputID != "3" {
		t.Errorf("error = %v, want UnitError for input 3", err)
	}
	if elapsed > time.Second {
		t.Errorf("RunAll took %v, want well under the slow units' 5s", elapsed)
	}

	pool.exec.Wait()
	if got := cancelled.Load(); got != 4 {
		t.Errorf("cancelled slow units = %d, want 4", got)
	}
}

func TestRunAllRecoversPanics(t *testing.T) {
	var r task.Runner[int]
	units := []task.Unit[int]{
		{Operation: "series", InputID: "p", Run: func(context.Context) (int, error) { panic("nil map") }},
		valueUnit("ok", 1, 0),
	}

	results, err := r.RunAll(context.Background(), units, newCountingPool(2), false)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	var found bool
	for _, res := range results {
		if res.InputID == "p" {
			found = true
			if !errors.Is(res.Err, task.ErrPanic) {
				t.Errorf("panicking unit error = %v, want ErrPanic", res.Err)
			}
		}
	}
	if !found {
		t.Error("no result for the panicking unit")
	}
}

func TestRunAllParentCancellationReturnsPartialResults(t *testing.T) {
	var r task.Runner[int]
	ctx, cancel := context.WithCancel(context.Background())

	units := []task.Unit[int]{
		valueUnit("fast", 1, 0),
		{Operation: "series", InputID: "stuck", Run: func(context.Context) (int, error) {
			time.Sleep(time.Second)
			return 2, nil
		}},
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	results, err := r.RunAll(ctx, units, newCountingPool(2), false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunAll error = %v, want context.Canceled", err)
	}
	if len(results) != 1 || results[0].InputID != "fast" {
		t.Errorf("results = %+v, want only the fast unit", results)
	}
}

func TestRunAllRecordsSpanPerUnit(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	r := task.Runner[int]{Tracer: tp.Tracer("test")}

	units := []task.Unit[int]{
		valueUnit("a", 1, 0),
		valueUnit("b", 2, 0),
		{Operation: "series", InputID: "c", Run: func(context.Context) (int, error) { return 0, errors.New("boom") }},
	}
	if _, err := r.RunAll(context.Background(), units, newCountingPool(2), false); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 3 {
		t.Fatalf("ended spans = %d, want 3", len(spans))
	}
	var errored int
	for _, s := range spans {
		if s.Name() != "task.unit" {
			t.Errorf("span name = %q, want %q", s.Name(), "task.unit")
		}
		if s.Status().Code == codes.Error {
			errored++
		}
	}
	if errored != 1 {
		t.Errorf("spans with error status = %d, want 1", errored)
	}
}
