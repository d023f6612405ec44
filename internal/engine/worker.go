package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/seantiz/compute/internal/model"
	"github.com/seantiz/compute/internal/payload"
	"github.com/seantiz/compute/internal/queue"
)

// event is what a worker reports back to the controller after each task.
type event struct {
	workerID int
	result   model.Result
	// fault is set when the worker retired itself. result then holds the
	// abandoned task as not_run.
	fault  bool
	reason string
}

// worker pops tasks from the run queue until it is closed and drained, or
// until a fault retires it.
type worker struct {
	id     int
	queue  *queue.Queue
	events chan<- event
	tracer trace.Tracer
	logger *slog.Logger

	mu        sync.Mutex
	state     string
	taskID    *int
	completed int
	faulted   bool
}

func newWorker(id int, q *queue.Queue, events chan<- event, tracer trace.Tracer, logger *slog.Logger) *worker {
	return &worker{
		id:     id,
		queue:  q,
		events: events,
		tracer: tracer,
		logger: logger.With("worker_id", id),
		state:  model.WorkerIdle,
	}
}

// run is the worker loop. ctx must not be cancelled by a run abort: tasks
// already popped always run to completion.
func (w *worker) run(ctx context.Context) {
	for {
		t, err := w.queue.Pop()
		if err != nil {
			w.transition(model.WorkerStopped, nil)
			return
		}

		id := t.ID
		w.transition(model.WorkerRunning, &id)

		res, faultErr := w.execute(ctx, t)
		if faultErr != nil {
			w.mu.Lock()
			w.faulted = true
			w.mu.Unlock()
			w.transition(model.WorkerStopped, nil)

			w.logger.Error("worker fault", "task_id", t.ID, "kind", t.Kind, "error", faultErr)
			w.events <- event{workerID: w.id, result: res, fault: true, reason: faultErr.Error()}
			return
		}

		w.mu.Lock()
		w.completed++
		w.mu.Unlock()
		w.transition(model.WorkerIdle, nil)

		w.events <- event{workerID: w.id, result: res}
	}
}

// execute runs one task. A non-nil error means the worker faulted; the
// returned result is then the not_run record of the abandoned task.
func (w *worker) execute(ctx context.Context, t model.Task) (model.Result, error) {
	ctx, span := w.tracer.Start(ctx, "task.execute", trace.WithAttributes(
		attribute.Int("task.id", t.ID),
		attribute.String("task.kind", t.Kind),
		attribute.Int("worker.id", w.id),
	))
	defer span.End()

	start := time.Now()
	output, err := invoke(ctx, t.Payload)
	finished := time.Now()

	if errors.Is(err, payload.ErrWorkerFault) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "worker fault")
		return model.NotRun(t, err.Error()), err
	}

	startedAt, finishedAt := start.UTC(), finished.UTC()
	res := model.Result{
		TaskID:     t.ID,
		Kind:       t.Kind,
		Status:     model.StatusSucceeded,
		Output:     output,
		WorkerID:   w.id,
		Duration:   finished.Sub(start),
		StartedAt:  &startedAt,
		FinishedAt: &finishedAt,
	}
	if err != nil {
		res.Status = model.StatusFailed
		res.Reason = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Debug("task failed", "task_id", t.ID, "kind", t.Kind, "error", err)
	} else {
		w.logger.Debug("task succeeded", "task_id", t.ID, "kind", t.Kind, "duration", res.Duration)
	}
	return res, nil
}

// invoke calls the payload, turning a panic into a worker fault.
func invoke(ctx context.Context, p payload.Payload) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", payload.ErrWorkerFault, r)
		}
	}()
	return p.Execute(ctx)
}

func (w *worker) transition(to string, taskID *int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !model.ValidTransition(w.state, to) {
		w.logger.Error("invalid worker state transition", "from", w.state, "to", to)
		return
	}
	w.state = to
	w.taskID = taskID
}

func (w *worker) status() model.WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := model.WorkerStatus{
		ID:        w.id,
		State:     w.state,
		Completed: w.completed,
		Faulted:   w.faulted,
	}
	if w.taskID != nil {
		id := *w.taskID
		st.TaskID = &id
	}
	return st
}
