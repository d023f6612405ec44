package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/seantiz/compute/internal/model"
	"github.com/seantiz/compute/internal/payload"
	"github.com/seantiz/compute/internal/program"
	"github.com/seantiz/compute/internal/queue"
	"github.com/seantiz/compute/internal/store"
)

const tracerName = "github.com/seantiz/compute/internal/engine"

// Reasons recorded on tasks that never reached a worker.
const (
	reasonAborted   = "run aborted before dispatch"
	reasonNoWorkers = "no workers available"
)

var (
	// ErrRunInProgress is returned when a run is started while another one
	// is still active on the same controller.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrControllerClosed is returned by Run and Dispatch after Close.
	ErrControllerClosed = errors.New("controller closed")
)

// Option configures a Controller.
type Option func(*Controller)

// WithStore persists every finished report to s.
func WithStore(s store.Store) Option {
	return func(c *Controller) { c.store = s }
}

// WithMetrics records pool and task metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// Controller owns a worker pool and runs programs on it, one run at a time.
type Controller struct {
	cfg      Config
	registry *payload.Registry
	logger   *slog.Logger
	store    store.Store
	metrics  *Metrics
	tracer   trace.Tracer
	broker   *Broker

	mu     sync.Mutex
	active *run
	closed bool
}

// New creates a controller for cfg. It fails with ErrInvalidConfiguration
// when cfg does not validate.
func New(cfg Config, reg *payload.Registry, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, fmt.Errorf("%w: payload registry is required", ErrInvalidConfiguration)
	}
	if cfg.FaultPolicy == "" {
		cfg.FaultPolicy = FaultContinue
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	c := &Controller{
		cfg:      cfg,
		registry: reg,
		logger:   logger,
		broker:   NewBroker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c, nil
}

// Config returns the pool configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Run loads a program from src and dispatches it. A malformed program is
// returned as an error before any worker starts.
func (c *Controller) Run(ctx context.Context, src io.Reader) (*model.Report, error) {
	tasks, err := program.Load(src, c.registry, c.cfg.ProgramFormat)
	if err != nil {
		c.metrics.observeRun(outcomeRejected)
		return nil, err
	}
	return c.Dispatch(ctx, tasks)
}

// Dispatch runs tasks on a fresh pool and returns the report once every
// worker has stopped. tasks must carry ids 0..len(tasks)-1 in order.
//
// Cancelling ctx aborts the run like Abort does. If feeding the queue fails
// the report is still returned together with the error.
func (c *Controller) Dispatch(ctx context.Context, tasks []model.Task) (*model.Report, error) {
	for i, t := range tasks {
		if t.ID != i {
			c.metrics.observeRun(outcomeRejected)
			return nil, fmt.Errorf("task at position %d has id %d", i, t.ID)
		}
		if t.Payload == nil {
			c.metrics.observeRun(outcomeRejected)
			return nil, fmt.Errorf("task %d has no payload", t.ID)
		}
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, ErrControllerClosed
	case c.active != nil:
		c.mu.Unlock()
		return nil, ErrRunInProgress
	}
	r := c.newRun(ctx, tasks)
	c.active = r
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
	}()

	return r.execute(ctx)
}

// Abort cooperatively aborts the active run, if any. Queued tasks are
// discarded and reported not_run; tasks already executing finish normally.
func (c *Controller) Abort() {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()

	if r != nil {
		r.abort()
	}
}

// Status returns a snapshot of the active run's workers, or nil when no run
// is active.
func (c *Controller) Status() []model.WorkerStatus {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()

	if r == nil {
		return nil
	}
	out := make([]model.WorkerStatus, len(r.workers))
	for i, w := range r.workers {
		out[i] = w.status()
	}
	return out
}

// Subscribe streams every task result of subsequent runs as it is recorded.
func (c *Controller) Subscribe() (<-chan model.Result, func()) {
	return c.broker.Subscribe()
}

// Close aborts the active run and closes all subscriber channels. Run and
// Dispatch fail with ErrControllerClosed afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	r := c.active
	c.mu.Unlock()

	if r != nil {
		r.abort()
	}
	c.broker.Close()
}

// run holds the state of a single dispatch.
type run struct {
	c       *Controller
	id      string
	logger  *slog.Logger
	tasks   []model.Task
	queue   *queue.Queue
	events  chan event
	workers []*worker
	limiter *rate.Limiter

	// feedCtx bounds the feeder. stopFeed cancels it on abort or when no
	// worker is left, so a rate limiter wait returns at once.
	feedCtx  context.Context
	stopFeed context.CancelFunc

	// stopping is set before the queue is aborted so the feeder can tell a
	// deliberate shutdown from a contract violation.
	stopping atomic.Bool
	aborted  atomic.Bool

	// mu guards the aggregation state below.
	mu      sync.Mutex
	results []model.Result
	have    []bool
	faults  []model.WorkerFault
	live    int
}

func (c *Controller) newRun(ctx context.Context, tasks []model.Task) *run {
	id := model.NewRunID()
	r := &run{
		c:       c,
		id:      id,
		logger:  c.logger.With("run_id", id),
		tasks:   tasks,
		queue:   queue.New(c.cfg.QueueSize),
		events:  make(chan event, c.cfg.Workers),
		results: make([]model.Result, len(tasks)),
		have:    make([]bool, len(tasks)),
		live:    c.cfg.Workers,
	}
	r.feedCtx, r.stopFeed = context.WithCancel(ctx)
	if c.cfg.DispatchRate > 0 {
		burst := max(c.cfg.DispatchBurst, 1)
		r.limiter = rate.NewLimiter(rate.Limit(c.cfg.DispatchRate), burst)
	}
	for i := range c.cfg.Workers {
		r.workers = append(r.workers, newWorker(i, r.queue, r.events, c.tracer, r.logger))
	}
	return r
}

func (r *run) execute(ctx context.Context) (*model.Report, error) {
	cfg := r.c.cfg
	ctx, span := r.c.tracer.Start(ctx, "controller.run", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.Int("run.workers", cfg.Workers),
		attribute.Int("run.tasks", len(r.tasks)),
	))
	defer span.End()

	started := time.Now()
	r.logger.Info("run started", "workers", cfg.Workers, "tasks", len(r.tasks),
		"queue_size", cfg.QueueSize, "fault_policy", cfg.FaultPolicy)

	defer r.stopFeed()
	stop := context.AfterFunc(ctx, r.abort)
	defer stop()

	r.c.metrics.setWorkers(cfg.Workers)

	// Workers never see run cancellation; an abort only empties the queue.
	workCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for _, w := range r.workers {
		wg.Go(func() { w.run(workCtx) })
	}
	go func() {
		wg.Wait()
		close(r.events)
	}()

	var g errgroup.Group
	g.Go(func() error { return r.feed(r.feedCtx) })

	for ev := range r.events {
		r.handle(ev)
	}
	feedErr := g.Wait()

	rep := r.report(started)
	r.c.metrics.setWorkers(0)
	r.c.metrics.setQueueDepth(0)

	outcome := outcomeCompleted
	switch {
	case rep.Aborted:
		outcome = outcomeAborted
	case rep.Degraded:
		outcome = outcomeDegraded
	}
	r.c.metrics.observeRun(outcome)

	span.SetAttributes(
		attribute.Int("run.succeeded", rep.Succeeded),
		attribute.Int("run.failed", rep.Failed),
		attribute.Int("run.not_run", rep.NotRun),
		attribute.Bool("run.aborted", rep.Aborted),
	)

	r.logger.Info("run finished", "outcome", outcome, "succeeded", rep.Succeeded,
		"failed", rep.Failed, "not_run", rep.NotRun, "active_workers", rep.ActiveWorkers,
		"duration", rep.Duration)

	if r.c.store != nil {
		if err := r.c.store.SaveReport(context.WithoutCancel(ctx), rep); err != nil {
			r.logger.Error("failed to persist report", "error", err)
		}
	}

	if feedErr != nil {
		span.RecordError(feedErr)
		span.SetStatus(codes.Error, feedErr.Error())
		return rep, fmt.Errorf("dispatch: %w", feedErr)
	}
	return rep, nil
}

// feed pushes every task in load order, then closes the queue.
func (r *run) feed(ctx context.Context) error {
	defer r.queue.Close()

	for _, t := range r.tasks {
		if r.stopping.Load() {
			return nil
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("rate limit task %d: %w", t.ID, err)
			}
		}
		if err := r.queue.Push(t); err != nil {
			if errors.Is(err, queue.ErrQueueClosed) && r.stopping.Load() {
				return nil
			}
			return fmt.Errorf("feed task %d: %w", t.ID, err)
		}
		r.c.metrics.setQueueDepth(r.queue.Len())
	}
	return nil
}

// handle records one worker event. It runs on the controller goroutine only.
func (r *run) handle(ev event) {
	r.mu.Lock()
	res := ev.result
	if res.TaskID < 0 || res.TaskID >= len(r.results) || r.have[res.TaskID] {
		r.mu.Unlock()
		r.logger.Error("unexpected task result", "task_id", res.TaskID, "worker_id", ev.workerID)
		return
	}
	r.results[res.TaskID] = res
	r.have[res.TaskID] = true

	if ev.fault {
		r.faults = append(r.faults, model.WorkerFault{
			WorkerID: ev.workerID,
			TaskID:   res.TaskID,
			Reason:   ev.reason,
		})
		r.live--
	}
	live := r.live
	r.mu.Unlock()

	r.c.metrics.observeResult(res)
	r.c.metrics.setQueueDepth(r.queue.Len())
	r.c.broker.Publish(res)

	if !ev.fault {
		return
	}
	r.c.metrics.observeFault()
	r.c.metrics.setWorkers(live)

	switch {
	case r.c.cfg.FaultPolicy == FaultAbort:
		r.logger.Warn("aborting run after worker fault", "worker_id", ev.workerID, "task_id", res.TaskID)
		r.abort()
	case live == 0:
		r.logger.Error("all workers faulted, abandoning remaining tasks", "workers", r.c.cfg.Workers)
		r.stopping.Store(true)
		r.queue.Abort()
		r.stopFeed()
	default:
		r.logger.Warn("worker retired, running with reduced capacity",
			"worker_id", ev.workerID, "active_workers", live, "workers", r.c.cfg.Workers)
	}
}

// abort stops dispatch: pending tasks are discarded and idle workers exit.
// It is safe to call more than once and from any goroutine.
func (r *run) abort() {
	if !r.aborted.CompareAndSwap(false, true) {
		return
	}
	r.stopping.Store(true)
	pending := r.queue.Abort()
	r.stopFeed()
	r.logger.Warn("run aborted", "discarded", len(pending))
}

// report builds the final report. Tasks without a recorded result are
// reported not_run.
func (r *run) report(started time.Time) *model.Report {
	finished := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	aborted := r.aborted.Load()
	reason := reasonAborted
	if !aborted && r.live == 0 {
		reason = reasonNoWorkers
	}

	for i, t := range r.tasks {
		if r.have[i] {
			continue
		}
		res := model.NotRun(t, reason)
		r.results[i] = res
		r.have[i] = true
		r.c.metrics.observeResult(res)
		r.c.broker.Publish(res)
	}

	rep := &model.Report{
		RunID:         r.id,
		Workers:       r.c.cfg.Workers,
		ActiveWorkers: r.live,
		Aborted:       aborted,
		Degraded:      len(r.faults) > 0,
		Faults:        r.faults,
		Results:       r.results,
		Duration:      finished.Sub(started),
		StartedAt:     started.UTC(),
		FinishedAt:    finished.UTC(),
	}
	rep.Tally()
	return rep
}
