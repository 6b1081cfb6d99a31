// Package engine implements the transform orchestrator: a single-writer
// dispatch loop that consumes a task queue fed by event-bus subscriptions
// and executes transforms on a bounded worker pool.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weftdb/weft/internal/atom"
	"github.com/weftdb/weft/internal/bus"
	"github.com/weftdb/weft/internal/registry"
	"github.com/weftdb/weft/internal/telemetry"
	"github.com/weftdb/weft/internal/transform"
)

// Defaults are contract values, not tuning knobs.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultWorkers    = 4
)

// Engine orchestrates transform execution.
//
// Thread-safety model:
//   - bus handlers and Enqueue: safe from any goroutine; they only touch
//     the queue
//   - running/pending maps: owned by the Run loop goroutine exclusively
//   - workers: receive a task, run one attempt, report a completion;
//     they never touch dispatcher state
//
// At most one execution per transform id runs at a time. A trigger that
// arrives while its transform is running is coalesced into one pending
// slot and re-dispatched after the running attempt completes.
type Engine struct {
	reg   *registry.Registry
	store *atom.Store
	bus   *bus.Bus

	queue       *taskQueue
	completions chan completion

	// Owned by the Run loop.
	running map[string]*Task
	pending map[string]*Task

	timeout    time.Duration
	maxRetries int
	sem        chan struct{}

	metrics *telemetry.Metrics
	logger  *slog.Logger
	newID   func() string

	unsubs []func()
	wg     sync.WaitGroup

	// beforeExec runs at the start of each attempt; tests use it to hold
	// executions open and observe concurrency.
	beforeExec func(transformID string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds one execution attempt.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a failed task is re-enqueued before
// it is terminal.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithWorkers bounds concurrent executions across distinct transforms.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = make(chan struct{}, n)
		}
	}
}

// WithMetrics wires an instrumentation set.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine and subscribes it to the bus. Call Run to start
// dispatching and Close to tear the subscriptions down.
func New(reg *registry.Registry, store *atom.Store, b *bus.Bus, opts ...Option) *Engine {
	e := &Engine{
		reg:         reg,
		store:       store,
		bus:         b,
		queue:       newTaskQueue(),
		completions: make(chan completion),
		running:     map[string]*Task{},
		pending:     map[string]*Task{},
		timeout:     DefaultTimeout,
		maxRetries:  DefaultMaxRetries,
		sem:         make(chan struct{}, DefaultWorkers),
		logger:      slog.Default(),
		newID:       func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = telemetry.New()
	}

	e.unsubs = append(e.unsubs,
		b.Subscribe(bus.TopicFieldValueSet, e.onFieldValueSet),
		b.Subscribe(bus.TopicTransformTriggered, e.onTransformTriggered),
		b.Subscribe(bus.TopicSchemaChanged, e.onSchemaChanged),
		b.Subscribe(bus.TopicTransformRegistrationRequest, e.onRegistrationRequest),
	)
	return e
}

// Close removes the bus subscriptions and rejects further enqueues.
func (e *Engine) Close() {
	for _, unsub := range e.unsubs {
		unsub()
	}
	e.unsubs = nil
	e.queue.Close()
}

// Enqueue submits a task for dispatch. Safe from any goroutine.
func (e *Engine) Enqueue(t *Task) bool {
	if t.ID == "" {
		t.ID = e.newID()
	}
	t.State = StateQueued
	ok := e.queue.Enqueue(t)
	if ok {
		e.metrics.QueueDepth.Set(float64(e.queue.Len()))
	}
	return ok
}

// Trigger enqueues an execution of one transform with a fresh
// correlation id and returns that id.
func (e *Engine) Trigger(transformID, trigger string) string {
	correlation := e.newID()
	e.Enqueue(&Task{
		TransformID:   transformID,
		Trigger:       trigger,
		CorrelationID: correlation,
	})
	return correlation
}

// Run is the dispatcher loop. Must be called from exactly one goroutine;
// returns after ctx is done and all in-flight attempts have reported.
func (e *Engine) Run(ctx context.Context) error {
	for {
		for {
			t, ok := e.queue.TryDequeue()
			if !ok {
				break
			}
			e.metrics.QueueDepth.Set(float64(e.queue.Len()))
			e.dispatch(ctx, t)
		}

		select {
		case <-ctx.Done():
			return e.shutdown()
		case <-e.queue.Wait():
		case c := <-e.completions:
			e.complete(ctx, c)
		}
	}
}

// shutdown drains completions for attempts already in flight, then waits
// for their goroutines.
func (e *Engine) shutdown() error {
	for len(e.running) > 0 {
		c := <-e.completions
		delete(e.running, c.task.TransformID)
	}
	e.wg.Wait()
	return nil
}

// dispatch starts a task or coalesces it behind a running execution of
// the same transform. Runs on the dispatcher goroutine.
func (e *Engine) dispatch(ctx context.Context, t *Task) {
	if _, busy := e.running[t.TransformID]; busy {
		e.pending[t.TransformID] = t
		e.metrics.CoalescedTotal.Inc()
		e.logger.Debug("trigger coalesced", "transform", t.TransformID, "trigger", t.Trigger)
		return
	}

	t.State = StateRunning
	e.running[t.TransformID] = t
	e.wg.Add(1)
	go e.work(ctx, t)
}

// work runs one attempt on the worker pool and reports the completion.
func (e *Engine) work(ctx context.Context, t *Task) {
	defer e.wg.Done()

	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	if e.beforeExec != nil {
		e.beforeExec(t.TransformID)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	c := e.execute(attemptCtx, t)
	e.metrics.ExecutionSeconds.Observe(time.Since(start).Seconds())

	e.completions <- c
}

// complete applies a worker's report: retry, terminal failure, skip, or
// success, then releases any coalesced pending trigger. Runs on the
// dispatcher goroutine.
func (e *Engine) complete(ctx context.Context, c completion) {
	t := c.task
	delete(e.running, t.TransformID)

	switch c.state {
	case StateFailed:
		t.Attempts++
		if t.Attempts <= e.maxRetries && ctx.Err() == nil {
			e.metrics.RetriesTotal.Inc()
			e.logger.Warn("transform attempt failed, retrying",
				"transform", t.TransformID, "attempt", t.Attempts, "error", c.err)
			t.State = StateQueued
			e.queue.Enqueue(t)
		} else {
			t.State = StateFailed
			e.metrics.ExecutionsTotal.WithLabelValues(OutcomeFailed).Inc()
			e.logger.Error("transform failed terminally",
				"transform", t.TransformID, "attempts", t.Attempts, "error", c.err)
			e.bus.Publish(bus.Event{Topic: bus.TopicTransformExecuted, Payload: bus.TransformExecuted{
				TransformID:   t.TransformID,
				CorrelationID: t.CorrelationID,
				Outcome:       OutcomeFailed,
				Error:         c.err.Error(),
			}})
		}

	case StateSkipped:
		t.State = StateSkipped
		e.metrics.ExecutionsTotal.WithLabelValues(OutcomeSkipped).Inc()
		e.logger.Debug("transform skipped, input never written",
			"transform", t.TransformID, "input", c.skipped)
		e.bus.Publish(bus.Event{Topic: bus.TopicTransformExecuted, Payload: bus.TransformExecuted{
			TransformID:   t.TransformID,
			CorrelationID: t.CorrelationID,
			Outcome:       OutcomeSkipped,
		}})

	case StateSucceeded:
		t.State = StateSucceeded
		e.metrics.ExecutionsTotal.WithLabelValues(OutcomeSucceeded).Inc()
		e.bus.Publish(bus.Event{Topic: bus.TopicTransformExecuted, Payload: bus.TransformExecuted{
			TransformID:   t.TransformID,
			CorrelationID: t.CorrelationID,
			Outcome:       OutcomeSucceeded,
			Result:        valueToGo(c.result),
		}})
	}

	if p, ok := e.pending[t.TransformID]; ok {
		delete(e.pending, t.TransformID)
		p.State = StateQueued
		e.queue.Enqueue(p)
	}
}

func (e *Engine) onFieldValueSet(ev bus.Event) {
	payload, ok := ev.Payload.(bus.FieldValueSet)
	if !ok {
		return
	}
	e.metrics.EventsTotal.WithLabelValues(string(ev.Topic)).Inc()

	for _, id := range e.reg.TransformsForField(payload.Field) {
		e.Enqueue(&Task{
			TransformID:   id,
			Trigger:       payload.Field,
			CorrelationID: e.newID(),
		})
	}
}

func (e *Engine) onTransformTriggered(ev bus.Event) {
	payload, ok := ev.Payload.(bus.TransformTriggered)
	if !ok {
		return
	}
	e.metrics.EventsTotal.WithLabelValues(string(ev.Topic)).Inc()

	correlation := payload.CorrelationID
	if correlation == "" {
		correlation = e.newID()
	}
	e.Enqueue(&Task{
		TransformID:   payload.TransformID,
		CorrelationID: correlation,
	})
}

// onSchemaChanged re-registers the schema's transforms so the dependency
// maps and their persisted slots reflect the current declarations.
func (e *Engine) onSchemaChanged(ev bus.Event) {
	payload, ok := ev.Payload.(bus.SchemaChanged)
	if !ok {
		return
	}
	e.metrics.EventsTotal.WithLabelValues(string(ev.Topic)).Inc()

	for _, t := range e.reg.Transforms() {
		if t.Schema() != payload.Schema {
			continue
		}
		if err := e.reg.Register(context.Background(), t); err != nil {
			e.logger.Error("re-registration failed", "transform", t.ID, "error", err)
		}
	}
	e.metrics.RegisteredGauge.Set(float64(len(e.reg.Transforms())))
}

func (e *Engine) onRegistrationRequest(ev bus.Event) {
	payload, ok := ev.Payload.(bus.TransformRegistrationRequest)
	if !ok {
		return
	}
	e.metrics.EventsTotal.WithLabelValues(string(ev.Topic)).Inc()

	respond := func(err error) {
		resp := bus.TransformRegistrationResponse{
			CorrelationID: payload.CorrelationID,
			Success:       err == nil,
		}
		if err != nil {
			resp.Error = err.Error()
		}
		e.bus.Publish(bus.Event{Topic: bus.TopicTransformRegistrationResponse, Payload: resp})
	}

	t, err := transform.FromDeclaration(payload.Schema, payload.Registration)
	if err != nil {
		respond(err)
		return
	}
	if err := e.reg.Register(context.Background(), t); err != nil {
		respond(err)
		return
	}
	e.metrics.RegisteredGauge.Set(float64(len(e.reg.Transforms())))
	respond(nil)
}
