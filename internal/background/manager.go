// Package background runs detached work with a drain-once notification bus.
// Each agent loop owns its own Manager, so a finished task announces itself
// exactly once to the agent that started it.
package background

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/crew/internal/cachemanager"
	"github.com/zjrosen/crew/internal/log"
	"github.com/zjrosen/crew/internal/pubsub"
	"github.com/zjrosen/crew/internal/tracing"
)

// ErrTaskNotFound is returned when a task ID is unknown to the manager.
var ErrTaskNotFound = errors.New("task not found")

// retentionTTL is how long a drained terminal record stays queryable.
const retentionTTL = 30 * time.Minute

// Work is the unit a background task executes. The context is cancelled
// when the task is stopped; cooperative work should return promptly.
type Work func(ctx context.Context) (string, error)

// Result is a point-in-time snapshot of a task.
type Result struct {
	TaskID string `json:"task_id"`
	Status Status `json:"status"`
	Output string `json:"output"`
}

// TaskEvent is published to observers on task start and terminal
// transition. The notification bus stays the sole agent-facing channel;
// events exist for logging and CLI surfaces.
type TaskEvent struct {
	TaskID string
	Kind   Kind
	Status Status
}

// Manager owns background tasks: it starts workers, answers queries,
// stops tasks, and queues one notification per finished task.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*Task

	bus      *NotificationBus
	retained *cachemanager.Cache[*Task]
	broker   *pubsub.Broker[TaskEvent]
	tracer   trace.Tracer
}

// Option configures a Manager.
type Option func(*Manager)

// WithTracer attaches a tracer; spans wrap each task's execution.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// NewManager creates a Manager with no tasks.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		tasks:    make(map[string]*Task),
		bus:      NewNotificationBus(),
		retained: cachemanager.New[*Task]("background-retention", retentionTTL, retentionTTL),
		broker:   pubsub.NewBroker[TaskEvent](),
		tracer:   noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts work in a detached goroutine and returns its task ID
// immediately. The goroutine is never joined: if the process exits first,
// the work simply dies with it.
func (m *Manager) Run(kind Kind, work Work) string {
	ctx, cancel := context.WithCancel(context.Background())
	task := newTask(nextID(kind), kind, cancel)

	m.mu.Lock()
	m.tasks[task.ID] = task
	m.mu.Unlock()

	log.Debug(log.CatBackground, "task started", "id", task.ID, "kind", kind)
	m.broker.Publish(pubsub.CreatedEvent, TaskEvent{TaskID: task.ID, Kind: kind, Status: StatusRunning})

	go m.execute(ctx, task, work)

	return task.ID
}

// execute runs work to completion and records the outcome.
func (m *Manager) execute(ctx context.Context, task *Task, work Work) {
	spanCtx, span := m.tracer.Start(ctx, tracing.SpanPrefixTask+"run",
		trace.WithAttributes(
			attribute.String(tracing.AttrTaskID, task.ID),
			attribute.String(tracing.AttrTaskKind, string(task.Kind)),
		))
	defer span.End()

	output, err := runRecovered(spanCtx, work)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	m.finish(task, output, err)
}

// runRecovered invokes work, converting a panic into an error so a
// faulty worker can never take the process down.
func runRecovered(ctx context.Context, work Work) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return work(ctx)
}

// finish records the worker's outcome. The notification is queued BEFORE
// done is closed, so a caller released by a blocking Output observes it on
// its next drain.
func (m *Manager) finish(task *Task, output string, err error) {
	status := StatusCompleted
	if err != nil {
		status = StatusError
		output = "Error: " + err.Error()
	}

	if !task.transition(status, output, false) {
		// Already stopped; the stop path closed done.
		return
	}

	m.bus.Add(Notification{TaskID: task.ID, Status: status, Summary: summarize(output)})
	m.broker.Publish(pubsub.UpdatedEvent, TaskEvent{TaskID: task.ID, Kind: task.Kind, Status: status})
	log.Debug(log.CatBackground, "task finished", "id", task.ID, "status", status)

	task.closeDone()
}

// lookup finds a task in the live map or the retention cache.
func (m *Manager) lookup(id string) (*Task, bool) {
	m.mu.RLock()
	task, ok := m.tasks[id]
	m.mu.RUnlock()
	if ok {
		return task, true
	}
	return m.retained.Get(id)
}

// Output returns a snapshot of the task. When block is true it waits for
// the task to finish, for the timeout to lapse (timeout <= 0 waits
// indefinitely), or for ctx to be cancelled — whichever comes first — and
// then snapshots. A timed-out wait is not an error: the snapshot simply
// still says running.
func (m *Manager) Output(ctx context.Context, id string, block bool, timeout time.Duration) (Result, error) {
	task, ok := m.lookup(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	if !block {
		return snapshot(task), nil
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-task.Done():
	case <-timer:
	case <-ctx.Done():
		return snapshot(task), ctx.Err()
	}
	return snapshot(task), nil
}

// Stop cancels a task's context and marks it stopped, unless it already
// finished, in which case the existing terminal result is returned.
// Stopping is idempotent and emits no notification.
func (m *Manager) Stop(id string) (Result, error) {
	task, ok := m.lookup(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	task.cancel()

	if task.transition(StatusStopped, "", true) {
		m.broker.Publish(pubsub.UpdatedEvent, TaskEvent{TaskID: task.ID, Kind: task.Kind, Status: StatusStopped})
		log.Debug(log.CatBackground, "task stopped", "id", task.ID)
		task.closeDone()

		// Stopped tasks never notify, so the stopper's acknowledgment is
		// the drain: retire the record now.
		m.retire(task)
	}

	return snapshot(task), nil
}

// DrainNotifications removes and returns all pending notifications in
// completion order. Drained terminal records move to the retention cache;
// until the TTL lapses they remain queryable by Output and Stop.
func (m *Manager) DrainNotifications() []Notification {
	drained := m.bus.Drain()

	for _, n := range drained {
		m.mu.RLock()
		task, ok := m.tasks[n.TaskID]
		m.mu.RUnlock()
		if ok && task.Status().Terminal() {
			m.retire(task)
		}
	}

	return drained
}

// retire moves a terminal record from the live map to the TTL cache.
func (m *Manager) retire(task *Task) {
	m.mu.Lock()
	delete(m.tasks, task.ID)
	m.mu.Unlock()
	m.retained.Set(task.ID, task, retentionTTL)
}

// Subscribe delivers TaskEvents until ctx is cancelled.
func (m *Manager) Subscribe(ctx context.Context) <-chan pubsub.Event[TaskEvent] {
	return m.broker.Subscribe(ctx)
}

// Close shuts down the observer broker. Running tasks are left alone.
func (m *Manager) Close() {
	m.broker.Close()
}

func snapshot(task *Task) Result {
	task.mu.RLock()
	defer task.mu.RUnlock()
	return Result{TaskID: task.ID, Status: task.status, Output: task.output}
}
