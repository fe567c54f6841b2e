package background

import (
	"context"
	"sync"
	"time"
)

// Status is the lifecycle state of a background task.
// Transitions are monotone: running is the only non-terminal state, and a
// terminal status never changes again.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Task is the record for a single background execution.
// The worker goroutine is detached: nothing joins it at process exit.
type Task struct {
	ID        string
	Kind      Kind
	StartedAt time.Time

	mu     sync.RWMutex
	status Status
	output string

	// done is closed exactly once when the task reaches a terminal status.
	done     chan struct{}
	doneOnce sync.Once

	// cancel is the cooperative stop flag for the worker's context.
	cancel context.CancelFunc
}

func newTask(id string, kind Kind, cancel context.CancelFunc) *Task {
	return &Task{
		ID:        id,
		Kind:      kind,
		StartedAt: time.Now(),
		status:    StatusRunning,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

// Status returns the current status thread-safely.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Output returns the current output thread-safely.
func (t *Task) Output() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.output
}

// Done returns a channel closed when the task reaches a terminal status.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// transition moves the task to a terminal status. When keepOutput is true
// the existing output is preserved (used by stop). Returns false if the
// task was already terminal.
func (t *Task) transition(status Status, output string, keepOutput bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return false
	}
	t.status = status
	if !keepOutput {
		t.output = output
	}
	return true
}

// closeDone releases everyone blocked on Done. Safe to call repeatedly.
func (t *Task) closeDone() {
	t.doneOnce.Do(func() { close(t.done) })
}
