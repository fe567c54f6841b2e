package background

import "sync"

// SummaryLimit caps notification summaries at the first 500 characters of
// a task's output.
const SummaryLimit = 500

// Notification announces a task that finished (completed or error).
// Stopped tasks are not announced: the stopper already knows.
type Notification struct {
	TaskID  string `json:"task_id"`
	Status  Status `json:"status"`
	Summary string `json:"summary"`
}

// NotificationBus is a thread-safe FIFO of pending notifications.
// Each notification is delivered to exactly one drainer, once.
type NotificationBus struct {
	entries []Notification
	mu      sync.Mutex
}

// NewNotificationBus creates an empty bus. The bus is unbounded: producers
// never block and nothing is dropped.
func NewNotificationBus() *NotificationBus {
	return &NotificationBus{entries: make([]Notification, 0)}
}

// Add appends a notification to the back of the bus.
func (b *NotificationBus) Add(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, n)
}

// Drain removes and returns all pending notifications in arrival order,
// leaving the bus empty. Returns an empty slice if nothing is pending.
func (b *NotificationBus) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == 0 {
		return []Notification{}
	}
	result := b.entries
	b.entries = make([]Notification, 0)
	return result
}

// Len returns the number of pending notifications.
func (b *NotificationBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// summarize returns the first SummaryLimit characters of output.
// Truncation counts characters, not bytes, so multibyte output is never
// split mid-rune.
func summarize(output string) string {
	runes := []rune(output)
	if len(runes) <= SummaryLimit {
		return output
	}
	return string(runes[:SummaryLimit])
}
