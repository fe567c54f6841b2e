package team

import "sync"

// Status is a teammate's lifecycle state. Shutdown is sticky: once a
// teammate has shut down it never becomes active again.
type Status string

const (
	StatusActive   Status = "active"
	StatusIdle     Status = "idle"
	StatusShutdown Status = "shutdown"
)

// Teammate is the record for one named agent on a team.
type Teammate struct {
	Name     string
	TeamName string

	// TaskID is the background task running this teammate's loop
	// ("t"-prefixed), empty for records without a loop (e.g. the lead).
	TaskID string

	inbox *Inbox

	mu     sync.RWMutex
	status Status
}

func newTeammate(name, teamName string, inbox *Inbox) *Teammate {
	return &Teammate{
		Name:     name,
		TeamName: teamName,
		inbox:    inbox,
		status:   StatusActive,
	}
}

// Inbox returns the teammate's durable mailbox.
func (t *Teammate) Inbox() *Inbox {
	return t.inbox
}

// Status returns the current status thread-safely.
func (t *Teammate) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// SetStatus updates the status. Shutdown is sticky.
func (t *Teammate) SetStatus(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusShutdown {
		return
	}
	t.status = status
}
