// Package board provides the shared task board: a small SQLite-backed
// store of work items that multiple agents read and mutate concurrently.
package board

import (
	"errors"
	"time"
)

// ErrItemNotFound is returned when an item ID does not exist on the board.
var ErrItemNotFound = errors.New("item not found")

// ErrOwnerRequired is returned when an item is moved to in_progress
// without an owner.
var ErrOwnerRequired = errors.New("owner required for in_progress")

// Status is the lifecycle state of a board item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether the status is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Item is a single unit of work on the board. IDs are small monotonic
// integers rendered as strings ("1", "2", ...).
type Item struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Status    Status    `json:"status"`
	Owner     string    `json:"owner,omitempty"`
	BlockedBy []string  `json:"blocked_by,omitempty"`
	DependsOn []string  `json:"depends_on,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Blocked reports whether the item still has unresolved blockers.
func (i Item) Blocked() bool {
	return len(i.BlockedBy) > 0
}

// Claimable reports whether an idle teammate may take the item: pending,
// ownerless, and unblocked.
func (i Item) Claimable() bool {
	return i.Status == StatusPending && i.Owner == "" && !i.Blocked()
}

// UpdateRequest describes a partial mutation of an item. Nil/empty fields
// are left unchanged.
type UpdateRequest struct {
	Status          *Status
	Owner           *string
	AddBlockedBy    []string
	RemoveBlockedBy []string
	AddDependsOn    []string
	RemoveDependsOn []string
}
