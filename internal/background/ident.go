package background

import (
	"strconv"
	"sync/atomic"
)

// Kind classifies what a background task runs.
type Kind string

const (
	KindBash     Kind = "bash"
	KindAgent    Kind = "agent"
	KindTeammate Kind = "teammate"
)

// Prefix returns the task ID prefix for the kind.
func (k Kind) Prefix() string {
	switch k {
	case KindBash:
		return "b"
	case KindAgent:
		return "a"
	case KindTeammate:
		return "t"
	default:
		return "x"
	}
}

// idCounter is process-wide so IDs stay unique across managers
// (each teammate loop owns its own Manager).
var idCounter atomic.Int64

// nextID returns the next task ID for the kind: "b1", "a2", "t3", ...
func nextID(kind Kind) string {
	return kind.Prefix() + strconv.FormatInt(idCounter.Add(1), 10)
}
