// Package agent defines the model-call boundary and the loops that drive
// it: the lead's step loop and the teammate turn runner. Transport to an
// actual model lives behind the Client interface.
package agent

import "context"

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is one entry in a conversation history.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCallID links a RoleTool message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolDef describes one tool offered to the model. InputSchema is a JSON
// Schema object.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is the model asking for a tool invocation.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Request is one model call.
type Request struct {
	System   string        `json:"system,omitempty"`
	Messages []ChatMessage `json:"messages"`
	Tools    []ToolDef     `json:"tools,omitempty"`
}

// Response is what the model produced: text, tool calls, or both.
// An empty ToolCalls slice means the model went quiescent.
type Response struct {
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Client is the model-call boundary.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Compactor reduces a conversation history when it grows too large.
// Returns the (possibly new) history and whether compaction ran; callers
// re-establish identity context after a compaction.
type Compactor interface {
	Compact(history []ChatMessage) ([]ChatMessage, bool)
}

// DefaultHistoryLimit is the message count above which the truncating
// compactor runs.
const DefaultHistoryLimit = 200

// TruncatingCompactor keeps the most recent messages. It is the simplest
// possible Compactor; hosts with smarter summarization plug in their own.
type TruncatingCompactor struct {
	// Limit is the history length that triggers compaction. Non-positive
	// means DefaultHistoryLimit.
	Limit int
}

// Compact drops the oldest half of the history once it exceeds the limit.
func (c TruncatingCompactor) Compact(history []ChatMessage) ([]ChatMessage, bool) {
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(history) <= limit {
		return history, false
	}
	keep := limit / 2
	if keep < 1 {
		keep = 1
	}
	compacted := make([]ChatMessage, keep)
	copy(compacted, history[len(history)-keep:])
	return compacted, true
}
