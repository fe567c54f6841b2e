// Package team provides the coordination fabric: teams of named agents,
// durable per-teammate inboxes, broadcast, and the teammate idle loop.
package team

import (
	"time"

	"github.com/google/uuid"
)

// MessageType categorizes the kind of message being sent.
type MessageType string

const (
	// TypeMessage is a directed message to one teammate.
	TypeMessage MessageType = "message"

	// TypeBroadcast fans out to every member of a team except the sender.
	TypeBroadcast MessageType = "broadcast"

	// TypeShutdownRequest asks a teammate to wind down.
	TypeShutdownRequest MessageType = "shutdown_request"

	// TypeShutdownResponse acknowledges a shutdown request.
	TypeShutdownResponse MessageType = "shutdown_response"

	// TypePlanApprovalResponse answers a teammate's plan approval ask.
	TypePlanApprovalResponse MessageType = "plan_approval_response"
)

// Valid reports whether the message type is one of the known types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeMessage, TypeBroadcast, TypeShutdownRequest, TypeShutdownResponse, TypePlanApprovalResponse:
		return true
	}
	return false
}

// Message is one inbox line. Each message is a single JSON object on its
// own line in the recipient's inbox file.
type Message struct {
	ID      string      `json:"id"`
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
	Sender  string      `json:"sender"`
	SentAt  time.Time   `json:"sent_at"`
}

// NewMessage creates a message with a fresh uuid and the current time.
func NewMessage(msgType MessageType, sender, content string) Message {
	return Message{
		ID:      uuid.NewString(),
		Type:    msgType,
		Content: content,
		Sender:  sender,
		SentAt:  time.Now().UTC(),
	}
}
