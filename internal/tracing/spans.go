package tracing

// Span attribute keys. These constants define the semantic conventions
// for span attributes across the coordination layer.
const (
	// Background task attributes
	AttrTaskID     = "task.id"
	AttrTaskKind   = "task.kind"
	AttrTaskStatus = "task.status"

	// Team attributes
	AttrTeamName     = "team.name"
	AttrTeammateName = "teammate.name"

	// Message attributes
	AttrMessageID   = "message.id"
	AttrMessageType = "message.type"
	AttrSender      = "message.sender"
	AttrRecipient   = "message.recipient"

	// Board attributes
	AttrItemID    = "board.item.id"
	AttrItemState = "board.item.state"

	// Tool attributes
	AttrToolName   = "tool.name"
	AttrCallerName = "tool.caller"

	// Error attributes
	AttrErrorMessage = "error.message"
	AttrErrorType    = "error.type"
)

// Span name prefixes for consistent naming.
const (
	SpanPrefixTask  = "task."
	SpanPrefixTeam  = "team."
	SpanPrefixBoard = "board."
	SpanPrefixTool  = "tool."
)

// Event names for span events.
const (
	EventTaskStarted       = "task.started"
	EventTaskFinished      = "task.finished"
	EventNotificationAdded = "notification.added"
	EventMessageQueued     = "message.queued"
	EventMessageDelivered  = "message.delivered"
	EventItemClaimed       = "item.claimed"
	EventErrorOccurred     = "error.occurred"
)
