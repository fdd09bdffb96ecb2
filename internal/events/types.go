package events

// Event type constants for kelindar/event.
const (
	TypeCommandUpdated uint32 = iota + 1
	TypeCommandLogUpdated
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CommandUpdatedEvent signals that a command record or its run state changed.
// Consumers re-fetch the command; the event carries no state.
type CommandUpdatedEvent struct {
	CommandID int64  `json:"command_id" example:"7" doc:"Command identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CommandUpdatedEvent.
func (e CommandUpdatedEvent) Type() uint32 { return TypeCommandUpdated }

// CommandLogUpdatedEvent signals that new log lines exist for a command.
type CommandLogUpdatedEvent struct {
	CommandID int64  `json:"command_id" example:"7" doc:"Command identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CommandLogUpdatedEvent.
func (e CommandLogUpdatedEvent) Type() uint32 { return TypeCommandLogUpdated }

// LogEntryEvent represents an application log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"process" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// ConnectedEvent is the first message on every SSE connection. It is sent
// directly to the client and never published on the bus.
type ConnectedEvent struct {
	Message   string `json:"message" example:"SSE connection established" doc:"Connection status"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}
