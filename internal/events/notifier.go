package events

import (
	"time"
)

// Notifier publishes command change notifications on the bus.
type Notifier struct {
	bus *Bus
	now func() time.Time
}

// NewNotifier returns a Notifier publishing to bus.
func NewNotifier(bus *Bus) *Notifier {
	return &Notifier{bus: bus, now: time.Now}
}

// CommandChanged signals that the command record or its run state changed.
func (n *Notifier) CommandChanged(id int64) {
	n.bus.Publish(CommandUpdatedEvent{
		CommandID: id,
		Timestamp: n.now().Format(time.RFC3339),
	})
}

// CommandLogChanged signals that new log lines exist for the command.
func (n *Notifier) CommandLogChanged(id int64) {
	n.bus.Publish(CommandLogUpdatedEvent{
		CommandID: id,
		Timestamp: n.now().Format(time.RFC3339),
	})
}
