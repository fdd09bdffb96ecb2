package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/cmdpanel/internal/events"
	"github.com/smazurov/cmdpanel/internal/logging"
)

// registerLogRoutes registers the application log streaming SSE endpoint.
func (s *Server) registerLogRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Application logs via Server-Sent Events. Buffered history is sent first, then new entries. " +
			"Entries may repeat across the boundary; deduplicate on seq.",
		Tags:     []string{"logs"},
		Security: withAuth(),
		Errors:   []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing logged during the replay is lost
		feed := events.NewFeed(256)
		events.Follow[events.LogEntryEvent](s.eventBus, feed)
		defer feed.Close()

		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				if err := send.Data(LogEntryToEvent(entry)); err != nil {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-feed.C:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

// LogEntryToEvent converts a buffered log entry into its bus event.
func LogEntryToEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}
