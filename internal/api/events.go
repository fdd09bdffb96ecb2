package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/cmdpanel/internal/events"
)

// registerSSERoutes registers the command change feed.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Change notifications for commands and their logs. Events carry only the command id; " +
			"clients re-fetch the command or poll its log with the after cursor.",
		Tags:     []string{"events"},
		Security: withAuth(),
		Errors:   []int{401},
	}, map[string]any{
		"connected":           events.ConnectedEvent{},
		"command-updated":     events.CommandUpdatedEvent{},
		"command-log-updated": events.CommandLogUpdatedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		feed := events.NewFeed(64)
		events.Follow[events.CommandUpdatedEvent](s.eventBus, feed)
		events.Follow[events.CommandLogUpdatedEvent](s.eventBus, feed)
		defer func() {
			feed.Close()
			if n := feed.Dropped(); n > 0 {
				s.logger.Debug("Slow event client missed changes", "dropped", n)
			}
		}()

		if err := send.Data(events.ConnectedEvent{
			Message:   "SSE connection established",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
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
