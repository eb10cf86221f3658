package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/synthnode/internal/events"
)

// registerSSERoutes registers the lifecycle event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time engine lifecycle events. The current status is sent on connect.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"engine-booted":      events.BootedEvent{},
		"engine-boot-failed": events.BootFailedEvent{},
		"engine-quit":        events.QuitEvent{},
		"engine-panicked":    events.PanicEvent{},
		"status-changed":     events.StatusChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 16)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.BootedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.BootFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.QuitEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PanicEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StatusChangedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Current status, so clients need no separate status request
		status := string(s.supervisor.Status())
		if err := send.Data(events.StatusChangedEvent{
			Name:      s.supervisor.Engine().Machine().Name(),
			OldStatus: status,
			NewStatus: status,
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
