package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/synthnode/internal/api/models"
	"github.com/smazurov/synthnode/internal/events"
	"github.com/smazurov/synthnode/internal/logging"
)

// PublishLogs forwards every buffered log entry to bus, which feeds the log
// stream endpoint.
func PublishLogs(bus *events.Bus) {
	logging.SetLogCallback(func(entry logging.LogEntry) {
		bus.Publish(logEvent(entry))
	})
}

func logEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// registerLogRoutes registers the log query, level and streaming endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent logs",
		Description: "Get buffered log entries, including engine output lines under the scsynth module",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		minLevel := "debug"
		if input.Level != "" {
			minLevel = input.Level
		}
		threshold, err := logging.ParseLevel(minLevel)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("Invalid level", err)
		}

		resp := &models.LogsResponse{}
		resp.Body.Entries = []models.LogEntryData{}

		buffer := logging.GetBuffer()
		if buffer == nil {
			return resp, nil
		}
		for _, entry := range buffer.ReadSince(input.Since) {
			if input.Module != "" && entry.Module != input.Module {
				continue
			}
			if level, err := logging.ParseLevel(entry.Level); err == nil && level < threshold {
				continue
			}
			resp.Body.Entries = append(resp.Body.Entries, models.LogEntryData{
				Seq:        entry.Seq,
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/level",
		Summary:     "Set log level",
		Description: "Change one module's log level until the next restart",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(_ context.Context, input *models.LogLevelRequest) (*struct{}, error) {
		if err := logging.SetLevel(input.Body.Module, input.Body.Level); err != nil {
			return nil, huma.Error422UnprocessableEntity("Invalid level", err)
		}
		s.logger.Info("Log level changed", "module", input.Body.Module, "level", input.Body.Level)
		return nil, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends buffered logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing logged in between is lost.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		var lastSeq uint64
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				if err := send.Data(logEvent(entry)); err != nil {
					return
				}
				lastSeq = entry.Seq
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				entry, ok := ev.(events.LogEntryEvent)
				if !ok || entry.Seq <= lastSeq {
					continue
				}
				lastSeq = entry.Seq
				if err := send.Data(entry); err != nil {
					return
				}
			}
		}
	})
}
