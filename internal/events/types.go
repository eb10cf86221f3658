package events

// Event type constants for kelindar/event.
const (
	TypeEngineBooted uint32 = iota + 1
	TypeEngineBootFailed
	TypeEngineQuit
	TypeEnginePanicked
	TypeStatusChanged
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// BootedEvent is published once an engine session reaches online.
type BootedEvent struct {
	Name      string `json:"name" example:"scsynth-1" doc:"Engine instance name"`
	Address   string `json:"address" example:"127.0.0.1:57110" doc:"Engine listen address"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BootedEvent.
func (e BootedEvent) Type() uint32 { return TypeEngineBooted }

// BootFailedEvent is published when a boot attempt ends without readiness.
type BootFailedEvent struct {
	Name      string `json:"name" doc:"Engine instance name"`
	ErrorText string `json:"error_text" example:"ERROR: Could not bind UDP port" doc:"Last engine error line"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for BootFailedEvent.
func (e BootFailedEvent) Type() uint32 { return TypeEngineBootFailed }

// QuitEvent is published when the engine exits after an explicit quit.
type QuitEvent struct {
	Name      string `json:"name" doc:"Engine instance name"`
	ExitCode  int    `json:"exit_code" doc:"Engine exit code"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for QuitEvent.
func (e QuitEvent) Type() uint32 { return TypeEngineQuit }

// PanicEvent is published when an online engine exits without being asked to.
type PanicEvent struct {
	Name      string `json:"name" doc:"Engine instance name"`
	ExitCode  int    `json:"exit_code" doc:"Engine exit code"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for PanicEvent.
func (e PanicEvent) Type() uint32 { return TypeEnginePanicked }

// StatusChangedEvent is published on every lifecycle transition.
type StatusChangedEvent struct {
	Name      string `json:"name" doc:"Engine instance name"`
	OldStatus string `json:"old_status" example:"booting" doc:"Previous status"`
	NewStatus string `json:"new_status" example:"online" doc:"New status"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for StatusChangedEvent.
func (e StatusChangedEvent) Type() uint32 { return TypeStatusChanged }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"scsynth" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
