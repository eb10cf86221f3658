package models

import (
	"github.com/smazurov/synthnode/internal/options"
)

// Engine status models
type EngineStatusData struct {
	Name      string `json:"name" example:"scsynth-1a2b3c4d" doc:"Engine instance name"`
	Status    string `json:"status" example:"online" enum:"offline,booting,online,quitting" doc:"Lifecycle status"`
	Address   string `json:"address" example:"127.0.0.1:57110" doc:"Address of the current or last session"`
	Port      int    `json:"port" example:"57110" doc:"Configured command port"`
	Protocol  string `json:"protocol" example:"udp" doc:"Configured transport"`
	PID       int    `json:"pid,omitempty" example:"4242" doc:"Engine process ID when running as a subprocess"`
	LastError string `json:"last_error,omitempty" example:"*** ERROR: failed to open UDP socket" doc:"Error line that failed the last boot"`
}

type EngineStatusResponse struct {
	Body EngineStatusData
}

// Engine action models
type EngineActionData struct {
	Status  string `json:"status" example:"online" doc:"Lifecycle status after the action"`
	Message string `json:"message" example:"Engine booted" doc:"Result message"`
}

type EngineActionResponse struct {
	Body EngineActionData
}

type EngineCommandData struct {
	Command []string `json:"command" doc:"Engine invocation tokens"`
}

type EngineCommandResponse struct {
	Body EngineCommandData
}

// Engine metrics models
type EngineMetricsData struct {
	Name         string  `json:"name" doc:"Engine instance name"`
	Status       string  `json:"status" example:"online" doc:"Last reported status"`
	Boots        float64 `json:"boots" doc:"Successful boots"`
	BootFailures float64 `json:"boot_failures" doc:"Failed boots"`
	Quits        float64 `json:"quits" doc:"Requested exits"`
	Panics       float64 `json:"panics" doc:"Unexpected exits"`
	Lines        float64 `json:"lines" doc:"Output lines processed"`
}

type EngineMetricsListResponse struct {
	Body struct {
		Engines []EngineMetricsData `json:"engines" doc:"Per-engine counters"`
	}
}

// Log models
type LogsRequest struct {
	Since  uint64 `query:"since" doc:"Only return entries with a higher sequence number"`
	Level  string `query:"level" example:"warn" doc:"Minimum level"`
	Module string `query:"module" example:"scsynth" doc:"Only return entries from this module"`
}

type LogEntryData struct {
	Seq        uint64         `json:"seq" doc:"Sequence number"`
	Timestamp  string         `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"engine" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogsResponse struct {
	Body struct {
		Entries []LogEntryData `json:"entries" doc:"Buffered log entries, oldest first"`
	}
}

type LogLevelRequest struct {
	Body struct {
		Module string `json:"module" example:"scsynth" doc:"Logger module"`
		Level  string `json:"level" example:"debug" enum:"debug,info,warn,error" doc:"New level"`
	}
}

// Engine options models
type EngineOptionsResponse struct {
	Body options.Options
}

type EngineOptionsRequest struct {
	Body options.Options
}

type EngineReloadData struct {
	Changed bool   `json:"changed" doc:"Whether the options differed from the current ones"`
	Status  string `json:"status" example:"online" doc:"Lifecycle status after the reload"`
}

type EngineReloadResponse struct {
	Body EngineReloadData
}

// Client ID range models
type ClientRangesRequest struct {
	Client int `path:"client" minimum:"0" example:"0" doc:"Client index, below maximum_logins"`
}

type IDRangeData struct {
	Resource string `json:"resource" example:"buffers" doc:"Partitioned resource"`
	Min      int    `json:"min" doc:"First ID reserved for the client"`
	Max      int    `json:"max" doc:"One past the last reserved ID"`
}

type ClientRangesResponse struct {
	Body struct {
		Client int           `json:"client" doc:"Client index"`
		Ranges []IDRangeData `json:"ranges" doc:"Reserved ID ranges, one per resource"`
	}
}
