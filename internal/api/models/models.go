// Package models holds the request and response types of the HTTP API.
package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" doc:"Build timestamp"`
	BuildID   string `json:"build_id" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go runtime version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"OS and architecture"`
}

type VersionResponse struct {
	Body VersionData
}
