// Package version reports build metadata stamped in via ldflags:
//
//	go build -ldflags "-X github.com/smazurov/synthnode/internal/version.Version=v0.3.0"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	BuildID   = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	BuildID   string `json:"build_id"`
	GoVersion string `json:"go_version"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		BuildID:   BuildID,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String formats the info for the version command, e.g.
// "synthnode v0.3.0 (commit 1a2b3c4, built 2025-01-02, go1.24.11 linux/arm64)".
// Unknown fields are left out.
func (i Info) String() string {
	details := make([]string, 0, 3)
	if i.GitCommit != "unknown" && i.GitCommit != "" {
		commit := i.GitCommit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		details = append(details, "commit "+commit)
	}
	if i.BuildDate != "unknown" && i.BuildDate != "" {
		details = append(details, "built "+i.BuildDate)
	}
	details = append(details, i.GoVersion+" "+i.Platform)
	return fmt.Sprintf("synthnode %s (%s)", i.Version, strings.Join(details, ", "))
}
