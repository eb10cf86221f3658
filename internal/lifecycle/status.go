// Package lifecycle is the I/O-free core shared by every engine strategy: the
// boot status state machine, output line classification, pattern-bounded
// captures and the single-write futures that hand results to callers.
package lifecycle

import "strings"

// Status is the lifecycle state of one engine session.
type Status string

// Lifecycle states.
const (
	StatusOffline  Status = "offline"
	StatusBooting  Status = "booting"
	StatusOnline   Status = "online"
	StatusQuitting Status = "quitting"
)

// LineStatus is the classification of one complete output line.
type LineStatus int

// Line classifications.
const (
	LineContinue LineStatus = iota
	LineReady
	LineError
)

func (s LineStatus) String() string {
	switch s {
	case LineReady:
		return "ready"
	case LineError:
		return "error"
	default:
		return "continue"
	}
}

// Banners printed by scsynth and supernova. These are a versioned contract
// with the engine binaries; the tests pin them against captured output.
var (
	ReadyBanners = []string{"SuperCollider 3 server ready", "Supernova ready"}
	ErrorBanners = []string{"Exception", "ERROR", "*** ERROR"}
)

// Classify maps one complete output line to its LineStatus.
func Classify(line string) LineStatus {
	if hasAnyPrefix(line, ReadyBanners) {
		return LineReady
	}
	if hasAnyPrefix(line, ErrorBanners) {
		return LineError
	}
	return LineContinue
}

// ParseLogLevel extracts a log level from engine output. The engines have no
// level markup, so error banners map to "error", warning prefixes to
// "warning" and everything else to "info". The message is returned unchanged.
func ParseLogLevel(line string) (level, msg string) {
	switch {
	case Classify(line) == LineError:
		return "error", line
	case strings.HasPrefix(line, "WARNING"), strings.HasPrefix(line, "*** WARNING"):
		return "warning", line
	default:
		return "info", line
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
