// Package logging provides structured logging with per-module log levels.
//
// Every record goes to stdout (when connected), the systemd journal (when
// running under journald) and an in-memory ring buffer that backs the
// recent-logs API and the live log stream.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"scsynth": "warn",  // engine output only when it complains
//			"api":     "debug",
//		},
//	})
//
// Then get a logger per module:
//
//	logger := logging.GetLogger("engine").With("name", name)
//	logger.Info("Booting engine", "address", addr)
//
// Loggers obtained before Initialize are updated in place. SetLevel changes a
// module's level at runtime.
//
// Journal entries are tagged with SyslogIdentifier and carry attributes as
// upper-case fields:
//
//	journalctl -t synthnode -f
//	journalctl -t synthnode MODULE=scsynth NAME=scsynth-1
//	journalctl -t synthnode -p err
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	scsynth = "warn"
package logging
