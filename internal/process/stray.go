package process

import (
	"log/slog"
	"os"
	"slices"

	gopsprocess "github.com/shirou/gopsutil/v4/process"
)

// EngineNames are the process names KillStray looks for by default.
var EngineNames = []string{"scsynth", "supernova", "scsynth.exe", "supernova.exe"}

// KillStray kills every running process whose name is in names and returns
// how many were killed. The calling process is never killed.
func KillStray(names []string, logger *slog.Logger) (int, error) {
	procs, err := gopsprocess.Processes()
	if err != nil {
		return 0, err
	}

	self := int32(os.Getpid())
	killed := 0
	for _, proc := range procs {
		if proc.Pid == self {
			continue
		}
		name, err := proc.Name()
		if err != nil || !slices.Contains(names, name) {
			continue
		}
		logger.Info("Killing stray engine process", "pid", proc.Pid, "name", name)
		if err := proc.Kill(); err != nil {
			logger.Warn("Failed to kill process", "pid", proc.Pid, "error", err)
			continue
		}
		killed++
	}
	return killed, nil
}
