// Package process runs engine binaries as subprocesses.
//
// Subprocess wraps os/exec for a single engine process:
//   - stdout and stderr merged into one raw output stream
//   - its own process group, so signals reach helper children too
//   - graceful shutdown with SIGINT and configurable timeout
//   - force kill with SIGKILL if graceful shutdown times out
//
// Strategies use it through the Driver interface so tests can substitute
// their own. KillStray finds and kills engine processes left behind by
// earlier runs.
//
// Example usage:
//
//	p := process.NewSubprocess("scsynth", []string{"scsynth", "-u", "57110"}, logger)
//	if err := p.Start(); err != nil {
//	    return err
//	}
//	go io.Copy(os.Stdout, p.Output())
//	defer p.Terminate()
package process
