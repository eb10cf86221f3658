package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Driver is the I/O capability an engine strategy drives a process through.
type Driver interface {
	// Start launches the process.
	Start() error
	// Output is the merged stdout/stderr stream. It reaches EOF once the
	// process and everything it spawned have exited, or after Close.
	Output() io.Reader
	// PID returns the process ID, or 0 before Start.
	PID() int
	// Terminate sends SIGINT, waits for the graceful timeout, then kills.
	// It returns the exit code.
	Terminate() int
	// Kill sends SIGKILL without waiting.
	Kill()
	// Wait blocks until the process exits and returns its exit code.
	Wait() int
	// Done is closed when the process has exited.
	Done() <-chan struct{}
	// Close releases the output stream.
	Close() error
}

// Subprocess manages the lifecycle of one engine subprocess.
type Subprocess struct {
	id     string
	args   []string
	dir    string
	logger *slog.Logger

	cmd      *exec.Cmd
	output   *os.File
	done     chan struct{}
	exitCode int
	started  bool
	mu       sync.Mutex

	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after Kill() before giving up
}

// NewSubprocess creates a subprocess for args, where args[0] is the binary.
func NewSubprocess(id string, args []string, logger *slog.Logger) *Subprocess {
	return &Subprocess{
		id:              id,
		args:            args,
		logger:          logger.With("id", id),
		done:            make(chan struct{}),
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// SetDir sets the working directory of the process. Call before Start.
func (p *Subprocess) SetDir(dir string) {
	p.dir = dir
}

// SetTimeouts overrides the graceful and kill timeouts used by Terminate.
func (p *Subprocess) SetTimeouts(graceful, kill time.Duration) {
	p.gracefulTimeout = graceful
	p.killTimeout = kill
}

// Command returns the command line as a single string, for logs.
func (p *Subprocess) Command() string {
	return strings.Join(p.args, " ")
}

// Start launches the process with stdout and stderr on one pipe.
func (p *Subprocess) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("process %s already started", p.id)
	}
	if len(p.args) == 0 {
		p.logger.Error("Empty command")
		return fmt.Errorf("empty command")
	}

	r, w, err := os.Pipe()
	if err != nil {
		p.logger.Error("Failed to create output pipe", "error", err)
		return err
	}

	p.cmd = exec.Command(p.args[0], p.args[1:]...)
	p.cmd.Dir = p.dir
	p.cmd.Stdout = w
	p.cmd.Stderr = w
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := p.cmd.Start(); err != nil {
		r.Close()
		w.Close()
		p.logger.Error("Failed to start process", "error", err, "command", p.Command())
		return err
	}
	// The child holds its own copy of the write end.
	w.Close()

	p.output = r
	p.started = true
	p.logger.Info("Process started", "pid", p.cmd.Process.Pid, "command", p.Command())

	go func() {
		err := p.cmd.Wait()
		p.exitCode = exitCodeFromError(err)
		if err != nil && p.exitCode == 1 {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				p.logger.Error("Process exited with error", "error", err)
			}
		}
		p.logger.Info("Process exited", "pid", p.cmd.Process.Pid, "exit_code", p.exitCode)
		close(p.done)
	}()
	return nil
}

// Output returns the merged output stream.
func (p *Subprocess) Output() io.Reader {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.output == nil {
		return strings.NewReader("")
	}
	return p.output
}

// PID returns the process ID.
func (p *Subprocess) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited.
func (p *Subprocess) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits and returns its exit code.
func (p *Subprocess) Wait() int {
	<-p.done
	return p.exitCode
}

// Close closes the read end of the output pipe, unblocking any reader.
func (p *Subprocess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.output == nil {
		return nil
	}
	return p.output.Close()
}

// Terminate sends SIGINT and waits for exit, force-killing after the
// graceful timeout. Returns the exit code.
func (p *Subprocess) Terminate() int {
	select {
	case <-p.done:
		return p.exitCode
	default:
	}
	p.sendSignal(syscall.SIGINT)
	return p.waitForExit(p.gracefulTimeout)
}

// Kill sends SIGKILL to the process group without waiting.
func (p *Subprocess) Kill() {
	p.sendSignal(syscall.SIGKILL)
}

// sendSignal signals the whole process group.
func (p *Subprocess) sendSignal(sig syscall.Signal) {
	pid := p.PID()
	if pid == 0 {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	p.logger.Info("Sending signal to process group", "pid", pid, "signal", sig.String())
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("Failed to signal process", "signal", sig.String(), "error", err)
	}
}

// waitForExit waits for the process to exit with a timeout, force-killing if needed.
func (p *Subprocess) waitForExit(timeout time.Duration) int {
	select {
	case <-p.done:
		return p.exitCode
	case <-time.After(timeout):
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", timeout)
		p.Kill()
		// Wait for process to exit with a secondary timeout to prevent hanging
		select {
		case <-p.done:
			return p.exitCode
		case <-time.After(p.killTimeout):
			p.logger.Error("Process did not exit after kill signal")
			return 137
		}
	}
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, 128+signal for a signalled process, the exit code
// for other ExitErrors, or 1 for anything else.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}
