package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smazurov/synthnode/internal/lifecycle"
	"github.com/smazurov/synthnode/internal/options"
)

// ErrRenderRunning is returned by Run while another render is in progress.
var ErrRenderRunning = errors.New("a render is already running")

// Nonrealtime runs offline renders. Output is routed through the machine
// like a realtime engine's, so captures work, but there is no boot phase.
type Nonrealtime struct {
	cfg     Config
	machine *lifecycle.Machine

	mu      sync.Mutex
	running bool
}

// NewNonrealtime creates a render runner.
func NewNonrealtime(cfg Config) *Nonrealtime {
	cfg = cfg.withDefaults()
	return &Nonrealtime{cfg: cfg, machine: newMachine(cfg)}
}

// Machine returns the lifecycle machine.
func (n *Nonrealtime) Machine() *lifecycle.Machine {
	return n.machine
}

// Render resolves the engine executable from opts and renders job in dir.
func (n *Nonrealtime) Render(ctx context.Context, opts options.Options, job options.NonrealtimeRender, dir string) (int, error) {
	executable, err := options.FindExecutable(opts.Executable)
	if err != nil {
		return exitNotStarted, lifecycle.NewError(lifecycle.ErrCodeRenderFailed, "failed to resolve engine command", err)
	}
	return n.Run(ctx, opts.EncodeNonrealtime(executable, job), dir)
}

// Run launches args in dir and blocks until the process exits, returning
// its exit code. A non-zero exit is an error. When ctx ends the render is
// interrupted and Run still waits for the exit.
func (n *Nonrealtime) Run(ctx context.Context, args []string, dir string) (int, error) {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return exitNotStarted, ErrRenderRunning
	}
	n.running = true
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
	}()

	if !n.machine.Reset() {
		return exitNotStarted, ErrRenderRunning
	}
	exit := n.machine.ExitResult()
	logger := n.cfg.Logger.With("name", n.machine.Name())

	driver := n.cfg.NewDriver(n.machine.Name(), args, dir)
	if err := driver.Start(); err != nil {
		n.machine.Exited(exitNotStarted)
		return exitNotStarted, lifecycle.NewError(lifecycle.ErrCodeRenderFailed, "failed to start render", err)
	}
	logger.Info("Render started", "pid", driver.PID())

	go runLoop(n.machine, driver)

	select {
	case <-exit.Done():
	case <-ctx.Done():
		logger.Info("Render cancelled, interrupting")
		go driver.Terminate()
		<-exit.Done()
	}

	code, _ := exit.Value()
	if ctx.Err() != nil {
		return code, lifecycle.NewError(lifecycle.ErrCodeRenderFailed, "render cancelled", ctx.Err())
	}
	if code != 0 {
		logger.Error("Render failed", "exit_code", code)
		return code, lifecycle.NewError(lifecycle.ErrCodeRenderFailed, fmt.Sprintf("render exited with code %d", code), nil)
	}
	logger.Info("Render finished")
	return 0, nil
}
