package engine

import (
	"context"
	"sync"

	"github.com/smazurov/synthnode/internal/lifecycle"
	"github.com/smazurov/synthnode/internal/options"
	"github.com/smazurov/synthnode/internal/process"
)

// subprocess holds what Threaded and Async share: launching the driver,
// waiting for boot and quitting. They differ only in how output is read.
type subprocess struct {
	cfg     Config
	machine *lifecycle.Machine

	mu     sync.Mutex
	driver process.Driver
}

func (s *subprocess) init(cfg Config) {
	s.cfg = cfg.withDefaults()
	s.machine = newMachine(s.cfg)
}

// Machine returns the lifecycle machine.
func (s *subprocess) Machine() *lifecycle.Machine {
	return s.machine
}

// PID returns the engine process ID, or 0 if none was started.
func (s *subprocess) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver == nil {
		return 0
	}
	return s.driver.PID()
}

// launch resolves the command, begins a session and starts the driver. A
// previous session that is still being torn down is waited out first. It
// returns a nil driver and nil error when the machine was not offline.
func (s *subprocess) launch(ctx context.Context, opts options.Options) (process.Driver, error) {
	if err := validate(opts); err != nil {
		return nil, err
	}
	// Resolve before Begin so a missing executable leaves the machine offline.
	args, err := opts.Command()
	if err != nil {
		return nil, lifecycle.NewError(lifecycle.ErrCodeBootFailed, "failed to resolve engine command", err)
	}
	if err := s.machine.AwaitTeardown(ctx); err != nil {
		return nil, lifecycle.NewError(lifecycle.ErrCodeBootFailed, "previous engine session still exiting", err)
	}
	if !s.machine.Begin(opts.Address()) {
		return nil, nil
	}

	driver := s.cfg.NewDriver(s.machine.Name(), args, s.cfg.Dir)
	if err := driver.Start(); err != nil {
		s.machine.Fail(err.Error())
		s.machine.Exited(exitNotStarted)
		return nil, lifecycle.NewError(lifecycle.ErrCodeBootFailed, "failed to start engine", err)
	}

	s.mu.Lock()
	s.driver = driver
	s.mu.Unlock()
	return driver, nil
}

// awaitBoot blocks until the session's boot future resolves. A failed or
// abandoned boot kills the engine and waits for its exit to be committed.
func (s *subprocess) awaitBoot(ctx context.Context, driver process.Driver) error {
	boot, exit := s.machine.BootResult(), s.machine.ExitResult()

	ok, err := boot.Wait(ctx)
	if err == nil && ok {
		return nil
	}

	driver.Kill()
	<-exit.Done()
	return lifecycle.NewBootError(s.machine.ErrorText(), err)
}

// Quit interrupts the engine, force-killing it after the graceful timeout,
// and waits for the exit to be committed. It is a no-op unless online.
func (s *subprocess) Quit(ctx context.Context) error {
	if !s.machine.BeginQuit() {
		return nil
	}
	exit := s.machine.ExitResult()

	s.mu.Lock()
	driver := s.driver
	s.mu.Unlock()

	go driver.Terminate()

	_, err := exit.Wait(ctx)
	return err
}
