package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/smazurov/synthnode/internal/lifecycle"
	"github.com/smazurov/synthnode/internal/options"
)

// Supervisor pairs an engine with the options it should run with, so
// callers that do not own the options (the API, the config watcher) can
// boot, quit and reconfigure it.
type Supervisor struct {
	engine Engine
	logger *slog.Logger

	mu   sync.Mutex
	opts options.Options
	// ops serializes Boot, Quit and Reload.
	ops sync.Mutex
}

// NewSupervisor creates a supervisor for engine.
func NewSupervisor(engine Engine, opts options.Options, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		engine: engine,
		logger: logger,
		opts:   opts,
	}
}

// Engine returns the supervised engine.
func (s *Supervisor) Engine() Engine { return s.engine }

// Status returns the engine's lifecycle status.
func (s *Supervisor) Status() lifecycle.Status { return s.engine.Machine().Status() }

// Options returns the current options.
func (s *Supervisor) Options() options.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// PID returns the engine process ID when the engine runs as a subprocess.
func (s *Supervisor) PID() int {
	if p, ok := s.engine.(interface{ PID() int }); ok {
		return p.PID()
	}
	return 0
}

// Boot boots the engine with the current options.
func (s *Supervisor) Boot(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.engine.Boot(ctx, s.Options())
}

// Quit quits the engine.
func (s *Supervisor) Quit(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.engine.Quit(ctx)
}

// Reload replaces the options. An engine that is online is quit and booted
// again with the new options. It reports whether the options changed.
func (s *Supervisor) Reload(ctx context.Context, opts options.Options) (bool, error) {
	if err := validate(opts); err != nil {
		return false, err
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	if s.opts == opts {
		s.mu.Unlock()
		return false, nil
	}
	s.opts = opts
	s.mu.Unlock()

	if s.engine.Machine().Status() != lifecycle.StatusOnline {
		s.logger.Info("Engine options updated")
		return true, nil
	}

	s.logger.Info("Engine options changed, restarting engine", "address", opts.Address())
	if err := s.engine.Quit(ctx); err != nil {
		return true, err
	}
	return true, s.engine.Boot(ctx, opts)
}
