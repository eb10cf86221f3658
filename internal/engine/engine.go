// Package engine boots and quits a synthesis engine. Threaded and Async run
// it as a subprocess, Embedded runs it inside this process and Nonrealtime
// runs offline renders. All of them drive a lifecycle.Machine, so status,
// futures, captures and events behave the same whichever strategy is used.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/synthnode/internal/embedded"
	"github.com/smazurov/synthnode/internal/events"
	"github.com/smazurov/synthnode/internal/lifecycle"
	"github.com/smazurov/synthnode/internal/logging"
	"github.com/smazurov/synthnode/internal/options"
	"github.com/smazurov/synthnode/internal/process"
)

// Timeouts used when Config leaves them unset.
const (
	DefaultGracefulTimeout = 5 * time.Second
	DefaultKillTimeout     = 2 * time.Second
	DefaultQuitTimeout     = 5 * time.Second

	// outputDrainTimeout bounds how long output is read after the engine
	// exits. Grandchildren can hold the pipe open indefinitely.
	outputDrainTimeout = 2 * time.Second

	// exitNotStarted is the exit code committed when the engine never ran.
	exitNotStarted = -1
)

// Engine is the boot/quit contract shared by the realtime strategies.
type Engine interface {
	// Boot starts the engine and blocks until it is online or has failed.
	// Booting an engine that is not offline is a no-op.
	Boot(ctx context.Context, opts options.Options) error
	// Quit stops an online engine and blocks until it has exited. Quitting
	// an engine that is not online is a no-op.
	Quit(ctx context.Context) error
	// Machine exposes status, futures and captures.
	Machine() *lifecycle.Machine
}

// DriverFactory builds the driver for one engine invocation.
type DriverFactory func(id string, args []string, dir string) process.Driver

// Config holds settings shared by all strategies. Zero values get defaults.
type Config struct {
	// Name identifies the instance in logs, events and metrics.
	Name string
	// Logger receives lifecycle logs, OutputLogger the engine's own output.
	Logger       *slog.Logger
	OutputLogger *slog.Logger
	// Bus receives lifecycle events. May be nil.
	Bus *events.Bus
	// Dir is the working directory of engine subprocesses.
	Dir             string
	GracefulTimeout time.Duration
	KillTimeout     time.Duration
	// NewDriver overrides how subprocesses are launched.
	NewDriver DriverFactory
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "scsynth-" + uuid.NewString()[:8]
	}
	if c.Logger == nil {
		c.Logger = logging.GetLogger("engine")
	}
	if c.OutputLogger == nil {
		c.OutputLogger = logging.GetLogger("scsynth")
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = DefaultGracefulTimeout
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = DefaultKillTimeout
	}
	if c.NewDriver == nil {
		logger, graceful, kill := c.Logger, c.GracefulTimeout, c.KillTimeout
		c.NewDriver = func(id string, args []string, dir string) process.Driver {
			p := process.NewSubprocess(id, args, logger.With("name", id))
			p.SetDir(dir)
			p.SetTimeouts(graceful, kill)
			return p
		}
	}
	return c
}

func newMachine(cfg Config) *lifecycle.Machine {
	m := lifecycle.NewMachine(cfg.Name, cfg.Logger, cfg.Bus)
	m.SetOutputLogger(cfg.OutputLogger)
	return m
}

// Mode selects a realtime strategy.
type Mode string

// Realtime strategies.
const (
	ModeThreaded Mode = "threaded"
	ModeAsync    Mode = "async"
	ModeEmbedded Mode = "embedded"
)

// New creates an engine for mode. Embedded engines share
// embedded.DefaultRegistry and need a libscsynth build.
func New(mode Mode, cfg Config) (Engine, error) {
	switch mode {
	case ModeThreaded, "":
		return NewThreaded(cfg), nil
	case ModeAsync:
		return NewAsync(cfg), nil
	case ModeEmbedded:
		world, err := embedded.NewLibWorld()
		if err != nil {
			return nil, err
		}
		return NewEmbedded(cfg, world, embedded.DefaultRegistry), nil
	default:
		return nil, fmt.Errorf("unknown engine mode %q", mode)
	}
}

func validate(opts options.Options) error {
	if err := opts.Validate(); err != nil {
		return lifecycle.NewError(lifecycle.ErrCodeConfigInvalid, "invalid engine options", err)
	}
	return nil
}
