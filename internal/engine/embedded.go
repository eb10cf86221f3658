package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/synthnode/internal/embedded"
	"github.com/smazurov/synthnode/internal/lifecycle"
	"github.com/smazurov/synthnode/internal/options"
)

// QuitSender asks a running world to shut down. It reports whether the
// request was delivered.
type QuitSender func(world embedded.World, h embedded.Handle) bool

// SendQuitPacket delivers a /quit message straight into the world.
func SendQuitPacket(world embedded.World, h embedded.Handle) bool {
	return world.SendPacket(h, embedded.QuitPacket)
}

// Embedded runs the engine inside this process. Boot returns as soon as the
// world is listening; a background goroutine then blocks in WaitForQuit
// until the world shuts down and commits the exit.
type Embedded struct {
	cfg         Config
	machine     *lifecycle.Machine
	world       embedded.World
	registry    *embedded.Registry
	sendQuit    QuitSender
	quitTimeout time.Duration

	mu       sync.Mutex
	handle   embedded.Handle
	release  func()
	waitDone chan struct{}
}

// NewEmbedded creates an offline embedded engine. Only one embedded engine
// per registry can be online at a time.
func NewEmbedded(cfg Config, world embedded.World, registry *embedded.Registry) *Embedded {
	cfg = cfg.withDefaults()
	return &Embedded{
		cfg:         cfg,
		machine:     newMachine(cfg),
		world:       world,
		registry:    registry,
		sendQuit:    SendQuitPacket,
		quitTimeout: DefaultQuitTimeout,
	}
}

// SetQuitSender replaces how Quit asks the world to shut down.
func (e *Embedded) SetQuitSender(fn QuitSender) {
	e.sendQuit = fn
}

// Machine returns the lifecycle machine.
func (e *Embedded) Machine() *lifecycle.Machine {
	return e.machine
}

// Boot constructs the world and opens its transport. It fails with
// lifecycle.ErrDuplicateEmbeddedInstance when another embedded engine holds
// the registry and with lifecycle.ErrTransportOpen when the port cannot be
// bound. A previous world that is still shutting down is waited out first.
func (e *Embedded) Boot(ctx context.Context, opts options.Options) error {
	if err := validate(opts); err != nil {
		return err
	}
	if err := e.machine.AwaitTeardown(ctx); err != nil {
		return lifecycle.NewError(lifecycle.ErrCodeBootFailed, "previous engine session still exiting", err)
	}
	if !e.machine.Begin(opts.Address()) {
		return nil
	}
	if !e.registry.Acquire() {
		return e.abort(lifecycle.ErrDuplicateEmbeddedInstance)
	}
	release := sync.OnceFunc(e.registry.Release)

	params := opts.WorldParams()
	if _, ok := params["ugen_plugins_path"]; !ok {
		if path, found := options.FindPluginsPath(); found {
			params["ugen_plugins_path"] = path
		}
	}

	h, err := e.world.New(params)
	if err != nil {
		release()
		return e.abort(err)
	}

	var opened bool
	if opts.Protocol == options.ProtocolTCP {
		opened = e.world.OpenTCP(h, opts.IPAddress, opts.Port, embedded.MaxTCPConnections, embedded.TCPBacklog)
	} else {
		opened = e.world.OpenUDP(h, opts.IPAddress, opts.Port)
	}
	if !opened {
		e.world.Cleanup(h, false)
		release()
		return e.abort(lifecycle.NewError(lifecycle.ErrCodeTransportOpen,
			fmt.Sprintf("failed to open %s port %d", opts.Protocol, opts.Port), nil))
	}

	boot := e.machine.BootResult()
	waitDone := make(chan struct{})
	e.mu.Lock()
	e.handle, e.release, e.waitDone = h, release, waitDone
	e.mu.Unlock()

	e.world.SetPrintFunc(e.machine.Feed)
	e.machine.Ready()
	go e.wait(h, release, waitDone)

	// An error line printed before Ready fails the boot with the world up.
	if ok, _ := boot.Value(); !ok {
		e.stop(h, release, waitDone)
		return lifecycle.NewBootError(e.machine.ErrorText(), nil)
	}
	return nil
}

// abort ends a session that never produced a world.
func (e *Embedded) abort(cause error) error {
	e.machine.Fail(cause.Error())
	e.machine.Exited(exitNotStarted)
	return lifecycle.NewError(lifecycle.ErrCodeBootFailed, "embedded boot failed", cause)
}

func (e *Embedded) wait(h embedded.Handle, release func(), done chan<- struct{}) {
	defer close(done)

	e.world.WaitForQuit(h, false)
	e.world.SetPrintFunc(nil)
	release()
	e.machine.Exited(0)
}

// Quit asks the world to shut down and waits for the exit. A world that
// does not stop within the quit timeout is cleaned up forcibly. It is a
// no-op unless online.
func (e *Embedded) Quit(ctx context.Context) error {
	if !e.machine.BeginQuit() {
		return nil
	}
	exit := e.machine.ExitResult()

	e.mu.Lock()
	h, release, waitDone := e.handle, e.release, e.waitDone
	e.mu.Unlock()

	go e.stop(h, release, waitDone)

	_, err := exit.Wait(ctx)
	return err
}

func (e *Embedded) stop(h embedded.Handle, release func(), waitDone <-chan struct{}) {
	if !e.sendQuit(e.world, h) {
		e.cfg.Logger.Warn("Failed to deliver quit to embedded engine", "name", e.machine.Name())
	}

	select {
	case <-waitDone:
		return
	case <-time.After(e.quitTimeout):
	}

	e.cfg.Logger.Warn("Embedded engine did not quit in time, cleaning up", "name", e.machine.Name(), "timeout", e.quitTimeout)
	e.world.Cleanup(h, false)
	release()
	<-waitDone
}
