package lifecycle

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/synthnode/internal/events"
	"github.com/smazurov/synthnode/internal/metrics"
)

// Machine tracks one engine's boot status and routes its output. It performs
// no I/O of its own: strategies feed it output chunks and report readiness
// and exit, and it resolves the boot and exit futures and publishes
// lifecycle events.
//
// Begin and BeginQuit are compare-and-set transitions, so racing boot or quit
// requests degrade to no-ops.
type Machine struct {
	name         string
	logger       *slog.Logger
	outputLogger *slog.Logger
	bus          *events.Bus

	mu         sync.Mutex
	status     Status
	address    string
	errorText  string
	bootResult *Future[bool]
	exitResult *Future[int]

	// feedMu serializes Feed so lines are handled in arrival order even when
	// the engine prints from several threads.
	feedMu sync.Mutex
	buffer string

	captures captureSet
}

// NewMachine creates an offline machine. bus may be nil.
func NewMachine(name string, logger *slog.Logger, bus *events.Bus) *Machine {
	m := &Machine{
		name:         name,
		logger:       logger.With("name", name),
		outputLogger: logger.With("name", name, "source", "engine"),
		bus:          bus,
		status:       StatusOffline,
		bootResult:   NewFuture[bool](),
		exitResult:   NewFuture[int](),
	}
	// A fresh machine has no session to wait on.
	m.bootResult.Resolve(false)
	m.exitResult.Resolve(0)
	metrics.SetEngineStatus(name, string(StatusOffline))
	return m
}

// SetOutputLogger sets the logger engine output lines are written to.
func (m *Machine) SetOutputLogger(logger *slog.Logger) {
	m.outputLogger = logger.With("name", m.name)
}

// Name returns the engine instance name.
func (m *Machine) Name() string { return m.name }

// Status returns the current lifecycle status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Address returns the address of the current or last session.
func (m *Machine) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

// ErrorText returns the error line that failed the last boot, if any.
func (m *Machine) ErrorText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorText
}

// BootResult returns the current session's boot future.
func (m *Machine) BootResult() *Future[bool] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bootResult
}

// ExitResult returns the current session's exit future, resolved with the
// engine's exit code.
func (m *Machine) ExitResult() *Future[int] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitResult
}

// Begin starts a session: OFFLINE -> BOOTING with fresh futures and an empty
// line buffer. It reports false, changing nothing, if not offline or if the
// previous session's exit is still pending. Callers that must not lose the
// boot call AwaitTeardown first.
func (m *Machine) Begin(address string) bool {
	m.mu.Lock()
	if m.status != StatusOffline {
		status := m.status
		m.mu.Unlock()
		m.logger.Info("Engine already booted", "status", status)
		return false
	}
	if !m.exitResult.Resolved() {
		m.mu.Unlock()
		m.logger.Info("Previous engine session still exiting")
		return false
	}
	m.status = StatusBooting
	m.address = address
	m.errorText = ""
	m.bootResult = NewFuture[bool]()
	m.exitResult = NewFuture[int]()
	m.mu.Unlock()

	m.resetBuffer()
	m.logger.Info("Booting engine", "address", address)
	m.statusChanged(StatusOffline, StatusBooting)
	return true
}

// AwaitTeardown blocks while the machine is offline but the last session's
// process has not exited yet, as after a failed boot that is still being
// killed. It returns at once in any other state.
func (m *Machine) AwaitTeardown(ctx context.Context) error {
	m.mu.Lock()
	status, exit := m.status, m.exitResult
	m.mu.Unlock()
	if status != StatusOffline {
		return nil
	}
	_, err := exit.Wait(ctx)
	return err
}

// Reset starts a session without boot semantics, used for offline renders.
// The machine stays offline and the boot future is left resolved false.
// Like Begin it refuses while the previous exit is pending.
func (m *Machine) Reset() bool {
	m.mu.Lock()
	if m.status != StatusOffline || !m.exitResult.Resolved() {
		m.mu.Unlock()
		return false
	}
	m.errorText = ""
	m.bootResult = NewFuture[bool]()
	m.bootResult.Resolve(false)
	m.exitResult = NewFuture[int]()
	m.mu.Unlock()

	m.resetBuffer()
	return true
}

// BeginQuit moves ONLINE -> QUITTING. It reports false if not online.
func (m *Machine) BeginQuit() bool {
	m.mu.Lock()
	if m.status != StatusOnline {
		status := m.status
		m.mu.Unlock()
		m.logger.Info("Engine not online, nothing to quit", "status", status)
		return false
	}
	m.status = StatusQuitting
	m.mu.Unlock()

	m.logger.Info("Quitting engine")
	m.statusChanged(StatusOnline, StatusQuitting)
	return true
}

// Feed appends an output chunk, which may hold any number of partial or
// complete lines. CRLF is normalized to LF; only newline-terminated lines
// are handled and the trailing fragment waits for the next chunk.
func (m *Machine) Feed(chunk string) {
	m.feedMu.Lock()
	defer m.feedMu.Unlock()

	text := strings.ReplaceAll(m.buffer+chunk, "\r\n", "\n")
	end := strings.LastIndexByte(text, '\n')
	if end < 0 {
		m.buffer = text
		return
	}
	m.buffer = text[end+1:]
	for _, line := range strings.Split(text[:end], "\n") {
		m.handleLine(line)
	}
}

// Pending returns buffered text not yet terminated by a newline.
func (m *Machine) Pending() string {
	m.feedMu.Lock()
	defer m.feedMu.Unlock()
	return m.buffer
}

// CaptureCount returns the number of registered captures.
func (m *Machine) CaptureCount() int {
	return m.captures.len()
}

func (m *Machine) resetBuffer() {
	m.feedMu.Lock()
	m.buffer = ""
	m.feedMu.Unlock()
}

func (m *Machine) handleLine(line string) {
	for _, c := range m.captures.snapshot() {
		c.observe(line)
	}

	level, msg := ParseLogLevel(line)
	switch level {
	case "error":
		m.outputLogger.Error(msg)
	case "warning":
		m.outputLogger.Warn(msg)
	default:
		m.outputLogger.Info(msg)
	}

	class := Classify(line)
	metrics.RecordLine(m.name, class.String())
	switch class {
	case LineReady:
		m.Ready()
	case LineError:
		m.Fail(line)
	}
}

// Ready marks a booting engine online and resolves the boot future true.
// It is a no-op unless booting with the boot future unresolved.
func (m *Machine) Ready() {
	m.mu.Lock()
	if m.status != StatusBooting || !m.bootResult.Resolve(true) {
		m.mu.Unlock()
		return
	}
	m.status = StatusOnline
	address := m.address
	m.mu.Unlock()

	m.logger.Info("Engine booted", "address", address)
	metrics.RecordBoot(m.name, metrics.BootSucceeded)
	m.statusChanged(StatusBooting, StatusOnline)
	m.bus.Publish(events.BootedEvent{
		Name:      m.name,
		Address:   address,
		Timestamp: now(),
	})
}

// Fail records a boot failure: the machine reverts to OFFLINE, text is kept
// as the error text and the boot future resolves false. It is a no-op once
// the boot future has resolved.
func (m *Machine) Fail(text string) {
	m.mu.Lock()
	if m.bootResult.Resolved() {
		m.mu.Unlock()
		return
	}
	m.bootResult.Resolve(false)
	prev := m.status
	m.status = StatusOffline
	m.errorText = text
	m.mu.Unlock()

	m.logger.Error("Engine failed to boot", "error_text", text)
	metrics.RecordBoot(m.name, metrics.BootFailed)
	if prev != StatusOffline {
		m.statusChanged(prev, StatusOffline)
	}
	m.bus.Publish(events.BootFailedEvent{
		Name:      m.name,
		ErrorText: text,
		Timestamp: now(),
	})
}

// Exited commits the end of the engine process or world. The exit future
// resolves with code and an unresolved boot future fails. Leaving QUITTING
// publishes a QuitEvent, leaving ONLINE a PanicEvent. Only the first call per
// session has any effect.
func (m *Machine) Exited(code int) {
	m.mu.Lock()
	if m.exitResult.Resolved() {
		m.mu.Unlock()
		return
	}
	prev := m.status
	m.status = StatusOffline
	m.exitResult.Resolve(code)
	bootFailed := m.bootResult.Resolve(false)
	m.mu.Unlock()

	if bootFailed {
		m.logger.Error("Engine exited before it was ready", "exit_code", code)
		metrics.RecordBoot(m.name, metrics.BootFailed)
		m.bus.Publish(events.BootFailedEvent{
			Name:      m.name,
			ErrorText: m.ErrorText(),
			Timestamp: now(),
		})
	}
	if prev != StatusOffline {
		m.statusChanged(prev, StatusOffline)
	}

	switch prev {
	case StatusQuitting:
		m.logger.Info("Engine quit", "exit_code", code)
		metrics.RecordExit(m.name, metrics.ExitQuit)
		m.bus.Publish(events.QuitEvent{Name: m.name, ExitCode: code, Timestamp: now()})
	case StatusOnline:
		m.logger.Error("Engine exited unexpectedly", "exit_code", code)
		metrics.RecordExit(m.name, metrics.ExitPanic)
		m.bus.Publish(events.PanicEvent{Name: m.name, ExitCode: code, Timestamp: now()})
	}
}

func (m *Machine) statusChanged(from, to Status) {
	metrics.SetEngineStatus(m.name, string(to))
	m.bus.Publish(events.StatusChangedEvent{
		Name:      m.name,
		OldStatus: string(from),
		NewStatus: string(to),
		Timestamp: now(),
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
