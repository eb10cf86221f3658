package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/smazurov/synthnode/internal/events"
	"github.com/smazurov/synthnode/internal/lifecycle"
	"github.com/smazurov/synthnode/internal/options"
	"github.com/smazurov/synthnode/internal/process"
)

const readyBanner = "SuperCollider 3 server ready."

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// shellDriver runs script with sh instead of the encoded engine command.
func shellDriver(script string) DriverFactory {
	return func(id string, _ []string, dir string) process.Driver {
		p := process.NewSubprocess(id, []string{"/bin/sh", "-c", script}, discardLogger())
		p.SetDir(dir)
		p.SetTimeouts(2*time.Second, time.Second)
		return p
	}
}

// countingDriver counts Terminate calls.
type countingDriver struct {
	process.Driver
	terminates *atomic.Int32
}

func (d countingDriver) Terminate() int {
	d.terminates.Add(1)
	return d.Driver.Terminate()
}

// slowKillDriver delays Kill, stretching the teardown of a failed boot.
type slowKillDriver struct {
	process.Driver
	delay time.Duration
}

func (d slowKillDriver) Kill() {
	time.Sleep(d.delay)
	d.Driver.Kill()
}

func testConfig(t *testing.T, script string) Config {
	t.Helper()
	return Config{
		Name:         "test-" + strings.ReplaceAll(t.Name(), "/", "-"),
		Logger:       discardLogger(),
		OutputLogger: discardLogger(),
		Bus:          events.New(),
		NewDriver:    shellDriver(script),
	}
}

func testOptions() options.Options {
	opts := options.Default()
	opts.Executable = "/bin/sh"
	return opts
}

type exitCounts struct {
	quits  atomic.Int32
	panics atomic.Int32
}

func countExits(t *testing.T, bus *events.Bus) *exitCounts {
	t.Helper()
	c := &exitCounts{}
	t.Cleanup(bus.Subscribe(func(events.QuitEvent) { c.quits.Add(1) }))
	t.Cleanup(bus.Subscribe(func(events.PanicEvent) { c.panics.Add(1) }))
	return c
}

func (c *exitCounts) settle() (quits, panics int) {
	time.Sleep(50 * time.Millisecond)
	return int(c.quits.Load()), int(c.panics.Load())
}

func waitStatus(t *testing.T, m *lifecycle.Machine, want lifecycle.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for m.Status() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Status() = %v, want %v", m.Status(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var subprocessStrategies = []struct {
	name string
	new  func(Config) interface {
		Engine
		PID() int
	}
}{
	{"threaded", func(c Config) interface {
		Engine
		PID() int
	} {
		return NewThreaded(c)
	}},
	{"async", func(c Config) interface {
		Engine
		PID() int
	} {
		return NewAsync(c)
	}},
}

func TestBootQuitCycle(t *testing.T) {
	for _, s := range subprocessStrategies {
		t.Run(s.name, func(t *testing.T) {
			cfg := testConfig(t, "echo 'Number of Devices: 0'; echo '"+readyBanner+"'; exec sleep 30")
			var terminates atomic.Int32
			inner := cfg.NewDriver
			cfg.NewDriver = func(id string, args []string, dir string) process.Driver {
				return countingDriver{Driver: inner(id, args, dir), terminates: &terminates}
			}
			counts := countExits(t, cfg.Bus)
			eng := s.new(cfg)
			ctx := testContext(t)

			if err := eng.Boot(ctx, testOptions()); err != nil {
				t.Fatalf("Boot() error = %v", err)
			}
			m := eng.Machine()
			if m.Status() != lifecycle.StatusOnline {
				t.Fatalf("Status() = %v, want online", m.Status())
			}
			if eng.PID() == 0 {
				t.Error("PID() = 0 while online")
			}

			if err := eng.Quit(ctx); err != nil {
				t.Fatalf("Quit() error = %v", err)
			}
			if m.Status() != lifecycle.StatusOffline {
				t.Errorf("Status() = %v after quit, want offline", m.Status())
			}
			exit := m.ExitResult()
			first, _ := exit.Value()

			// A second quit is a no-op.
			if err := eng.Quit(ctx); err != nil {
				t.Fatalf("second Quit() error = %v", err)
			}
			if m.ExitResult() != exit {
				t.Error("second Quit() replaced the exit future")
			}
			if code, _ := m.ExitResult().Value(); code != first {
				t.Errorf("exit code changed from %d to %d", first, code)
			}
			if n := terminates.Load(); n != 1 {
				t.Errorf("Terminate called %d times, want 1", n)
			}
			if quits, panics := counts.settle(); quits != 1 || panics != 0 {
				t.Errorf("quits=%d panics=%d, want 1 and 0", quits, panics)
			}
		})
	}
}

func TestBootFailsOnErrorLine(t *testing.T) {
	for _, s := range subprocessStrategies {
		t.Run(s.name, func(t *testing.T) {
			cfg := testConfig(t, "echo '*** ERROR: failed to open UDP socket: address in use.'; exec sleep 30")
			eng := s.new(cfg)

			err := eng.Boot(testContext(t), testOptions())
			if !errors.Is(err, lifecycle.ErrBootFailed) {
				t.Fatalf("Boot() error = %v, want ErrBootFailed", err)
			}
			var lerr *lifecycle.Error
			if !errors.As(err, &lerr) || lerr.ErrorText != "*** ERROR: failed to open UDP socket: address in use." {
				t.Errorf("ErrorText = %q", lerr.ErrorText)
			}
			m := eng.Machine()
			if m.Status() != lifecycle.StatusOffline {
				t.Errorf("Status() = %v, want offline", m.Status())
			}
			if !m.ExitResult().Resolved() {
				t.Error("failed boot must wait for the engine to exit")
			}
		})
	}
}

func TestRebootDuringFailedBootTeardown(t *testing.T) {
	for _, s := range subprocessStrategies {
		t.Run(s.name, func(t *testing.T) {
			cfg := testConfig(t, "")
			var launches atomic.Int32
			cfg.NewDriver = func(id string, args []string, dir string) process.Driver {
				if launches.Add(1) == 1 {
					d := shellDriver("echo 'ERROR: boom'; exec sleep 30")(id, args, dir)
					return slowKillDriver{Driver: d, delay: 300 * time.Millisecond}
				}
				return shellDriver("echo '"+readyBanner+"'; exec sleep 30")(id, args, dir)
			}
			counts := countExits(t, cfg.Bus)
			eng := s.new(cfg)
			m := eng.Machine()
			ctx := testContext(t)

			first := make(chan error, 1)
			go func() { first <- eng.Boot(ctx, testOptions()) }()

			deadline := time.Now().Add(5 * time.Second)
			for m.ErrorText() == "" {
				if time.Now().After(deadline) {
					t.Fatal("first boot never failed")
				}
				time.Sleep(time.Millisecond)
			}

			// The failed engine is still being killed.
			if err := eng.Boot(ctx, testOptions()); err != nil {
				t.Fatalf("second Boot() error = %v", err)
			}
			select {
			case err := <-first:
				if !errors.Is(err, lifecycle.ErrBootFailed) {
					t.Errorf("first Boot() error = %v, want ErrBootFailed", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("first Boot() never returned")
			}

			if n := launches.Load(); n != 2 {
				t.Errorf("engine launched %d times, want 2", n)
			}
			if quits, panics := counts.settle(); quits != 0 || panics != 0 {
				t.Errorf("quits=%d panics=%d, want none", quits, panics)
			}
			if m.Status() != lifecycle.StatusOnline {
				t.Fatalf("Status() = %v, want online", m.Status())
			}

			if err := eng.Quit(ctx); err != nil {
				t.Fatalf("Quit() error = %v", err)
			}
			if m.Status() != lifecycle.StatusOffline {
				t.Errorf("Status() = %v after quit, want offline", m.Status())
			}
			if quits, panics := counts.settle(); quits != 1 || panics != 0 {
				t.Errorf("quits=%d panics=%d, want 1 and 0", quits, panics)
			}
		})
	}
}

func TestRebootAfterFailedBoot(t *testing.T) {
	for _, s := range subprocessStrategies {
		t.Run(s.name, func(t *testing.T) {
			cfg := testConfig(t, "")
			var launches atomic.Int32
			cfg.NewDriver = func(id string, args []string, dir string) process.Driver {
				if launches.Add(1) == 1 {
					return shellDriver("echo 'starting'; exit 1")(id, args, dir)
				}
				return shellDriver("echo '"+readyBanner+"'; exec sleep 30")(id, args, dir)
			}
			eng := s.new(cfg)
			ctx := testContext(t)

			if err := eng.Boot(ctx, testOptions()); !errors.Is(err, lifecycle.ErrBootFailed) {
				t.Fatalf("first Boot() error = %v, want ErrBootFailed", err)
			}
			if err := eng.Boot(ctx, testOptions()); err != nil {
				t.Fatalf("second Boot() error = %v", err)
			}
			defer eng.Quit(ctx)
			if eng.Machine().Status() != lifecycle.StatusOnline {
				t.Errorf("Status() = %v, want online", eng.Machine().Status())
			}
		})
	}
}

func TestBootFailsWhenEngineExitsEarly(t *testing.T) {
	for _, s := range subprocessStrategies {
		t.Run(s.name, func(t *testing.T) {
			cfg := testConfig(t, "echo 'starting'; exit 3")
			failed := make(chan events.BootFailedEvent, 2)
			defer cfg.Bus.Subscribe(func(e events.BootFailedEvent) { failed <- e })()
			eng := s.new(cfg)

			err := eng.Boot(testContext(t), testOptions())
			if !errors.Is(err, lifecycle.ErrBootFailed) {
				t.Fatalf("Boot() error = %v, want ErrBootFailed", err)
			}
			if code, _ := eng.Machine().ExitResult().Value(); code != 3 {
				t.Errorf("exit code = %d, want 3", code)
			}
			time.Sleep(50 * time.Millisecond)
			if len(failed) != 1 {
				t.Errorf("got %d BootFailedEvents, want 1", len(failed))
			}
		})
	}
}

func TestExternalKillIsPanic(t *testing.T) {
	for _, s := range subprocessStrategies {
		t.Run(s.name, func(t *testing.T) {
			cfg := testConfig(t, "echo '"+readyBanner+"'; exec sleep 30")
			counts := countExits(t, cfg.Bus)
			eng := s.new(cfg)

			if err := eng.Boot(testContext(t), testOptions()); err != nil {
				t.Fatalf("Boot() error = %v", err)
			}
			if err := syscall.Kill(eng.PID(), syscall.SIGKILL); err != nil {
				t.Fatal(err)
			}

			waitStatus(t, eng.Machine(), lifecycle.StatusOffline)
			if code, _ := eng.Machine().ExitResult().Value(); code != 137 {
				t.Errorf("exit code = %d, want 137", code)
			}
			if quits, panics := counts.settle(); quits != 0 || panics != 1 {
				t.Errorf("quits=%d panics=%d, want 0 and 1", quits, panics)
			}
		})
	}
}

func TestBootWhileOnlineIsNoop(t *testing.T) {
	cfg := testConfig(t, "echo '"+readyBanner+"'; exec sleep 30")
	var starts atomic.Int32
	inner := cfg.NewDriver
	cfg.NewDriver = func(id string, args []string, dir string) process.Driver {
		starts.Add(1)
		return inner(id, args, dir)
	}
	eng := NewThreaded(cfg)
	ctx := testContext(t)

	if err := eng.Boot(ctx, testOptions()); err != nil {
		t.Fatal(err)
	}
	defer eng.Quit(ctx)

	if err := eng.Boot(ctx, testOptions()); err != nil {
		t.Fatalf("second Boot() error = %v", err)
	}
	if n := starts.Load(); n != 1 {
		t.Errorf("engine started %d times, want 1", n)
	}
}

func TestBootContextCancelKillsEngine(t *testing.T) {
	cfg := testConfig(t, "echo 'never ready'; exec sleep 30")
	eng := NewThreaded(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := eng.Boot(ctx, testOptions())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Boot() error = %v, want deadline exceeded", err)
	}
	if eng.Machine().Status() != lifecycle.StatusOffline {
		t.Errorf("Status() = %v, want offline", eng.Machine().Status())
	}
}

func TestBootRejectsInvalidOptions(t *testing.T) {
	eng := NewThreaded(testConfig(t, "exit 0"))
	opts := testOptions()
	opts.AudioBusChannelCount = 4

	err := eng.Boot(testContext(t), opts)
	if !errors.Is(err, lifecycle.ErrConfigInvalid) {
		t.Fatalf("Boot() error = %v, want ErrConfigInvalid", err)
	}
	var cfgErr *options.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Error("error should wrap *options.ConfigurationError")
	}
	if eng.Machine().Status() != lifecycle.StatusOffline {
		t.Error("invalid options must not begin a session")
	}
}

func TestAsyncReassemblesFragmentedBanner(t *testing.T) {
	cfg := testConfig(t, "printf 'SuperCollider 3 ser'; sleep 0.2; printf 'ver ready.\\r\\n'; exec sleep 30")
	eng := NewAsync(cfg)
	ctx := testContext(t)

	c, err := eng.Machine().Capture(lifecycle.CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	c.Start()
	defer c.Close()

	if err := eng.Boot(ctx, testOptions()); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	defer eng.Quit(ctx)

	lines := c.Lines()
	if len(lines) != 1 || lines[0] != readyBanner {
		t.Errorf("captured %q, want the reassembled banner", lines)
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	if _, err := New("jack", Config{}); err == nil {
		t.Error("expected error for unknown mode")
	}
	eng, err := New(ModeAsync, Config{Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := eng.(*Async); !ok {
		t.Errorf("New(async) = %T", eng)
	}
	if !strings.HasPrefix(eng.Machine().Name(), "scsynth-") {
		t.Errorf("default name = %q", eng.Machine().Name())
	}
}
