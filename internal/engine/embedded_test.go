package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/synthnode/internal/embedded"
	"github.com/smazurov/synthnode/internal/lifecycle"
	"github.com/smazurov/synthnode/internal/options"
)

// fakeWorld stands in for libscsynth. WaitForQuit blocks until a quit
// packet or Cleanup arrives. Each New starts a fresh world, so one fake can
// serve several sessions.
type fakeWorld struct {
	newErr     error
	openFails  bool
	ignoreQuit bool
	// bootLine is printed once, as soon as a print func is installed.
	bootLine string
	// quitDelay defers the shutdown that a quit packet triggers.
	quitDelay time.Duration

	mu       sync.Mutex
	params   map[string]any
	print    func(string)
	opened   string
	worlds   int
	packets  int
	cleanups int

	quit   chan struct{}
	closed bool
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{quit: make(chan struct{})}
}

func (w *fakeWorld) New(params map[string]any) (embedded.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.params = params
	if w.newErr != nil {
		return 0, w.newErr
	}
	if w.closed {
		w.quit, w.closed = make(chan struct{}), false
	}
	w.worlds++
	return embedded.Handle(w.worlds), nil
}

func (w *fakeWorld) OpenUDP(_ embedded.Handle, _ string, _ int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened = "udp"
	return !w.openFails
}

func (w *fakeWorld) OpenTCP(_ embedded.Handle, _ string, _, _, _ int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened = "tcp"
	return !w.openFails
}

func (w *fakeWorld) WaitForQuit(_ embedded.Handle, _ bool) {
	w.mu.Lock()
	quit := w.quit
	w.mu.Unlock()
	<-quit
}

// shutdown ends the current world as if it had quit on its own.
func (w *fakeWorld) shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		close(w.quit)
		w.closed = true
	}
}

func (w *fakeWorld) Cleanup(_ embedded.Handle, _ bool) {
	w.mu.Lock()
	w.cleanups++
	w.mu.Unlock()
	w.shutdown()
}

func (w *fakeWorld) SendPacket(_ embedded.Handle, packet []byte) bool {
	w.mu.Lock()
	w.packets++
	w.mu.Unlock()
	if string(packet) != string(embedded.QuitPacket) || w.ignoreQuit {
		return true
	}
	if w.quitDelay > 0 {
		time.AfterFunc(w.quitDelay, w.shutdown)
	} else {
		w.shutdown()
	}
	return true
}

func (w *fakeWorld) SetPrintFunc(fn func(string)) {
	w.mu.Lock()
	w.print = fn
	line := w.bootLine
	if fn != nil {
		w.bootLine = ""
	}
	w.mu.Unlock()
	if fn != nil && line != "" {
		fn(line)
	}
}

func (w *fakeWorld) printf(text string) {
	w.mu.Lock()
	fn := w.print
	w.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

func (w *fakeWorld) counts() (packets, cleanups int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.packets, w.cleanups
}

func TestEmbeddedBootQuit(t *testing.T) {
	cfg := testConfig(t, "")
	counts := countExits(t, cfg.Bus)
	world := newFakeWorld()
	registry := &embedded.Registry{}
	eng := NewEmbedded(cfg, world, registry)
	ctx := testContext(t)

	if err := eng.Boot(ctx, options.Default()); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	if eng.Machine().Status() != lifecycle.StatusOnline {
		t.Fatalf("Status() = %v, want online", eng.Machine().Status())
	}
	if !registry.Active() {
		t.Error("registry should be held while online")
	}
	if world.opened != "udp" {
		t.Errorf("opened %q transport, want udp", world.opened)
	}
	if world.params["num_audio_bus_channels"] != 1024 {
		t.Errorf("world params not passed through: %v", world.params)
	}

	if err := eng.Quit(ctx); err != nil {
		t.Fatalf("Quit() error = %v", err)
	}
	if eng.Machine().Status() != lifecycle.StatusOffline {
		t.Errorf("Status() = %v after quit, want offline", eng.Machine().Status())
	}
	if registry.Active() {
		t.Error("registry should be released after quit")
	}
	if err := eng.Quit(ctx); err != nil {
		t.Errorf("second Quit() error = %v", err)
	}
	if packets, cleanups := world.counts(); packets != 1 || cleanups != 0 {
		t.Errorf("packets=%d cleanups=%d, want 1 and 0", packets, cleanups)
	}
	if quits, panics := counts.settle(); quits != 1 || panics != 0 {
		t.Errorf("quits=%d panics=%d, want 1 and 0", quits, panics)
	}
}

func TestEmbeddedConcurrentBootExactlyOneWins(t *testing.T) {
	registry := &embedded.Registry{}
	ctx := testContext(t)

	engines := make([]*Embedded, 8)
	for i := range engines {
		cfg := testConfig(t, "")
		cfg.Name = cfg.Name + "-" + string(rune('a'+i))
		engines[i] = NewEmbedded(cfg, newFakeWorld(), registry)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(engines))
	for i, eng := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = eng.Boot(ctx, options.Default())
		}()
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
			defer engines[i].Quit(ctx)
		case errors.Is(err, lifecycle.ErrDuplicateEmbeddedInstance):
			if engines[i].Machine().Status() != lifecycle.StatusOffline {
				t.Errorf("loser %d status = %v, want offline", i, engines[i].Machine().Status())
			}
		default:
			t.Errorf("engine %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Errorf("%d embedded boots succeeded, want exactly 1", winners)
	}
}

func TestEmbeddedTransportFailure(t *testing.T) {
	world := newFakeWorld()
	world.openFails = true
	registry := &embedded.Registry{}
	eng := NewEmbedded(testConfig(t, ""), world, registry)

	opts := options.Default()
	opts.Protocol = options.ProtocolTCP
	err := eng.Boot(testContext(t), opts)
	if !errors.Is(err, lifecycle.ErrTransportOpen) {
		t.Fatalf("Boot() error = %v, want ErrTransportOpen", err)
	}
	if !errors.Is(err, lifecycle.ErrBootFailed) {
		t.Error("transport failure should also be a boot failure")
	}
	if world.opened != "tcp" {
		t.Errorf("opened %q, want tcp", world.opened)
	}
	if _, cleanups := world.counts(); cleanups != 1 {
		t.Errorf("cleanups = %d, want 1", cleanups)
	}
	if registry.Active() {
		t.Error("registry must be released after a failed boot")
	}
	if eng.Machine().Status() != lifecycle.StatusOffline {
		t.Errorf("Status() = %v, want offline", eng.Machine().Status())
	}
}

func TestEmbeddedConstructFailure(t *testing.T) {
	world := newFakeWorld()
	world.newErr = errors.New("no audio device")
	registry := &embedded.Registry{}
	eng := NewEmbedded(testConfig(t, ""), world, registry)

	if err := eng.Boot(testContext(t), options.Default()); !errors.Is(err, lifecycle.ErrBootFailed) {
		t.Fatalf("Boot() error = %v, want ErrBootFailed", err)
	}
	if registry.Active() {
		t.Error("registry must be released after a failed boot")
	}
	if !eng.Machine().ExitResult().Resolved() {
		t.Error("exit future should be resolved")
	}
}

func TestEmbeddedQuitTimeoutCleansUp(t *testing.T) {
	world := newFakeWorld()
	world.ignoreQuit = true
	registry := &embedded.Registry{}
	eng := NewEmbedded(testConfig(t, ""), world, registry)
	eng.quitTimeout = 50 * time.Millisecond
	ctx := testContext(t)

	if err := eng.Boot(ctx, options.Default()); err != nil {
		t.Fatal(err)
	}
	if err := eng.Quit(ctx); err != nil {
		t.Fatal(err)
	}
	if _, cleanups := world.counts(); cleanups != 1 {
		t.Errorf("cleanups = %d, want 1", cleanups)
	}
	if registry.Active() {
		t.Error("registry should be released after forced cleanup")
	}
}

func TestEmbeddedQuitSender(t *testing.T) {
	world := newFakeWorld()
	eng := NewEmbedded(testConfig(t, ""), world, &embedded.Registry{})
	var sent atomic.Int32
	eng.SetQuitSender(func(w embedded.World, h embedded.Handle) bool {
		sent.Add(1)
		return SendQuitPacket(w, h)
	})
	ctx := testContext(t)

	if err := eng.Boot(ctx, options.Default()); err != nil {
		t.Fatal(err)
	}
	if err := eng.Quit(ctx); err != nil {
		t.Fatal(err)
	}
	if sent.Load() != 1 {
		t.Errorf("quit sender called %d times, want 1", sent.Load())
	}
}

func TestEmbeddedOutputReachesCaptures(t *testing.T) {
	world := newFakeWorld()
	eng := NewEmbedded(testConfig(t, ""), world, &embedded.Registry{})
	ctx := testContext(t)

	if err := eng.Boot(ctx, options.Default()); err != nil {
		t.Fatal(err)
	}
	defer eng.Quit(ctx)

	done := lifecycle.NewFuture[bool]()
	err := eng.Machine().WithCapture(lifecycle.CaptureOptions{
		StartPattern: "BEGIN",
		StopPattern:  "END",
		Future:       done,
	}, func(c *lifecycle.Capture) error {
		world.printf("noise\nBEG")
		world.printf("IN\nmid")
		world.printf("\nEND\n")
		ok, err := done.Wait(ctx)
		if err != nil || !ok {
			t.Errorf("capture future = (%v, %v), want (true, nil)", ok, err)
		}
		if got := c.Lines(); len(got) != 3 || got[0] != "BEGIN" || got[2] != "END" {
			t.Errorf("captured %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestEmbeddedExitWithoutQuitIsPanic(t *testing.T) {
	cfg := testConfig(t, "")
	counts := countExits(t, cfg.Bus)
	world := newFakeWorld()
	eng := NewEmbedded(cfg, world, &embedded.Registry{})

	if err := eng.Boot(testContext(t), options.Default()); err != nil {
		t.Fatal(err)
	}
	// The engine shuts itself down, e.g. after a /quit from another client.
	world.shutdown()

	waitStatus(t, eng.Machine(), lifecycle.StatusOffline)
	if quits, panics := counts.settle(); quits != 0 || panics != 1 {
		t.Errorf("quits=%d panics=%d, want 0 and 1", quits, panics)
	}
}

func TestEmbeddedQuitRespectsContext(t *testing.T) {
	world := newFakeWorld()
	world.ignoreQuit = true
	eng := NewEmbedded(testConfig(t, ""), world, &embedded.Registry{})
	eng.quitTimeout = time.Second

	if err := eng.Boot(testContext(t), options.Default()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := eng.Quit(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Quit() error = %v, want deadline exceeded", err)
	}
	// The forced cleanup still completes in the background.
	waitStatus(t, eng.Machine(), lifecycle.StatusOffline)
}

func TestEmbeddedRebootAfterFailedBoot(t *testing.T) {
	cfg := testConfig(t, "")
	counts := countExits(t, cfg.Bus)
	world := newFakeWorld()
	world.bootLine = "*** ERROR: failed to open UDP socket: address in use.\n"
	world.quitDelay = 300 * time.Millisecond
	registry := &embedded.Registry{}
	eng := NewEmbedded(cfg, world, registry)
	m := eng.Machine()
	ctx := testContext(t)

	first := make(chan error, 1)
	go func() { first <- eng.Boot(ctx, options.Default()) }()

	deadline := time.Now().Add(5 * time.Second)
	for m.ErrorText() == "" {
		if time.Now().After(deadline) {
			t.Fatal("first boot never failed")
		}
		time.Sleep(time.Millisecond)
	}

	// The failed world is still shutting down.
	if err := eng.Boot(ctx, options.Default()); err != nil {
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

	if quits, panics := counts.settle(); quits != 0 || panics != 0 {
		t.Errorf("quits=%d panics=%d, want none", quits, panics)
	}
	if m.Status() != lifecycle.StatusOnline {
		t.Fatalf("Status() = %v, want online", m.Status())
	}
	if !registry.Active() {
		t.Error("registry should be held by the second session")
	}

	world.quitDelay = 0
	if err := eng.Quit(ctx); err != nil {
		t.Fatalf("Quit() error = %v", err)
	}
	if quits, panics := counts.settle(); quits != 1 || panics != 0 {
		t.Errorf("quits=%d panics=%d, want 1 and 0", quits, panics)
	}
}
