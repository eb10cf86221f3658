package engine

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/smazurov/synthnode/internal/lifecycle"
	"github.com/smazurov/synthnode/internal/options"
	"github.com/smazurov/synthnode/internal/process"
)

const chunkSize = 4096

// Async runs the engine as a subprocess driven by a single loop goroutine.
// Output arrives as raw chunks and exit as a message on the same loop, so
// every machine mutation for a session happens on one goroutine.
type Async struct {
	subprocess
}

// NewAsync creates an offline event-loop engine.
func NewAsync(cfg Config) *Async {
	a := &Async{}
	a.init(cfg)
	return a
}

// Boot starts the engine and suspends until the boot future resolves,
// either on the ready banner or because the engine exited first.
func (a *Async) Boot(ctx context.Context, opts options.Options) error {
	driver, err := a.launch(ctx, opts)
	if driver == nil {
		return err
	}
	go runLoop(a.machine, driver)
	return a.awaitBoot(ctx, driver)
}

// runLoop feeds output chunks to m and commits the exit once both the
// output and the process are done.
func runLoop(m *lifecycle.Machine, driver process.Driver) {
	chunks := pump(driver.Output())
	exited := make(chan int, 1)
	go func() { exited <- driver.Wait() }()

	code := 0
	var drain <-chan time.Time
	for chunks != nil || exited != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			m.Feed(string(chunk))
		case code = <-exited:
			exited = nil
			drain = time.After(outputDrainTimeout)
		case <-drain:
			_ = driver.Close()
			drain = nil
		}
	}
	_ = driver.Close()

	m.Exited(code)
}

// pump copies raw reads from r onto a channel that closes at EOF or on a
// read error. Chunks are never split into lines here.
func pump(r io.Reader) <-chan []byte {
	ch := make(chan []byte, 16)
	go func() {
		defer close(ch)
		buf := make([]byte, chunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				ch <- bytes.Clone(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}
