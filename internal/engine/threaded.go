package engine

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/smazurov/synthnode/internal/options"
	"github.com/smazurov/synthnode/internal/process"
)

// Threaded runs the engine as a subprocess with one goroutine reading its
// output line by line and one waiting for it to exit. Boot and Quit block
// the calling goroutine.
type Threaded struct {
	subprocess
}

// NewThreaded creates an offline threaded engine.
func NewThreaded(cfg Config) *Threaded {
	t := &Threaded{}
	t.init(cfg)
	return t
}

// Boot starts the engine and blocks until it reports ready. A boot that
// fails, or whose ctx ends first, kills the engine and returns a
// *lifecycle.Error carrying the last error line.
func (t *Threaded) Boot(ctx context.Context, opts options.Options) error {
	driver, err := t.launch(ctx, opts)
	if driver == nil {
		return err
	}

	readerDone := make(chan struct{})
	go t.read(driver, readerDone)
	go t.wait(driver, readerDone)

	return t.awaitBoot(ctx, driver)
}

func (t *Threaded) read(driver process.Driver, done chan<- struct{}) {
	defer close(done)

	reader := bufio.NewReader(driver.Output())
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			t.machine.Feed(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				t.cfg.Logger.Debug("Engine output read ended", "name", t.machine.Name(), "error", err)
			}
			return
		}
	}
}

// wait owns the exit: it commits it once the process is gone and its
// output has been read.
func (t *Threaded) wait(driver process.Driver, readerDone <-chan struct{}) {
	code := driver.Wait()

	select {
	case <-readerDone:
	case <-time.After(outputDrainTimeout):
		t.cfg.Logger.Warn("Engine output still open after exit, closing", "name", t.machine.Name())
		_ = driver.Close()
		<-readerDone
	}
	_ = driver.Close()

	t.machine.Exited(code)
}
