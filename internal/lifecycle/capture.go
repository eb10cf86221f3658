package lifecycle

import (
	"fmt"
	"regexp"
	"sync"
)

// CaptureOptions configures a Capture. Patterns match at the start of a line.
type CaptureOptions struct {
	// StartPattern arms the capture on the first matching line. Empty means
	// the capture records from Start.
	StartPattern string
	// StopPattern disarms the capture on the first matching line and
	// resolves Future to true.
	StopPattern string
	// Future, if set, resolves true on stop or false when the capture is
	// closed without stopping.
	Future *Future[bool]
}

// Capture records engine output lines between optional start and stop
// patterns. Create it with Machine.Capture, then Start it and defer Close.
type Capture struct {
	machine *Machine
	start   *regexp.Regexp
	stop    *regexp.Regexp
	future  *Future[bool]

	mu        sync.Mutex
	lines     []string
	capturing bool
}

// Capture returns a new, not yet registered, capture bound to m.
func (m *Machine) Capture(opts CaptureOptions) (*Capture, error) {
	c := &Capture{machine: m, future: opts.Future}
	var err error
	if c.start, err = compileAnchored(opts.StartPattern); err != nil {
		return nil, fmt.Errorf("invalid start pattern: %w", err)
	}
	if c.stop, err = compileAnchored(opts.StopPattern); err != nil {
		return nil, fmt.Errorf("invalid stop pattern: %w", err)
	}
	return c, nil
}

// WithCapture runs fn with a started capture and closes it when fn returns,
// including on panic.
func (m *Machine) WithCapture(opts CaptureOptions, fn func(*Capture) error) error {
	c, err := m.Capture(opts)
	if err != nil {
		return err
	}
	c.Start()
	defer c.Close()
	return fn(c)
}

// Start registers the capture with its machine.
func (c *Capture) Start() *Capture {
	c.mu.Lock()
	c.capturing = c.start == nil
	c.mu.Unlock()
	c.machine.captures.add(c)
	return c
}

// Close unregisters the capture. An unresolved future resolves to false.
// Close is idempotent.
func (c *Capture) Close() {
	c.machine.captures.remove(c)
	c.mu.Lock()
	c.capturing = false
	c.mu.Unlock()
	if c.future != nil {
		c.future.Resolve(false)
	}
}

// Lines returns a copy of the captured lines in arrival order.
func (c *Capture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Len returns the number of captured lines.
func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func (c *Capture) observe(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record := false
	switch {
	case c.capturing:
		if c.stop != nil && c.stop.MatchString(line) {
			c.capturing = false
			if c.future != nil {
				c.future.Resolve(true)
			}
		}
		record = true
	case c.start != nil && c.start.MatchString(line) && (c.future == nil || !c.future.Resolved()):
		c.capturing = true
		record = true
	}
	if record {
		c.lines = append(c.lines, line)
	}
}

func compileAnchored(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(`^(?:` + pattern + `)`)
}

// captureSet is the machine's registry of active captures. Observers iterate
// over a snapshot so captures may come and go while lines are routed.
type captureSet struct {
	mu    sync.RWMutex
	items map[*Capture]struct{}
}

func (s *captureSet) add(c *Capture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = make(map[*Capture]struct{})
	}
	s.items[c] = struct{}{}
}

func (s *captureSet) remove(c *Capture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, c)
}

func (s *captureSet) snapshot() []*Capture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Capture, 0, len(s.items))
	for c := range s.items {
		out = append(out, c)
	}
	return out
}

func (s *captureSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
