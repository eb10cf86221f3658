package logging

import (
	"sync"
	"time"
)

// LogEntry represents a single log line stored in the ring buffer.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer is a thread-safe circular buffer for log entries. Every entry
// gets a sequence number so readers can resume where they left off.
type RingBuffer struct {
	entries []LogEntry
	size    int
	head    int
	count   int
	seq     uint64
	mu      sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		entries: make([]LogEntry, size),
		size:    size,
	}
}

// Write stores entry, overwriting the oldest entry if full, and returns it
// with its sequence number set.
func (rb *RingBuffer) Write(entry LogEntry) LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	entry.Seq = rb.seq
	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
	return entry
}

// ReadAll returns all entries in chronological order.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.ReadSince(0)
}

// ReadSince returns the retained entries with a sequence number above seq,
// oldest first.
func (rb *RingBuffer) ReadSince(seq uint64) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var result []LogEntry
	start := (rb.head - rb.count + rb.size) % rb.size
	for i := 0; i < rb.count; i++ {
		e := rb.entries[(start+i)%rb.size]
		if e.Seq > seq {
			result = append(result, e)
		}
	}
	return result
}

// Count returns the number of entries in the buffer.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
