package logging

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is one log line kept in memory for remote inspection.
type Entry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     string            `json:"level"`
	Source    string            `json:"source"`
	Message   string            `json:"message"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// RingBuffer is a thread-safe circular buffer for log entries
type RingBuffer struct {
	entries []Entry
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the given capacity
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Add adds an entry to the ring buffer
func (rb *RingBuffer) Add(entry Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
}

// Last returns up to n of the most recent entries, oldest first.
func (rb *RingBuffer) Last(n int) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || n > rb.count {
		n = rb.count
	}
	out := make([]Entry, n)
	start := (rb.head - n + rb.size) % rb.size
	for i := 0; i < n; i++ {
		out[i] = rb.entries[(start+i)%rb.size]
	}
	return out
}

// Count returns the number of buffered entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

var recent = NewRingBuffer(200)

// GetRecentBuffer returns the process-wide buffer fed by ConsoleHandler.
func GetRecentBuffer() *RingBuffer {
	return recent
}

// LevelName returns the lower-case level name used in Entry.
func LevelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
