package logging

import (
	"sync"
	"time"
)

// LogEntry is one buffered log record.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent entries up to a fixed capacity.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	start   int // index of the oldest entry once the buffer is full
}

// NewRingBuffer creates a buffer holding at most capacity entries.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, 0, max(capacity, 1))}
}

// Write appends entry, dropping the oldest one when full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) < cap(rb.entries) {
		rb.entries = append(rb.entries, entry)
		return
	}
	rb.entries[rb.start] = entry
	rb.start = (rb.start + 1) % len(rb.entries)
}

// ReadAll returns a copy of the entries, oldest first, or nil when empty.
func (rb *RingBuffer) ReadAll() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if len(rb.entries) == 0 {
		return nil
	}
	out := make([]LogEntry, 0, len(rb.entries))
	out = append(out, rb.entries[rb.start:]...)
	return append(out, rb.entries[:rb.start]...)
}

// Count returns the number of buffered entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}
