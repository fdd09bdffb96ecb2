package events

import (
	"sync/atomic"

	"github.com/kelindar/event"
)

// Feed merges several event types from a Bus into one buffered channel for a
// streaming client. Publishers never wait on a feed: when C is full the event
// is dropped and counted.
type Feed struct {
	C chan any

	dropped atomic.Uint64
	unsubs  []func()
}

// NewFeed creates a feed buffering up to size events.
func NewFeed(size int) *Feed {
	return &Feed{C: make(chan any, size)}
}

// Follow adds events of type T to f. It must not be called after Close.
func Follow[T Event](bus *Bus, f *Feed) {
	f.unsubs = append(f.unsubs, event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case f.C <- e:
		default:
			f.dropped.Add(1)
		}
	}))
}

// Dropped returns how many events did not fit in C.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Close stops all deliveries to f. C is left open.
func (f *Feed) Close() {
	for _, unsub := range f.unsubs {
		unsub()
	}
	f.unsubs = nil
}
