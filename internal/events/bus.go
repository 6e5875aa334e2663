// Package events carries the in-process "store replaced" broadcast.
package events

import (
	"sync"
	"time"
)

// Signal tells observers that the persistent store was replaced and their
// queries must be re-issued.
type Signal struct {
	Seq       uint64    `json:"seq"`
	Operation string    `json:"operation"`
	At        time.Time `json:"at"`
}

// Bus is a broadcast with replay-of-last-value semantics. Every subscriber
// owns a one-element slot: Publish never blocks and replaces an unread
// older signal, and a late subscriber starts with the most recent signal.
type Bus struct {
	mu   sync.Mutex
	last *Signal
	seq  uint64
	next int
	subs map[int]chan Signal
	now  func() time.Time
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan Signal),
		now:  time.Now,
	}
}

// Publish records a new signal and hands it to every subscriber.
func (b *Bus) Publish(operation string) Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	s := Signal{Seq: b.seq, Operation: operation, At: b.now()}
	b.last = &s

	for _, ch := range b.subs {
		offer(ch, s)
	}
	return s
}

// Subscribe returns a channel of signals and a cancel func that closes it.
// Cancel is idempotent.
func (b *Bus) Subscribe() (<-chan Signal, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Signal, 1)
	if b.last != nil {
		ch <- *b.last
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Last returns the most recent signal, if any.
func (b *Bus) Last() (Signal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return Signal{}, false
	}
	return *b.last, true
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// offer puts s into the slot, dropping an unread older value.
// Callers hold b.mu, so nothing else sends on ch concurrently.
func offer(ch chan Signal, s Signal) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- s
}
