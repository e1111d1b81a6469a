// Package ring provides the fixed-capacity single-producer single-consumer
// queue between the transport reader and the engine.
//
// The firmware-side ancestor of this handoff is an interrupt handler that
// raises a flag for the polling main loop. The rules carried over: the
// producer never blocks and never overwrites an unconsumed slot. When the
// consumer falls behind, TryPush refuses the newest record and the caller
// counts the drop instead of stalling the transport read loop.
package ring

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrBadCapacity rejects capacities the index mask can't support.
var ErrBadCapacity = errors.New("capacity must be a power of two, at least 2")

// Buffer is a bounded SPSC queue. Exactly one goroutine may call TryPush and
// exactly one may call TryPop; Len and Cap are safe from either.
type Buffer[T any] struct {
	buf  []T
	mask uint64
	head atomic.Uint64 // next slot to pop, owned by the consumer
	tail atomic.Uint64 // next slot to push, owned by the producer
}

// New creates a Buffer with the given capacity.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("ring capacity %d: %w", capacity, ErrBadCapacity)
	}
	return &Buffer[T]{
		buf:  make([]T, capacity),
		mask: uint64(capacity - 1),
	}, nil
}

// TryPush appends v and reports whether it fit. A false return means the
// queue was full and v was dropped; nothing already queued is disturbed.
func (b *Buffer[T]) TryPush(v T) bool {
	tail := b.tail.Load()
	if tail-b.head.Load() == uint64(len(b.buf)) {
		return false
	}
	b.buf[tail&b.mask] = v
	b.tail.Store(tail + 1)
	return true
}

// TryPop removes and returns the oldest entry, if any.
func (b *Buffer[T]) TryPop() (T, bool) {
	var zero T
	head := b.head.Load()
	if head == b.tail.Load() {
		return zero, false
	}
	v := b.buf[head&b.mask]
	b.buf[head&b.mask] = zero // release references held by the slot
	b.head.Store(head + 1)
	return v, true
}

// Len returns the number of queued entries.
func (b *Buffer[T]) Len() int {
	return int(b.tail.Load() - b.head.Load())
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.buf)
}

// Doorbell wakes the consumer after a push without ever blocking the
// producer. It collapses any number of rings into one pending wakeup; the
// consumer drains the queue to empty on each wakeup, so lost rings don't
// lose data.
type Doorbell chan struct{}

// NewDoorbell returns a doorbell with a single pending-wakeup slot.
func NewDoorbell() Doorbell {
	return make(chan struct{}, 1)
}

// Ring signals the consumer. Never blocks.
func (d Doorbell) Ring() {
	select {
	case d <- struct{}{}:
	default:
	}
}

// Wait returns the channel the consumer selects on.
func (d Doorbell) Wait() <-chan struct{} {
	return d
}
