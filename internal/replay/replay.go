// Package replay keeps a short age-bounded history of accepted traffic for
// the visualization endpoints. Entries age out against the newest ingested
// host timestamp, so a burst of stale-stamped input cannot wipe the view,
// and against the wall clock on consumer ticks, so the view drains once the
// devices go quiet.
package replay

import "time"

// Buffer is an append-ordered deque bounded by entry age rather than count.
// It is owned by the consumer stage and is not safe for concurrent use;
// other goroutines only ever see copies taken by Snapshot.
type Buffer[T any] struct {
	window time.Duration
	stamp  func(T) time.Time

	entries []T
	head    int
	latest  time.Time // newest ingested stamp seen by Append
}

// New returns an empty buffer. stamp extracts the host timestamp an entry
// ages by.
func New[T any](window time.Duration, stamp func(T) time.Time) *Buffer[T] {
	return &Buffer[T]{window: window, stamp: stamp}
}

// Append adds an entry and evicts whatever its stamp has aged out.
func (b *Buffer[T]) Append(entry T) {
	b.entries = append(b.entries, entry)
	if ts := b.stamp(entry); ts.After(b.latest) {
		b.latest = ts
	}
	b.evict(b.latest)
}

// SweepTo evicts entries that have aged out against the wall clock. A now
// behind the newest ingested stamp never un-evicts; the later reference
// wins.
func (b *Buffer[T]) SweepTo(now time.Time) {
	ref := b.latest
	if now.After(ref) {
		ref = now
	}
	b.evict(ref)
}

func (b *Buffer[T]) evict(ref time.Time) {
	for b.head < len(b.entries) && ref.Sub(b.stamp(b.entries[b.head])) > b.window {
		b.head++
	}
	// Reclaim the dead prefix once it dominates the backing array.
	if b.head > len(b.entries)/2 {
		live := copy(b.entries, b.entries[b.head:])
		for i := live; i < len(b.entries); i++ {
			var zero T
			b.entries[i] = zero
		}
		b.entries = b.entries[:live]
		b.head = 0
	}
}

// Snapshot returns the retained entries in arrival order. The slice is a
// copy and stays valid while the buffer keeps mutating.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, len(b.entries)-b.head)
	copy(out, b.entries[b.head:])
	return out
}

// Len reports the number of retained entries.
func (b *Buffer[T]) Len() int {
	return len(b.entries) - b.head
}

// Latest returns the newest ingested stamp seen so far.
func (b *Buffer[T]) Latest() time.Time {
	return b.latest
}
