// Package codebuf provides the fixed-capacity ring of recently transmitted
// codes. The attack worker is the only writer; the API layer reads it
// concurrently for progress display, so head, count, and the slots are
// accessed atomically. A reader may observe a snapshot that is one push
// stale, which is acceptable for operator-facing telemetry.
package codebuf

import "sync/atomic"

// DefaultCapacity holds roughly ten seconds of transmissions at typical
// payload timing, which is the window the save-on-stop heuristic relies on.
const DefaultCapacity = 320

// Buffer is a FIFO ring of code values. Zero value is not usable; call New.
type Buffer struct {
	codes []uint32
	head  uint32 // index of the oldest entry
	count uint32
}

// New creates a ring buffer holding at most capacity codes.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{codes: make([]uint32, capacity)}
}

// Push appends a code, evicting the oldest entry once the buffer is full.
// Only one goroutine may call Push (and Reset) at a time.
func (b *Buffer) Push(code uint32) {
	capacity := uint32(len(b.codes))
	head := atomic.LoadUint32(&b.head)
	count := atomic.LoadUint32(&b.count)

	atomic.StoreUint32(&b.codes[(head+count)%capacity], code)
	if count == capacity {
		atomic.StoreUint32(&b.head, (head+1)%capacity)
	} else {
		atomic.StoreUint32(&b.count, count+1)
	}
}

// Len returns the number of codes currently retained.
func (b *Buffer) Len() int {
	return int(atomic.LoadUint32(&b.count))
}

// Oldest returns the oldest retained code, the one transmitted furthest in
// the past that has not yet been evicted. ok is false when empty.
func (b *Buffer) Oldest() (code uint32, ok bool) {
	head := atomic.LoadUint32(&b.head)
	if atomic.LoadUint32(&b.count) == 0 {
		return 0, false
	}
	return atomic.LoadUint32(&b.codes[head]), true
}

// Recent returns up to n codes, newest first.
func (b *Buffer) Recent(n int) []uint32 {
	capacity := uint32(len(b.codes))
	head := atomic.LoadUint32(&b.head)
	count := atomic.LoadUint32(&b.count)
	if n > int(count) {
		n = int(count)
	}

	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		idx := (head + count - 1 - uint32(i)) % capacity
		out[i] = atomic.LoadUint32(&b.codes[idx])
	}
	return out
}

// Reset empties the buffer. Called by the worker at the start of each run
// and at each target boundary in de Bruijn sweeps.
func (b *Buffer) Reset() {
	atomic.StoreUint32(&b.count, 0)
	atomic.StoreUint32(&b.head, 0)
}
