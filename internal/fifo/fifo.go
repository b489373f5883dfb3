// Package fifo implements the ordered, multi-consumer FIFO queue
// primitive: a linked list guarded by a single mutex where one writer
// appends at the tail while read_clear_forward takes ownership of a
// prefix of the head, drains it without holding the lock, and readers
// may traverse concurrently with each other (never with a writer).
package fifo

import "sync"

type entry struct {
	data interface{}
	next *entry
}

// Buffer is an ordered queue of data entries behind a single
// read/write mutex.
// The C original's busy-wait writers/readers counters are replaced with
// a sync.RWMutex guarding the same invariant ("only one writer holds
// exclusive write at a time; readers and writers never overlap, but
// multiple readers may traverse simultaneously") expressed with an
// RWMutex instead of a spin loop.
type Buffer struct {
	mu         sync.RWMutex
	first, last *entry
}

// New returns an empty FIFO buffer.
func New() *Buffer {
	return &Buffer{}
}

// Write appends data as the new tail entry. Mirrors
// fifo_buffer_write: the lock is held only long enough to update the
// tail pointer.
func (b *Buffer) Write(data interface{}) {
	e := &entry{data: data}

	b.mu.Lock()
	if b.last == nil {
		b.first = e
		b.last = e
	} else {
		b.last.next = e
		b.last = e
	}
	b.mu.Unlock()
}

// Read invokes callback on every entry currently in the buffer, in
// order, without removing them. Mirrors fifo_read: it blocks concurrent
// writers but allows other readers to traverse at the same time.
func (b *Buffer) Read(callback func(data interface{})) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for cur := b.first; cur != nil; cur = cur.next {
		callback(cur.data)
	}
}

// ReadClearForward detaches the current head-to-tail chain under the
// write lock (a bounded operation), then invokes callback on each
// detached entry, in write order, without holding any lock. If callback
// returns false, iteration stops and every entry from that point on —
// including the one that returned false — is prepended back onto the
// buffer in its original order, so a partial drain never reorders or
// loses data. Returns the number of entries consumed, i.e. those for
// which callback returned true.
//
// Mirrors fifo_read_clear_forward, generalised to support an early stop
// (the C original always drains to a fixed last_element chosen by the
// caller ahead of time; here the callback itself decides).
func (b *Buffer) ReadClearForward(callback func(data interface{}) bool) int {
	b.mu.Lock()
	first := b.first
	b.first = nil
	b.last = nil
	b.mu.Unlock()

	n := 0
	cur := first
	for cur != nil {
		next := cur.next
		if !callback(cur.data) {
			b.prepend(cur)
			return n
		}
		n++
		cur = next
	}
	return n
}

// prepend re-attaches the chain starting at head (in its existing
// order) to the front of whatever has been written to the buffer since
// it was detached.
func (b *Buffer) prepend(head *entry) {
	tail := head
	for tail.next != nil {
		tail = tail.next
	}

	b.mu.Lock()
	tail.next = b.first
	b.first = head
	if b.last == nil {
		b.last = tail
	}
	b.mu.Unlock()
}

// Len reports the current entry count. For diagnostics/tests only; it is
// not part of the hot path.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for cur := b.first; cur != nil; cur = cur.next {
		n++
	}
	return n
}
