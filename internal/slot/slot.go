// Package slot implements the single-entry, N-reader rendezvous buffer
// used to fan one producer's output out to a fixed, named set of
// readers. Waiting is a mutex plus a "generation" channel that every
// waiter selects on alongside a timeout, so blocked callers still poll
// their cancel-check periodically without a literal spin loop.
package slot

import (
	"sync"
	"time"

	"github.com/rrrd/rrr/internal/holder"
	"github.com/rrrd/rrr/internal/rrrerr"
)

// pollInterval bounds how long Write blocks between cancel-check
// polls.
const pollInterval = 500 * time.Millisecond

// Slot is the rendezvous buffer: entry holder, reader-count,
// per-reader read-flag table, and deleted/written counters.
type Slot struct {
	mu      sync.Mutex
	changed chan struct{}

	readerCount   int
	readers       []interface{}
	readerHasRead []bool

	entry *holder.Holder

	totalWritten int64
	totalDeleted int64
}

// New returns a Slot configured for readerCount distinct named readers.
// readerCount may be zero, in which case every write is immediately
// consumable and clears itself on the first (non-keeping) read.
func New(readerCount int) *Slot {
	s := &Slot{
		readerCount: readerCount,
		changed:     make(chan struct{}),
	}
	if readerCount > 0 {
		s.readers = make([]interface{}, readerCount)
		s.readerHasRead = make([]bool, readerCount)
	}
	return s
}

// Stats reports the lifetime written/deleted counters, for diagnostics.
func (s *Slot) Stats() (written, deleted int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalWritten, s.totalDeleted
}

// broadcastLocked wakes every goroutine currently blocked on s.changed.
// Caller must hold s.mu.
func (s *Slot) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// readerIndexLocked returns self's stable slot index, assigning the next
// free slot on first sight, or -1 if the slot has no registered readers.
// Caller must hold s.mu.
func (s *Slot) readerIndexLocked(self interface{}) int {
	if s.readerCount == 0 {
		return -1
	}
	for i, r := range s.readers {
		if r == self {
			return i
		}
		if r == nil {
			s.readers[i] = self
			return i
		}
	}
	panic("slot: too many readers for configured reader count")
}

// Write blocks until the slot is empty (or cancel returns true, in which
// case Write returns a rrrerr.Exit error), then publishes entry and wakes
// every blocked reader/writer. cancel may be nil.
func (s *Slot) Write(entry *holder.Holder, cancel func() bool) error {
	s.mu.Lock()
	for s.entry != nil {
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-time.After(pollInterval):
			if cancel != nil && cancel() {
				return rrrerr.New(rrrerr.Exit, "write cancelled")
			}
		}

		s.mu.Lock()
	}

	s.entry = entry
	s.totalWritten++
	if s.readerCount > 0 {
		for i := range s.readerHasRead {
			s.readerHasRead[i] = false
		}
	}
	s.broadcastLocked()
	s.mu.Unlock()
	return nil
}

// Read waits up to waitMs milliseconds (0 = don't wait) for a non-empty
// slot that self has not yet observed. On success it clones the held
// entry, invokes callback with the clone, and — unless callback asks to
// keep it pending — marks self as having read it; once every registered
// reader has read, the slot is cleared and writers are signalled.
// Returns whether callback was invoked.
func (s *Slot) Read(self interface{}, waitMs int, callback func(entry *holder.Holder) (keep bool)) bool {
	s.mu.Lock()

	if s.entry == nil {
		if waitMs <= 0 {
			s.mu.Unlock()
			return false
		}
		deadline := time.Now().Add(time.Duration(waitMs) * time.Millisecond)
		for s.entry == nil {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				s.mu.Unlock()
				return false
			}
			ch := s.changed
			s.mu.Unlock()

			select {
			case <-ch:
			case <-time.After(remaining):
			}

			s.mu.Lock()
		}
	}

	idx := s.readerIndexLocked(self)
	if idx >= 0 && s.readerHasRead[idx] {
		s.mu.Unlock()
		return false
	}

	h := s.entry
	h.Lock()
	clone := h.CloneUnderLock()
	h.Unlock()

	keep := callback(clone)

	if !keep {
		doneCount := 0
		if idx >= 0 {
			s.readerHasRead[idx] = true
			for _, done := range s.readerHasRead {
				if done {
					doneCount++
				}
			}
		}
		if doneCount >= s.readerCount {
			s.totalDeleted++
			s.entry = nil
		}
		s.broadcastLocked()
	}

	s.mu.Unlock()
	return true
}

// Discard drops the current entry for self's purposes without invoking
// any application callback, reusing Read's already-read bookkeeping.
// Returns whether an entry was actually discarded.
func (s *Slot) Discard(self interface{}) bool {
	return s.Read(self, 0, func(*holder.Holder) bool { return false })
}

// Count reports whether the slot currently holds an entry not yet seen
// by every registered reader (0 or 1).
func (s *Slot) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return 0
	}
	return 1
}
