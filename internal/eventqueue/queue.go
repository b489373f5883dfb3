// Package eventqueue implements the per-instance event loop: one
// eventfd-backed signal slot per function code, a periodic timer, and a
// pause/unpause back-pressure mechanism. golang.org/x/sys/unix's
// Eventfd provides the per-function wakeup primitive;
// github.com/benbjohnson/clock drives the timers, letting
// tests substitute a mock clock.
package eventqueue

import (
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rrrd/rrr/internal/rrrerr"
)

// Code identifies one registered function slot.
type Code int

// unpauseDelay is the one-shot timer that notices a pause->unpause
// transition.
const unpauseDelay = 50 * time.Microsecond

// maxAmount caps a single callback invocation's amount; Pass accepts
// amounts in [0, 0xffff].
const maxAmount = 0xffff

// Callback is a registered function's handler. It receives up to
// maxAmount units of outstanding notification and returns how many it
// actually processed; returning 0 signals "retry" (the notification
// arrived before the data it announces was ready), which makes the
// dispatch loop yield instead of busy-looping. A non-nil error breaks
// the whole dispatch loop.
type Callback func(amount uint16) (processed uint16, err error)

type functionSlot struct {
	code     Code
	counter  eventCounter
	callback Callback
}

type notification struct {
	code   Code
	amount uint64
}

// PeriodicCallback runs once per period installed by Dispatch.
type PeriodicCallback func() error

// Queue is one instance's event loop: N per-function slots, a periodic
// event, an unpause event, and a pause flag. One Queue is owned by
// exactly one instance thread; Dispatch runs its central select loop on
// the calling goroutine, so callbacks on the same Queue never run
// concurrently with each other.
type Queue struct {
	clk clock.Clock

	mu        sync.Mutex
	functions map[Code]*functionSlot

	fanIn chan notification

	paused        int32
	pendingMu     sync.Mutex
	pending       map[Code]uint64
	unpauseSignal chan struct{}
	pauseCheck    PauseCallback

	// control carries break/exit/restart requests into the dispatch
	// loop.
	control chan controlRequest

	stopCh chan struct{}
	once   sync.Once
}

type controlRequest int

const (
	controlBreak controlRequest = iota
	controlExit
	controlRestart
)

// New returns a Queue driven by clk (use clock.New() in production,
// clock.NewMock() in tests).
func New(clk clock.Clock) *Queue {
	if clk == nil {
		clk = clock.New()
	}
	return &Queue{
		clk:           clk,
		functions:     make(map[Code]*functionSlot),
		fanIn:         make(chan notification, 256),
		pending:       make(map[Code]uint64),
		unpauseSignal: make(chan struct{}, 1),
		control:       make(chan controlRequest, 4),
		stopCh:        make(chan struct{}),
	}
}

// FunctionSet registers callback as the handler for code, allocating its
// eventfd and starting the background goroutine that blocks on it and
// forwards readiness to the central dispatch loop.
func (q *Queue) FunctionSet(code Code, callback Callback) error {
	counter, err := newEventCounter()
	if err != nil {
		return err
	}

	slot := &functionSlot{code: code, counter: counter, callback: callback}

	q.mu.Lock()
	q.functions[code] = slot
	q.mu.Unlock()

	go q.pumpFunction(slot)
	return nil
}

// pumpFunction blocks reading slot's counter and forwards every
// non-zero read to the central loop. It never invokes callback itself —
// only Dispatch's goroutine does, preserving single-threaded callback
// execution.
func (q *Queue) pumpFunction(slot *functionSlot) {
	for {
		n, err := slot.counter.Read()
		if err != nil {
			return
		}
		select {
		case q.fanIn <- notification{code: slot.code, amount: n}:
		case <-q.stopCh:
			return
		}
	}
}

// Pass increments code's counter by amount, retrying through
// retryCallback if the underlying write is momentarily non-ready.
// retryCallback should perform any urgent local work and return true to
// retry, false to fail the Pass. A nil retryCallback means "fail
// immediately on the first non-ready write".
func (q *Queue) Pass(code Code, amount uint16, retryCallback func() bool) error {
	q.mu.Lock()
	slot, ok := q.functions[code]
	q.mu.Unlock()
	if !ok {
		return rrrerr.Newf(rrrerr.Hard, "eventqueue: code %d not registered", code)
	}

	for {
		err := slot.counter.Add(uint64(amount))
		if err == nil {
			return nil
		}
		if err != errWouldBlock {
			return err
		}
		if retryCallback == nil || !retryCallback() {
			return rrrerr.New(rrrerr.NotReady, "eventqueue: pass could not complete")
		}
	}
}

// SetPaused toggles the loop's pause flag. While paused, notifications
// from every function slot still accumulate (pumpFunction keeps
// draining eventfds so writers never block), but the dispatch loop
// defers processing them until unpaused. Transitioning from paused to
// unpaused arms the 50µs unpause timer; once it fires, any function that
// signalled while paused gets at least one dispatch immediately.
func (q *Queue) SetPaused(paused bool) {
	q.pendingMu.Lock()
	wasPaused := q.paused != 0
	if paused {
		q.paused = 1
	} else {
		q.paused = 0
	}
	q.pendingMu.Unlock()

	if wasPaused && !paused {
		select {
		case q.unpauseSignal <- struct{}{}:
		default:
		}
	}
}

func (q *Queue) isPaused() bool {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	return q.paused != 0
}

// PauseCallback is consulted before every signal-event dispatch: it
// receives the current pause state and returns the desired one, letting
// an owner (typically the broker's back-pressure rule) flip the loop in
// and out of pause cooperatively.
type PauseCallback func(isPausedNow bool) (pause bool)

// CallbackPauseSet installs cb. A nil cb removes the check.
func (q *Queue) CallbackPauseSet(cb PauseCallback) {
	q.pendingMu.Lock()
	q.pauseCheck = cb
	q.pendingMu.Unlock()
}

// consultPauseCallback applies the installed pause check, if any, and
// returns the resulting pause state.
func (q *Queue) consultPauseCallback() bool {
	q.pendingMu.Lock()
	cb := q.pauseCheck
	q.pendingMu.Unlock()
	if cb == nil {
		return q.isPaused()
	}
	now := q.isPaused()
	want := cb(now)
	if want != now {
		q.SetPaused(want)
	}
	return want
}

// Dispatch runs the central select loop until an error, DispatchBreak,
// or DispatchExit stops it. periodicCallback (may be nil) runs every
// period.
func (q *Queue) Dispatch(period time.Duration, periodicCallback PeriodicCallback) error {
	var ticker *clock.Ticker
	var tickerC <-chan time.Time
	if period > 0 {
		ticker = q.clk.Ticker(period)
		tickerC = ticker.C
		defer ticker.Stop()
	}

	unpauseTimer := q.clk.Timer(unpauseDelay)
	unpauseTimer.Stop()
	defer unpauseTimer.Stop()

restart:
	for {
		select {
		case <-q.stopCh:
			return nil

		case req := <-q.control:
			switch req {
			case controlBreak:
				return nil
			case controlExit:
				return rrrerr.New(rrrerr.Exit, "eventqueue: exit requested")
			case controlRestart:
				continue restart
			}

		case note := <-q.fanIn:
			if q.consultPauseCallback() {
				q.pendingMu.Lock()
				q.pending[note.code] += note.amount
				q.pendingMu.Unlock()
				continue
			}
			if err := q.dispatchOne(note.code, note.amount); err != nil {
				return err
			}

		case <-q.unpauseSignal:
			unpauseTimer.Reset(unpauseDelay)

		case <-unpauseTimer.C:
			q.pendingMu.Lock()
			pending := q.pending
			q.pending = make(map[Code]uint64)
			q.pendingMu.Unlock()
			for code, amount := range pending {
				if err := q.dispatchOne(code, amount); err != nil {
					return err
				}
			}

		case <-tickerC:
			if periodicCallback != nil {
				if err := periodicCallback(); err != nil {
					return err
				}
			}
		}
	}
}

// dispatchOne runs the per-event dispatch algorithm: call
// the callback with up to maxAmount outstanding, decrement by what it
// actually processed, and repeat until exhausted or the callback asks
// to retry.
func (q *Queue) dispatchOne(code Code, amount uint64) error {
	q.mu.Lock()
	slot, ok := q.functions[code]
	q.mu.Unlock()
	if !ok {
		return nil
	}

	for amount > 0 {
		chunk := amount
		if chunk > maxAmount {
			chunk = maxAmount
		}
		processed, err := slot.callback(uint16(chunk))
		if err != nil {
			return err
		}
		if processed == 0 {
			// Yield, then hand the unprocessed remainder back to the
			// counter so it is dispatched again.
			runtime.Gosched()
			if err := slot.counter.Add(amount); err != nil && err != errClosed {
				return err
			}
			return nil
		}
		amount -= uint64(processed)
	}
	return nil
}

// DispatchOnce serves a single ready notification, if one is queued,
// without blocking. It reports whether anything was dispatched.
func (q *Queue) DispatchOnce() (bool, error) {
	select {
	case note := <-q.fanIn:
		if q.consultPauseCallback() {
			q.pendingMu.Lock()
			q.pending[note.code] += note.amount
			q.pendingMu.Unlock()
			return false, nil
		}
		return true, q.dispatchOne(note.code, note.amount)
	default:
		return false, nil
	}
}

// DispatchBreak asks a running Dispatch to return nil.
func (q *Queue) DispatchBreak() {
	select {
	case q.control <- controlBreak:
	default:
	}
}

// DispatchExit asks a running Dispatch to return an Exit-kind error, the
// cooperative stop signal instance threads propagate upward.
func (q *Queue) DispatchExit() {
	select {
	case q.control <- controlExit:
	default:
	}
}

// DispatchRestart makes the loop re-enter its select immediately,
// re-reading timers after a reconfiguration.
func (q *Queue) DispatchRestart() {
	select {
	case q.control <- controlRestart:
	default:
	}
}

// Stop halts the dispatch loop and every function pump goroutine.
func (q *Queue) Stop() {
	q.once.Do(func() {
		close(q.stopCh)
		q.mu.Lock()
		for _, slot := range q.functions {
			slot.counter.Close()
		}
		q.mu.Unlock()
	})
}
