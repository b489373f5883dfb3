package broker

import (
	"sync/atomic"

	"github.com/rrrd/rrr/internal/fifo"
	"github.com/rrrd/rrr/internal/holder"
	"github.com/rrrd/rrr/internal/slot"
)

// Kind selects which delivery primitive backs a Customer.
type Kind int

const (
	// KindSlot backs the customer with a single-entry, N-reader slot
	// buffer (broadcast delivery).
	KindSlot Kind = iota
	// KindFIFO backs the customer with an ordered, multi-reader FIFO
	// queue (work-queue delivery).
	KindFIFO
)

// Customer is the broker-managed queue bound to one instance's input
// side: a slot or FIFO, its reader registry, an in-flight counter, and
// the ratelimit flag.
type Customer struct {
	name string
	kind Kind

	slot *slot.Slot
	fifo *fifo.Buffer

	inFlight  int64
	ratelimit int32 // 0/1, manipulated with sync/atomic

	onPauseRequest func(pause bool)
}

func newCustomer(name string, kind Kind, slotReaders int, onPauseRequest func(pause bool)) *Customer {
	c := &Customer{name: name, kind: kind, onPauseRequest: onPauseRequest}
	switch kind {
	case KindSlot:
		c.slot = slot.New(slotReaders)
	case KindFIFO:
		c.fifo = fifo.New()
	}
	return c
}

// InFlight reports the current in-flight holder count.
func (c *Customer) InFlight() int64 {
	return atomic.LoadInt64(&c.inFlight)
}

// SetRatelimit toggles whether Write applies the automatic
// back-pressure rule for this customer.
func (c *Customer) SetRatelimit(active bool) {
	v := int32(0)
	if active {
		v = 1
	}
	atomic.StoreInt32(&c.ratelimit, v)
}

func (c *Customer) ratelimited() bool {
	return atomic.LoadInt32(&c.ratelimit) != 0
}

func (c *Customer) incrementInFlight(thresholds Thresholds) {
	n := atomic.AddInt64(&c.inFlight, 1)
	if c.ratelimited() && c.onPauseRequest != nil && n > thresholds.RatelimitThreshold {
		c.onPauseRequest(true)
	}
}

func (c *Customer) decrementInFlight(thresholds Thresholds) {
	n := atomic.AddInt64(&c.inFlight, -1)
	if c.ratelimited() && c.onPauseRequest != nil && n < thresholds.RatelimitRelease {
		c.onPauseRequest(false)
	}
}

func (c *Customer) write(h *holder.Holder, cancel func() bool) error {
	switch c.kind {
	case KindSlot:
		return c.slot.Write(h, cancel)
	default:
		c.fifo.Write(h)
		return nil
	}
}
