// Package broker implements the message-broker routing core: a named
// customer registry built on the fifo and slot delivery primitives, with
// in-flight counters that drive the pause/unpause back-pressure rule
// consumed by the event loop. The customer table is sharded by xxhash
// so high-fan-out registries don't serialise on one mutex.
package broker

import (
	"sync"

	"github.com/cespare/xxhash"
	"github.com/rrrd/rrr/internal/holder"
	"github.com/rrrd/rrr/internal/rrrerr"
	"github.com/rrrd/rrr/vars"
)

const shardCount = 16

// Thresholds bounds the in-flight back-pressure rule: when a customer
// has more than RatelimitThreshold in-flight holders the broker
// requests pause on the producer's loop; when below RatelimitRelease it
// requests unpause."
type Thresholds struct {
	RatelimitThreshold int64
	RatelimitRelease   int64
}

// DefaultThresholds are sane defaults; cmd/rrrd builds its Host with
// them (internal/config has no threshold settings).
var DefaultThresholds = Thresholds{RatelimitThreshold: 1000, RatelimitRelease: 500}

type shard struct {
	mu        sync.RWMutex
	customers map[string]*Customer
}

// Broker owns the customer registry and the shared back-pressure
// thresholds every customer is created with.
type Broker struct {
	shards     [shardCount]*shard
	thresholds Thresholds
}

// New returns a Broker using the given thresholds. A zero Thresholds
// value is replaced with DefaultThresholds.
func New(thresholds Thresholds) *Broker {
	if thresholds.RatelimitThreshold == 0 && thresholds.RatelimitRelease == 0 {
		thresholds = DefaultThresholds
	}
	b := &Broker{thresholds: thresholds}
	for i := range b.shards {
		b.shards[i] = &shard{customers: make(map[string]*Customer)}
	}
	return b
}

func (b *Broker) shardFor(name string) *shard {
	h := xxhash.Sum64String(name)
	return b.shards[h%uint64(shardCount)]
}

// RegisterCustomer creates (or returns the existing) customer under the
// given name. slotReaders is only meaningful for KindSlot; onPauseRequest
// is invoked with true/false as the in-flight count crosses the
// configured thresholds, and may be nil for customers that never
// back-pressure (e.g. deadend instances).
func (b *Broker) RegisterCustomer(name string, kind Kind, slotReaders int, onPauseRequest func(pause bool)) *Customer {
	sh := b.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if c, ok := sh.customers[name]; ok {
		return c
	}
	c := newCustomer(name, kind, slotReaders, onPauseRequest)
	sh.customers[name] = c
	return c
}

// Customer returns the named customer, or nil if it has not been
// registered.
func (b *Broker) Customer(name string) *Customer {
	sh := b.shardFor(name)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.customers[name]
}

// Write appends holder h under customer's write discipline: waits on the
// slot's condition until empty (or cancel fires) for a slot customer,
// appends atomically for a FIFO customer. Applies the back-pressure rule
// on success.
func (b *Broker) Write(customer string, h *holder.Holder, cancel func() bool) error {
	c := b.Customer(customer)
	if c == nil {
		return rrrerr.Newf(rrrerr.Hard, "broker: unknown customer %q", customer)
	}
	if err := c.write(h, cancel); err != nil {
		return err
	}
	c.incrementInFlight(b.thresholds)
	vars.NumMessagesInVar.Add(c.name, 1)
	return nil
}

// Read drains customer on behalf of selfID: for a slot customer it waits
// up to timeoutMs for an unseen value and invokes callback once; for a
// FIFO customer it takes the whole backlog under a brief write lock and
// invokes callback once per drained entry with no lock held. Returns the
// number of entries callback was invoked on.
func (b *Broker) Read(customer string, selfID interface{}, timeoutMs int, callback func(h *holder.Holder)) (int, error) {
	c := b.Customer(customer)
	if c == nil {
		return 0, rrrerr.Newf(rrrerr.Hard, "broker: unknown customer %q", customer)
	}

	switch c.kind {
	case KindSlot:
		got := c.slot.Read(selfID, timeoutMs, func(h *holder.Holder) bool {
			callback(h)
			return false
		})
		if !got {
			return 0, nil
		}
		c.decrementInFlight(b.thresholds)
		vars.NumMessagesOutVar.Add(c.name, 1)
		return 1, nil
	default:
		n := c.fifo.ReadClearForward(func(data interface{}) bool {
			callback(data.(*holder.Holder))
			return true
		})
		for i := 0; i < n; i++ {
			c.decrementInFlight(b.thresholds)
		}
		vars.NumMessagesOutVar.Add(c.name, int64(n))
		return n, nil
	}
}

// Poll is the non-blocking variant of Read (timeoutMs=0 for slots; FIFO
// reads are always non-blocking already).
func (b *Broker) Poll(customer string, selfID interface{}, callback func(h *holder.Holder)) (int, error) {
	return b.Read(customer, selfID, 0, callback)
}

// SetRatelimit toggles automatic back-pressure for the named customer.
func (b *Broker) SetRatelimit(customer string, active bool) error {
	c := b.Customer(customer)
	if c == nil {
		return rrrerr.Newf(rrrerr.Hard, "broker: unknown customer %q", customer)
	}
	c.SetRatelimit(active)
	return nil
}
