// Package holder implements the message holder: a reference-counted,
// individually-lockable envelope around a decoded message plus its
// source address and protocol tag. Mutation requires the holder's
// mutex; shared ownership is recorded through an atomic refcount.
package holder

import (
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rrrd/rrr/internal/rrrarray"
	"github.com/rrrd/rrr/vars"
)

// Protocol tags the transport a message arrived on or is destined for.
type Protocol uint8

const (
	ProtocolNone Protocol = iota
	ProtocolUDP
	ProtocolTCP
)

// Holder is the routing envelope: message, source address, protocol
// tag, send_time, ref-count, mutex, usercount. The zero value is not
// usable; construct with New.
type Holder struct {
	mu sync.Mutex

	message  *rrrarray.Message
	addr     net.Addr
	protocol Protocol
	sendTime time.Time

	refcount int32
	// usercount tracks how many distinct readers the broker still expects
	// a decref from, distinct from refcount which also counts structural
	// (non-reader) holders of the pointer.
	usercount int32

	destroyed bool
	onDestroy func()
}

// New allocates a Holder with refcount 1, wrapping msg with the given
// source address and protocol tag.
func New(addr net.Addr, protocol Protocol, msg *rrrarray.Message) *Holder {
	vars.NumHoldersAliveVar.Add(1)
	return &Holder{
		message:  msg,
		addr:     addr,
		protocol: protocol,
		refcount: 1,
	}
}

// OnDestroy installs a callback invoked exactly once, when refcount
// reaches zero, after the holder is marked destroyed, so an owner can
// release backing storage (e.g. a buffer pool entry) without the holder
// package needing to know about pools.
func (h *Holder) OnDestroy(fn func()) {
	h.mu.Lock()
	h.onDestroy = fn
	h.mu.Unlock()
}

// Incref increments the reference count. Safe to call without holding
// the holder's lock.
func (h *Holder) Incref() {
	atomic.AddInt32(&h.refcount, 1)
}

// Decref decrements the reference count and destroys the holder's
// storage (invoking OnDestroy, if set) exactly once, when the count
// reaches zero.
func (h *Holder) Decref() {
	if atomic.AddInt32(&h.refcount, -1) != 0 {
		return
	}
	h.mu.Lock()
	destroyed := h.destroyed
	h.destroyed = true
	fn := h.onDestroy
	h.mu.Unlock()
	if !destroyed {
		vars.NumHoldersAliveVar.Add(-1)
		if fn != nil {
			fn()
		}
	}
}

// Refcount reports the current reference count, for tests and metrics.
func (h *Holder) Refcount() int32 {
	return atomic.LoadInt32(&h.refcount)
}

// Lock acquires the holder's mutex. Mutation of Message/SetSendTime must
// only happen between Lock and Unlock.
func (h *Holder) Lock() { h.mu.Lock() }

// Unlock releases the holder's mutex.
func (h *Holder) Unlock() { h.mu.Unlock() }

// Message returns the wrapped message. Callers mutating the returned
// value must hold the holder's lock first.
func (h *Holder) Message() *rrrarray.Message { return h.message }

// Addr returns the holder's source/destination address.
func (h *Holder) Addr() net.Addr { return h.addr }

// Protocol returns the holder's protocol tag.
func (h *Holder) Protocol() Protocol { return h.protocol }

// SendTime returns the last recorded send timestamp.
func (h *Holder) SendTime() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendTime
}

// SetSendTime records when the holder was (re)sent; used by the ASD
// layer's resend ticking.
func (h *Holder) SetSendTime(t time.Time) {
	h.mu.Lock()
	h.sendTime = t
	h.mu.Unlock()
}

// CloneUnderLock copies the holder's message bytes and address into a
// freshly-allocated Holder with refcount 1. Caller must hold h's lock
// for the duration.
func (h *Holder) CloneUnderLock() *Holder {
	var clonedMsg *rrrarray.Message
	if h.message != nil {
		clonedArray := rrrarray.NewArray()
		for _, v := range h.message.Array.Values() {
			clonedArray.Append(v)
		}
		clonedMsg = rrrarray.New(h.message.Class, h.message.Timestamp, h.message.Topic, clonedArray)
	}

	vars.NumHoldersAliveVar.Add(1)
	return &Holder{
		message:  clonedMsg,
		addr:     h.addr,
		protocol: h.protocol,
		sendTime: h.sendTime,
		refcount: 1,
	}
}

// TopicMatch tokenizes both the holder's topic and filter on '/' and
// applies MQTT-style wildcard rules: '+' matches exactly one token, '#'
// matches zero or more trailing tokens and is only legal as the filter's
// final token.
func (h *Holder) TopicMatch(filter string) bool {
	if h.message == nil {
		return false
	}
	return TopicMatch(h.message.Topic, filter)
}

// TopicMatch implements the tokenized wildcard comparison independent of
// any Holder, so the MQTT subscription layer can reuse it directly.
func TopicMatch(topic, filter string) bool {
	topicTokens := strings.Split(topic, "/")
	filterTokens := strings.Split(filter, "/")

	ti := 0
	for fi, ft := range filterTokens {
		if ft == "#" {
			return fi == len(filterTokens)-1
		}
		if ti >= len(topicTokens) {
			return false
		}
		if ft != "+" && ft != topicTokens[ti] {
			return false
		}
		ti++
	}
	return ti == len(topicTokens)
}
