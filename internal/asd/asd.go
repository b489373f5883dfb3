// Package asd implements acknowledged stream delivery: reliable,
// ordered message delivery with a three-way DACK/RACK/CACK handshake
// layered on an underlying datagram stream's 64-bit application-data
// field.
package asd

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"

	"github.com/rrrd/rrr/bufpool"
	"github.com/rrrd/rrr/internal/holder"
	"github.com/rrrd/rrr/internal/rrrarray"
	"github.com/rrrd/rrr/internal/rrrerr"
	"github.com/rrrd/rrr/internal/rrrtype"
	"github.com/rrrd/rrr/vars"
)

// Ack status flag bits, carried in the upper 32 bits of the stream's
// application-data field. The lower 32 bits hold the message id.
const (
	FlagMSG  uint32 = 1 << 0
	FlagDACK uint32 = 1 << 1
	FlagRACK uint32 = 1 << 2
	FlagCACK uint32 = 1 << 3
	FlagRST  uint32 = 1 << 4
)

// SplitApplicationData separates a received application-data field into
// its flag and message-id halves.
func SplitApplicationData(applicationData uint64) (flags uint32, messageID uint32) {
	return uint32(applicationData >> 32), uint32(applicationData)
}

// JoinApplicationData packs flags and messageID for transmission.
func JoinApplicationData(flags uint32, messageID uint32) uint64 {
	return uint64(flags)<<32 | uint64(messageID)
}

// Stream is the underlying datagram transport the reliability layer
// rides on.
type Stream interface {
	// SendControl transmits a frame carrying only application data.
	SendControl(connectHandle uint32, applicationData uint64) error
	// SendData transmits application data plus an encoded message.
	SendData(connectHandle uint32, applicationData uint64, data []byte) error
	// Connect initiates a stream to remote using the given handle.
	Connect(remote string, connectHandle uint32) error
	// WindowSizeAdjust asks the peer to grow (positive) or shrink
	// (negative) its send window for this stream.
	WindowSizeAdjust(connectHandle uint32, delta int) error
}

// Allocator builds a message holder for a decoded inbound message. The
// owning instance supplies it so holders land in the right buffer
// discipline.
type Allocator func(msg *rrrarray.Message) (*holder.Holder, error)

// DeliveryFunc hands a released inbound entry to the application. The
// callee takes over the holder reference.
type DeliveryFunc func(connectHandle uint32, messageID uint32, h *holder.Holder) error

// Config tunes the reliability layer. Zero fields take defaults.
type Config struct {
	ResendInterval time.Duration
	ConnectTimeout time.Duration
	// DeliveryGraceCounter is how many future deliveries a released id
	// stays known for, so a stale retransmission is still acked rather
	// than treated as new.
	DeliveryGraceCounter int
	// ReleaseQueueWindowSizeReductionThreshold is the count of
	// non-graced release-queue entries above which the receive window is
	// shrunk.
	ReleaseQueueWindowSizeReductionThreshold int
	WindowSizeReductionAmount                int
	// MaxMessageSize drops outbound messages whose encoding exceeds it.
	MaxMessageSize int
}

// DefaultConfig mirrors the historical tuning.
var DefaultConfig = Config{
	ResendInterval:       time.Second,
	ConnectTimeout:       5 * time.Second,
	DeliveryGraceCounter: 100,
	ReleaseQueueWindowSizeReductionThreshold: 75,
	WindowSizeReductionAmount:                10,
	MaxMessageSize:                           1 << 32,
}

// queueEntry is one in-flight message, outbound or inbound.
type queueEntry struct {
	messageID            uint32
	holder               *holder.Holder
	sendTime             time.Time
	ackStatusFlags       uint32
	sendCount            int
	delivered             bool
	deliveredGraceCounter int
	// encoded views buf's bytes for outbound entries; buf returns to the
	// pool when the entry is destroyed.
	encoded []byte
	buf     *bufpool.Buffer
}

// orderedQueue keeps entries sorted by message id.
type orderedQueue struct {
	entries []*queueEntry
}

func (q *orderedQueue) find(id uint32) *queueEntry {
	i := sort.Search(len(q.entries), func(i int) bool { return q.entries[i].messageID >= id })
	if i < len(q.entries) && q.entries[i].messageID == id {
		return q.entries[i]
	}
	return nil
}

func (q *orderedQueue) insert(e *queueEntry) bool {
	i := sort.Search(len(q.entries), func(i int) bool { return q.entries[i].messageID >= e.messageID })
	if i < len(q.entries) && q.entries[i].messageID == e.messageID {
		return false
	}
	q.entries = append(q.entries, nil)
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
	return true
}

func (q *orderedQueue) remove(id uint32) {
	i := sort.Search(len(q.entries), func(i int) bool { return q.entries[i].messageID >= id })
	if i < len(q.entries) && q.entries[i].messageID == id {
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
	}
}

// Session is one reliability-layer endpoint: an outbound send queue
// plus one release queue per remote connect handle.
type Session struct {
	mu sync.Mutex

	config    Config
	stream    Stream
	clk       clock.Clock
	allocator Allocator
	delivery  DeliveryFunc

	remote        string
	connectHandle uint32
	connected     bool
	// connectAttemptTime is zero when no connect is outstanding.
	connectAttemptTime time.Time
	connectRetry       *backoff.ExponentialBackOff

	nextMessageID uint32

	pool          *bufpool.Pool
	sendQueue     orderedQueue
	releaseQueues map[uint32]*orderedQueue
}

// New builds a Session. remote may be empty for a passively-accepting
// endpoint. connectHandle identifies this endpoint to its peers.
func New(config Config, stream Stream, clk clock.Clock, connectHandle uint32, remote string, allocator Allocator, delivery DeliveryFunc) *Session {
	if config.ResendInterval == 0 {
		config.ResendInterval = DefaultConfig.ResendInterval
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConfig.ConnectTimeout
	}
	if config.DeliveryGraceCounter == 0 {
		config.DeliveryGraceCounter = DefaultConfig.DeliveryGraceCounter
	}
	if config.ReleaseQueueWindowSizeReductionThreshold == 0 {
		config.ReleaseQueueWindowSizeReductionThreshold = DefaultConfig.ReleaseQueueWindowSizeReductionThreshold
	}
	if config.WindowSizeReductionAmount == 0 {
		config.WindowSizeReductionAmount = DefaultConfig.WindowSizeReductionAmount
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultConfig.MaxMessageSize
	}
	if clk == nil {
		clk = clock.New()
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return &Session{
		config:        config,
		stream:        stream,
		clk:           clk,
		allocator:     allocator,
		delivery:      delivery,
		remote:        remote,
		connectHandle: connectHandle,
		connectRetry:  b,
		pool:          bufpool.New(),
		releaseQueues: make(map[uint32]*orderedQueue),
	}
}

// QueueMessage assigns the next message id (skipping zero) and places h
// on the send queue. The session takes a reference on h.
func (s *Session) QueueMessage(h *holder.Holder) (uint32, error) {
	buf := s.pool.Get()
	h.Lock()
	err := rrrarray.EncodeMessageTo(h.Message(), &buf.Buffer)
	h.Unlock()
	if err != nil {
		buf.Close()
		return 0, errors.Wrap(err, "asd: encode message")
	}
	if buf.Len() > s.config.MaxMessageSize {
		buf.Close()
		return 0, rrrerr.Newf(rrrerr.Soft, "asd: message of %d bytes exceeds maximum", buf.Len())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMessageID++
	if s.nextMessageID == 0 {
		s.nextMessageID = 1
	}
	id := s.nextMessageID

	h.Incref()
	s.sendQueue.insert(&queueEntry{messageID: id, holder: h, encoded: buf.Bytes(), buf: buf})
	return id, nil
}

// SendQueueLen reports outstanding outbound entries.
func (s *Session) SendQueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sendQueue.entries)
}

// Entry returns a copy of the send-queue entry's bookkeeping for id, for
// observability and tests.
func (s *Session) Entry(id uint32) (sendCount int, ackStatusFlags uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.sendQueue.find(id)
	if e == nil {
		return 0, 0, false
	}
	return e.sendCount, e.ackStatusFlags, true
}

// Tick drives connect management, the outbound resend pass, the inbound
// DACK re-emit pass, delivery, and window regulation. Call it from the
// owning event loop's periodic callback.
func (s *Session) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()

	if err := s.tickConnect(now); err != nil {
		return err
	}
	if err := s.tickSendQueue(now); err != nil {
		return err
	}
	return s.tickReleaseQueues(now)
}

func (s *Session) tickConnect(now time.Time) error {
	if s.connected || s.remote == "" {
		return nil
	}
	if !s.connectAttemptTime.IsZero() {
		if now.Sub(s.connectAttemptTime) > s.config.ConnectTimeout {
			s.connectAttemptTime = time.Time{}
		}
		return nil
	}
	if err := s.stream.Connect(s.remote, s.connectHandle); err != nil {
		if rrrerr.Is(err, rrrerr.NotReady) || rrrerr.Is(err, rrrerr.Soft) {
			return nil // retry next tick
		}
		return errors.Wrap(err, "asd: connect")
	}
	s.connectAttemptTime = now
	return nil
}

// ConnectDone records a completed handshake and queues an RST so the
// peer discards release queues left over from a previous incarnation of
// this endpoint.
func (s *Session) ConnectDone() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.connectAttemptTime = time.Time{}
	s.connectRetry.Reset()
	return s.stream.SendControl(s.connectHandle, JoinApplicationData(FlagRST, 0))
}

func (s *Session) tickSendQueue(now time.Time) error {
	var done []uint32
	for _, e := range s.sendQueue.entries {
		if e.ackStatusFlags&FlagCACK != 0 {
			e.holder.Decref()
			e.buf.Close()
			done = append(done, e.messageID)
			continue
		}
		if !e.sendTime.IsZero() && now.Sub(e.sendTime) < s.config.ResendInterval {
			continue
		}
		e.sendTime = now
		e.sendCount++
		if e.sendCount > 1 {
			vars.NumASDResendsVar.Add(1)
		}

		if e.ackStatusFlags&FlagMSG == 0 || e.ackStatusFlags&FlagDACK == 0 {
			err := s.stream.SendData(s.connectHandle, JoinApplicationData(FlagMSG, e.messageID), e.encoded)
			if err != nil {
				if rrrerr.Is(err, rrrerr.NotReady) || rrrerr.Is(err, rrrerr.Soft) {
					continue
				}
				return errors.Wrap(err, "asd: resend message")
			}
			e.ackStatusFlags |= FlagMSG
		} else if e.ackStatusFlags&FlagCACK == 0 {
			err := s.stream.SendControl(s.connectHandle, JoinApplicationData(FlagRACK, e.messageID))
			if err != nil {
				if rrrerr.Is(err, rrrerr.NotReady) || rrrerr.Is(err, rrrerr.Soft) {
					continue
				}
				return errors.Wrap(err, "asd: resend RACK")
			}
			e.ackStatusFlags |= FlagRACK
		}
	}
	for _, id := range done {
		s.sendQueue.remove(id)
	}
	return nil
}

func (s *Session) tickReleaseQueues(now time.Time) error {
	for handle, q := range s.releaseQueues {
		deliveredThisTick := 0
		var fresh map[uint32]bool

		var done []uint32
		for _, e := range q.entries {
			// Completed-and-graced entries count down and disappear.
			if e.delivered {
				continue
			}

			// Until the peer releases the id, keep re-announcing receipt.
			if e.ackStatusFlags&FlagRACK == 0 {
				if e.sendTime.IsZero() || now.Sub(e.sendTime) >= s.config.ResendInterval {
					e.sendTime = now
					err := s.stream.SendControl(handle, JoinApplicationData(FlagDACK, e.messageID))
					if err != nil && !rrrerr.Is(err, rrrerr.NotReady) && !rrrerr.Is(err, rrrerr.Soft) {
						return errors.Wrap(err, "asd: re-emit DACK")
					}
				}
				continue
			}

			// Released: hand to the application.
			if s.delivery != nil {
				if err := s.delivery(handle, e.messageID, e.holder); err != nil {
					return errors.Wrap(err, "asd: delivery")
				}
			}
			e.delivered = true
			e.deliveredGraceCounter = s.config.DeliveryGraceCounter
			deliveredThisTick++
			if fresh == nil {
				fresh = make(map[uint32]bool)
			}
			fresh[e.messageID] = true
		}

		if deliveredThisTick > 0 {
			for _, e := range q.entries {
				// Only deliveries after an entry's own count against its
				// grace counter.
				if !e.delivered || fresh[e.messageID] {
					continue
				}
				e.deliveredGraceCounter -= deliveredThisTick
				if e.deliveredGraceCounter <= 0 {
					done = append(done, e.messageID)
				}
			}
		}
		for _, id := range done {
			q.remove(id)
		}

		nonGraced := 0
		for _, e := range q.entries {
			if !e.delivered {
				nonGraced++
			}
		}
		if nonGraced > s.config.ReleaseQueueWindowSizeReductionThreshold {
			err := s.stream.WindowSizeAdjust(handle, -s.config.WindowSizeReductionAmount)
			if err != nil && !rrrerr.Is(err, rrrerr.NotReady) && !rrrerr.Is(err, rrrerr.Soft) {
				return errors.Wrap(err, "asd: window adjust")
			}
		}
	}
	return nil
}

func (s *Session) releaseQueue(handle uint32) *orderedQueue {
	q, ok := s.releaseQueues[handle]
	if !ok {
		q = &orderedQueue{}
		s.releaseQueues[handle] = q
	}
	return q
}

// ReceiveData ingests one decoded data frame from the stream: the
// message is allocated into a holder and inserted into the sender's
// release queue, and receipt is acknowledged immediately. A duplicate
// id — including one still inside its delivery grace window — is
// re-acked and otherwise ignored.
func (s *Session) ReceiveData(sourceConnectHandle uint32, applicationData uint64, data []byte) error {
	_, id := SplitApplicationData(applicationData)
	if id == 0 {
		return rrrerr.New(rrrerr.Soft, "asd: data frame with message id 0")
	}

	msg, _, err := rrrarray.DecodeMessage(data, nil, rrrtype.DecodeOptions{})
	if err != nil {
		return errors.Wrap(err, "asd: decode inbound message")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.releaseQueue(sourceConnectHandle)
	if existing := q.find(id); existing != nil {
		return s.stream.SendControl(sourceConnectHandle, JoinApplicationData(FlagDACK, id))
	}

	h, err := s.allocator(msg)
	if err != nil {
		return errors.Wrap(err, "asd: allocate holder")
	}
	q.insert(&queueEntry{messageID: id, holder: h, ackStatusFlags: FlagMSG})
	return s.stream.SendControl(sourceConnectHandle, JoinApplicationData(FlagDACK, id))
}

// ReceiveControl ingests one control frame.
func (s *Session) ReceiveControl(sourceConnectHandle uint32, applicationData uint64) error {
	flags, id := SplitApplicationData(applicationData)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch flags {
	case FlagDACK:
		// Peer received our message; answer RACK so it may deliver.
		if e := s.sendQueue.find(id); e != nil {
			e.ackStatusFlags |= FlagDACK
		}
		return s.stream.SendControl(sourceConnectHandle, JoinApplicationData(FlagRACK, id))

	case FlagRACK:
		// Peer says our received message is safe to deliver; answer CACK.
		q := s.releaseQueue(sourceConnectHandle)
		if e := q.find(id); e != nil {
			e.ackStatusFlags |= FlagRACK
		}
		return s.stream.SendControl(sourceConnectHandle, JoinApplicationData(FlagCACK, id))

	case FlagCACK:
		if e := s.sendQueue.find(id); e != nil {
			e.ackStatusFlags |= FlagCACK
		}
		return nil

	case FlagRST:
		q := s.releaseQueues[sourceConnectHandle]
		if q != nil {
			for _, e := range q.entries {
				e.holder.Decref()
			}
		}
		delete(s.releaseQueues, sourceConnectHandle)
		return nil

	default:
		return rrrerr.Newf(rrrerr.Soft, "asd: unknown control flags 0x%08x", flags)
	}
}
