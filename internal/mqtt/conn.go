package mqtt

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rrrd/rrr/internal/rrrerr"
)

// ConnState is the connection's lifecycle bitset.
type ConnState uint32

const (
	// StateNew is set from accept until a CONNECT (or, client side, a
	// CONNACK) has been handled.
	StateNew ConnState = 1 << iota
	// StateActive means the handshake completed and packets flow.
	StateActive
	// StateDisconnectWait means a DISCONNECT was seen or sent; the
	// connection lingers until the close-wait timer expires so the peer
	// can drain.
	StateDisconnectWait
	// StateClosed means the socket is gone.
	StateClosed
)

// readChunkSize bounds one read pass.
const readChunkSize = 4096

// Conn is one MQTT connection, broker or client side. All fields are
// guarded by mu; the collection takes mu before invoking any handler,
// so handlers may mutate freely.
type Conn struct {
	mu sync.Mutex

	transport net.Conn

	readBuf []byte
	// sendChunks are fully assembled packets awaiting transmission, in
	// order. The drain loop writes whole chunks so a slow peer never
	// interleaves two packets.
	sendChunks [][]byte

	// clientID is empty until a CONNECT is accepted; it keys every
	// session storage engine call.
	clientID string
	// version is nil until the handshake packet fixes the wire format.
	version *Version

	subscriptions SubscriptionCollection

	state            ConnState
	disconnectReason ReasonCode
	keepAlive        time.Duration

	lastIn  time.Time
	lastOut time.Time
}

// NewConn wraps an accepted or dialed transport.
func NewConn(transport net.Conn, now time.Time) *Conn {
	return &Conn{
		transport: transport,
		state:     StateNew,
		lastIn:    now,
		lastOut:   now,
	}
}

// Version returns the negotiated protocol version, or ok=false before
// the handshake packet has been handled.
func (c *Conn) Version() (Version, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version == nil {
		return 0, false
	}
	return *c.version, true
}

// ClientID returns the session key bound at CONNECT time.
func (c *Conn) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// State returns the current lifecycle bits.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s ConnState) {
	c.state = s
}

// Subscriptions exposes the connection's filter collection.
func (c *Conn) Subscriptions() *SubscriptionCollection {
	return &c.subscriptions
}

// QueuePacket assembles pkt and appends it to the send queue. The
// version must be known; before the handshake only CONNECT/CONNACK may
// be queued and those pass an explicit version.
func (c *Conn) QueuePacket(pkt Packet, v Version) error {
	buf, err := AppendPacket(nil, pkt, v)
	if err != nil {
		return err
	}
	c.sendChunks = append(c.sendChunks, buf)
	return nil
}

// readPass pulls at most readChunkSize bytes off the transport into the
// read buffer. A read that hits the short read deadline (no bytes
// ready) maps to NotReady; a closed peer maps to EOF.
func (c *Conn) readPass(now time.Time) error {
	if err := c.transport.SetReadDeadline(now.Add(time.Millisecond)); err != nil {
		return rrrerr.Newf(rrrerr.Internal, "mqtt: set read deadline: %v", err)
	}
	chunk := make([]byte, readChunkSize)
	n, err := c.transport.Read(chunk)
	if n > 0 {
		c.readBuf = append(c.readBuf, chunk[:n]...)
		c.lastIn = now
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return rrrerr.New(rrrerr.NotReady, "mqtt: no bytes ready")
		}
		if errors.Is(err, io.EOF) {
			return rrrerr.New(rrrerr.EOF, "mqtt: peer closed")
		}
		return rrrerr.Newf(rrrerr.Soft, "mqtt: read: %v", err)
	}
	return nil
}

// parseOne attempts to decode one packet from the head of the read
// buffer. It returns the fixed header too so error paths can consult
// the QoS bits of a packet whose body failed to parse.
func (c *Conn) parseOne() (Packet, FixedHeader, error) {
	h, total, err := DecodeFixedHeader(c.readBuf)
	if err != nil {
		return nil, FixedHeader{}, err
	}

	v := Version311
	if c.version != nil {
		v = *c.version
	} else if h.Type == TypeCONNECT {
		// parseConnect reads the level byte itself.
	} else if h.Type != TypeCONNACK {
		return nil, h, rrrerr.Newf(rrrerr.Soft,
			"mqtt: %s before protocol version is known", h.Type)
	}

	body := c.readBuf[total-h.RemainingLength : total]
	pkt, err := ParsePacket(h, body, v)
	// The buffer advances even on a parse failure: the fixed header told
	// us where this packet ends, and error handling happens above us.
	c.readBuf = c.readBuf[total:]
	return pkt, h, err
}

// drainSend writes up to maxPackets whole chunks. Partial writes block
// until the chunk is fully accepted or the transport errors.
func (c *Conn) drainSend(maxPackets int, now time.Time) (int, error) {
	sent := 0
	for sent < maxPackets && len(c.sendChunks) > 0 {
		chunk := c.sendChunks[0]
		for len(chunk) > 0 {
			n, err := c.transport.Write(chunk)
			chunk = chunk[n:]
			if err != nil {
				return sent, rrrerr.Newf(rrrerr.Soft, "mqtt: write: %v", err)
			}
		}
		c.sendChunks = c.sendChunks[1:]
		c.lastOut = now
		sent++
	}
	return sent, nil
}

// Close tears down the transport once.
func (c *Conn) Close(reason ReasonCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(reason)
}

func (c *Conn) closeLocked(reason ReasonCode) {
	if c.state&StateClosed != 0 {
		return
	}
	c.disconnectReason = reason
	c.setState(StateClosed)
	_ = c.transport.Close()
}
