package mqtt

import (
	"sync"
	"time"

	"github.com/rrrd/rrr/internal/rrrerr"
)

// Config bounds the per-tick work a connection collection performs.
// The iteration counts were load-bearing constants upstream of this
// design; they are configurable here so deployments can tune them.
type Config struct {
	// MaxParsePasses caps read->parse->handle iterations per connection
	// per tick.
	MaxParsePasses int
	// MaxSendDrain caps outbound packets written per connection per tick.
	MaxSendDrain int
	// KeepAliveGrace multiplies the client's keep-alive interval before
	// an idle connection is closed.
	KeepAliveGrace float64
	// CloseWait is how long a DISCONNECT-ed connection lingers before
	// the socket is torn down.
	CloseWait time.Duration
}

// DefaultConfig mirrors the historical tuning.
var DefaultConfig = Config{
	MaxParsePasses: 60,
	MaxSendDrain:   50,
	KeepAliveGrace: 1.5,
	CloseWait:      3 * time.Second,
}

// DeliveryFunc receives every accepted inbound PUBLISH after session
// bookkeeping, so the owning instance can route the payload onward.
type DeliveryFunc func(c *Conn, p *Publish)

// Collection owns a set of connections sharing one session storage
// engine, and drives them from the owning event loop's periodic tick.
type Collection struct {
	mu    sync.Mutex
	conns []*Conn

	engine   Engine
	config   Config
	delivery DeliveryFunc
}

// NewCollection builds a Collection over engine. A zero Config is
// replaced field-wise with DefaultConfig.
func NewCollection(engine Engine, config Config, delivery DeliveryFunc) *Collection {
	if config.MaxParsePasses == 0 {
		config.MaxParsePasses = DefaultConfig.MaxParsePasses
	}
	if config.MaxSendDrain == 0 {
		config.MaxSendDrain = DefaultConfig.MaxSendDrain
	}
	if config.KeepAliveGrace == 0 {
		config.KeepAliveGrace = DefaultConfig.KeepAliveGrace
	}
	if config.CloseWait == 0 {
		config.CloseWait = DefaultConfig.CloseWait
	}
	return &Collection{engine: engine, config: config, delivery: delivery}
}

// Add registers a connection.
func (cc *Collection) Add(c *Conn) {
	cc.mu.Lock()
	cc.conns = append(cc.conns, c)
	cc.mu.Unlock()
}

// Len reports live connections.
func (cc *Collection) Len() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.conns)
}

// Tick runs one maintenance pass over every connection: bounded
// read/parse/handle iterations, a bounded send drain, then
// housekeeping. Soft errors destroy the offending connection only;
// Hard/Internal errors abort the whole pass.
func (cc *Collection) Tick(now time.Time) error {
	cc.mu.Lock()
	conns := make([]*Conn, len(cc.conns))
	copy(conns, cc.conns)
	cc.mu.Unlock()

	var alive []*Conn
	for _, c := range conns {
		err := cc.tickConn(c, now)
		switch {
		case err == nil:
			alive = append(alive, c)
		case rrrerr.Is(err, rrrerr.Soft) || rrrerr.Is(err, rrrerr.EOF):
			c.mu.Lock()
			c.closeLocked(c.disconnectReason)
			c.mu.Unlock()
		default:
			return err
		}
	}

	cc.mu.Lock()
	cc.conns = alive
	cc.mu.Unlock()
	return nil
}

func (cc *Collection) tickConn(c *Conn, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state&StateClosed != 0 {
		return rrrerr.New(rrrerr.EOF, "mqtt: connection already closed")
	}

	for pass := 0; pass < cc.config.MaxParsePasses; pass++ {
		if err := c.readPass(now); err != nil {
			if rrrerr.Is(err, rrrerr.NotReady) {
				break
			}
			return err
		}

		pkt, h, err := c.parseOne()
		if err != nil {
			if rrrerr.Is(err, rrrerr.Incomplete) {
				break
			}
			if handled := cc.handleMalformed(c, h, err); handled {
				continue
			}
			return err
		}

		if err := cc.handlePacket(c, pkt, now); err != nil {
			return err
		}

		// Until the handshake fixes the wire format, reading further
		// packets would guess at their layout.
		if c.version == nil {
			break
		}
	}

	if _, err := c.drainSend(cc.config.MaxSendDrain, now); err != nil {
		return err
	}

	return cc.housekeeping(c, now)
}

// handleMalformed applies the QoS-dependent rule for a PUBLISH whose
// body failed validation: QoS 0 drops the connection silently, QoS>0
// answers with a non-zero reason and keeps the connection. Every other
// packet type's parse failure is fatal for the connection.
func (cc *Collection) handleMalformed(c *Conn, h FixedHeader, parseErr error) bool {
	if h.Type != TypePUBLISH || h.QoS() == 0 || c.version == nil {
		return false
	}
	ackType := TypePUBACK
	if h.QoS() == 2 {
		ackType = TypePUBREC
	}
	// The packet identifier follows the topic string, which we cannot
	// trust in a malformed body; identifier 0 with a malformed-packet
	// reason is the best available answer.
	_ = c.QueuePacket(&Ack{Type: ackType, PacketID: 0, Reason: ReasonMalformedPacket}, *c.version)
	return true
}

func (cc *Collection) housekeeping(c *Conn, now time.Time) error {
	if c.state&StateDisconnectWait != 0 {
		if now.Sub(c.lastIn) > cc.config.CloseWait {
			return rrrerr.New(rrrerr.EOF, "mqtt: close-wait expired")
		}
		return nil
	}
	if c.keepAlive > 0 {
		limit := time.Duration(float64(c.keepAlive) * cc.config.KeepAliveGrace)
		if now.Sub(c.lastIn) > limit {
			c.disconnectReason = ReasonKeepAliveTimeout
			return rrrerr.New(rrrerr.Soft, "mqtt: keep-alive expired")
		}
	}
	if c.clientID != "" {
		result, err := cc.engine.Heartbeat(c.clientID)
		if err != nil {
			return err
		}
		if mapped := cc.mapResult(c, result, false); mapped != nil {
			return mapped
		}
	}
	return nil
}

// mapResult translates an engine Result into a connection effect.
// Deleted outside a DISCONNECT handler is a fatal session-loss
// condition and destroys the connection.
func (cc *Collection) mapResult(c *Conn, r Result, inDisconnect bool) error {
	switch r {
	case ResultOK:
		return nil
	case ResultDeleted:
		if inDisconnect {
			return nil
		}
		c.disconnectReason = ReasonUnspecifiedError
		return rrrerr.New(rrrerr.Soft, "mqtt: session deleted out from under connection")
	case ResultSessionError:
		c.disconnectReason = ReasonUnspecifiedError
		return rrrerr.New(rrrerr.Soft, "mqtt: session error")
	default:
		return rrrerr.New(rrrerr.Internal, "mqtt: session storage internal error")
	}
}

// Publish routes an outbound application message to every connection
// whose subscriptions match topic, recording it with the session engine
// and queueing the wire bytes.
func (cc *Collection) Publish(topic string, payload []byte, qos uint8, nextID func() uint16) error {
	cc.mu.Lock()
	conns := make([]*Conn, len(cc.conns))
	copy(conns, cc.conns)
	cc.mu.Unlock()

	for _, c := range conns {
		c.mu.Lock()
		if c.version == nil || c.state&(StateClosed|StateDisconnectWait) != 0 {
			c.mu.Unlock()
			continue
		}
		matched := false
		granted := uint8(0)
		c.subscriptions.Match(topic, func(_ string, subQoS uint8) bool {
			matched = true
			if subQoS > granted {
				granted = subQoS
			}
			return true
		})
		if !matched {
			c.mu.Unlock()
			continue
		}
		effective := qos
		if granted < effective {
			effective = granted
		}
		p := &Publish{Topic: topic, Payload: payload, QoS: effective}
		if effective > 0 {
			p.PacketID = nextID()
			if _, err := cc.engine.SendPacket(c.clientID, PendingPacket{
				PacketID: p.PacketID, Type: TypePUBLISH, Topic: topic,
				Payload: payload, QoS: effective,
			}); err != nil {
				c.mu.Unlock()
				return err
			}
		}
		err := c.QueuePacket(p, *c.version)
		c.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}
