package mqtt

import (
	"time"

	"github.com/rrrd/rrr/internal/rrrerr"
)

// handlePacket dispatches one decoded packet. The connection lock is
// held by the caller.
func (cc *Collection) handlePacket(c *Conn, pkt Packet, now time.Time) error {
	switch p := pkt.(type) {
	case *Connect:
		return cc.handleConnect(c, p)
	case *Connack:
		return cc.handleConnack(c, p)
	case *Publish:
		return cc.handlePublish(c, p)
	case *Ack:
		switch p.Type {
		case TypePUBACK, TypePUBCOMP:
			return cc.handlePubackPubcomp(c, p)
		case TypePUBREC:
			return cc.handlePubrec(c, p)
		case TypePUBREL:
			return cc.handlePubrel(c, p)
		}
		return rrrerr.Newf(rrrerr.Internal, "mqtt: ack dispatch for %s", p.Type)
	case *Subscribe:
		return cc.handleSubscribe(c, p)
	case *Unsubscribe:
		return cc.handleUnsubscribe(c, p)
	case *Pingreq:
		return c.QueuePacket(&Pingresp{}, *c.version)
	case *Pingresp:
		return nil
	case *Disconnect:
		return cc.handleDisconnect(c, p)
	case *Suback, *Unsuback:
		// Client-side acknowledgements carry no broker state here and
		// are not inspected further.
		return nil
	case *Auth:
		// Extended re-authentication is not negotiated; a peer sending
		// AUTH unprompted is in protocol error.
		c.disconnectReason = ReasonProtocolError
		return rrrerr.New(rrrerr.Soft, "mqtt: unsolicited AUTH")
	default:
		return rrrerr.Newf(rrrerr.Internal, "mqtt: no handler for %T", pkt)
	}
}

func (cc *Collection) handleConnect(c *Conn, p *Connect) error {
	if c.version != nil {
		c.disconnectReason = ReasonProtocolError
		return rrrerr.New(rrrerr.Soft, "mqtt: second CONNECT on one connection")
	}
	v := p.Version
	c.version = &v
	c.clientID = p.ClientID
	c.keepAlive = time.Duration(p.KeepAlive) * time.Second
	c.setState(StateActive)

	result, err := cc.engine.GetSession(p.ClientID, p.CleanStart)
	if err != nil {
		return err
	}
	if mapped := cc.mapResult(c, result, false); mapped != nil {
		return mapped
	}

	if p.WillTopic != "" {
		cc.engine.SetWill(p.ClientID, PendingPacket{
			Type: TypePUBLISH, Topic: p.WillTopic,
			Payload: p.WillPayload, QoS: p.WillQoS,
		})
	}

	sessionPresent := !p.CleanStart
	if err := c.QueuePacket(&Connack{SessionPresent: sessionPresent, Reason: ReasonSuccess}, v); err != nil {
		return err
	}

	// A reconnect with clean_start=false re-delivers anything queued for
	// the client while it was away.
	if !p.CleanStart {
		_, err := cc.engine.IterateAndClearLocalDelivery(p.ClientID, func(pp PendingPacket) {
			_ = c.QueuePacket(&Publish{
				Topic: pp.Topic, Payload: pp.Payload,
				PacketID: pp.PacketID, QoS: pp.QoS, Dup: true,
			}, v)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (cc *Collection) handleConnack(c *Conn, p *Connack) error {
	if c.version == nil {
		// A CONNACK on a connection whose version was never set (Client
		// sets it before queueing CONNECT) falls back to 3.1.1.
		v := Version311
		c.version = &v
	}
	if p.Reason != ReasonSuccess {
		c.disconnectReason = p.Reason
		return rrrerr.Newf(rrrerr.Soft, "mqtt: CONNACK refused with reason 0x%02x", uint8(p.Reason))
	}
	c.setState(StateActive)
	return nil
}

func (cc *Collection) handlePublish(c *Conn, p *Publish) error {
	result, err := cc.engine.ReceivePacket(c.clientID, PendingPacket{
		PacketID: p.PacketID, Type: TypePUBLISH,
		Topic: p.Topic, Payload: p.Payload, QoS: p.QoS,
	})
	if err != nil {
		return err
	}
	if mapped := cc.mapResult(c, result, false); mapped != nil {
		return mapped
	}

	if cc.delivery != nil {
		cc.delivery(c, p)
	}

	switch p.QoS {
	case 1:
		return c.QueuePacket(&Ack{Type: TypePUBACK, PacketID: p.PacketID, Reason: ReasonSuccess}, *c.version)
	case 2:
		return c.QueuePacket(&Ack{Type: TypePUBREC, PacketID: p.PacketID, Reason: ReasonSuccess}, *c.version)
	}
	return nil
}

// handlePubackPubcomp ends a QoS 1 (PUBACK) or QoS 2 (PUBCOMP)
// handshake. An unknown identifier is tolerated: a stale ACK from a
// pre-reconnect exchange must not kill the connection.
func (cc *Collection) handlePubackPubcomp(c *Conn, p *Ack) error {
	result, err := cc.engine.AckSendQueue(c.clientID, p.PacketID)
	if err != nil {
		return err
	}
	if result == ResultSessionError {
		// Surfaced to the peer on v5, ignored on 3.1.1.
		return nil
	}
	return cc.mapResult(c, result, false)
}

func (cc *Collection) handlePubrec(c *Conn, p *Ack) error {
	result, err := cc.engine.ReceivePacket(c.clientID, PendingPacket{PacketID: p.PacketID, Type: TypePUBREC})
	if err != nil {
		return err
	}
	if mapped := cc.mapResult(c, result, false); mapped != nil {
		return mapped
	}

	if p.Reason >= 0x80 {
		if *c.version == Version5 {
			return c.QueuePacket(&Ack{Type: TypePUBREL, PacketID: p.PacketID, Reason: p.Reason}, *c.version)
		}
		c.disconnectReason = p.Reason
		return rrrerr.New(rrrerr.Soft, "mqtt: PUBREC error under protocol 3.1.1")
	}
	return c.QueuePacket(&Ack{Type: TypePUBREL, PacketID: p.PacketID, Reason: ReasonSuccess}, *c.version)
}

func (cc *Collection) handlePubrel(c *Conn, p *Ack) error {
	result, err := cc.engine.ReceivePacket(c.clientID, PendingPacket{PacketID: p.PacketID, Type: TypePUBREL})
	if err != nil {
		return err
	}
	if mapped := cc.mapResult(c, result, false); mapped != nil {
		return mapped
	}
	return c.QueuePacket(&Ack{Type: TypePUBCOMP, PacketID: p.PacketID, Reason: ReasonSuccess}, *c.version)
}

func (cc *Collection) handleSubscribe(c *Conn, p *Subscribe) error {
	reasons := make([]ReasonCode, 0, len(p.Filters))
	for _, f := range p.Filters {
		if err := c.subscriptions.Add(f.Filter, f.QoS); err != nil {
			reasons = append(reasons, ReasonMalformedPacket)
			continue
		}
		reasons = append(reasons, ReasonCode(f.QoS))
	}
	return c.QueuePacket(&Suback{PacketID: p.PacketID, Reasons: reasons}, *c.version)
}

func (cc *Collection) handleUnsubscribe(c *Conn, p *Unsubscribe) error {
	reasons := make([]ReasonCode, 0, len(p.Filters))
	for _, f := range p.Filters {
		if c.subscriptions.Remove(f) {
			reasons = append(reasons, ReasonSuccess)
		} else {
			reasons = append(reasons, 0x11) // no subscription existed
		}
	}
	return c.QueuePacket(&Unsuback{PacketID: p.PacketID, Reasons: reasons}, *c.version)
}

func (cc *Collection) handleDisconnect(c *Conn, p *Disconnect) error {
	c.setState(StateDisconnectWait)
	c.disconnectReason = p.Reason

	result, err := cc.engine.NotifyDisconnect(c.clientID)
	if err != nil {
		return err
	}
	return cc.mapResult(c, result, true)
}
