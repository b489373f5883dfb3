package mqtt

import (
	"github.com/rrrd/rrr/internal/rrrerr"
)

// Packet is any decoded control packet.
type Packet interface {
	PacketType() Type
}

// Connect is a decoded CONNECT packet.
type Connect struct {
	Version     Version
	ClientID    string
	CleanStart  bool
	KeepAlive   uint16
	Username    string
	Password    []byte
	WillTopic   string
	WillPayload []byte
	WillQoS     uint8
	WillRetain  bool
	Properties  Properties
}

func (*Connect) PacketType() Type { return TypeCONNECT }

// Connack is a decoded CONNACK packet.
type Connack struct {
	SessionPresent bool
	Reason         ReasonCode
	Properties     Properties
}

func (*Connack) PacketType() Type { return TypeCONNACK }

// Publish is a decoded PUBLISH packet.
type Publish struct {
	Topic      string
	Payload    []byte
	PacketID   uint16
	QoS        uint8
	Dup        bool
	Retain     bool
	Properties Properties
}

func (*Publish) PacketType() Type { return TypePUBLISH }

// Ack covers PUBACK, PUBREC, PUBREL and PUBCOMP, which share a layout:
// packet identifier plus (v5 only) a reason code and properties.
type Ack struct {
	Type     Type
	PacketID uint16
	Reason   ReasonCode
}

func (a *Ack) PacketType() Type { return a.Type }

// SubscribeFilter is one topic filter requested by a SUBSCRIBE.
type SubscribeFilter struct {
	Filter string
	QoS    uint8
}

// Subscribe is a decoded SUBSCRIBE packet.
type Subscribe struct {
	PacketID   uint16
	Filters    []SubscribeFilter
	Properties Properties
}

func (*Subscribe) PacketType() Type { return TypeSUBSCRIBE }

// Suback is a decoded SUBACK packet.
type Suback struct {
	PacketID uint16
	Reasons  []ReasonCode
}

func (*Suback) PacketType() Type { return TypeSUBACK }

// Unsubscribe is a decoded UNSUBSCRIBE packet.
type Unsubscribe struct {
	PacketID uint16
	Filters  []string
}

func (*Unsubscribe) PacketType() Type { return TypeUNSUBSCRIBE }

// Unsuback is a decoded UNSUBACK packet.
type Unsuback struct {
	PacketID uint16
	Reasons  []ReasonCode
}

func (*Unsuback) PacketType() Type { return TypeUNSUBACK }

// Pingreq is a decoded PINGREQ packet.
type Pingreq struct{}

func (*Pingreq) PacketType() Type { return TypePINGREQ }

// Pingresp is a decoded PINGRESP packet.
type Pingresp struct{}

func (*Pingresp) PacketType() Type { return TypePINGRESP }

// Disconnect is a decoded DISCONNECT packet.
type Disconnect struct {
	Reason     ReasonCode
	Properties Properties
}

func (*Disconnect) PacketType() Type { return TypeDISCONNECT }

// Auth is a decoded v5 AUTH packet.
type Auth struct {
	Reason     ReasonCode
	Properties Properties
}

func (*Auth) PacketType() Type { return TypeAUTH }

// reader is a bounds-checked cursor over one packet body. Every decode
// helper fails with a Soft error once the body runs out; a packet that
// claims a remaining-length it doesn't fill is malformed, never
// Incomplete (the fixed-header decoder already waited for the full
// body).
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) u8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, rrrerr.New(rrrerr.Soft, "mqtt: truncated byte")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, rrrerr.New(rrrerr.Soft, "mqtt: truncated two-byte integer")
	}
	v := uint16(r.buf[r.pos])<<8 | uint16(r.buf[r.pos+1])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, rrrerr.New(rrrerr.Soft, "mqtt: truncated four-byte integer")
	}
	v := uint32(r.buf[r.pos])<<24 | uint32(r.buf[r.pos+1])<<16 |
		uint32(r.buf[r.pos+2])<<8 | uint32(r.buf[r.pos+3])
	r.pos += 4
	return v, nil
}

func (r *reader) varint() (int, error) {
	v, n, err := decodeVarint(r.buf[r.pos:])
	if err != nil {
		if rrrerr.Is(err, rrrerr.Incomplete) {
			return 0, rrrerr.New(rrrerr.Soft, "mqtt: truncated variable-length integer")
		}
		return 0, err
	}
	r.pos += n
	return v, nil
}

func (r *reader) bytesN(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, rrrerr.New(rrrerr.Soft, "mqtt: truncated binary field")
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) binary() ([]byte, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	return r.bytesN(int(n))
}

func (r *reader) str() (string, error) {
	b, err := r.binary()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// propKind describes the wire encoding of one property identifier.
type propKind int

const (
	propByte propKind = iota
	propTwoByte
	propFourByte
	propVarint
	propBinary
	propString
	propStringPair
)

var propKinds = map[PropertyID]propKind{
	PropPayloadFormatIndicator:     propByte,
	PropMessageExpiryInterval:      propFourByte,
	PropContentType:                propString,
	PropResponseTopic:              propString,
	PropCorrelationData:            propBinary,
	PropSubscriptionIdentifier:     propVarint,
	PropSessionExpiryInterval:      propFourByte,
	PropReceiveMaximum:             propTwoByte,
	PropMaximumQoS:                 propByte,
	PropRequestResponseInformation: propByte,
	PropUserProperty:               propStringPair,
}

// parsePropertyBlock reads the varint-prefixed property block at the
// cursor and validates it through ParseProperties.
func (r *reader) parsePropertyBlock() (Properties, ReasonCode, error) {
	length, err := r.varint()
	if err != nil {
		return Properties{}, ReasonMalformedPacket, err
	}
	block, err := r.bytesN(length)
	if err != nil {
		return Properties{}, ReasonMalformedPacket, err
	}

	pr := &reader{buf: block}
	var items []Property
	for pr.remaining() > 0 {
		id, err := pr.varint()
		if err != nil {
			return Properties{}, ReasonMalformedPacket, err
		}
		kind, ok := propKinds[PropertyID(id)]
		if !ok {
			return Properties{}, ReasonMalformedPacket,
				rrrerr.Newf(rrrerr.Soft, "mqtt: unknown property identifier 0x%02x", id)
		}
		item := Property{ID: PropertyID(id)}
		switch kind {
		case propByte:
			v, err := pr.u8()
			if err != nil {
				return Properties{}, ReasonMalformedPacket, err
			}
			item.Value = uint64(v)
		case propTwoByte:
			v, err := pr.u16()
			if err != nil {
				return Properties{}, ReasonMalformedPacket, err
			}
			item.Value = uint64(v)
		case propFourByte:
			v, err := pr.u32()
			if err != nil {
				return Properties{}, ReasonMalformedPacket, err
			}
			item.Value = uint64(v)
		case propVarint:
			v, err := pr.varint()
			if err != nil {
				return Properties{}, ReasonMalformedPacket, err
			}
			item.Value = uint64(v)
		case propBinary:
			b, err := pr.binary()
			if err != nil {
				return Properties{}, ReasonMalformedPacket, err
			}
			item.Bytes = b
		case propString:
			s, err := pr.str()
			if err != nil {
				return Properties{}, ReasonMalformedPacket, err
			}
			item.Bytes = []byte(s)
		case propStringPair:
			k, err := pr.str()
			if err != nil {
				return Properties{}, ReasonMalformedPacket, err
			}
			v, err := pr.str()
			if err != nil {
				return Properties{}, ReasonMalformedPacket, err
			}
			item.UserKey, item.UserValue = k, v
		}
		items = append(items, item)
	}

	return ParseProperties(items)
}

// ParsePacket decodes the body of one packet whose fixed header has
// already been read. body must hold exactly RemainingLength bytes.
func ParsePacket(h FixedHeader, body []byte, v Version) (Packet, error) {
	r := &reader{buf: body}
	switch h.Type {
	case TypeCONNECT:
		return parseConnect(r)
	case TypeCONNACK:
		return parseConnack(r, v)
	case TypePUBLISH:
		return parsePublish(r, h, v)
	case TypePUBACK, TypePUBREC, TypePUBREL, TypePUBCOMP:
		return parseAck(r, h.Type, v)
	case TypeSUBSCRIBE:
		return parseSubscribe(r, v)
	case TypeSUBACK:
		return parseSuback(r, v)
	case TypeUNSUBSCRIBE:
		return parseUnsubscribe(r, v)
	case TypeUNSUBACK:
		return parseUnsuback(r, v)
	case TypePINGREQ:
		return &Pingreq{}, nil
	case TypePINGRESP:
		return &Pingresp{}, nil
	case TypeDISCONNECT:
		return parseDisconnect(r, v)
	case TypeAUTH:
		return parseAuth(r, v)
	default:
		return nil, rrrerr.Newf(rrrerr.Soft, "mqtt: reserved packet type %d", h.Type)
	}
}

func parseConnect(r *reader) (*Connect, error) {
	protoName, err := r.str()
	if err != nil {
		return nil, err
	}
	if protoName != "MQTT" && protoName != "MQIsdp" {
		return nil, rrrerr.Newf(rrrerr.Soft, "mqtt: unknown protocol name %q", protoName)
	}
	level, err := r.u8()
	if err != nil {
		return nil, err
	}
	version := Version(level)
	if version != Version311 && version != Version5 {
		return nil, rrrerr.Newf(rrrerr.Soft, "mqtt: unsupported protocol level %d", level)
	}

	flags, err := r.u8()
	if err != nil {
		return nil, err
	}
	if flags&0x01 != 0 {
		return nil, rrrerr.New(rrrerr.Soft, "mqtt: CONNECT reserved flag set")
	}
	keepAlive, err := r.u16()
	if err != nil {
		return nil, err
	}

	c := &Connect{
		Version:    version,
		CleanStart: flags&0x02 != 0,
		KeepAlive:  keepAlive,
		WillQoS:    (flags >> 3) & 0x3,
		WillRetain: flags&0x20 != 0,
	}

	if version == Version5 {
		props, _, err := r.parsePropertyBlock()
		if err != nil {
			return nil, err
		}
		c.Properties = props
	}

	c.ClientID, err = r.str()
	if err != nil {
		return nil, err
	}
	if flags&0x04 != 0 { // will flag
		if version == Version5 {
			if _, _, err := r.parsePropertyBlock(); err != nil {
				return nil, err
			}
		}
		if c.WillTopic, err = r.str(); err != nil {
			return nil, err
		}
		if c.WillPayload, err = r.binary(); err != nil {
			return nil, err
		}
	} else if c.WillQoS != 0 || c.WillRetain {
		return nil, rrrerr.New(rrrerr.Soft, "mqtt: will QoS/retain without will flag")
	}
	if flags&0x80 != 0 { // username
		if c.Username, err = r.str(); err != nil {
			return nil, err
		}
	}
	if flags&0x40 != 0 { // password
		if c.Password, err = r.binary(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func parseConnack(r *reader, v Version) (*Connack, error) {
	ackFlags, err := r.u8()
	if err != nil {
		return nil, err
	}
	reason, err := r.u8()
	if err != nil {
		return nil, err
	}
	c := &Connack{SessionPresent: ackFlags&0x01 != 0, Reason: ReasonCode(reason)}
	if v == Version5 && r.remaining() > 0 {
		props, _, err := r.parsePropertyBlock()
		if err != nil {
			return nil, err
		}
		c.Properties = props
	}
	return c, nil
}

func parsePublish(r *reader, h FixedHeader, v Version) (*Publish, error) {
	p := &Publish{QoS: h.QoS(), Dup: h.Dup(), Retain: h.Retain()}
	if p.QoS > 2 {
		return nil, rrrerr.New(rrrerr.Soft, "mqtt: PUBLISH QoS 3 is invalid")
	}
	var err error
	if p.Topic, err = r.str(); err != nil {
		return nil, err
	}
	if p.QoS > 0 {
		if p.PacketID, err = r.u16(); err != nil {
			return nil, err
		}
		if p.PacketID == 0 {
			return nil, rrrerr.New(rrrerr.Soft, "mqtt: PUBLISH packet identifier 0")
		}
	}
	if v == Version5 {
		props, _, err := r.parsePropertyBlock()
		if err != nil {
			return nil, err
		}
		p.Properties = props
	}
	p.Payload = r.buf[r.pos:]
	return p, nil
}

func parseAck(r *reader, t Type, v Version) (*Ack, error) {
	id, err := r.u16()
	if err != nil {
		return nil, err
	}
	a := &Ack{Type: t, PacketID: id, Reason: ReasonSuccess}
	if v == Version5 && r.remaining() > 0 {
		reason, err := r.u8()
		if err != nil {
			return nil, err
		}
		a.Reason = ReasonCode(reason)
		if r.remaining() > 0 {
			if _, _, err := r.parsePropertyBlock(); err != nil {
				return nil, err
			}
		}
	}
	return a, nil
}

func parseSubscribe(r *reader, v Version) (*Subscribe, error) {
	id, err := r.u16()
	if err != nil {
		return nil, err
	}
	s := &Subscribe{PacketID: id}
	if v == Version5 {
		props, _, err := r.parsePropertyBlock()
		if err != nil {
			return nil, err
		}
		s.Properties = props
	}
	for r.remaining() > 0 {
		filter, err := r.str()
		if err != nil {
			return nil, err
		}
		opts, err := r.u8()
		if err != nil {
			return nil, err
		}
		if err := ValidateFilter(filter); err != nil {
			return nil, err
		}
		s.Filters = append(s.Filters, SubscribeFilter{Filter: filter, QoS: opts & 0x3})
	}
	if len(s.Filters) == 0 {
		return nil, rrrerr.New(rrrerr.Soft, "mqtt: SUBSCRIBE with no filters")
	}
	return s, nil
}

func parseSuback(r *reader, v Version) (*Suback, error) {
	id, err := r.u16()
	if err != nil {
		return nil, err
	}
	s := &Suback{PacketID: id}
	if v == Version5 {
		if _, _, err := r.parsePropertyBlock(); err != nil {
			return nil, err
		}
	}
	for r.remaining() > 0 {
		b, err := r.u8()
		if err != nil {
			return nil, err
		}
		s.Reasons = append(s.Reasons, ReasonCode(b))
	}
	return s, nil
}

func parseUnsubscribe(r *reader, v Version) (*Unsubscribe, error) {
	id, err := r.u16()
	if err != nil {
		return nil, err
	}
	u := &Unsubscribe{PacketID: id}
	if v == Version5 {
		if _, _, err := r.parsePropertyBlock(); err != nil {
			return nil, err
		}
	}
	for r.remaining() > 0 {
		filter, err := r.str()
		if err != nil {
			return nil, err
		}
		u.Filters = append(u.Filters, filter)
	}
	if len(u.Filters) == 0 {
		return nil, rrrerr.New(rrrerr.Soft, "mqtt: UNSUBSCRIBE with no filters")
	}
	return u, nil
}

func parseUnsuback(r *reader, v Version) (*Unsuback, error) {
	id, err := r.u16()
	if err != nil {
		return nil, err
	}
	u := &Unsuback{PacketID: id}
	if v == Version5 {
		if _, _, err := r.parsePropertyBlock(); err != nil {
			return nil, err
		}
		for r.remaining() > 0 {
			b, err := r.u8()
			if err != nil {
				return nil, err
			}
			u.Reasons = append(u.Reasons, ReasonCode(b))
		}
	}
	return u, nil
}

func parseDisconnect(r *reader, v Version) (*Disconnect, error) {
	d := &Disconnect{Reason: ReasonSuccess}
	if v == Version5 && r.remaining() > 0 {
		reason, err := r.u8()
		if err != nil {
			return nil, err
		}
		d.Reason = ReasonCode(reason)
		if r.remaining() > 0 {
			props, _, err := r.parsePropertyBlock()
			if err != nil {
				return nil, err
			}
			d.Properties = props
		}
	}
	return d, nil
}

func parseAuth(r *reader, v Version) (*Auth, error) {
	if v != Version5 {
		return nil, rrrerr.New(rrrerr.Soft, "mqtt: AUTH requires protocol version 5")
	}
	a := &Auth{Reason: ReasonSuccess}
	if r.remaining() > 0 {
		reason, err := r.u8()
		if err != nil {
			return nil, err
		}
		a.Reason = ReasonCode(reason)
		if r.remaining() > 0 {
			props, _, err := r.parsePropertyBlock()
			if err != nil {
				return nil, err
			}
			a.Properties = props
		}
	}
	return a, nil
}
