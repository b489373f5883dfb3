package mqtt

import (
	"github.com/rrrd/rrr/internal/rrrerr"
)

// writer accumulates one packet body before the fixed header is known.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = append(w.buf, byte(v>>8), byte(v)) }
func (w *writer) u32(v uint32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
func (w *writer) varint(v int)      { w.buf = encodeVarint(w.buf, v) }
func (w *writer) bytesN(b []byte)   { w.buf = append(w.buf, b...) }
func (w *writer) binary(b []byte)   { w.u16(uint16(len(b))); w.bytesN(b) }
func (w *writer) str(s string)      { w.binary([]byte(s)) }

// propertyBlock appends the varint-prefixed encoding of props. A zero
// Properties value encodes as a single 0x00 length byte.
func (w *writer) propertyBlock(props Properties) {
	var body writer
	for id, items := range props.byID {
		kind := propKinds[id]
		for _, item := range items {
			body.varint(int(id))
			switch kind {
			case propByte:
				body.u8(uint8(item.Value))
			case propTwoByte:
				body.u16(uint16(item.Value))
			case propFourByte:
				body.u32(uint32(item.Value))
			case propVarint:
				body.varint(int(item.Value))
			case propBinary:
				body.binary(item.Bytes)
			case propString:
				body.binary(item.Bytes)
			case propStringPair:
				body.str(item.UserKey)
				body.str(item.UserValue)
			}
		}
	}
	w.varint(len(body.buf))
	w.bytesN(body.buf)
}

// AppendPacket appends pkt's full wire encoding (fixed header included)
// to dst and returns the extended slice.
func AppendPacket(dst []byte, pkt Packet, v Version) ([]byte, error) {
	var body writer
	flags := uint8(0)

	switch p := pkt.(type) {
	case *Connect:
		body.str("MQTT")
		body.u8(uint8(p.Version))
		var connFlags uint8
		if p.CleanStart {
			connFlags |= 0x02
		}
		if p.WillTopic != "" {
			connFlags |= 0x04 | p.WillQoS<<3
			if p.WillRetain {
				connFlags |= 0x20
			}
		}
		if p.Username != "" {
			connFlags |= 0x80
		}
		if p.Password != nil {
			connFlags |= 0x40
		}
		body.u8(connFlags)
		body.u16(p.KeepAlive)
		if p.Version == Version5 {
			body.propertyBlock(p.Properties)
		}
		body.str(p.ClientID)
		if p.WillTopic != "" {
			if p.Version == Version5 {
				body.propertyBlock(Properties{})
			}
			body.str(p.WillTopic)
			body.binary(p.WillPayload)
		}
		if p.Username != "" {
			body.str(p.Username)
		}
		if p.Password != nil {
			body.binary(p.Password)
		}

	case *Connack:
		var ackFlags uint8
		if p.SessionPresent {
			ackFlags |= 0x01
		}
		body.u8(ackFlags)
		body.u8(uint8(p.Reason))
		if v == Version5 {
			body.propertyBlock(p.Properties)
		}

	case *Publish:
		if p.QoS > 0 {
			flags |= p.QoS << 1
		}
		if p.Dup {
			flags |= 0x08
		}
		if p.Retain {
			flags |= 0x01
		}
		body.str(p.Topic)
		if p.QoS > 0 {
			body.u16(p.PacketID)
		}
		if v == Version5 {
			body.propertyBlock(p.Properties)
		}
		body.bytesN(p.Payload)

	case *Ack:
		if p.Type == TypePUBREL {
			flags = 0x02
		}
		body.u16(p.PacketID)
		if v == Version5 && p.Reason != ReasonSuccess {
			body.u8(uint8(p.Reason))
		}

	case *Subscribe:
		flags = 0x02
		body.u16(p.PacketID)
		if v == Version5 {
			body.propertyBlock(p.Properties)
		}
		for _, f := range p.Filters {
			body.str(f.Filter)
			body.u8(f.QoS)
		}

	case *Suback:
		body.u16(p.PacketID)
		if v == Version5 {
			body.propertyBlock(Properties{})
		}
		for _, r := range p.Reasons {
			body.u8(uint8(r))
		}

	case *Unsubscribe:
		flags = 0x02
		body.u16(p.PacketID)
		if v == Version5 {
			body.propertyBlock(Properties{})
		}
		for _, f := range p.Filters {
			body.str(f)
		}

	case *Unsuback:
		body.u16(p.PacketID)
		if v == Version5 {
			body.propertyBlock(Properties{})
			for _, r := range p.Reasons {
				body.u8(uint8(r))
			}
		}

	case *Pingreq, *Pingresp:
		// no body

	case *Disconnect:
		if v == Version5 && (p.Reason != ReasonSuccess || len(p.Properties.byID) > 0) {
			body.u8(uint8(p.Reason))
			body.propertyBlock(p.Properties)
		}

	case *Auth:
		body.u8(uint8(p.Reason))
		body.propertyBlock(p.Properties)

	default:
		return nil, rrrerr.Newf(rrrerr.Internal, "mqtt: cannot assemble %T", pkt)
	}

	dst = EncodeFixedHeader(dst, pkt.PacketType(), flags, len(body.buf))
	return append(dst, body.buf...), nil
}
