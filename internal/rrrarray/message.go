package rrrarray

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/rrrd/rrr/internal/rrrerr"
	"github.com/rrrd/rrr/internal/rrrtype"
)

// Class discriminates a Message's type field.
type Class uint8

const (
	ClassMSG Class = 1
	ClassTAG Class = 2
)

const (
	timestampTag = "timestamp"
	topicTag     = "topic"
)

// headerSize is the fixed portion preceding the topic and payload bytes:
// u32 total_size, u8 class, u64 timestamp, u16 topic_length, u32
// data_length, u32 header_crc, u32 payload_crc.
const headerSize = 4 + 1 + 8 + 2 + 4 + 4 + 4
const headerCRCOffset = 19 // offset of header_crc field, also its coverage length

// MaxTopicLength is the widest topic string a message may carry.
const MaxTopicLength = 65535

// Message is an Array plus its envelope fields: a
// monotonic timestamp, a class, an optional topic, and the derived
// total_size/data_length/checksum fields computed on Encode.
type Message struct {
	Timestamp uint64
	Class     Class
	Topic     string
	Array     *Array
}

// New returns a Message wrapping the given array.
func New(class Class, timestamp uint64, topic string, a *Array) *Message {
	return &Message{Timestamp: timestamp, Class: class, Topic: topic, Array: a}
}

// EncodeMessage serializes m into its wire form: fixed header, topic
// bytes, then the encoded array (the "payload"). header_crc covers every
// header byte before itself; payload_crc covers topic bytes + payload
// bytes, so that flipping any payload byte is caught without needing to
// re-walk the array template.
func EncodeMessage(m *Message) ([]byte, error) {
	if len(m.Topic) > MaxTopicLength {
		return nil, rrrerr.Newf(rrrerr.Soft, "MALFORMED: topic length %d exceeds %d", len(m.Topic), MaxTopicLength)
	}

	var payload []byte
	payload = Encode(payload, m.Array)

	totalSize := headerSize + len(m.Topic) + len(payload)
	buf := make([]byte, totalSize)

	binary.BigEndian.PutUint32(buf[0:4], uint32(totalSize))
	buf[4] = byte(m.Class)
	binary.BigEndian.PutUint64(buf[5:13], m.Timestamp)
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(m.Topic)))
	binary.BigEndian.PutUint32(buf[15:19], uint32(len(payload)))

	headerCRC := crc32.ChecksumIEEE(buf[0:headerCRCOffset])
	binary.BigEndian.PutUint32(buf[19:23], headerCRC)

	body := buf[headerSize:]
	copy(body, m.Topic)
	copy(body[len(m.Topic):], payload)

	payloadCRC := crc32.ChecksumIEEE(body)
	binary.BigEndian.PutUint32(buf[23:27], payloadCRC)

	return buf, nil
}

// EncodeMessageTo writes m's wire form into b without an intermediate
// whole-message allocation, for callers that recycle buffers.
func EncodeMessageTo(m *Message, b *bytes.Buffer) error {
	if len(m.Topic) > MaxTopicLength {
		return rrrerr.Newf(rrrerr.Soft, "MALFORMED: topic length %d exceeds %d", len(m.Topic), MaxTopicLength)
	}

	var payload []byte
	payload = Encode(payload, m.Array)

	totalSize := headerSize + len(m.Topic) + len(payload)

	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(totalSize))
	header[4] = byte(m.Class)
	binary.BigEndian.PutUint64(header[5:13], m.Timestamp)
	binary.BigEndian.PutUint16(header[13:15], uint16(len(m.Topic)))
	binary.BigEndian.PutUint32(header[15:19], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[19:23], crc32.ChecksumIEEE(header[0:headerCRCOffset]))

	payloadCRC := crc32.Update(0, crc32.IEEETable, []byte(m.Topic))
	payloadCRC = crc32.Update(payloadCRC, crc32.IEEETable, payload)
	binary.BigEndian.PutUint32(header[23:27], payloadCRC)

	b.Grow(totalSize)
	b.Write(header[:])
	b.WriteString(m.Topic)
	b.Write(payload)
	return nil
}

// DecodeMessage parses a full wire message: fixed header, topic, and
// defs-driven array payload. Both checksums are verified before any
// value is returned to the caller.
func DecodeMessage(buf []byte, defs []Definition, opts rrrtype.DecodeOptions) (*Message, int, error) {
	if len(buf) < headerSize {
		return nil, 0, rrrerr.New(rrrerr.Incomplete, "short message header")
	}

	totalSize := int(binary.BigEndian.Uint32(buf[0:4]))
	class := Class(buf[4])
	timestamp := binary.BigEndian.Uint64(buf[5:13])
	topicLength := int(binary.BigEndian.Uint16(buf[13:15]))
	dataLength := int(binary.BigEndian.Uint32(buf[15:19]))
	headerCRC := binary.BigEndian.Uint32(buf[19:23])
	payloadCRC := binary.BigEndian.Uint32(buf[23:27])

	if class != ClassMSG && class != ClassTAG {
		return nil, 0, rrrerr.Newf(rrrerr.Soft, "MALFORMED: unknown class %d", buf[4])
	}
	if headerSize+topicLength+dataLength != totalSize {
		return nil, 0, rrrerr.New(rrrerr.Soft, "MALFORMED: topic_length + value_bytes + header != total_size")
	}
	if len(buf) < totalSize {
		return nil, 0, rrrerr.New(rrrerr.Incomplete, "short message body")
	}

	gotHeaderCRC := crc32.ChecksumIEEE(buf[0:headerCRCOffset])
	if gotHeaderCRC != headerCRC {
		return nil, 0, rrrerr.New(rrrerr.Soft, "MALFORMED: header checksum mismatch")
	}

	body := buf[headerSize:totalSize]
	gotPayloadCRC := crc32.ChecksumIEEE(body)
	if gotPayloadCRC != payloadCRC {
		return nil, 0, rrrerr.New(rrrerr.Soft, "MALFORMED: payload checksum mismatch")
	}

	topic := string(body[:topicLength])
	payload := body[topicLength:]

	a, _, err := Decode(payload, defs, opts)
	if err != nil {
		return nil, 0, err
	}

	return &Message{Timestamp: timestamp, Class: class, Topic: topic, Array: a}, totalSize, nil
}

// ArrayFromMessage produces a standalone Array carrying m's timestamp and
// topic as synthetic leading elements (tagged "timestamp" and "topic"),
// followed by m's own values. This is MessageFromArray's inverse.
func ArrayFromMessage(m *Message) *Array {
	out := NewArray()
	out.Append(rrrtype.NewIntegerValue(rrrtype.KindBE, 8, timestampTag, m.Timestamp))
	out.Append(rrrtype.NewBlobValue(topicTag, []byte(m.Topic)))
	for _, v := range m.Array.Values() {
		out.Append(v)
	}
	return out
}

// MessageFromArray is ArrayFromMessage's inverse: it expects a to hold
// the synthetic "timestamp"/"topic" elements ArrayFromMessage produces
// and rebuilds a Message from them plus the remaining values.
func MessageFromArray(class Class, a *Array) (*Message, error) {
	ts := a.ByTag(timestampTag)
	topic := a.ByTag(topicTag)
	if ts == nil || topic == nil {
		return nil, rrrerr.New(rrrerr.Soft, "MALFORMED: array missing timestamp/topic fields")
	}

	rest := NewArray()
	for _, v := range a.Values() {
		if v.Tag == timestampTag || v.Tag == topicTag {
			continue
		}
		rest.Append(v)
	}

	return &Message{
		Timestamp: ts.Uint64At(0),
		Class:     class,
		Topic:     string(topic.Data),
		Array:     rest,
	}, nil
}
