package rrrtype

import (
	"encoding/binary"

	"github.com/rrrd/rrr/internal/rrrerr"
)

// DecodeOptions bounds how large a single decoded value's total_length is
// allowed to be; zero means "use MaxTotalLength". Exceeding it is the
// TOO_BIG failure mode.
type DecodeOptions struct {
	MaxTotalLength int
}

func (o DecodeOptions) maxTotalLength() int {
	if o.MaxTotalLength <= 0 {
		return MaxTotalLength
	}
	return o.MaxTotalLength
}

// DecodeValue reads one packed value (9-byte header + total_length bytes
// of payload) from buf starting at offset 0. It returns the value, the
// number of bytes consumed, and an error. Errors are always *rrrerr.Error
// with Kind Incomplete (need more bytes), Soft (MALFORMED: unknown kind or
// impossible length), or Hard (TOO_BIG: decoded total exceeds the
// configured maximum).
func DecodeValue(buf []byte, width int, elements int, opts DecodeOptions) (*Value, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, rrrerr.New(rrrerr.Incomplete, "short header")
	}

	kind := Kind(buf[0])
	totalLength := int(binary.BigEndian.Uint32(buf[1:5]))
	wireElements := int(binary.BigEndian.Uint32(buf[5:9]))

	if !kind.Valid() {
		return nil, 0, rrrerr.Newf(rrrerr.Soft, "MALFORMED: unknown type tag %d", buf[0])
	}
	if wireElements == 0 {
		return nil, 0, rrrerr.New(rrrerr.Soft, "MALFORMED: elements = 0")
	}
	if totalLength > MaxTotalLength {
		return nil, 0, rrrerr.Newf(rrrerr.Soft, "MALFORMED: total_length %d exceeds 2^24", totalLength)
	}
	if totalLength > opts.maxTotalLength() {
		return nil, 0, rrrerr.Newf(rrrerr.Hard, "TOO_BIG: total_length %d exceeds maximum %d", totalLength, opts.maxTotalLength())
	}

	if kind.IsInteger() {
		if width <= 0 || width > MaxIntegerWidth {
			return nil, 0, rrrerr.Newf(rrrerr.Soft, "MALFORMED: impossible integer width %d", width)
		}
		if wireElements*width != totalLength {
			return nil, 0, rrrerr.New(rrrerr.Soft, "MALFORMED: total_length does not match width*elements")
		}
	} else {
		if wireElements != 1 && width == 0 {
			// blob arrays are modelled as one Value per blob by the array
			// layer; a single packed value always carries exactly one blob.
		}
	}

	if len(buf) < HeaderSize+totalLength {
		return nil, 0, rrrerr.New(rrrerr.Incomplete, "short payload")
	}

	data := make([]byte, totalLength)
	copy(data, buf[HeaderSize:HeaderSize+totalLength])

	v := &Value{
		Kind:     kind,
		Width:    width,
		Elements: wireElements,
		Data:     data,
	}
	if kind == KindBlob {
		v.Width = totalLength
		v.Elements = 1
	}
	return v, HeaderSize + totalLength, nil
}

// EncodeValue appends v's packed wire representation (header, then Data
// as stored) to dst and returns the result.
func EncodeValue(dst []byte, v *Value) []byte {
	var header [HeaderSize]byte
	header[0] = byte(v.Kind)
	binary.BigEndian.PutUint32(header[1:5], uint32(len(v.Data)))
	elements := v.Elements
	if v.Kind == KindBlob {
		elements = 1
	}
	binary.BigEndian.PutUint32(header[5:9], uint32(elements))
	dst = append(dst, header[:]...)
	dst = append(dst, v.Data...)
	return dst
}

// NewIntegerValue builds a Value of the given kind and width holding one
// element per entry of values, each stored as its low width bytes.
func NewIntegerValue(kind Kind, width int, tag string, values ...uint64) *Value {
	data := make([]byte, width*len(values))
	for i, n := range values {
		off := i * width
		if kind == KindBE {
			for b := width - 1; b >= 0; b-- {
				data[off+b] = byte(n)
				n >>= 8
			}
		} else {
			for b := 0; b < width; b++ {
				data[off+b] = byte(n)
				n >>= 8
			}
		}
	}
	return &Value{Kind: kind, Width: width, Elements: len(values), Tag: tag, Data: data}
}

// NewBlobValue builds a single-element BLOB value from raw bytes.
func NewBlobValue(tag string, data []byte) *Value {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Value{Kind: KindBlob, Width: len(cp), Elements: 1, Tag: tag, Data: cp}
}
