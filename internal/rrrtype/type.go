// Package rrrtype defines the tagged value kind used by the wire codec:
// fixed-width big-endian integers, fixed-width little-endian integers, and
// raw blobs.
package rrrtype

import "fmt"

// Kind is the 1-byte tag identifying how a Value's payload is interpreted.
type Kind uint8

const (
	// KindInvalid is the zero value; never produced by a valid decode.
	KindInvalid Kind = iota
	// KindBE is a fixed-width big-endian integer, 1..8 bytes wide.
	KindBE
	// KindLE is a fixed-width little-endian integer, 1..8 bytes wide.
	KindLE
	// KindBlob is an opaque byte string, 1..65535 bytes wide.
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindBE:
		return "BE"
	case KindLE:
		return "LE"
	case KindBlob:
		return "BLOB"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the three wire kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindBE, KindLE, KindBlob:
		return true
	default:
		return false
	}
}

// IsInteger reports whether k decodes to a host uint64 rather than raw bytes.
func (k Kind) IsInteger() bool {
	return k == KindBE || k == KindLE
}

const (
	// MaxIntegerWidth is the widest an individual BE/LE value may be.
	MaxIntegerWidth = 8
	// MaxBlobWidth is the widest an individual BLOB element may be.
	MaxBlobWidth = 65535
	// MaxTotalLength bounds total_length in the packed header: the decoder
	// refuses anything larger even before comparing against a configured
	// maximum (§4.1: "total_length > 2^24").
	MaxTotalLength = 1 << 24
	// HeaderSize is the fixed packed header width: {u8 type, u32
	// total_length, u32 elements}.
	HeaderSize = 1 + 4 + 4
)

// Value is one decoded element of an Array: a kind tag, the per-element
// byte width, an element count, an optional tag string, and the raw
// payload bytes (length width*elements for integers, total_length for a
// single blob).
type Value struct {
	Kind     Kind
	Width    int    // per-element byte width
	Elements int    // array element count, >= 1
	Tag      string // optional UTF-8 tag name, may be empty
	Data     []byte // raw payload, exactly Width*Elements bytes for integers
}

// TotalLength is the wire total_length field: the number of payload bytes
// following the packed header.
func (v *Value) TotalLength() int {
	return len(v.Data)
}

// Uint64At zero-extends the integer at element index i to a host uint64.
// Only valid for KindBE/KindLE values; panics otherwise, mirroring the
// fact that callers must already know the kind from the template.
func (v *Value) Uint64At(i int) uint64 {
	if !v.Kind.IsInteger() {
		panic("rrrtype: Uint64At on non-integer value")
	}
	off := i * v.Width
	b := v.Data[off : off+v.Width]
	var out uint64
	if v.Kind == KindBE {
		for _, c := range b {
			out = out<<8 | uint64(c)
		}
	} else {
		for idx := len(b) - 1; idx >= 0; idx-- {
			out = out<<8 | uint64(b[idx])
		}
	}
	return out
}

// Equal reports element-wise equality under each value's own comparison
// rule: blobs compare byte-wise, integers compare their zero-extended
// host value (so a BE and LE value with equal numeric value and equal
// width are NOT equal here, since Kind differs; within the same Kind and
// Width, numeric equality is what's checked).
func (v *Value) Equal(o *Value) bool {
	if v.Kind != o.Kind || v.Width != o.Width || v.Elements != o.Elements || v.Tag != o.Tag {
		return false
	}
	if v.Kind == KindBlob {
		if len(v.Data) != len(o.Data) {
			return false
		}
		for i := range v.Data {
			if v.Data[i] != o.Data[i] {
				return false
			}
		}
		return true
	}
	for i := 0; i < v.Elements; i++ {
		if v.Uint64At(i) != o.Uint64At(i) {
			return false
		}
	}
	return true
}
