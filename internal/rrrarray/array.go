// Package rrrarray implements the typed-array record format: an ordered
// sequence of rrrtype.Value elements, its wire codec, and the Message
// envelope built on top of it.
package rrrarray

import (
	"encoding/binary"

	"github.com/rrrd/rrr/internal/rrrerr"
	"github.com/rrrd/rrr/internal/rrrtype"
)

// Array is an ordered, append-only sequence of type values.
type Array struct {
	values []*rrrtype.Value
}

// NewArray returns an empty Array.
func NewArray() *Array {
	return &Array{}
}

// Append adds v as the new last element. Arrays are append-only and
// order is preserved across encode/decode.
func (a *Array) Append(v *rrrtype.Value) {
	a.values = append(a.values, v)
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.values) }

// Value returns the element at index i.
func (a *Array) Value(i int) *rrrtype.Value { return a.values[i] }

// Values returns the underlying slice; callers must not mutate it.
func (a *Array) Values() []*rrrtype.Value { return a.values }

// ByTag returns the first element with the given tag, or nil.
func (a *Array) ByTag(tag string) *rrrtype.Value {
	for _, v := range a.values {
		if v.Tag == tag {
			return v
		}
	}
	return nil
}

// Equal reports whether a and o have the same length and every element is
// Equal under its own kind's comparison rule.
func (a *Array) Equal(o *Array) bool {
	if len(a.values) != len(o.values) {
		return false
	}
	for i := range a.values {
		if !a.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

// Definition describes, for one tagged template slot, how to decode the
// matching wire value: its integer width (ignored for blobs) and tag
// name. ParseDefinition builds a slice of these from a compact
// configuration string of the form "be4#a,le2#b,blob#c" (kind, optional
// width, '#', tag), mirroring rrr_array_parse_definition's cmdline-style
// input.
type Definition struct {
	Kind  rrrtype.Kind
	Width int
	Tag   string
}

// ParseDefinition parses a comma-separated template string into an
// ordered slice of Definitions used by Decode to know each value's
// integer width and tag (the wire header alone does not carry a tag, so
// a template is required to reattach one).
func ParseDefinition(s string) ([]Definition, error) {
	if s == "" {
		return nil, nil
	}
	var defs []Definition
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			tok := s[start:i]
			start = i + 1
			if tok == "" {
				continue
			}
			d, err := parseDefinitionToken(tok)
			if err != nil {
				return nil, err
			}
			defs = append(defs, d)
		}
	}
	return defs, nil
}

func parseDefinitionToken(tok string) (Definition, error) {
	kindPart := tok
	tag := ""
	for i := 0; i < len(tok); i++ {
		if tok[i] == '#' {
			kindPart = tok[:i]
			tag = tok[i+1:]
			break
		}
	}

	width := 0
	kindName := kindPart
	for i := 0; i < len(kindPart); i++ {
		if kindPart[i] >= '0' && kindPart[i] <= '9' {
			kindName = kindPart[:i]
			for _, c := range kindPart[i:] {
				width = width*10 + int(c-'0')
			}
			break
		}
	}

	var kind rrrtype.Kind
	switch kindName {
	case "be":
		kind = rrrtype.KindBE
		if width == 0 {
			width = 4
		}
	case "le":
		kind = rrrtype.KindLE
		if width == 0 {
			width = 4
		}
	case "blob":
		kind = rrrtype.KindBlob
	default:
		return Definition{}, rrrerr.Newf(rrrerr.Soft, "MALFORMED: unknown definition kind %q", kindName)
	}

	return Definition{Kind: kind, Width: width, Tag: tag}, nil
}

// Decode walks buf value-by-value according to defs, in order, stopping
// once all definitions are consumed. It never partially-applies a
// definition: if the wire kind disagrees with the template's kind the
// decode fails MALFORMED rather than silently reinterpreting the bytes.
//
// A nil defs decodes self-describingly: the packed value headers alone
// drive the walk (integer widths derived as total_length/elements) and
// decoding continues until buf is exhausted.
func Decode(buf []byte, defs []Definition, opts rrrtype.DecodeOptions) (*Array, int, error) {
	if defs == nil {
		return decodeSelfDescribing(buf, opts)
	}
	a := NewArray()
	off := 0
	for _, d := range defs {
		v, n, err := rrrtype.DecodeValue(buf[off:], d.Width, 0, opts)
		if err != nil {
			return nil, off, err
		}
		if v.Kind != d.Kind {
			return nil, off, rrrerr.Newf(rrrerr.Soft, "MALFORMED: expected kind %s, got %s", d.Kind, v.Kind)
		}
		v.Tag = d.Tag
		a.Append(v)
		off += n
	}
	return a, off, nil
}

func decodeSelfDescribing(buf []byte, opts rrrtype.DecodeOptions) (*Array, int, error) {
	a := NewArray()
	off := 0
	for off < len(buf) {
		if len(buf)-off < rrrtype.HeaderSize {
			return nil, off, rrrerr.New(rrrerr.Incomplete, "short value header")
		}
		kind := rrrtype.Kind(buf[off])
		totalLength := int(binary.BigEndian.Uint32(buf[off+1 : off+5]))
		elements := int(binary.BigEndian.Uint32(buf[off+5 : off+9]))
		width := 0
		if kind.IsInteger() && elements > 0 {
			width = totalLength / elements
		}
		v, n, err := rrrtype.DecodeValue(buf[off:], width, elements, opts)
		if err != nil {
			return nil, off, err
		}
		a.Append(v)
		off += n
	}
	return a, off, nil
}

// Encode appends every element of a to dst in order.
func Encode(dst []byte, a *Array) []byte {
	for _, v := range a.values {
		dst = rrrtype.EncodeValue(dst, v)
	}
	return dst
}
