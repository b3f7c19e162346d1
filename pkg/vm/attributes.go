package vm

import "math"

// Representation is the observed value kind of a field, used as a
// speculation hint by the compiler. It only ever widens.
type Representation uint8

const (
	RepNone Representation = iota
	RepInt
	RepDouble
	RepTagged
)

func (r Representation) String() string {
	switch r {
	case RepNone:
		return "none"
	case RepInt:
		return "int"
	case RepDouble:
		return "double"
	default:
		return "tagged"
	}
}

// Merge returns the narrowest representation that covers both r and o.
func (r Representation) Merge(o Representation) Representation {
	switch {
	case r == o:
		return r
	case r == RepNone:
		return o
	case o == RepNone:
		return r
	case (r == RepInt && o == RepDouble) || (r == RepDouble && o == RepInt):
		return RepDouble
	default:
		return RepTagged
	}
}

// RepresentationOf classifies a stored value.
func RepresentationOf(v any) Representation {
	switch n := v.(type) {
	case int, int32, int64, uint32:
		return RepInt
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt32 && n <= math.MaxInt32 {
			return RepInt
		}
		return RepDouble
	case float32:
		return RepDouble
	default:
		return RepTagged
	}
}

// PropertyAttributes packs the descriptor flags, representation and slot
// offset of one layout row.
//
//	bit 0      writable
//	bit 1      enumerable
//	bit 2      configurable
//	bit 3      accessor
//	bit 4      inlined
//	bits 5-6   representation
//	bits 8-31  offset
type PropertyAttributes uint32

const (
	attrWritable PropertyAttributes = 1 << iota
	attrEnumerable
	attrConfigurable
	attrAccessor
	attrInlined
)

const (
	attrRepShift    = 5
	attrRepMask     = PropertyAttributes(0x3) << attrRepShift
	attrOffsetShift = 8
	attrMetaMask    = attrWritable | attrEnumerable | attrConfigurable | attrAccessor

	// MaxOffset is the largest offset a layout row can address.
	MaxOffset = 1<<24 - 1
)

// DefaultAttributes are the attributes of a property created by plain assignment.
func DefaultAttributes() PropertyAttributes {
	return attrWritable | attrEnumerable | attrConfigurable
}

// NewAttributes builds attributes from descriptor flags.
func NewAttributes(writable, enumerable, configurable bool) PropertyAttributes {
	var a PropertyAttributes
	if writable {
		a |= attrWritable
	}
	if enumerable {
		a |= attrEnumerable
	}
	if configurable {
		a |= attrConfigurable
	}
	return a
}

// AccessorAttributes builds attributes for an accessor property.
func AccessorAttributes(enumerable, configurable bool) PropertyAttributes {
	return NewAttributes(false, enumerable, configurable) | attrAccessor
}

func (a PropertyAttributes) IsWritable() bool     { return a&attrWritable != 0 }
func (a PropertyAttributes) IsEnumerable() bool   { return a&attrEnumerable != 0 }
func (a PropertyAttributes) IsConfigurable() bool { return a&attrConfigurable != 0 }
func (a PropertyAttributes) IsAccessor() bool     { return a&attrAccessor != 0 }
func (a PropertyAttributes) IsInlined() bool      { return a&attrInlined != 0 }

func (a PropertyAttributes) Representation() Representation {
	return Representation((a & attrRepMask) >> attrRepShift)
}

func (a PropertyAttributes) Offset() uint32 { return uint32(a >> attrOffsetShift) }

// Metadata returns the bits that identify a transition edge. Offsets and
// representations are properties of the child, not of the edge.
func (a PropertyAttributes) Metadata() uint32 { return uint32(a & attrMetaMask) }

func (a PropertyAttributes) WithOffset(off uint32) PropertyAttributes {
	return a&(1<<attrOffsetShift-1) | PropertyAttributes(off)<<attrOffsetShift
}

func (a PropertyAttributes) WithInlined(inlined bool) PropertyAttributes {
	if inlined {
		return a | attrInlined
	}
	return a &^ attrInlined
}

func (a PropertyAttributes) WithRepresentation(r Representation) PropertyAttributes {
	return a&^attrRepMask | PropertyAttributes(r)<<attrRepShift
}

// WithMetadata replaces the descriptor flags, keeping offset and representation.
func (a PropertyAttributes) WithMetadata(meta uint32) PropertyAttributes {
	return a&^attrMetaMask | PropertyAttributes(meta)&attrMetaMask
}
