package rowcodec

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// PrimitiveCodec handles fixed-width scalar columns: booleans and 1/2/4/8
// byte integers and floats (spec.md §4.1 "Primitive codec"). 16-byte
// (u/int128, float128) widths are not supported by this codec:
// NewPrimitiveCodec rejects them.
type PrimitiveCodec struct {
	tc    TypeCode
	width int
	lex   bool // true: order-preserving key regime; false: length-prefixed value regime
}

// NewPrimitiveCodec builds a codec for tc in the given regime.
func NewPrimitiveCodec(tc TypeCode, lex bool) (*PrimitiveCodec, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	p := tc.Plain()
	width := p.FixedWidth()
	if width == 0 || width == 16 {
		return nil, errors.Newf("rowcodec: primitive codec does not support plain type %d", p)
	}
	if tc.Array() {
		return nil, errors.New("rowcodec: use NewPrimitiveArrayCodec for array columns")
	}
	return &PrimitiveCodec{tc: tc, width: width, lex: lex}, nil
}

func (c *PrimitiveCodec) TypeCode() TypeCode { return c.tc }

func (c *PrimitiveCodec) MinSize() int {
	n := c.width
	if c.tc.Nullable() {
		n++
	}
	return n
}

func (c *PrimitiveCodec) EncodeSize(v interface{}) (int, error) { return 0, nil }

func (c *PrimitiveCodec) isBoolean() bool { return c.tc.Plain() == PlainBoolean }

// scalarBits converts a decoded Go value into an unsigned integer holding
// its raw bit pattern (two's complement for signed, IEEE754 for float).
func (c *PrimitiveCodec) scalarBits(v interface{}) (uint64, bool, error) {
	if v == nil {
		return 0, true, nil
	}
	p := c.tc.Plain()
	switch p {
	case PlainBoolean:
		b, ok := v.(bool)
		if !ok {
			return 0, false, errors.Newf("rowcodec: expected bool, got %T", v)
		}
		if b {
			return 1, false, nil
		}
		return 0, false, nil
	case PlainFloat32:
		f, ok := toFloat64(v)
		if !ok {
			return 0, false, errors.Newf("rowcodec: expected float32-compatible, got %T", v)
		}
		return uint64(math.Float32bits(float32(f))), false, nil
	case PlainFloat64:
		f, ok := toFloat64(v)
		if !ok {
			return 0, false, errors.Newf("rowcodec: expected float64-compatible, got %T", v)
		}
		return math.Float64bits(f), false, nil
	default:
		i, ok := toInt64(v)
		if !ok {
			return 0, false, errors.Newf("rowcodec: expected integer-compatible, got %T", v)
		}
		return uint64(i), false, nil
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case uint16:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// bitsToScalar converts a raw bit pattern back to a decoded Go value.
func (c *PrimitiveCodec) bitsToScalar(bits uint64) interface{} {
	switch c.tc.Plain() {
	case PlainBoolean:
		return bits != 0
	case PlainFloat32:
		return math.Float32frombits(uint32(bits))
	case PlainFloat64:
		return math.Float64frombits(bits)
	case PlainUint8:
		return uint8(bits)
	case PlainUint16, PlainChar16:
		return uint16(bits)
	case PlainUint32:
		return uint32(bits)
	case PlainUint64:
		return bits
	case PlainInt8:
		return int8(bits)
	case PlainInt16:
		return int16(bits)
	case PlainInt32:
		return int32(bits)
	case PlainInt64:
		return int64(bits)
	default:
		return bits
	}
}

// orderBits transforms raw bits into their order-preserving lex form: signed
// integers flip the sign bit; floats remap so negative/positive patterns
// sort numerically (spec.md §4.1).
func (c *PrimitiveCodec) orderBits(bits uint64) uint64 {
	p := c.tc.Plain()
	switch {
	case p.Float():
		if bits&signBitFor(c.width) != 0 {
			return ^bits & maskFor(c.width)
		}
		return bits | signBitFor(c.width)
	case p.Signed():
		return bits ^ signBitFor(c.width)
	default:
		return bits
	}
}

func (c *PrimitiveCodec) unorderBits(bits uint64) uint64 {
	p := c.tc.Plain()
	switch {
	case p.Float():
		if bits&signBitFor(c.width) == 0 {
			return ^bits & maskFor(c.width)
		}
		return bits &^ signBitFor(c.width)
	case p.Signed():
		return bits ^ signBitFor(c.width)
	default:
		return bits
	}
}

func signBitFor(width int) uint64 { return uint64(1) << uint(width*8-1) }
func maskFor(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width*8)) - 1
}

func (c *PrimitiveCodec) putBits(dst []byte, bits uint64, bigEndian bool) {
	switch c.width {
	case 1:
		dst[0] = byte(bits)
	case 2:
		if bigEndian {
			binary.BigEndian.PutUint16(dst, uint16(bits))
		} else {
			binary.LittleEndian.PutUint16(dst, uint16(bits))
		}
	case 4:
		if bigEndian {
			binary.BigEndian.PutUint32(dst, uint32(bits))
		} else {
			binary.LittleEndian.PutUint32(dst, uint32(bits))
		}
	case 8:
		if bigEndian {
			binary.BigEndian.PutUint64(dst, bits)
		} else {
			binary.LittleEndian.PutUint64(dst, bits)
		}
	}
}

func (c *PrimitiveCodec) getBits(src []byte, bigEndian bool) uint64 {
	switch c.width {
	case 1:
		return uint64(src[0])
	case 2:
		if bigEndian {
			return uint64(binary.BigEndian.Uint16(src))
		}
		return uint64(binary.LittleEndian.Uint16(src))
	case 4:
		if bigEndian {
			return uint64(binary.BigEndian.Uint32(src))
		}
		return uint64(binary.LittleEndian.Uint32(src))
	case 8:
		if bigEndian {
			return binary.BigEndian.Uint64(src)
		}
		return binary.LittleEndian.Uint64(src)
	}
	return 0
}

func (c *PrimitiveCodec) Encode(v interface{}, dst []byte, offset *int, isLast bool) error {
	nullable := c.tc.Nullable()
	bits, isNull, err := c.scalarBits(v)
	if err != nil {
		return err
	}
	if isNull && !nullable {
		return errors.New("rowcodec: null value for non-nullable column")
	}

	if !c.lex {
		// Value regime: little-endian, optional one-byte null header.
		if nullable {
			if isNull {
				dst[*offset] = 0
				*offset++
				for i := 0; i < c.width; i++ {
					dst[*offset+i] = 0
				}
				*offset += c.width
				return nil
			}
			dst[*offset] = 1
			*offset++
		}
		c.putBits(dst[*offset:], bits, false)
		*offset += c.width
		return nil
	}

	// Lex regime: null-header byte, big-endian order-preserving bits,
	// descending complement over the full span (header included).
	start := *offset
	if nullable {
		null, notNull := NullHeader(c.tc.NullLow())
		if isNull {
			dst[*offset] = null
			*offset++
			// Zero-fill the value portion; descending complement below
			// still must flip it consistently, so leave it uninitialized
			// to zero (complement of 0 is still deterministic).
			for i := 0; i < c.width; i++ {
				dst[*offset+i] = 0
			}
			*offset += c.width
			if c.tc.Descending() {
				complementSpan(dst[start:*offset])
			}
			return nil
		}
		dst[*offset] = notNull
		*offset++
	}
	ordered := c.orderBits(bits)
	c.putBits(dst[*offset:], ordered, true)
	*offset += c.width
	if c.tc.Descending() {
		complementSpan(dst[start:*offset])
	}
	return nil
}

func complementSpan(b []byte) {
	for i := range b {
		b[i] = ^b[i]
	}
}

func (c *PrimitiveCodec) Decode(src []byte, offset *int, end int, isLast bool) (interface{}, error) {
	nullable := c.tc.Nullable()
	if !c.lex {
		if nullable {
			if *offset >= len(src) {
				return nil, errors.New("rowcodec: truncated primitive null header")
			}
			h := src[*offset]
			*offset++
			if h == 0 {
				if *offset+c.width > len(src) {
					return nil, errors.New("rowcodec: truncated primitive value")
				}
				*offset += c.width
				return nil, nil
			}
		}
		if *offset+c.width > len(src) {
			return nil, errors.New("rowcodec: truncated primitive value")
		}
		bits := c.getBits(src[*offset:*offset+c.width], false)
		*offset += c.width
		return c.bitsToScalar(bits), nil
	}

	start := *offset
	span := c.width
	if nullable {
		span++
	}
	if *offset+span > len(src) {
		return nil, errors.New("rowcodec: truncated lex primitive value")
	}
	raw := append([]byte(nil), src[start:start+span]...)
	if c.tc.Descending() {
		complementSpan(raw)
	}
	*offset = start + span
	pos := 0
	if nullable {
		null, notNull := NullHeader(c.tc.NullLow())
		switch raw[0] {
		case null:
			return nil, nil
		case notNull:
			pos++
		default:
			return nil, errors.Newf("rowcodec: invalid null header byte 0x%02x", raw[0])
		}
	}
	bits := c.getBits(raw[pos:pos+c.width], true)
	bits = c.unorderBits(bits)
	return c.bitsToScalar(bits), nil
}

func (c *PrimitiveCodec) DecodeSkip(src []byte, offset *int, end int, isLast bool) error {
	n := c.width
	if c.tc.Nullable() {
		n++
	}
	if *offset+n > len(src) {
		return errors.New("rowcodec: truncated primitive skip")
	}
	*offset += n
	return nil
}

func (c *PrimitiveCodec) CanFilterQuick(target TypeCode) bool {
	return target.Plain() == c.tc.Plain() && target.Array() == c.tc.Array()
}

func (c *PrimitiveCodec) FilterQuickDecode(src []byte, offset *int, end int, isLast bool) (QuickValue, error) {
	v, err := c.Decode(src, offset, end, isLast)
	if err != nil {
		return QuickValue{}, err
	}
	return QuickValue{IsNull: v == nil, Scalar: v}, nil
}

func (c *PrimitiveCodec) FilterQuickCompare(qv QuickValue, op Op, arg interface{}) (bool, error) {
	if qv.IsNull || arg == nil {
		// SQL-null semantics: comparisons involving null are never true,
		// except IN/NOT_IN which are handled by the caller over a set.
		return false, nil
	}
	cmp, err := compareScalars(qv.Scalar, arg)
	if err != nil {
		return false, err
	}
	return EvalOp(op, cmp), nil
}

func compareScalars(a, b interface{}) (int, error) {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if ab, ok := a.(bool); ok {
		bb, ok2 := b.(bool)
		if !ok2 {
			return 0, errors.New("rowcodec: cannot compare bool with non-bool argument")
		}
		switch {
		case ab == bb:
			return 0, nil
		case !ab:
			return -1, nil
		default:
			return 1, nil
		}
	}
	ai, aok := toInt64(a)
	bi, bok := toInt64(b)
	if aok && bok {
		switch {
		case ai < bi:
			return -1, nil
		case ai > bi:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, errors.Newf("rowcodec: incomparable scalar types %T, %T", a, b)
}
