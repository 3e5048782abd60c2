package rowcodec

import (
	"github.com/cockroachdb/errors"
)

// StringCodec handles UTF-8 string columns (spec.md §4.1 "UTF-8 string
// codec"): length-prefix framing in the value regime, base-32768
// terminator framing in the lex (key) regime.
type StringCodec struct {
	tc  TypeCode
	lex bool
}

func NewStringCodec(tc TypeCode, lex bool) (*StringCodec, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if tc.Plain() != PlainUTF8 {
		return nil, errors.New("rowcodec: StringCodec requires PlainUTF8")
	}
	return &StringCodec{tc: tc, lex: lex}, nil
}

func (c *StringCodec) TypeCode() TypeCode { return c.tc }

func (c *StringCodec) MinSize() int {
	if c.lex {
		return 1 // null/not-null header byte; EncodeSize counts the digits and terminator
	}
	if c.tc.Nullable() {
		return 1 // nullable length+1 prefix, minimum one byte
	}
	return 0
}

func asBytes(v interface{}) ([]byte, error) {
	switch s := v.(type) {
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	default:
		return nil, errors.Newf("rowcodec: expected string/[]byte, got %T", v)
	}
}

func (c *StringCodec) EncodeSize(v interface{}) (int, error) {
	if v == nil {
		return 0, nil
	}
	b, err := asBytes(v)
	if err != nil {
		return 0, err
	}
	if !c.lex {
		// PF prefix + bytes, less the prefix byte a nullable MinSize already
		// reserves. A non-nullable last column omits the prefix at encode
		// time, so for it this over-counts by the prefix length.
		if c.tc.Nullable() {
			return LengthPrefixPF(int64(len(b))+1) - 1 + len(b), nil
		}
		return LengthPrefixPF(int64(len(b))) + len(b), nil
	}
	return base32768Size(b), nil
}

func (c *StringCodec) Encode(v interface{}, dst []byte, offset *int, isLast bool) error {
	nullable := c.tc.Nullable()
	isNull := v == nil
	if isNull && !nullable {
		return errors.New("rowcodec: null value for non-nullable string column")
	}
	var b []byte
	if !isNull {
		var err error
		b, err = asBytes(v)
		if err != nil {
			return err
		}
	}

	if !c.lex {
		return c.encodeValue(b, isNull, dst, offset, isLast)
	}
	return c.encodeLex(b, isNull, dst, offset)
}

func (c *StringCodec) encodeValue(b []byte, isNull bool, dst []byte, offset *int, isLast bool) error {
	nullable := c.tc.Nullable()
	if nullable {
		n := int64(0)
		if !isNull {
			n = int64(len(b)) + 1
		}
		*offset += EncodePrefixPF(dst, *offset, n)
		if isNull {
			return nil
		}
	} else if !isLast {
		*offset += EncodePrefixPF(dst, *offset, int64(len(b)))
	}
	copy(dst[*offset:], b)
	*offset += len(b)
	return nil
}

func (c *StringCodec) encodeLex(b []byte, isNull bool, dst []byte, offset *int) error {
	start := *offset
	null, notNull := NullHeader(c.tc.NullLow())
	if isNull {
		dst[*offset] = null
		*offset++
		if c.tc.Descending() {
			complementSpan(dst[start:*offset])
		}
		return nil
	}
	dst[*offset] = notNull
	*offset++
	n := encodeBase32768(b, dst[*offset:])
	*offset += n
	if c.tc.Descending() {
		complementSpan(dst[start:*offset])
	}
	return nil
}

func (c *StringCodec) Decode(src []byte, offset *int, end int, isLast bool) (interface{}, error) {
	if !c.lex {
		return c.decodeValue(src, offset, end, isLast)
	}
	return c.decodeLex(src, offset)
}

func (c *StringCodec) decodeValue(src []byte, offset *int, end int, isLast bool) (interface{}, error) {
	nullable := c.tc.Nullable()
	if nullable {
		n, err := DecodePrefixPF(src, offset)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		n--
		if *offset+int(n) > len(src) {
			return nil, errors.New("rowcodec: truncated nullable string value")
		}
		s := string(src[*offset : *offset+int(n)])
		*offset += int(n)
		return s, nil
	}
	if isLast {
		if end < 0 || end > len(src) {
			end = len(src)
		}
		s := string(src[*offset:end])
		*offset = end
		return s, nil
	}
	n, err := DecodePrefixPF(src, offset)
	if err != nil {
		return nil, err
	}
	if *offset+int(n) > len(src) {
		return nil, errors.New("rowcodec: truncated string value")
	}
	s := string(src[*offset : *offset+int(n)])
	*offset += int(n)
	return s, nil
}

func (c *StringCodec) decodeLex(src []byte, offset *int) (interface{}, error) {
	start := *offset
	if start >= len(src) {
		return nil, errors.New("rowcodec: truncated lex string header")
	}
	if c.tc.Nullable() {
		h := src[start]
		if c.tc.Descending() {
			h = ^h
		}
		null, _ := NullHeader(c.tc.NullLow())
		if h == null {
			*offset = start + 1
			return nil, nil
		}
	}
	// Scan forward (past the 1-byte header) to find the terminator byte
	// (< 32), honoring the descending complement (terminator on disk is
	// complemented too).
	i := start + 1
	for {
		if i >= len(src) {
			return nil, errors.New("rowcodec: unterminated lex string")
		}
		b := src[i]
		if c.tc.Descending() {
			b = ^b
		}
		if b < 32 {
			break
		}
		i += 2
	}
	span := append([]byte(nil), src[start:i+1]...)
	if c.tc.Descending() {
		complementSpan(span)
	}
	*offset = i + 1
	header := span[0]
	null, notNull := NullHeader(c.tc.NullLow())
	if c.tc.Nullable() {
		switch header {
		case null:
			return nil, nil
		case notNull:
			b, err := decodeBase32768(span[1:])
			return string(b), err
		default:
			return nil, errors.Newf("rowcodec: invalid string null header 0x%02x", header)
		}
	}
	if header != notNull {
		return nil, errors.Newf("rowcodec: invalid non-nullable string header 0x%02x", header)
	}
	b, err := decodeBase32768(span[1:])
	return string(b), err
}

func (c *StringCodec) DecodeSkip(src []byte, offset *int, end int, isLast bool) error {
	if !c.lex {
		nullable := c.tc.Nullable()
		if nullable {
			_, err := SkipNullableBytesPF(src, offset)
			return err
		}
		if isLast {
			if end < 0 || end > len(src) {
				end = len(src)
			}
			*offset = end
			return nil
		}
		return SkipBytesPF(src, offset)
	}
	_, err := c.decodeLex(src, offset)
	return err
}

func (c *StringCodec) CanFilterQuick(target TypeCode) bool {
	return target.Plain() == PlainUTF8 && target.Array() == c.tc.Array()
}

func (c *StringCodec) FilterQuickDecode(src []byte, offset *int, end int, isLast bool) (QuickValue, error) {
	start := *offset
	v, err := c.Decode(src, offset, end, isLast)
	if err != nil {
		return QuickValue{}, err
	}
	if v == nil {
		return QuickValue{IsNull: true}, nil
	}
	return QuickValue{Span: src[start:*offset]}, nil
}

// FilterQuickCompare for strings compares against a pre-encoded argument
// span: callers (the RowPredicate constructor) must pre-encode the argument
// with the same codec so byte order matches. For the lex regime this
// memcmp directly gives logical order; for the value regime only
// EQ/NE/IN/NOT_IN are sound (framing is not order-preserving).
func (c *StringCodec) FilterQuickCompare(qv QuickValue, op Op, arg interface{}) (bool, error) {
	if qv.IsNull {
		return false, nil
	}
	argSpan, ok := arg.([]byte)
	if !ok {
		return false, errors.Newf("rowcodec: string quick-compare argument must be pre-encoded []byte, got %T", arg)
	}
	if !c.lex && (op != OpEQ && op != OpNE) {
		return false, errors.New("rowcodec: inequality quick-compare unsupported for value-regime string span")
	}
	cmp := CompareBytes(qv.Span, argSpan)
	return EvalOp(op, cmp), nil
}

// base32768Size returns the encoded size of a base-32768 lex framing of b:
// two bytes per 15 bits of payload, plus one terminator byte.
func base32768Size(b []byte) int {
	bits := len(b) * 8
	digits := (bits + 14) / 15
	return digits*2 + 1
}

// Byte ranges for the two base-32768-digit bytes. Both start at 32 (above
// the terminator's <32 range) so a terminator byte always compares less
// than any digit byte under memcmp, giving the "prefix sorts before longer"
// property spec.md requires.
const (
	b32768Lo1, b32768Hi1 = 32, 202
	b32768Lo2, b32768Hi2 = 32, 223
)

func writeDigit(dst []byte, pos *int, digit uint32) {
	const span2 = b32768Hi2 - b32768Lo2 + 1
	d1 := digit / span2
	d2 := digit % span2
	dst[*pos] = byte(b32768Lo1 + d1)
	dst[*pos+1] = byte(b32768Lo2 + d2)
	*pos += 2
}

// encodeBase32768 implements spec.md's lex string framing: each successive
// 15 bits of payload become a two-byte digit, terminated by a byte < 32
// carrying the bit-count (0..15) of the final partial digit (0 meaning the
// payload ended exactly on a 15-bit boundary, the last digit written was a
// full one and the partial tail was empty).
//
// acc/accBits hold a bit-queue: at all times the low accBits bits of acc are
// the as-yet-unconsumed payload bits; every bit is shifted through exactly
// once, never re-read, so partial digits spanning byte boundaries decode
// back exactly.
func encodeBase32768(b []byte, dst []byte) int {
	pos := 0
	var acc uint32
	var accBits uint
	for _, byt := range b {
		acc = (acc << 8) | uint32(byt)
		accBits += 8
		for accBits >= 15 {
			shift := accBits - 15
			digit := (acc >> shift) & 0x7FFF
			writeDigit(dst, &pos, digit)
			acc &= (uint32(1) << shift) - 1
			accBits = shift
		}
	}
	lastBits := accBits
	if accBits > 0 {
		digit := (acc << (15 - accBits)) & 0x7FFF
		writeDigit(dst, &pos, digit)
	}
	dst[pos] = byte(lastBits) // terminator: 0..15, always < 32
	pos++
	return pos
}

func decodeBase32768(span []byte) ([]byte, error) {
	if len(span) == 0 {
		return nil, errors.New("rowcodec: empty base32768 span")
	}
	term := span[len(span)-1]
	digitsBytes := span[:len(span)-1]
	if len(digitsBytes)%2 != 0 {
		return nil, errors.New("rowcodec: corrupt base32768 digit stream")
	}
	const span2 = b32768Hi2 - b32768Lo2 + 1
	var acc uint32
	var accBits uint
	ndigits := len(digitsBytes) / 2
	out := make([]byte, 0, ndigits*2)
	for i := 0; i < ndigits; i++ {
		d1 := uint32(digitsBytes[i*2]) - b32768Lo1
		d2 := uint32(digitsBytes[i*2+1]) - b32768Lo2
		digit := d1*span2 + d2
		bitsInDigit := uint(15)
		if i == ndigits-1 && term != 0 {
			bitsInDigit = uint(term)
			digit >>= 15 - bitsInDigit
		}
		acc = (acc << bitsInDigit) | digit
		accBits += bitsInDigit
		for accBits >= 8 {
			shift := accBits - 8
			out = append(out, byte(acc>>shift))
			acc &= (uint32(1) << shift) - 1
			accBits = shift
		}
	}
	return out, nil
}
