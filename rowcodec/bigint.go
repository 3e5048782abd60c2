package rowcodec

import (
	"math/big"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
)

// BigIntegerCodec handles arbitrary-precision integer columns (spec.md
// §4.1 "BigInteger / BigDecimal codecs"). The value regime is a simple
// length-prefixed sign+magnitude encoding; the lex regime uses a
// zig-zag-like sign-preserving form where the whole post-header span is
// byte-complemented for negative values, so a larger magnitude (more
// negative) sorts before a smaller one, matching memcmp to numeric order.
type BigIntegerCodec struct {
	tc  TypeCode
	lex bool
}

func NewBigIntegerCodec(tc TypeCode, lex bool) (*BigIntegerCodec, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if tc.Plain() != PlainBigInteger {
		return nil, errors.New("rowcodec: BigIntegerCodec requires PlainBigInteger")
	}
	return &BigIntegerCodec{tc: tc, lex: lex}, nil
}

func (c *BigIntegerCodec) TypeCode() TypeCode { return c.tc }

func (c *BigIntegerCodec) MinSize() int {
	if c.lex {
		return 1 // null/not-null header, or the sign byte alone (non-nullable zero)
	}
	if c.tc.Nullable() {
		return 1
	}
	return 0
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case int64:
		return big.NewInt(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	default:
		return nil, errors.Newf("rowcodec: expected *big.Int-compatible value, got %T", v)
	}
}

func (c *BigIntegerCodec) EncodeSize(v interface{}) (int, error) {
	if v == nil {
		return 0, nil
	}
	bi, err := toBigInt(v)
	if err != nil {
		return 0, err
	}
	mag := bi.Bytes()
	if c.lex {
		n := 0 // first byte (header, or sign byte) counted in MinSize
		if c.tc.Nullable() {
			n++ // sign byte after the not-null header
		}
		if bi.Sign() != 0 {
			n += 1 + len(mag) // length byte + magnitude
		}
		return n, nil
	}
	// PF prefix + sign byte + magnitude, less the prefix byte a nullable
	// MinSize already reserves.
	payload := 1 + len(mag)
	n := int64(payload)
	if c.tc.Nullable() {
		n++
	}
	return LengthPrefixPF(n) + payload - c.MinSize(), nil
}

func (c *BigIntegerCodec) Encode(v interface{}, dst []byte, offset *int, isLast bool) error {
	nullable := c.tc.Nullable()
	isNull := v == nil
	if isNull && !nullable {
		return errors.New("rowcodec: null value for non-nullable BigInteger column")
	}
	if !c.lex {
		return c.encodeValue(v, isNull, dst, offset, isLast)
	}
	return c.encodeLex(v, isNull, dst, offset)
}

func (c *BigIntegerCodec) encodeValue(v interface{}, isNull bool, dst []byte, offset *int, isLast bool) error {
	if isNull {
		*offset += EncodePrefixPF(dst, *offset, 0)
		return nil
	}
	bi, err := toBigInt(v)
	if err != nil {
		return err
	}
	mag := bi.Bytes()
	sign := byte(2)
	if bi.Sign() < 0 {
		sign = 0
	} else if bi.Sign() == 0 {
		sign = 1
	}
	payload := 1 + len(mag)
	n := int64(payload)
	if c.tc.Nullable() {
		n++
	}
	*offset += EncodePrefixPF(dst, *offset, n)
	dst[*offset] = sign
	*offset++
	copy(dst[*offset:], mag)
	*offset += len(mag)
	return nil
}

func (c *BigIntegerCodec) encodeLex(v interface{}, isNull bool, dst []byte, offset *int) error {
	start := *offset
	null, notNull := NullHeader(c.tc.NullLow())
	if c.tc.Nullable() {
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
	}
	bi, err := toBigInt(v)
	if err != nil {
		return err
	}
	tailStart := *offset
	mag := bi.Bytes()
	if len(mag) > 255 {
		return errors.New("rowcodec: BigInteger magnitude exceeds 255 bytes, unsupported by this codec")
	}
	switch {
	case bi.Sign() == 0:
		dst[*offset] = 1
		*offset++
	case bi.Sign() > 0:
		dst[*offset] = 2
		*offset++
		dst[*offset] = byte(len(mag))
		*offset++
		copy(dst[*offset:], mag)
		*offset += len(mag)
	default:
		dst[*offset] = 0
		*offset++
		tail := *offset
		dst[tail] = byte(len(mag))
		copy(dst[tail+1:], mag)
		*offset = tail + 1 + len(mag)
		complementSpan(dst[tail:*offset])
	}
	_ = tailStart
	if c.tc.Descending() {
		complementSpan(dst[start:*offset])
	}
	return nil
}

func (c *BigIntegerCodec) Decode(src []byte, offset *int, end int, isLast bool) (interface{}, error) {
	if !c.lex {
		return c.decodeValue(src, offset)
	}
	return c.decodeLex(src, offset)
}

func (c *BigIntegerCodec) decodeValue(src []byte, offset *int) (interface{}, error) {
	n, err := DecodePrefixPF(src, offset)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if c.tc.Nullable() {
		n--
	}
	if *offset+int(n) > len(src) {
		return nil, errors.New("rowcodec: truncated BigInteger value")
	}
	sign := src[*offset]
	mag := src[*offset+1 : *offset+int(n)]
	*offset += int(n)
	bi := new(big.Int).SetBytes(mag)
	if sign == 0 {
		bi.Neg(bi)
	}
	return bi, nil
}

func (c *BigIntegerCodec) decodeLex(src []byte, offset *int) (interface{}, error) {
	start := *offset
	if start >= len(src) {
		return nil, errors.New("rowcodec: truncated lex BigInteger header")
	}
	peek := func(i int) byte {
		b := src[i]
		if c.tc.Descending() {
			b = ^b
		}
		return b
	}
	pos := start
	if c.tc.Nullable() {
		h := peek(pos)
		null, notNull := NullHeader(c.tc.NullLow())
		switch h {
		case null:
			*offset = pos + 1
			return nil, nil
		case notNull:
			pos++
		default:
			return nil, errors.Newf("rowcodec: invalid BigInteger null header 0x%02x", h)
		}
	}
	sign := peek(pos)
	pos++
	switch sign {
	case 1:
		*offset = pos
		return big.NewInt(0), nil
	case 2:
		if pos >= len(src) {
			return nil, errors.New("rowcodec: truncated lex BigInteger length")
		}
		length := int(peek(pos))
		pos++
		if pos+length > len(src) {
			return nil, errors.New("rowcodec: truncated lex BigInteger magnitude")
		}
		mag := make([]byte, length)
		for i := 0; i < length; i++ {
			mag[i] = peek(pos + i)
		}
		pos += length
		*offset = pos
		return new(big.Int).SetBytes(mag), nil
	case 0:
		// Negative: the tail (length+magnitude) was complemented once more
		// at encode time to reverse ordering, on top of any descending
		// complement already undone by peek. Undo that second complement
		// here.
		if pos >= len(src) {
			return nil, errors.New("rowcodec: truncated lex BigInteger length")
		}
		length := int(^peek(pos))
		pos++
		if pos+length > len(src) {
			return nil, errors.New("rowcodec: truncated lex BigInteger magnitude")
		}
		mag := make([]byte, length)
		for i := 0; i < length; i++ {
			mag[i] = ^peek(pos + i)
		}
		pos += length
		*offset = pos
		bi := new(big.Int).SetBytes(mag)
		bi.Neg(bi)
		return bi, nil
	default:
		return nil, errors.Newf("rowcodec: invalid BigInteger sign byte 0x%02x", sign)
	}
}

func (c *BigIntegerCodec) DecodeSkip(src []byte, offset *int, end int, isLast bool) error {
	_, err := c.Decode(src, offset, end, isLast)
	return err
}

func (c *BigIntegerCodec) CanFilterQuick(target TypeCode) bool { return false }
func (c *BigIntegerCodec) FilterQuickDecode(src []byte, offset *int, end int, isLast bool) (QuickValue, error) {
	return QuickValue{}, errors.New("rowcodec: BigInteger does not support quick filtering")
}
func (c *BigIntegerCodec) FilterQuickCompare(qv QuickValue, op Op, arg interface{}) (bool, error) {
	return false, errors.New("rowcodec: BigInteger does not support quick filtering")
}

// BigDecimalCodec handles arbitrary-precision decimal columns, backed by
// github.com/cockroachdb/apd/v3 for the coefficient/exponent arithmetic
// (apd exists precisely for deterministic, arbitrary-precision decimal
// values, avoiding a hand-rolled scale/rounding implementation).
//
// The lex encoding normalizes (coeff, exponent) to strip trailing
// coefficient zeros, then encodes an "adjusted exponent" (the power-of-ten
// position of the most significant digit, i.e. scientific-notation
// exponent) ahead of the normalized digit string; both are ordered so a
// larger value always sorts after a smaller one, with the usual negative
// full-span complement.
type BigDecimalCodec struct {
	tc  TypeCode
	lex bool
}

func NewBigDecimalCodec(tc TypeCode, lex bool) (*BigDecimalCodec, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if tc.Plain() != PlainBigDecimal {
		return nil, errors.New("rowcodec: BigDecimalCodec requires PlainBigDecimal")
	}
	return &BigDecimalCodec{tc: tc, lex: lex}, nil
}

func (c *BigDecimalCodec) TypeCode() TypeCode { return c.tc }

func (c *BigDecimalCodec) MinSize() int {
	if c.lex {
		return 1 // null/not-null header, or the sign byte alone (non-nullable zero)
	}
	if c.tc.Nullable() {
		return 1
	}
	return 0
}

func toDecimal(v interface{}) (*apd.Decimal, error) {
	switch d := v.(type) {
	case *apd.Decimal:
		return d, nil
	case string:
		dec, _, err := apd.NewFromString(d)
		return dec, err
	default:
		return nil, errors.Newf("rowcodec: expected *apd.Decimal-compatible value, got %T", v)
	}
}

func (c *BigDecimalCodec) EncodeSize(v interface{}) (int, error) {
	if v == nil {
		return 0, nil
	}
	d, err := toDecimal(v)
	if err != nil {
		return 0, err
	}
	if c.lex {
		_, zero, _, digits := decompose(d)
		n := 0 // first byte (header, or sign byte) counted in MinSize
		if c.tc.Nullable() {
			n++ // sign byte after the not-null header
		}
		if !zero {
			n += 4 + len(digits) + 1 // adjusted exponent + digits + terminator
		}
		return n, nil
	}
	// PF prefix (length+1) + d.String(), less the prefix byte a nullable
	// MinSize already reserves.
	s := d.String()
	return LengthPrefixPF(int64(len(s))+1) + len(s) - c.MinSize(), nil
}

func (c *BigDecimalCodec) Encode(v interface{}, dst []byte, offset *int, isLast bool) error {
	nullable := c.tc.Nullable()
	isNull := v == nil
	if isNull && !nullable {
		return errors.New("rowcodec: null value for non-nullable BigDecimal column")
	}
	if !c.lex {
		return c.encodeValue(v, isNull, dst, offset)
	}
	return c.encodeLex(v, isNull, dst, offset)
}

func (c *BigDecimalCodec) encodeValue(v interface{}, isNull bool, dst []byte, offset *int) error {
	if isNull {
		*offset += EncodePrefixPF(dst, *offset, 0)
		return nil
	}
	d, err := toDecimal(v)
	if err != nil {
		return err
	}
	s := d.String()
	b := []byte(s)
	n := int64(len(b)) + 1
	*offset += EncodePrefixPF(dst, *offset, n)
	copy(dst[*offset:], b)
	*offset += len(b)
	return nil
}

// decompose normalizes d to (negative, zero, adjExp, digits) where digits
// has no leading or trailing zero and adjExp is the exponent such that
// value == (-1)^neg * 0.digits * 10^(adjExp+1), i.e. the classic
// scientific-notation exponent of the leading digit.
func decompose(d *apd.Decimal) (negative, zero bool, adjExp int32, digits []byte) {
	if d.Coeff.Sign() == 0 {
		return false, true, 0, nil
	}
	neg := d.Negative
	s := d.Coeff.String()
	// Strip trailing zeros, adjusting exponent accordingly.
	exp := d.Exponent
	end := len(s)
	for end > 1 && s[end-1] == '0' {
		end--
		exp++
	}
	s = s[:end]
	adjExp = exp + int32(len(s)) - 1
	return neg, false, adjExp, []byte(s)
}

func (c *BigDecimalCodec) encodeLex(v interface{}, isNull bool, dst []byte, offset *int) error {
	start := *offset
	null, notNull := NullHeader(c.tc.NullLow())
	if c.tc.Nullable() {
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
	}
	d, err := toDecimal(v)
	if err != nil {
		return err
	}
	neg, zero, adjExp, digits := decompose(d)

	var signByte byte = 2
	if zero {
		signByte = 1
	} else if neg {
		signByte = 0
	}
	dst[*offset] = signByte
	*offset++
	if zero {
		if c.tc.Descending() {
			complementSpan(dst[start:*offset])
		}
		return nil
	}

	tailStart := *offset
	// Adjusted exponent: int32 bit pattern with sign bit flipped, so
	// negative exponents sort below positive ones (classic signed-int lex
	// trick reused here).
	bits := uint32(adjExp) ^ 0x80000000
	dst[*offset] = byte(bits >> 24)
	dst[*offset+1] = byte(bits >> 16)
	dst[*offset+2] = byte(bits >> 8)
	dst[*offset+3] = byte(bits)
	*offset += 4
	for _, digit := range digits {
		dst[*offset] = digit - '0' + 1
		*offset++
	}
	dst[*offset] = 0 // terminator
	*offset++

	if neg {
		complementSpan(dst[tailStart:*offset])
	}
	if c.tc.Descending() {
		complementSpan(dst[start:*offset])
	}
	return nil
}

func (c *BigDecimalCodec) Decode(src []byte, offset *int, end int, isLast bool) (interface{}, error) {
	if !c.lex {
		return c.decodeValue(src, offset)
	}
	return c.decodeLex(src, offset)
}

func (c *BigDecimalCodec) decodeValue(src []byte, offset *int) (interface{}, error) {
	n, err := DecodePrefixPF(src, offset)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	n--
	if *offset+int(n) > len(src) {
		return nil, errors.New("rowcodec: truncated BigDecimal value")
	}
	s := string(src[*offset : *offset+int(n)])
	*offset += int(n)
	d, _, err := apd.NewFromString(s)
	return d, err
}

func (c *BigDecimalCodec) decodeLex(src []byte, offset *int) (interface{}, error) {
	start := *offset
	if start >= len(src) {
		return nil, errors.New("rowcodec: truncated lex BigDecimal header")
	}
	peek := func(i int) byte {
		b := src[i]
		if c.tc.Descending() {
			b = ^b
		}
		return b
	}
	pos := start
	if c.tc.Nullable() {
		h := peek(pos)
		null, notNull := NullHeader(c.tc.NullLow())
		switch h {
		case null:
			*offset = pos + 1
			return nil, nil
		case notNull:
			pos++
		default:
			return nil, errors.Newf("rowcodec: invalid BigDecimal null header 0x%02x", h)
		}
	}
	signByte := peek(pos)
	pos++
	switch signByte {
	case 1:
		*offset = pos
		return apd.New(0, 0), nil
	case 2, 0:
		neg := signByte == 0
		if pos+4 > len(src) {
			return nil, errors.New("rowcodec: truncated lex BigDecimal exponent")
		}
		raw := func(i int) byte {
			b := peek(i)
			if neg {
				b = ^b
			}
			return b
		}
		bits := uint32(raw(pos))<<24 | uint32(raw(pos+1))<<16 | uint32(raw(pos+2))<<8 | uint32(raw(pos+3))
		adjExp := int32(bits ^ 0x80000000)
		pos += 4
		var digits []byte
		for {
			if pos >= len(src) {
				return nil, errors.New("rowcodec: unterminated lex BigDecimal digits")
			}
			b := raw(pos)
			pos++
			if b == 0 {
				break
			}
			digits = append(digits, '0'+(b-1))
		}
		*offset = pos
		d := new(apd.Decimal)
		if _, ok := d.Coeff.SetString(string(digits), 10); !ok {
			return nil, errors.New("rowcodec: corrupt lex BigDecimal digit string")
		}
		d.Exponent = adjExp - int32(len(digits)) + 1
		d.Negative = neg
		return d, nil
	default:
		return nil, errors.Newf("rowcodec: invalid BigDecimal sign byte 0x%02x", signByte)
	}
}

func (c *BigDecimalCodec) DecodeSkip(src []byte, offset *int, end int, isLast bool) error {
	_, err := c.Decode(src, offset, end, isLast)
	return err
}

func (c *BigDecimalCodec) CanFilterQuick(target TypeCode) bool { return false }
func (c *BigDecimalCodec) FilterQuickDecode(src []byte, offset *int, end int, isLast bool) (QuickValue, error) {
	return QuickValue{}, errors.New("rowcodec: BigDecimal does not support quick filtering")
}
func (c *BigDecimalCodec) FilterQuickCompare(qv QuickValue, op Op, arg interface{}) (bool, error) {
	return false, errors.New("rowcodec: BigDecimal does not support quick filtering")
}
