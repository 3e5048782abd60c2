package rowcodec

import "github.com/cockroachdb/errors"

// Length-prefix framing (PF), spec.md §4.1.
//
// A length 0..127 is encoded as a single byte. Larger lengths are encoded in
// a multi-byte form: the first byte's high bits signal how many further
// bytes of big-endian length follow.
//
//	0xxxxxxx                                   -> 7-bit length (0..127)
//	10xxxxxx xxxxxxxx                          -> 14-bit length (128..16383), high bits first
//	110xxxxx xxxxxxxx xxxxxxxx                 -> 21-bit length
//	1110xxxx xxxxxxxx xxxxxxxx xxxxxxxx         -> 28-bit length
//	11110000 <8 bytes big-endian>                -> full 64-bit length (escape form)

const pfEscape = 0xF0

// LengthPrefixPF returns the number of bytes required to frame n using PF.
func LengthPrefixPF(n int64) int {
	switch {
	case n < 0:
		return 9
	case n <= 0x7F:
		return 1
	case n <= 0x3FFF:
		return 2
	case n <= 0x1FFFFF:
		return 3
	case n <= 0xFFFFFFF:
		return 4
	default:
		return 9
	}
}

// EncodePrefixPF writes n's PF framing into dst at offset and returns the
// number of bytes written.
func EncodePrefixPF(dst []byte, offset int, n int64) int {
	switch {
	case n >= 0 && n <= 0x7F:
		dst[offset] = byte(n)
		return 1
	case n >= 0 && n <= 0x3FFF:
		dst[offset] = 0x80 | byte(n>>8)
		dst[offset+1] = byte(n)
		return 2
	case n >= 0 && n <= 0x1FFFFF:
		dst[offset] = 0xC0 | byte(n>>16)
		dst[offset+1] = byte(n >> 8)
		dst[offset+2] = byte(n)
		return 3
	case n >= 0 && n <= 0xFFFFFFF:
		dst[offset] = 0xE0 | byte(n>>24)
		dst[offset+1] = byte(n >> 16)
		dst[offset+2] = byte(n >> 8)
		dst[offset+3] = byte(n)
		return 4
	default:
		dst[offset] = pfEscape
		for i := 0; i < 8; i++ {
			dst[offset+1+i] = byte(n >> uint(56-8*i))
		}
		return 9
	}
}

// DecodePrefixPF reads a PF-framed length from src at *offset, advances
// *offset past the framing bytes, and returns the decoded length.
func DecodePrefixPF(src []byte, offset *int) (int64, error) {
	if *offset >= len(src) {
		return 0, errors.New("rowcodec: pf: truncated length prefix")
	}
	b0 := src[*offset]
	switch {
	case b0&0x80 == 0:
		*offset++
		return int64(b0), nil
	case b0&0xC0 == 0x80:
		if *offset+2 > len(src) {
			return 0, errors.New("rowcodec: pf: truncated 2-byte length prefix")
		}
		v := int64(b0&0x3F)<<8 | int64(src[*offset+1])
		*offset += 2
		return v, nil
	case b0&0xE0 == 0xC0:
		if *offset+3 > len(src) {
			return 0, errors.New("rowcodec: pf: truncated 3-byte length prefix")
		}
		v := int64(b0&0x1F)<<16 | int64(src[*offset+1])<<8 | int64(src[*offset+2])
		*offset += 3
		return v, nil
	case b0&0xF0 == 0xE0:
		if *offset+4 > len(src) {
			return 0, errors.New("rowcodec: pf: truncated 4-byte length prefix")
		}
		v := int64(b0&0x0F)<<24 | int64(src[*offset+1])<<16 | int64(src[*offset+2])<<8 | int64(src[*offset+3])
		*offset += 4
		return v, nil
	case b0 == pfEscape:
		if *offset+9 > len(src) {
			return 0, errors.New("rowcodec: pf: truncated escaped length prefix")
		}
		var v int64
		for i := 0; i < 8; i++ {
			v = v<<8 | int64(src[*offset+1+i])
		}
		*offset += 9
		return v, nil
	default:
		return 0, errors.Newf("rowcodec: pf: invalid length prefix byte 0x%02x", b0)
	}
}

// SkipBytesPF skips a PF-framed byte span (length prefix + payload),
// advancing *offset past both.
func SkipBytesPF(src []byte, offset *int) error {
	n, err := DecodePrefixPF(src, offset)
	if err != nil {
		return err
	}
	if n < 0 || *offset+int(n) > len(src) {
		return errors.New("rowcodec: pf: length prefix overruns buffer")
	}
	*offset += int(n)
	return nil
}

// SkipNullableBytesPF skips a PF-framed span whose length is offset by one,
// with 0 meaning null (spec.md §4.1 "nullable columns encode length+1 with 0
// meaning null"). Returns whether the value was null.
func SkipNullableBytesPF(src []byte, offset *int) (isNull bool, err error) {
	n, err := DecodePrefixPF(src, offset)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return true, nil
	}
	n--
	if n < 0 || *offset+int(n) > len(src) {
		return false, errors.New("rowcodec: pf: nullable length prefix overruns buffer")
	}
	*offset += int(n)
	return false, nil
}
