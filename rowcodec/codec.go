package rowcodec

import "bytes"

// Op is a filter comparison operator, shared between the codec's quick-filter
// path (spec.md §4.1) and the filter compiler (spec.md §4.2-4.3).
type Op uint8

const (
	OpEQ Op = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpIN
	OpNotIN
)

// Codec is the per-column encode/decode contract described in spec.md §4.1.
// Each concrete codec (primitive, string, big integer/decimal, primitive
// array) implements it for both the value (length-prefixed) and lex
// (order-preserving key) regimes; the regime is baked into the codec
// instance at construction, not passed per call.
type Codec interface {
	// TypeCode returns the column type code this codec was built for.
	TypeCode() TypeCode

	// MinSize bounds the header contribution independent of the value: for
	// fixed-width codecs this is the full encoded width; for variable-width
	// codecs it is the minimum framing overhead (e.g. one length byte, or
	// one null-header byte).
	MinSize() int

	// EncodeSize returns the number of bytes beyond MinSize that encoding v
	// requires. Interior (non-last) variable-length columns use this to size
	// their length prefix; the "last column in group" codec variant ignores
	// it at encode time but still reports it for EncodeSize agreement tests.
	EncodeSize(v interface{}) (int, error)

	// Encode writes v's encoding into dst starting at *offset, advancing
	// *offset past the written bytes. isLast controls whether a
	// length-prefix is emitted for the value regime (spec.md §4.1: "the last
	// column in a group omits length"); it is ignored by the lex regime,
	// which always self-frames variable-width data for prefix-safety.
	Encode(v interface{}, dst []byte, offset *int, isLast bool) error

	// Decode reads a value starting at *offset, advancing *offset past the
	// consumed bytes. end bounds the buffer for "last column in group"
	// decoding, where there is no explicit length; it is ignored otherwise
	// (pass -1 when not applicable).
	Decode(src []byte, offset *int, end int, isLast bool) (interface{}, error)

	// DecodeSkip advances *offset past an encoded value without
	// materializing it.
	DecodeSkip(src []byte, offset *int, end int, isLast bool) error
}

// QuickCodec is implemented by codecs that support spec.md's "quick filter":
// comparing an argument against a still-encoded column span without fully
// decoding it.
type QuickCodec interface {
	Codec

	// CanFilterQuick reports whether this codec can quick-compare against an
	// argument declared with the given (compatible) type code.
	CanFilterQuick(target TypeCode) bool

	// FilterQuickDecode locates (but does not fully materialize) the column
	// value at *offset, advancing *offset past it, and returns a QuickValue
	// usable for comparison.
	FilterQuickDecode(src []byte, offset *int, end int, isLast bool) (QuickValue, error)

	// FilterQuickCompare evaluates op between the located value and arg
	// (which must have been prepared the same way the predicate constructor
	// prepares arguments: pre-encoded for byte-oriented codecs, boxed scalar
	// for primitive codecs).
	FilterQuickCompare(qv QuickValue, op Op, arg interface{}) (bool, error)
}

// QuickValue is what FilterQuickDecode locates: either a boxed scalar (for
// primitive columns, per spec.md "returns (value, is_null)") or a located
// byte span plus null flag (for byte-oriented columns, per spec.md "returns
// the located (data_offset, data_length, is_null?)").
type QuickValue struct {
	IsNull bool
	Scalar interface{} // set for primitive codecs
	Span   []byte      // set for byte-oriented codecs: the encoded span, in the codec's own comparison-ready form
}

// CompareBytes compares two byte-oriented quick-filter spans the way the lex
// regime intends: memcmp. Callers holding value-regime spans must not use
// this directly for inequality operators (value-regime framing is not
// order-preserving); EQ/NE/IN/NOT_IN are still valid for value-regime spans.
func CompareBytes(a, b []byte) int {
	return bytes.Compare(a, b)
}

// EvalOp applies a three-way comparison result to an operator, for operators
// that reduce to a single comparison (EQ, NE, LT, LE, GT, GE). IN/NOT_IN are
// handled by callers directly, since they compare against a set.
func EvalOp(op Op, cmp int) bool {
	switch op {
	case OpEQ:
		return cmp == 0
	case OpNE:
		return cmp != 0
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpGE:
		return cmp >= 0
	default:
		return false
	}
}
