package rowcodec

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// PrimitiveArrayCodec handles arrays of a fixed-width primitive element
// (spec.md §4.1 "Primitive-array codec"). Interior columns carry a length
// prefix (element count); the last column in a value-regime group omits it.
// The lex regime always frames explicitly (length-prefixed, big-endian
// elements with the scalar codec's sign-bit flips) since descending arrays
// must still preserve ordering.
type PrimitiveArrayCodec struct {
	tc    TypeCode
	elem  *PrimitiveCodec
	lex   bool
}

func NewPrimitiveArrayCodec(tc TypeCode, lex bool) (*PrimitiveArrayCodec, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if !tc.Array() {
		return nil, errors.New("rowcodec: PrimitiveArrayCodec requires the array flag")
	}
	elemTC := tc &^ FlagArray
	elemTC &^= FlagNullable // element nulls aren't modeled; only the array itself may be null
	elem, err := NewPrimitiveCodec(elemTC, lex)
	if err != nil {
		return nil, errors.Wrap(err, "rowcodec: array element codec")
	}
	return &PrimitiveArrayCodec{tc: tc, elem: elem, lex: lex}, nil
}

func (c *PrimitiveArrayCodec) TypeCode() TypeCode { return c.tc }

func (c *PrimitiveArrayCodec) MinSize() int {
	if c.tc.Nullable() {
		return 1
	}
	return 0
}

func (c *PrimitiveArrayCodec) elemsOf(v interface{}) (reflect.Value, int, error) {
	if v == nil {
		return reflect.Value{}, 0, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return reflect.Value{}, 0, errors.Newf("rowcodec: expected slice/array, got %T", v)
	}
	return rv, rv.Len(), nil
}

func (c *PrimitiveArrayCodec) EncodeSize(v interface{}) (int, error) {
	_, n, err := c.elemsOf(v)
	if err != nil {
		return 0, err
	}
	// PF count prefix (count+1 when nullable) + elements, less the prefix
	// byte a nullable MinSize already reserves. A non-nullable last value
	// column omits the prefix at encode time, so for it this over-counts by
	// the prefix length.
	encN := int64(n)
	if c.tc.Nullable() {
		encN++
	}
	return LengthPrefixPF(encN) + n*c.elem.width - c.MinSize(), nil
}

func (c *PrimitiveArrayCodec) Encode(v interface{}, dst []byte, offset *int, isLast bool) error {
	nullable := c.tc.Nullable()
	rv, n, err := c.elemsOf(v)
	isNull := v == nil
	if err != nil {
		return err
	}
	if isNull && !nullable {
		return errors.New("rowcodec: null array for non-nullable column")
	}

	needsLen := c.lex || !isLast || nullable
	if needsLen {
		encN := int64(n)
		if nullable {
			if isNull {
				encN = 0
			} else {
				encN++
			}
		}
		*offset += EncodePrefixPF(dst, *offset, encN)
		if isNull {
			return nil
		}
	}
	for i := 0; i < n; i++ {
		elemVal := rv.Index(i).Interface()
		if err := c.elem.Encode(elemVal, dst, offset, false); err != nil {
			return err
		}
	}
	return nil
}

func (c *PrimitiveArrayCodec) Decode(src []byte, offset *int, end int, isLast bool) (interface{}, error) {
	nullable := c.tc.Nullable()
	needsLen := c.lex || !isLast || nullable
	var n int64
	if needsLen {
		var err error
		n, err = DecodePrefixPF(src, offset)
		if err != nil {
			return nil, err
		}
		if nullable {
			if n == 0 {
				return nil, nil
			}
			n--
		}
	} else {
		if end < 0 || end > len(src) {
			end = len(src)
		}
		n = int64((end - *offset) / c.elem.width)
	}
	out := make([]interface{}, n)
	for i := int64(0); i < n; i++ {
		v, err := c.elem.Decode(src, offset, -1, false)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *PrimitiveArrayCodec) DecodeSkip(src []byte, offset *int, end int, isLast bool) error {
	_, err := c.Decode(src, offset, end, isLast)
	return err
}

func (c *PrimitiveArrayCodec) CanFilterQuick(target TypeCode) bool { return false }

func (c *PrimitiveArrayCodec) FilterQuickDecode(src []byte, offset *int, end int, isLast bool) (QuickValue, error) {
	return QuickValue{}, errors.New("rowcodec: array columns do not support quick filtering")
}

func (c *PrimitiveArrayCodec) FilterQuickCompare(qv QuickValue, op Op, arg interface{}) (bool, error) {
	return false, errors.New("rowcodec: array columns do not support quick filtering")
}
