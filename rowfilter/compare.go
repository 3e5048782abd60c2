// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowfilter

import (
	"math/big"
	"reflect"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/rowcodec"
	"github.com/solidcoredata/rowengine/rowinfo"
)

// compareValues three-way compares two already-typed column values. Both
// sides are expected to share a comparable logical type (the filter
// compiler never builds a ColumnToArg/ColumnToColumn across incompatible
// types); nil compares less than any non-nil value of the same family,
// matching a null-low convention for in-memory comparisons regardless of
// the column's on-disk null-placement flag (that flag only affects encoded
// byte order, not Go-level comparison).
func compareValues(a, b interface{}) (int, error) {
	if a == nil && b == nil {
		return 0, nil
	}
	if a == nil {
		return -1, nil
	}
	if b == nil {
		return 1, nil
	}
	// Narrow primitive columns decode as int8..int32, uint8..uint32 or
	// float32; widen them to the 64-bit forms convertArg gives arguments.
	widen := func(v interface{}) interface{} {
		switch v.(type) {
		case int8, int16, int32:
			return reflect.ValueOf(v).Int()
		case uint8, uint16, uint32:
			return reflect.ValueOf(v).Uint()
		case float32:
			return reflect.ValueOf(v).Float()
		}
		return v
	}
	a, b = widen(a), widen(b)
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, errors.Newf("rowfilter: cannot compare bool with %T", b)
		}
		switch {
		case av == bv:
			return 0, nil
		case !av:
			return -1, nil
		default:
			return 1, nil
		}
	case int64:
		bv, err := toInt64(b)
		if err != nil {
			return 0, err
		}
		return compareOrdered(av, bv), nil
	case uint64:
		bv, err := toUint64(b)
		if err != nil {
			return 0, err
		}
		return compareOrdered(av, bv), nil
	case float64:
		bv, err := toFloat64(b)
		if err != nil {
			return 0, err
		}
		return compareOrdered(av, bv), nil
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, errors.Newf("rowfilter: cannot compare string with %T", b)
		}
		return compareOrdered(av, bv), nil
	case []byte:
		bv, ok := b.([]byte)
		if !ok {
			return 0, errors.Newf("rowfilter: cannot compare []byte with %T", b)
		}
		return rowcodec.CompareBytes(av, bv), nil
	case *big.Int:
		bv, ok := b.(*big.Int)
		if !ok {
			return 0, errors.Newf("rowfilter: cannot compare *big.Int with %T", b)
		}
		return av.Cmp(bv), nil
	case *apd.Decimal:
		bv, ok := b.(*apd.Decimal)
		if !ok {
			return 0, errors.Newf("rowfilter: cannot compare *apd.Decimal with %T", b)
		}
		return av.Cmp(bv), nil
	default:
		return 0, errors.Newf("rowfilter: unsupported comparison type %T", a)
	}
}

func compareOrdered[T int64 | uint64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	default:
		return 0, errors.Newf("rowfilter: cannot convert %T to int64", v)
	}
}

func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	default:
		return 0, errors.Newf("rowfilter: cannot convert %T to uint64", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, errors.Newf("rowfilter: cannot convert %T to float64", v)
	}
}

// evalOpGeneric applies a three-way comparison result to op, reusing
// rowcodec's shared operator semantics (spec.md §4.1's Op enum is the same
// one spec.md §4.3 compiles filters against).
func evalOpGeneric(op Op, cmp int) bool { return rowcodec.EvalOp(op, cmp) }

// membership reports whether val appears in arg, which must be a slice or
// array (spec.md §9: "IN ?n requires ?n to be an array... of the column
// type; other types fail with a typing error").
func membership(val, arg interface{}) (bool, error) {
	rv := reflect.ValueOf(arg)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false, errors.Newf("rowfilter: IN/NOT IN argument must be an array, got %T", arg)
	}
	for i := 0; i < rv.Len(); i++ {
		cmp, err := compareValues(val, rv.Index(i).Interface())
		if err != nil {
			return false, err
		}
		if cmp == 0 {
			return true, nil
		}
	}
	return false, nil
}

// convertArg converts a raw Go argument value to col's logical type, per
// spec.md §9's "small converter trait selected by (fromKind, toKind)".
// Array-typed columns are passed through unconverted. IN/NOT IN arguments
// never reach convertArg (convertArgs leaves them as-is): membership walks
// the slice element-by-element and compareValues converts each element
// against the already-typed row value instead.
func convertArg(col rowinfo.ColumnInfo, raw interface{}) (interface{}, error) {
	if col.TypeCode.Array() {
		return raw, nil
	}
	if raw == nil {
		return nil, nil
	}
	switch col.TypeCode.Plain() {
	case rowcodec.PlainBoolean:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
	case rowcodec.PlainUint8, rowcodec.PlainUint16, rowcodec.PlainUint32, rowcodec.PlainUint64:
		if v, err := toUint64(raw); err == nil {
			return v, nil
		}
	case rowcodec.PlainInt8, rowcodec.PlainInt16, rowcodec.PlainInt32, rowcodec.PlainInt64:
		if v, err := toInt64(raw); err == nil {
			return v, nil
		}
	case rowcodec.PlainFloat16, rowcodec.PlainFloat32, rowcodec.PlainFloat64:
		if v, err := toFloat64(raw); err == nil {
			return v, nil
		}
	case rowcodec.PlainUTF8, rowcodec.PlainChar16:
		if v, ok := raw.(string); ok {
			return v, nil
		}
	case rowcodec.PlainBigInteger:
		if v, ok := raw.(*big.Int); ok {
			return v, nil
		}
	case rowcodec.PlainBigDecimal:
		if v, ok := raw.(*apd.Decimal); ok {
			return v, nil
		}
	}
	return nil, errors.Newf("rowfilter: argument %v (%T) is not convertible to column %q's type", raw, raw, col.Name)
}
