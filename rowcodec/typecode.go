// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rowcodec implements the per-column binary encoders and decoders
// that back both the primary row format and secondary-index entries: a
// length-prefixed "value" regime for fast row materialization, and an
// order-preserving "lex" (key) regime whose memcmp order matches logical
// column order.
package rowcodec

// PlainType is the low 5 bits of a TypeCode: the scalar type carried by a
// column, independent of nullability, direction or array-ness.
type PlainType uint8

const (
	PlainBoolean PlainType = iota
	PlainUint8
	PlainUint16
	PlainUint32
	PlainUint64
	PlainUint128
	PlainInt8
	PlainInt16
	PlainInt32
	PlainInt64
	PlainInt128
	PlainFloat16
	PlainFloat32
	PlainFloat64
	PlainFloat128
	PlainChar16
	PlainUTF8
	PlainBigInteger
	PlainBigDecimal
	PlainJoin
)

// TypeCode is the 9-bit column type code described in spec.md §3: the low 5
// bits select a PlainType, and the remaining bits are flags.
type TypeCode uint16

const (
	plainMask TypeCode = 0x1F

	FlagNullable   TypeCode = 1 << 5
	FlagDescending TypeCode = 1 << 6
	FlagNullLow    TypeCode = 1 << 7
	FlagArray      TypeCode = 1 << 8
)

// NewTypeCode builds a TypeCode from a plain type and flags.
func NewTypeCode(p PlainType, nullable, descending, nullLow, array bool) TypeCode {
	tc := TypeCode(p) & plainMask
	if nullable {
		tc |= FlagNullable
	}
	if descending {
		tc |= FlagDescending
	}
	if nullLow {
		tc |= FlagNullLow
	}
	if array {
		tc |= FlagArray
	}
	return tc
}

func (tc TypeCode) Plain() PlainType    { return PlainType(tc & plainMask) }
func (tc TypeCode) Nullable() bool      { return tc&FlagNullable != 0 }
func (tc TypeCode) Descending() bool    { return tc&FlagDescending != 0 }
func (tc TypeCode) NullLow() bool       { return tc&FlagNullLow != 0 }
func (tc TypeCode) Array() bool         { return tc&FlagArray != 0 }
func (tc TypeCode) IsJoin() bool        { return tc.Plain() == PlainJoin }
func (tc TypeCode) IsBigIntegerOrDec() bool {
	p := tc.Plain()
	return p == PlainBigInteger || p == PlainBigDecimal
}

// ValueTypeCode returns the TypeCode with direction flags stripped, used to
// compare codecs for equality in the value regime (spec.md §4.1 "Equality of
// codecs"): direction is irrelevant to whether two value-regime encodings
// agree, since the value regime never flips bytes for ordering.
func (tc TypeCode) ValueTypeCode() TypeCode {
	return tc &^ (FlagDescending | FlagNullLow)
}

// Validate enforces the §3 ColumnInfo invariants: array implies a primitive
// element, nullable is illegal on join columns (joins are resolved
// recursively by name and have no null representation of their own).
func (tc TypeCode) Validate() error {
	if tc.Array() && tc.Plain().FixedWidth() == 0 {
		return errInvalidTypeCode("array flag requires a fixed-width primitive element")
	}
	if tc.Nullable() && tc.Plain() == PlainJoin {
		return errInvalidTypeCode("nullable flag illegal on join column")
	}
	return nil
}

type errInvalidTypeCode string

func (e errInvalidTypeCode) Error() string { return "rowcodec: " + string(e) }

// FixedWidth reports the encoded width in bytes for fixed-width plain types,
// or 0 for variable-width types (strings, byte arrays, big integers/decimals,
// joins).
func (p PlainType) FixedWidth() int {
	switch p {
	case PlainBoolean, PlainUint8, PlainInt8:
		return 1
	case PlainUint16, PlainInt16, PlainFloat16, PlainChar16:
		return 2
	case PlainUint32, PlainInt32, PlainFloat32:
		return 4
	case PlainUint64, PlainInt64, PlainFloat64:
		return 8
	case PlainUint128, PlainInt128, PlainFloat128:
		return 16
	default:
		return 0
	}
}

func (p PlainType) Signed() bool {
	switch p {
	case PlainInt8, PlainInt16, PlainInt32, PlainInt64, PlainInt128, PlainBigInteger, PlainBigDecimal:
		return true
	default:
		return false
	}
}

func (p PlainType) Float() bool {
	switch p {
	case PlainFloat16, PlainFloat32, PlainFloat64, PlainFloat128:
		return true
	default:
		return false
	}
}
