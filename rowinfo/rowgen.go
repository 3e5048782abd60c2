// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowinfo

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/rowcodec"
)

// fieldSpec is one parsed `row:"..."` struct tag.
type fieldSpec struct {
	name       string
	isKey      bool
	descending bool
	nullLow    bool
	hidden     bool
	autoRange  bool
}

// parseTag parses a `row:"name,key,desc,nulllow,hidden,autorange"` tag. Only
// name is required; the remaining comma-separated words are flags, order
// independent. A bare "-" skips the field entirely (returns ok=false).
func parseTag(tag string) (fieldSpec, bool) {
	if tag == "-" || tag == "" {
		return fieldSpec{}, false
	}
	parts := strings.Split(tag, ",")
	spec := fieldSpec{name: parts[0]}
	for _, p := range parts[1:] {
		switch strings.TrimSpace(p) {
		case "key":
			spec.isKey = true
		case "desc":
			spec.descending = true
		case "nulllow":
			spec.nullLow = true
		case "hidden":
			spec.hidden = true
		case "autorange":
			spec.autoRange = true
		}
	}
	return spec, true
}

// plainTypeForKind maps a Go reflect.Kind to the default PlainType used by
// RowGen when a struct field carries no explicit type override. Only the
// kinds in the switch below are mapped; *big.Int and apd.Decimal fields
// need a `rowtype` tag override (explicitWidth), and any other type must be
// described with an explicit ColumnInfo instead of struct reflection.
func plainTypeForKind(t reflect.Type) (rowcodec.PlainType, bool, error) {
	nullable := false
	if t.Kind() == reflect.Ptr {
		nullable = true
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return rowcodec.PlainBoolean, nullable, nil
	case reflect.Int8:
		return rowcodec.PlainInt8, nullable, nil
	case reflect.Int16:
		return rowcodec.PlainInt16, nullable, nil
	case reflect.Int32:
		return rowcodec.PlainInt32, nullable, nil
	case reflect.Int64, reflect.Int:
		return rowcodec.PlainInt64, nullable, nil
	case reflect.Uint8:
		return rowcodec.PlainUint8, nullable, nil
	case reflect.Uint16:
		return rowcodec.PlainUint16, nullable, nil
	case reflect.Uint32:
		return rowcodec.PlainUint32, nullable, nil
	case reflect.Uint64, reflect.Uint:
		return rowcodec.PlainUint64, nullable, nil
	case reflect.Float32:
		return rowcodec.PlainFloat32, nullable, nil
	case reflect.Float64:
		return rowcodec.PlainFloat64, nullable, nil
	case reflect.String:
		return rowcodec.PlainUTF8, nullable, nil
	default:
		return 0, false, errors.Newf("rowinfo: cannot infer a column type from Go kind %s", t.Kind())
	}
}

// Reflect builds a RowInfo from a Go struct type, one column per exported
// field carrying a `row:"..."` tag. Key columns are emitted in struct field
// order, ahead of value columns, per spec.md §3's stable numbering rule;
// within each group the original field order is preserved.
//
// This mirrors the teacher's explicit ts.Col declarations (ts/ts.go) but
// derives them from Go struct tags the way database/sql helper libraries in
// the retrieved corpus (e.g. skeema's introspection code) key off `db`-style
// tags, rather than requiring a hand-written column list.
func Reflect(rowName string, structType reflect.Type) (*RowInfo, error) {
	if structType.Kind() != reflect.Struct {
		return nil, errors.Newf("rowinfo: Reflect requires a struct type, got %s", structType.Kind())
	}

	var keyCols, valCols []ColumnInfo
	for i := 0; i < structType.NumField(); i++ {
		f := structType.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}
		spec, ok := parseTag(f.Tag.Get("row"))
		if !ok {
			continue
		}
		plain, nullable, err := plainTypeForKind(f.Type)
		if err != nil {
			if width, werr := explicitWidth(f.Tag); werr == nil {
				plain = width
			} else {
				return nil, errors.Wrapf(err, "rowinfo: %s: field %s", rowName, f.Name)
			}
		}
		tc := rowcodec.NewTypeCode(plain, nullable, spec.descending, spec.nullLow, false)
		if err := tc.Validate(); err != nil {
			return nil, errors.Wrapf(err, "rowinfo: %s: field %s", rowName, f.Name)
		}
		valueCodec, err := newCodecForRegime(tc, false)
		if err != nil {
			return nil, errors.Wrapf(err, "rowinfo: %s: field %s: value codec", rowName, f.Name)
		}
		col := ColumnInfo{
			Name:       spec.name,
			TypeCode:   tc,
			ValueCodec: valueCodec,
			Hidden:     spec.hidden,
			AutoRange:  spec.autoRange,
		}
		if spec.isKey || spec.descending || spec.nullLow {
			lexCodec, err := newCodecForRegime(tc, true)
			if err != nil {
				return nil, errors.Wrapf(err, "rowinfo: %s: field %s: lex codec", rowName, f.Name)
			}
			col.LexCodec = lexCodec
		}
		if spec.isKey {
			keyCols = append(keyCols, col)
		} else {
			valCols = append(valCols, col)
		}
	}
	return NewRowInfo(rowName, keyCols, valCols)
}

// explicitWidth allows a `rowtype:"bigint"` / `rowtype:"bigdec"` override on
// fields whose Go type does not map directly to a PlainType (e.g. *big.Int,
// *apd.Decimal), since reflect cannot distinguish those by Kind alone.
func explicitWidth(tag reflect.StructTag) (rowcodec.PlainType, error) {
	switch tag.Get("rowtype") {
	case "bigint":
		return rowcodec.PlainBigInteger, nil
	case "bigdec":
		return rowcodec.PlainBigDecimal, nil
	case "":
		return 0, errors.New("rowinfo: no rowtype override present")
	default:
		return 0, errors.Newf("rowinfo: unknown rowtype override %q", tag.Get("rowtype"))
	}
}

// newCodecForRegime constructs the right concrete rowcodec.Codec for tc,
// dispatching on PlainType the way rowcodec itself expects to be driven.
func newCodecForRegime(tc rowcodec.TypeCode, lex bool) (rowcodec.Codec, error) {
	switch {
	case tc.Array():
		return rowcodec.NewPrimitiveArrayCodec(tc, lex)
	case tc.Plain() == rowcodec.PlainUTF8 || tc.Plain() == rowcodec.PlainChar16:
		return rowcodec.NewStringCodec(tc, lex)
	case tc.Plain() == rowcodec.PlainBigInteger:
		return rowcodec.NewBigIntegerCodec(tc, lex)
	case tc.Plain() == rowcodec.PlainBigDecimal:
		return rowcodec.NewBigDecimalCodec(tc, lex)
	case tc.Plain() == rowcodec.PlainJoin:
		return nil, errors.New("rowinfo: join columns have no codec of their own")
	default:
		return rowcodec.NewPrimitiveCodec(tc, lex)
	}
}
