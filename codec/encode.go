package codec

import (
	"fmt"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/decimal256"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"

	"github.com/exabend/udf-go/sqltype"
)

// An Encoder converts native Go row values into one Arrow column.
// Encoders are immutable after compilation and safe for concurrent use.
type Encoder struct {
	field arrow.Field
	fn    encodeFunc
}

// encodeFunc appends one native value to the builder. nil appends null.
type encodeFunc func(b array.Builder, v any) error

// NewEncoder compiles an encoder for the given field.
func NewEncoder(field arrow.Field) (*Encoder, error) {
	fn, err := compileEncode(field)
	if err != nil {
		return nil, err
	}
	return &Encoder{field: field, fn: fn}, nil
}

// Field returns the field the encoder was compiled for.
func (e *Encoder) Field() arrow.Field { return e.field }

// EncodeColumn builds an Arrow array from native row values, preserving row
// order. The caller owns the returned array and must release it.
func (e *Encoder) EncodeColumn(mem memory.Allocator, values []any) (arrow.Array, error) {
	b := array.NewBuilder(mem, e.field.Type)
	defer b.Release()
	for row, v := range values {
		if err := e.fn(b, v); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
	}
	return b.NewArray(), nil
}

func compileEncode(field arrow.Field) (encodeFunc, error) {
	fn, err := compileEncodeValue(field)
	if err != nil {
		return nil, err
	}
	return func(b array.Builder, v any) error {
		if v == nil {
			b.AppendNull()
			return nil
		}
		return fn(b, v)
	}, nil
}

// stringBuilder is satisfied by both *array.StringBuilder and
// *array.LargeStringBuilder.
type stringBuilder interface {
	array.Builder
	Append(string)
}

func compileEncodeValue(field arrow.Field) (encodeFunc, error) {
	switch field.Type.ID() {
	case arrow.BOOL:
		return func(b array.Builder, v any) error {
			val, ok := v.(bool)
			if !ok {
				return typeError(field, "bool", v)
			}
			b.(*array.BooleanBuilder).Append(val)
			return nil
		}, nil
	case arrow.INT8:
		return encodeSigned[int8](field, math.MinInt8, math.MaxInt8, func(b array.Builder, n int8) {
			b.(*array.Int8Builder).Append(n)
		}), nil
	case arrow.INT16:
		return encodeSigned[int16](field, math.MinInt16, math.MaxInt16, func(b array.Builder, n int16) {
			b.(*array.Int16Builder).Append(n)
		}), nil
	case arrow.INT32:
		return encodeSigned[int32](field, math.MinInt32, math.MaxInt32, func(b array.Builder, n int32) {
			b.(*array.Int32Builder).Append(n)
		}), nil
	case arrow.INT64:
		return encodeSigned[int64](field, math.MinInt64, math.MaxInt64, func(b array.Builder, n int64) {
			b.(*array.Int64Builder).Append(n)
		}), nil
	case arrow.UINT8:
		return encodeUnsigned[uint8](field, math.MaxUint8, func(b array.Builder, n uint8) {
			b.(*array.Uint8Builder).Append(n)
		}), nil
	case arrow.UINT16:
		return encodeUnsigned[uint16](field, math.MaxUint16, func(b array.Builder, n uint16) {
			b.(*array.Uint16Builder).Append(n)
		}), nil
	case arrow.UINT32:
		return encodeUnsigned[uint32](field, math.MaxUint32, func(b array.Builder, n uint32) {
			b.(*array.Uint32Builder).Append(n)
		}), nil
	case arrow.UINT64:
		return encodeUnsigned[uint64](field, math.MaxUint64, func(b array.Builder, n uint64) {
			b.(*array.Uint64Builder).Append(n)
		}), nil
	case arrow.FLOAT32:
		return func(b array.Builder, v any) error {
			f, ok := asFloat64(v)
			if !ok {
				return typeError(field, "float32", v)
			}
			b.(*array.Float32Builder).Append(float32(f))
			return nil
		}, nil
	case arrow.FLOAT64:
		return func(b array.Builder, v any) error {
			f, ok := asFloat64(v)
			if !ok {
				return typeError(field, "float64", v)
			}
			b.(*array.Float64Builder).Append(f)
			return nil
		}, nil
	case arrow.DATE32:
		return func(b array.Builder, v any) error {
			t, ok := v.(time.Time)
			if !ok {
				return typeError(field, "time.Time", v)
			}
			b.(*array.Date32Builder).Append(arrow.Date32FromTime(t))
			return nil
		}, nil
	case arrow.TIMESTAMP:
		unit := field.Type.(*arrow.TimestampType).Unit
		return func(b array.Builder, v any) error {
			t, ok := v.(time.Time)
			if !ok {
				return typeError(field, "time.Time", v)
			}
			ts, err := arrow.TimestampFromTime(t, unit)
			if err != nil {
				return err
			}
			b.(*array.TimestampBuilder).Append(ts)
			return nil
		}, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return func(b array.Builder, v any) error {
			switch s := v.(type) {
			case string:
				b.(stringBuilder).Append(s)
			case []byte:
				b.(stringBuilder).Append(string(s))
			default:
				return typeError(field, "string", v)
			}
			return nil
		}, nil
	case arrow.BINARY, arrow.LARGE_BINARY:
		if sqltype.IsVariantField(field) {
			return encodeVariant, nil
		}
		return func(b array.Builder, v any) error {
			switch raw := v.(type) {
			case []byte:
				b.(*array.BinaryBuilder).Append(raw)
			case string:
				b.(*array.BinaryBuilder).Append([]byte(raw))
			default:
				return typeError(field, "[]byte", v)
			}
			return nil
		}, nil
	case arrow.DECIMAL128:
		dt := field.Type.(*arrow.Decimal128Type)
		return func(b array.Builder, v any) error {
			s, ok := v.(string)
			if !ok {
				return typeError(field, "decimal string", v)
			}
			n, err := decimal128.FromString(s, dt.Precision, dt.Scale)
			if err != nil {
				return fmt.Errorf("field %q: invalid decimal %q: %w", field.Name, s, err)
			}
			b.(*array.Decimal128Builder).Append(n)
			return nil
		}, nil
	case arrow.DECIMAL256:
		dt := field.Type.(*arrow.Decimal256Type)
		return func(b array.Builder, v any) error {
			s, ok := v.(string)
			if !ok {
				return typeError(field, "decimal string", v)
			}
			n, err := decimal256.FromString(s, dt.Precision, dt.Scale)
			if err != nil {
				return fmt.Errorf("field %q: invalid decimal %q: %w", field.Name, s, err)
			}
			b.(*array.Decimal256Builder).Append(n)
			return nil
		}, nil
	case arrow.LIST:
		elemFn, err := compileEncode(field.Type.(*arrow.ListType).ElemField())
		if err != nil {
			return nil, err
		}
		return func(b array.Builder, v any) error {
			elems, ok := v.([]any)
			if !ok {
				return typeError(field, "[]any", v)
			}
			lb := b.(*array.ListBuilder)
			lb.Append(true)
			vb := lb.ValueBuilder()
			for _, el := range elems {
				if err := elemFn(vb, el); err != nil {
					return err
				}
			}
			return nil
		}, nil
	case arrow.STRUCT:
		st := field.Type.(*arrow.StructType)
		fns := make([]encodeFunc, st.NumFields())
		for i := range fns {
			fn, err := compileEncode(st.Field(i))
			if err != nil {
				return nil, err
			}
			fns[i] = fn
		}
		return func(b array.Builder, v any) error {
			tuple, ok := v.([]any)
			if !ok {
				return typeError(field, "[]any tuple", v)
			}
			if len(tuple) != len(fns) {
				return fmt.Errorf("field %q: tuple has %d members, want %d", field.Name, len(tuple), len(fns))
			}
			sb := b.(*array.StructBuilder)
			sb.Append(true)
			for i, fn := range fns {
				if err := fn(sb.FieldBuilder(i), tuple[i]); err != nil {
					return err
				}
			}
			return nil
		}, nil
	case arrow.MAP:
		mt := field.Type.(*arrow.MapType)
		keyFn, err := compileEncode(mt.KeyField())
		if err != nil {
			return nil, err
		}
		valueFn, err := compileEncode(mt.ItemField())
		if err != nil {
			return nil, err
		}
		appendEntry := func(mb *array.MapBuilder, k, v any) error {
			if err := keyFn(mb.KeyBuilder(), k); err != nil {
				return err
			}
			return valueFn(mb.ItemBuilder(), v)
		}
		return func(b array.Builder, v any) error {
			mb := b.(*array.MapBuilder)
			switch m := v.(type) {
			case map[string]any:
				mb.Append(true)
				for k, item := range m {
					if err := appendEntry(mb, k, item); err != nil {
						return err
					}
				}
			case map[any]any:
				mb.Append(true)
				for k, item := range m {
					if err := appendEntry(mb, k, item); err != nil {
						return err
					}
				}
			default:
				return typeError(field, "map", v)
			}
			return nil
		}, nil
	default:
		return nil, fmt.Errorf("codec: no encoder for arrow type %s", field.Type)
	}
}

// encodeVariant serializes a dynamically typed value as JSON text. Raw byte
// strings anywhere in the value, including nested inside lists and maps, are
// rewritten as UTF-8 text first so the payload is always valid JSON.
func encodeVariant(b array.Builder, v any) error {
	data, err := json.Marshal(ensureJSONText(v))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	b.(*array.BinaryBuilder).Append(data)
	return nil
}

func ensureJSONText(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = ensureJSONText(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = ensureJSONText(el)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[jsonKey(k)] = ensureJSONText(el)
		}
		return out
	default:
		return v
	}
}

func jsonKey(k any) string {
	switch s := k.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func typeError(field arrow.Field, want string, got any) error {
	return fmt.Errorf("field %q: expected %s, got %T", field.Name, want, got)
}

// encodeSigned builds an encoder for a signed integer width. Any Go integer
// type within range is accepted.
func encodeSigned[T int8 | int16 | int32 | int64](field arrow.Field, lo, hi int64, appendFn func(array.Builder, T)) encodeFunc {
	return func(b array.Builder, v any) error {
		n, ok := asInt64(v)
		if !ok {
			return typeError(field, "integer", v)
		}
		if n < lo || n > hi {
			return fmt.Errorf("field %q: value %d out of range [%d, %d]", field.Name, n, lo, hi)
		}
		appendFn(b, T(n))
		return nil
	}
}

// encodeUnsigned builds an encoder for an unsigned integer width.
func encodeUnsigned[T uint8 | uint16 | uint32 | uint64](field arrow.Field, hi uint64, appendFn func(array.Builder, T)) encodeFunc {
	return func(b array.Builder, v any) error {
		n, ok := asUint64(v)
		if !ok {
			return typeError(field, "unsigned integer", v)
		}
		if n > hi {
			return fmt.Errorf("field %q: value %d out of range [0, %d]", field.Name, n, hi)
		}
		appendFn(b, T(n))
		return nil
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case int, int8, int16, int32, int64:
		signed, _ := asInt64(v)
		if signed < 0 {
			return 0, false
		}
		return uint64(signed), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	default:
		if n, ok := asInt64(v); ok {
			return float64(n), true
		}
		return 0, false
	}
}
