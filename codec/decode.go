package codec

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/goccy/go-json"

	"github.com/exabend/udf-go/sqltype"
)

// A Decoder converts one Arrow column into native Go row values.
// Decoders are immutable after compilation and safe for concurrent use.
type Decoder struct {
	field arrow.Field
	fn    decodeFunc
}

// decodeFunc extracts the native value at the given row. Null slots yield
// nil; the function never sees a released array.
type decodeFunc func(arr arrow.Array, row int) (any, error)

// NewDecoder compiles a decoder for the given field.
func NewDecoder(field arrow.Field) (*Decoder, error) {
	fn, err := compileDecode(field)
	if err != nil {
		return nil, err
	}
	return &Decoder{field: field, fn: fn}, nil
}

// Field returns the field the decoder was compiled for.
func (d *Decoder) Field() arrow.Field { return d.field }

// DecodeColumn converts every slot of the column into its native form,
// preserving row order. Null slots decode to nil.
func (d *Decoder) DecodeColumn(arr arrow.Array) ([]any, error) {
	out := make([]any, arr.Len())
	for i := range out {
		v, err := d.fn(arr, i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DecodeValue converts a single slot.
func (d *Decoder) DecodeValue(arr arrow.Array, row int) (any, error) {
	return d.fn(arr, row)
}

// stringArray is satisfied by both *array.String and *array.LargeString.
type stringArray interface {
	arrow.Array
	Value(int) string
}

// binaryArray is satisfied by both *array.Binary and *array.LargeBinary.
type binaryArray interface {
	arrow.Array
	Value(int) []byte
}

func compileDecode(field arrow.Field) (decodeFunc, error) {
	fn, err := compileDecodeValue(field)
	if err != nil {
		return nil, err
	}
	return func(arr arrow.Array, row int) (any, error) {
		if arr.IsNull(row) {
			return nil, nil
		}
		return fn(arr, row)
	}, nil
}

func compileDecodeValue(field arrow.Field) (decodeFunc, error) {
	switch field.Type.ID() {
	case arrow.BOOL:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Boolean).Value(row), nil
		}, nil
	case arrow.INT8:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Int8).Value(row), nil
		}, nil
	case arrow.INT16:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Int16).Value(row), nil
		}, nil
	case arrow.INT32:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Int32).Value(row), nil
		}, nil
	case arrow.INT64:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Int64).Value(row), nil
		}, nil
	case arrow.UINT8:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Uint8).Value(row), nil
		}, nil
	case arrow.UINT16:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Uint16).Value(row), nil
		}, nil
	case arrow.UINT32:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Uint32).Value(row), nil
		}, nil
	case arrow.UINT64:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Uint64).Value(row), nil
		}, nil
	case arrow.FLOAT32:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Float32).Value(row), nil
		}, nil
	case arrow.FLOAT64:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Float64).Value(row), nil
		}, nil
	case arrow.DATE32:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Date32).Value(row).ToTime(), nil
		}, nil
	case arrow.TIMESTAMP:
		unit := field.Type.(*arrow.TimestampType).Unit
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Timestamp).Value(row).ToTime(unit), nil
		}, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(stringArray).Value(row), nil
		}, nil
	case arrow.BINARY, arrow.LARGE_BINARY:
		if sqltype.IsVariantField(field) {
			return decodeVariant, nil
		}
		return func(arr arrow.Array, row int) (any, error) {
			return bytes.Clone(arr.(binaryArray).Value(row)), nil
		}, nil
	case arrow.DECIMAL128:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Decimal128).ValueStr(row), nil
		}, nil
	case arrow.DECIMAL256:
		return func(arr arrow.Array, row int) (any, error) {
			return arr.(*array.Decimal256).ValueStr(row), nil
		}, nil
	case arrow.LIST, arrow.LARGE_LIST:
		elemField := field.Type.(arrow.ListLikeType).ElemField()
		elemFn, err := compileDecode(elemField)
		if err != nil {
			return nil, err
		}
		return func(arr arrow.Array, row int) (any, error) {
			la := arr.(array.ListLike)
			start, end := la.ValueOffsets(row)
			values := la.ListValues()
			out := make([]any, 0, end-start)
			for j := start; j < end; j++ {
				v, err := elemFn(values, int(j))
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil
		}, nil
	case arrow.STRUCT:
		st := field.Type.(*arrow.StructType)
		fns := make([]decodeFunc, st.NumFields())
		for i := range fns {
			fn, err := compileDecode(st.Field(i))
			if err != nil {
				return nil, err
			}
			fns[i] = fn
		}
		return func(arr arrow.Array, row int) (any, error) {
			sa := arr.(*array.Struct)
			tuple := make([]any, len(fns))
			for i, fn := range fns {
				v, err := fn(sa.Field(i), row)
				if err != nil {
					return nil, err
				}
				tuple[i] = v
			}
			return tuple, nil
		}, nil
	case arrow.MAP:
		mt := field.Type.(*arrow.MapType)
		keyFn, err := compileDecode(mt.KeyField())
		if err != nil {
			return nil, err
		}
		valueFn, err := compileDecode(mt.ItemField())
		if err != nil {
			return nil, err
		}
		keyID := mt.KeyField().Type.ID()
		stringKeys := keyID == arrow.STRING || keyID == arrow.LARGE_STRING
		return func(arr arrow.Array, row int) (any, error) {
			ma := arr.(*array.Map)
			start, end := ma.ValueOffsets(row)
			keys, items := ma.Keys(), ma.Items()
			if stringKeys {
				m := make(map[string]any, end-start)
				for j := start; j < end; j++ {
					k, err := keyFn(keys, int(j))
					if err != nil {
						return nil, err
					}
					v, err := valueFn(items, int(j))
					if err != nil {
						return nil, err
					}
					m[k.(string)] = v
				}
				return m, nil
			}
			m := make(map[any]any, end-start)
			for j := start; j < end; j++ {
				k, err := keyFn(keys, int(j))
				if err != nil {
					return nil, err
				}
				v, err := valueFn(items, int(j))
				if err != nil {
					return nil, err
				}
				m[k] = v
			}
			return m, nil
		}, nil
	default:
		return nil, fmt.Errorf("codec: no decoder for arrow type %s", field.Type)
	}
}

// decodeVariant parses the raw JSON bytes of a variant slot.
func decodeVariant(arr arrow.Array, row int) (any, error) {
	raw := arr.(binaryArray).Value(row)
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return v, nil
}
