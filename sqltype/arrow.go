package sqltype

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Timestamps carry microsecond precision on the wire.
var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond}

// variantMetadata marks a large binary field as carrying JSON values.
var variantMetadata = arrow.NewMetadata([]string{ExtensionKey}, []string{VariantExtension})

// IsVariantField reports whether the field carries the variant extension
// marker in its metadata.
func IsVariantField(f arrow.Field) bool {
	idx := f.Metadata.FindKey(ExtensionKey)
	return idx >= 0 && f.Metadata.Values()[idx] == VariantExtension
}

// ArrowField converts the descriptor into an Arrow field with the given
// name. Variant descriptors become large binary fields with the extension
// marker; nested descriptors keep their own nullability and markers on the
// child fields.
func (t Type) ArrowField(name string) arrow.Field {
	f := arrow.Field{
		Name:     name,
		Type:     t.arrowType(),
		Nullable: t.Nullable,
	}
	if t.Kind == Binary && t.Variant {
		f.Metadata = variantMetadata
	}
	return f
}

func (t Type) arrowType() arrow.DataType {
	switch t.Kind {
	case Boolean:
		return arrow.FixedWidthTypes.Boolean
	case Int8:
		return arrow.PrimitiveTypes.Int8
	case Int16:
		return arrow.PrimitiveTypes.Int16
	case Int32:
		return arrow.PrimitiveTypes.Int32
	case Int64:
		return arrow.PrimitiveTypes.Int64
	case Uint8:
		return arrow.PrimitiveTypes.Uint8
	case Uint16:
		return arrow.PrimitiveTypes.Uint16
	case Uint32:
		return arrow.PrimitiveTypes.Uint32
	case Uint64:
		return arrow.PrimitiveTypes.Uint64
	case Float32:
		return arrow.PrimitiveTypes.Float32
	case Float64:
		return arrow.PrimitiveTypes.Float64
	case Date:
		return arrow.FixedWidthTypes.Date32
	case Timestamp:
		return timestampType
	case String:
		return arrow.BinaryTypes.LargeString
	case Binary:
		return arrow.BinaryTypes.LargeBinary
	case Decimal:
		if t.Precision < MaxDecimal128Precision {
			return &arrow.Decimal128Type{Precision: t.Precision, Scale: t.Scale}
		}
		return &arrow.Decimal256Type{Precision: t.Precision, Scale: t.Scale}
	case List:
		return arrow.ListOfField(t.Elem.ArrowField("item"))
	case Map:
		// Arrow map keys are always non-nullable; the descriptor keeps the
		// declared nullability for formatting purposes only.
		key := *t.Key
		key.Nullable = false
		return arrow.MapOfFields(key.ArrowField("key"), t.Value.ArrowField("value"))
	case Struct:
		fields := make([]arrow.Field, len(t.Fields))
		for i, ft := range t.Fields {
			fields[i] = ft.ArrowField(fmt.Sprintf("%d", i))
		}
		return arrow.StructOf(fields...)
	default:
		panic(fmt.Sprintf("sqltype: unknown kind %d", t.Kind))
	}
}

// FromArrowField converts an Arrow field back into a structural descriptor.
// This is the inverse of ArrowField for every type the translator can
// produce; it also accepts the narrow (non-large) string/binary variants
// for interoperability with engines that emit them.
func FromArrowField(f arrow.Field) (Type, error) {
	t, err := fromArrowType(f)
	if err != nil {
		return Type{}, err
	}
	t.Nullable = f.Nullable
	return t, nil
}

func fromArrowType(f arrow.Field) (Type, error) {
	switch dt := f.Type.(type) {
	case *arrow.BooleanType:
		return Type{Kind: Boolean}, nil
	case *arrow.Int8Type:
		return Type{Kind: Int8}, nil
	case *arrow.Int16Type:
		return Type{Kind: Int16}, nil
	case *arrow.Int32Type:
		return Type{Kind: Int32}, nil
	case *arrow.Int64Type:
		return Type{Kind: Int64}, nil
	case *arrow.Uint8Type:
		return Type{Kind: Uint8}, nil
	case *arrow.Uint16Type:
		return Type{Kind: Uint16}, nil
	case *arrow.Uint32Type:
		return Type{Kind: Uint32}, nil
	case *arrow.Uint64Type:
		return Type{Kind: Uint64}, nil
	case *arrow.Float32Type:
		return Type{Kind: Float32}, nil
	case *arrow.Float64Type:
		return Type{Kind: Float64}, nil
	case *arrow.Date32Type:
		return Type{Kind: Date}, nil
	case *arrow.TimestampType:
		return Type{Kind: Timestamp}, nil
	case *arrow.LargeStringType, *arrow.StringType:
		return Type{Kind: String}, nil
	case *arrow.LargeBinaryType, *arrow.BinaryType:
		return Type{Kind: Binary, Variant: IsVariantField(f)}, nil
	case *arrow.Decimal128Type:
		return Type{Kind: Decimal, Precision: dt.Precision, Scale: dt.Scale}, nil
	case *arrow.Decimal256Type:
		return Type{Kind: Decimal, Precision: dt.Precision, Scale: dt.Scale}, nil
	case *arrow.ListType:
		elem, err := FromArrowField(dt.ElemField())
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: List, Elem: &elem}, nil
	case *arrow.MapType:
		key, err := FromArrowField(dt.KeyField())
		if err != nil {
			return Type{}, err
		}
		value, err := FromArrowField(dt.ItemField())
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: Map, Key: &key, Value: &value}, nil
	case *arrow.StructType:
		fields := make([]Type, dt.NumFields())
		for i := range fields {
			ft, err := FromArrowField(dt.Field(i))
			if err != nil {
				return Type{}, err
			}
			fields[i] = ft
		}
		return Type{Kind: Struct, Fields: fields}, nil
	default:
		return Type{}, fmt.Errorf("%w: arrow type %s", ErrUnsupportedType, f.Type)
	}
}

// FormatArrowField renders an Arrow field as a canonical SQL type
// descriptor, used when advertising function signatures.
func FormatArrowField(f arrow.Field) (string, error) {
	t, err := FromArrowField(f)
	if err != nil {
		return "", err
	}
	return Format(t), nil
}
