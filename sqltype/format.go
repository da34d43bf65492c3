package sqltype

import (
	"fmt"
	"strings"
)

// Format renders a descriptor in canonical SQL syntax, suitable for
// advertising a registered signature back to the catalog. The result
// round-trips through Parse.
//
// Top-level descriptors render bare when nullable and with a trailing
// NOT NULL otherwise; nested descriptors render bare when non-nullable and
// with a trailing NULL otherwise, mirroring the catalog's defaults.
func Format(t Type) string {
	if !t.Nullable {
		return keywordOf(t) + " NOT NULL"
	}
	return keywordOf(t)
}

func formatInner(t Type) string {
	if t.Nullable {
		return keywordOf(t) + " NULL"
	}
	return keywordOf(t)
}

func keywordOf(t Type) string {
	switch t.Kind {
	case Boolean:
		return "BOOLEAN"
	case Int8:
		return "TINYINT"
	case Int16:
		return "SMALLINT"
	case Int32:
		return "INT"
	case Int64:
		return "BIGINT"
	case Uint8:
		return "TINYINT UNSIGNED"
	case Uint16:
		return "SMALLINT UNSIGNED"
	case Uint32:
		return "INT UNSIGNED"
	case Uint64:
		return "BIGINT UNSIGNED"
	case Float32:
		return "FLOAT"
	case Float64:
		return "DOUBLE"
	case Date:
		return "DATE"
	case Timestamp:
		return "TIMESTAMP"
	case String:
		return "VARCHAR"
	case Binary:
		if t.Variant {
			return "VARIANT"
		}
		return "BINARY"
	case Decimal:
		return fmt.Sprintf("DECIMAL(%d, %d)", t.Precision, t.Scale)
	case List:
		return "ARRAY(" + formatInner(*t.Elem) + ")"
	case Map:
		return "MAP(" + formatInner(*t.Key) + ", " + formatInner(*t.Value) + ")"
	case Struct:
		members := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			members[i] = formatInner(f)
		}
		return "TUPLE(" + strings.Join(members, ", ") + ")"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t.Kind)
	}
}
