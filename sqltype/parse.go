package sqltype

import (
	"fmt"
	"strconv"
	"strings"
)

// primitives maps normalized keywords to their descriptor. Two-word forms
// (e.g. "BIGINT UNSIGNED") are stored with a single separating space;
// parsing collapses whitespace before lookup.
var primitives = map[string]Type{
	"BOOLEAN":           {Kind: Boolean},
	"BOOL":              {Kind: Boolean},
	"TINYINT":           {Kind: Int8},
	"INT8":              {Kind: Int8},
	"SMALLINT":          {Kind: Int16},
	"INT16":             {Kind: Int16},
	"INT":               {Kind: Int32},
	"INTEGER":           {Kind: Int32},
	"INT32":             {Kind: Int32},
	"BIGINT":            {Kind: Int64},
	"INT64":             {Kind: Int64},
	"TINYINT UNSIGNED":  {Kind: Uint8},
	"UINT8":             {Kind: Uint8},
	"SMALLINT UNSIGNED": {Kind: Uint16},
	"UINT16":            {Kind: Uint16},
	"INT UNSIGNED":      {Kind: Uint32},
	"INTEGER UNSIGNED":  {Kind: Uint32},
	"UINT32":            {Kind: Uint32},
	"BIGINT UNSIGNED":   {Kind: Uint64},
	"UINT64":            {Kind: Uint64},
	"FLOAT":             {Kind: Float32},
	"FLOAT32":           {Kind: Float32},
	"DOUBLE":            {Kind: Float64},
	"FLOAT64":           {Kind: Float64},
	"DATE":              {Kind: Date},
	"DATETIME":          {Kind: Timestamp},
	"TIMESTAMP":         {Kind: Timestamp},
	"STRING":            {Kind: String},
	"VARCHAR":           {Kind: String},
	"CHAR":              {Kind: String},
	"CHARACTER":         {Kind: String},
	"TEXT":              {Kind: String},
	"BINARY":            {Kind: Binary},
	"VARIANT":           {Kind: Binary, Variant: true},
	"JSON":              {Kind: Binary, Variant: true},
}

// Parse translates a textual SQL type descriptor into its structural form.
// Keywords are case-insensitive. A top-level descriptor is nullable unless
// it carries a trailing NOT NULL; nested descriptors are non-nullable
// unless wrapped in NULLABLE(...) or followed by NULL.
func Parse(s string) (Type, error) {
	src := strings.ToUpper(strings.TrimSpace(s))
	if src == "" {
		return Type{}, fmt.Errorf("%w: empty type descriptor", ErrInvalidTypeSyntax)
	}

	// Top-level nullability modifier. Default is nullable.
	nullable := true
	if rest, ok := cutSuffixWord(src, "NULL"); ok {
		if rest2, ok := cutSuffixWord(rest, "NOT"); ok {
			nullable = false
			src = rest2
		} else {
			src = rest
		}
	}
	if src == "" {
		return Type{}, fmt.Errorf("%w: missing type before nullability modifier", ErrInvalidTypeSyntax)
	}

	t, err := parseInner(src)
	if err != nil {
		return Type{}, err
	}
	t.Nullable = nullable
	return t, nil
}

// parseInner parses a descriptor without the top-level nullability default:
// the result is non-nullable unless the text says otherwise.
func parseInner(src string) (Type, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return Type{}, fmt.Errorf("%w: empty type descriptor", ErrInvalidTypeSyntax)
	}

	// Trailing modifiers bind tighter than the NULLABLE wrapper, matching
	// the catalog's own output.
	if rest, ok := cutSuffixWord(src, "NULL"); ok {
		if rest2, ok := cutSuffixWord(rest, "NOT"); ok {
			t, err := parseInner(rest2)
			if err != nil {
				return Type{}, err
			}
			t.Nullable = false
			return t, nil
		}
		t, err := parseInner(rest)
		if err != nil {
			return Type{}, err
		}
		t.Nullable = true
		return t, nil
	}

	if keyword, body, ok := splitCompound(src); ok {
		switch keyword {
		case "NULLABLE":
			t, err := parseInner(body)
			if err != nil {
				return Type{}, err
			}
			t.Nullable = true
			return t, nil
		case "DECIMAL":
			return parseDecimal(body)
		case "ARRAY":
			elem, err := parseInner(body)
			if err != nil {
				return Type{}, err
			}
			return Type{Kind: List, Elem: &elem}, nil
		case "MAP":
			args, err := splitArgs(body)
			if err != nil {
				return Type{}, err
			}
			if len(args) != 2 {
				return Type{}, fmt.Errorf("%w: MAP takes exactly 2 type arguments, got %d", ErrInvalidTypeSyntax, len(args))
			}
			key, err := parseInner(args[0])
			if err != nil {
				return Type{}, err
			}
			value, err := parseInner(args[1])
			if err != nil {
				return Type{}, err
			}
			return Type{Kind: Map, Key: &key, Value: &value}, nil
		case "TUPLE":
			args, err := splitArgs(body)
			if err != nil {
				return Type{}, err
			}
			if len(args) == 0 {
				return Type{}, fmt.Errorf("%w: TUPLE requires at least one member type", ErrInvalidTypeSyntax)
			}
			fields := make([]Type, len(args))
			for i, arg := range args {
				f, err := parseInner(arg)
				if err != nil {
					return Type{}, err
				}
				fields[i] = f
			}
			return Type{Kind: Struct, Fields: fields}, nil
		}
		// Parenthesized form with an unknown head keyword.
		return Type{}, fmt.Errorf("%w: %s", ErrUnsupportedType, src)
	}

	if strings.ContainsAny(src, "(),") {
		return Type{}, fmt.Errorf("%w: malformed compound type %q", ErrInvalidTypeSyntax, src)
	}
	normalized := strings.Join(strings.Fields(src), " ")
	if t, ok := primitives[normalized]; ok {
		return t, nil
	}
	return Type{}, fmt.Errorf("%w: %s", ErrUnsupportedType, normalized)
}

func parseDecimal(body string) (Type, error) {
	args, err := splitArgs(body)
	if err != nil {
		return Type{}, err
	}
	if len(args) != 2 {
		return Type{}, fmt.Errorf("%w: DECIMAL takes exactly 2 arguments (precision, scale), got %d", ErrInvalidTypeSyntax, len(args))
	}
	precision, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return Type{}, fmt.Errorf("%w: decimal precision %q is not an integer", ErrInvalidTypeSyntax, args[0])
	}
	scale, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return Type{}, fmt.Errorf("%w: decimal scale %q is not an integer", ErrInvalidTypeSyntax, args[1])
	}
	if precision < 1 || precision > MaxDecimal256Precision {
		return Type{}, fmt.Errorf("%w: precision must be between 1 and %d, got %d", ErrInvalidDecimalSpec, MaxDecimal256Precision, precision)
	}
	if scale < 0 || scale > precision {
		return Type{}, fmt.Errorf("%w: scale must be between 0 and precision %d, got %d", ErrInvalidDecimalSpec, precision, scale)
	}
	return Type{Kind: Decimal, Precision: int32(precision), Scale: int32(scale)}, nil
}

// splitCompound detects the KEYWORD(body) form. The whole remainder of src
// must be consumed by the parenthesized body.
func splitCompound(src string) (keyword, body string, ok bool) {
	open := strings.IndexByte(src, '(')
	if open < 0 {
		return "", "", false
	}
	if !strings.HasSuffix(src, ")") {
		return "", "", false
	}
	keyword = strings.TrimSpace(src[:open])
	if keyword == "" || strings.ContainsAny(keyword, " ,()") {
		return "", "", false
	}
	return keyword, src[open+1 : len(src)-1], true
}

// splitArgs splits body on top-level commas, respecting nested parentheses.
func splitArgs(body string) ([]string, error) {
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced parentheses in %q", ErrInvalidTypeSyntax, body)
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced parentheses in %q", ErrInvalidTypeSyntax, body)
	}
	last := strings.TrimSpace(body[start:])
	if last == "" && len(args) == 0 {
		return nil, nil
	}
	if last == "" {
		return nil, fmt.Errorf("%w: trailing comma in %q", ErrInvalidTypeSyntax, body)
	}
	for _, a := range args {
		if a == "" {
			return nil, fmt.Errorf("%w: empty type argument in %q", ErrInvalidTypeSyntax, body)
		}
	}
	return append(args, last), nil
}

// cutSuffixWord removes a trailing keyword if it stands as its own word.
func cutSuffixWord(s, word string) (string, bool) {
	if !strings.HasSuffix(s, word) {
		return s, false
	}
	rest := s[:len(s)-len(word)]
	if rest == "" {
		// The keyword alone is not a type.
		return s, false
	}
	if rest[len(rest)-1] != ' ' {
		return s, false
	}
	return strings.TrimRight(rest, " "), true
}
