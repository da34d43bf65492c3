package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/exabend/udf-go/codec"
	"github.com/exabend/udf-go/sqltype"
)

// outputFieldName is the name of the single result column.
const outputFieldName = "output"

// RowFunc evaluates one row. args holds one decoded native value per
// declared argument, in declaration order; a nil arg is an SQL NULL.
// Returning nil produces an SQL NULL result for that row.
type RowFunc func(ctx context.Context, args []any) (any, error)

// BatchFunc evaluates a whole batch in a single call. cols holds one
// decoded column per declared argument; the returned column must have the
// same length as the input columns.
type BatchFunc func(ctx context.Context, cols [][]any) ([]any, error)

// Function declares a scalar function before compilation.
type Function struct {
	// Name is the SQL-visible function name. REQUIRED.
	Name string

	// ArgNames are the positional argument names, one per ArgTypes entry.
	ArgNames []string

	// ArgTypes are SQL type descriptors for the inputs (e.g. "INT",
	// "ARRAY(VARCHAR) NOT NULL").
	ArgTypes []string

	// ReturnType is the SQL type descriptor of the result.
	ReturnType string

	// RowFunc evaluates one row at a time. Exactly one of RowFunc and
	// BatchFunc must be set.
	RowFunc RowFunc

	// BatchFunc evaluates the whole batch in a single call. The engine
	// performs no null skipping in batch mode: a function declaring both
	// BatchFunc and SkipNull must handle nulls itself.
	BatchFunc BatchFunc

	// IOThreads > 1 evaluates rows concurrently on a bounded per-function
	// worker pool of that size. Only meaningful with RowFunc; intended for
	// I/O bound functions.
	IOThreads int

	// SkipNull forces the result to NULL for any row with a NULL argument,
	// without invoking the function. Requires a nullable ReturnType.
	SkipNull bool
}

// ScalarFunction is a compiled, immutable function. Schemas and codecs are
// derived once at registration and reused for every batch.
type ScalarFunction struct {
	name         string
	inputSchema  *arrow.Schema
	resultSchema *arrow.Schema
	decoders     []*codec.Decoder
	encoder      *codec.Encoder

	rowFn     RowFunc
	batchFn   BatchFunc
	ioThreads int
	skipNull  bool

	logger *slog.Logger
}

// Compile validates the declaration, parses its type descriptors and
// derives the codecs. The result is ready for evaluation but not yet
// registered.
func Compile(def Function) (*ScalarFunction, error) {
	return compile(def, slog.Default())
}

func compile(def Function, logger *slog.Logger) (*ScalarFunction, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: function name is required", ErrConfig)
	}
	if (def.RowFunc == nil) == (def.BatchFunc == nil) {
		return nil, fmt.Errorf("%w: function %q must set exactly one of RowFunc and BatchFunc", ErrConfig, def.Name)
	}
	if len(def.ArgNames) != len(def.ArgTypes) {
		return nil, fmt.Errorf("%w: function %q declares %d argument names for %d types",
			ErrConfig, def.Name, len(def.ArgNames), len(def.ArgTypes))
	}

	inputFields := make([]arrow.Field, len(def.ArgTypes))
	decoders := make([]*codec.Decoder, len(def.ArgTypes))
	for i, descriptor := range def.ArgTypes {
		parsed, err := sqltype.Parse(descriptor)
		if err != nil {
			return nil, fmt.Errorf("function %q: argument %q: %w", def.Name, def.ArgNames[i], err)
		}
		inputFields[i] = parsed.ArrowField(def.ArgNames[i])
		dec, err := codec.NewDecoder(inputFields[i])
		if err != nil {
			return nil, fmt.Errorf("function %q: argument %q: %w", def.Name, def.ArgNames[i], err)
		}
		decoders[i] = dec
	}

	returnType, err := sqltype.Parse(def.ReturnType)
	if err != nil {
		return nil, fmt.Errorf("function %q: return type: %w", def.Name, err)
	}
	outputField := returnType.ArrowField(outputFieldName)

	if def.SkipNull && !outputField.Nullable {
		return nil, fmt.Errorf("%w: function %q: return type must be nullable when SkipNull is set", ErrConfig, def.Name)
	}

	encoder, err := codec.NewEncoder(outputField)
	if err != nil {
		return nil, fmt.Errorf("function %q: return type: %w", def.Name, err)
	}

	return &ScalarFunction{
		name:         def.Name,
		inputSchema:  arrow.NewSchema(inputFields, nil),
		resultSchema: arrow.NewSchema([]arrow.Field{outputField}, nil),
		decoders:     decoders,
		encoder:      encoder,
		rowFn:        def.RowFunc,
		batchFn:      def.BatchFunc,
		ioThreads:    def.IOThreads,
		skipNull:     def.SkipNull,
		logger:       logger,
	}, nil
}

// Name returns the SQL-visible function name.
func (f *ScalarFunction) Name() string { return f.name }

// InputSchema returns the derived input schema, one field per argument.
func (f *ScalarFunction) InputSchema() *arrow.Schema { return f.inputSchema }

// ResultSchema returns the single-field output schema.
func (f *ScalarFunction) ResultSchema() *arrow.Schema { return f.resultSchema }

// DiscoverySchema returns the concatenation of the input fields and the
// output field, the shape clients use to validate a call site.
func (f *ScalarFunction) DiscoverySchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, f.inputSchema.NumFields()+1)
	fields = append(fields, f.inputSchema.Fields()...)
	fields = append(fields, f.resultSchema.Field(0))
	return arrow.NewSchema(fields, nil)
}

// Signature renders the canonical advertised signature, e.g.
// "gcd(INT NOT NULL, INT NOT NULL) RETURNS INT".
func (f *ScalarFunction) Signature() string {
	args := make([]string, f.inputSchema.NumFields())
	for i := range args {
		args[i] = formatField(f.inputSchema.Field(i))
	}
	return fmt.Sprintf("%s(%s) RETURNS %s", f.name, strings.Join(args, ", "), formatField(f.resultSchema.Field(0)))
}

// SQLDefinition renders the CREATE FUNCTION statement a catalog at the
// given address would use to register this function.
func (f *ScalarFunction) SQLDefinition(language, address string) string {
	args := make([]string, f.inputSchema.NumFields())
	for i := range args {
		args[i] = formatField(f.inputSchema.Field(i))
	}
	return fmt.Sprintf("CREATE FUNCTION %s (%s) RETURNS %s LANGUAGE %s HANDLER = '%s' ADDRESS = 'http://%s';",
		f.name, strings.Join(args, ", "), formatField(f.resultSchema.Field(0)), language, f.name, address)
}

// ValidateInputSchema checks that a client-sent batch schema is physically
// compatible with the declared arguments before any column reaches the
// decoders. Field names, nullability and metadata may differ; the arrow
// types must match positionally, up to the string/binary width variants the
// decoders accept.
func (f *ScalarFunction) ValidateInputSchema(schema *arrow.Schema) error {
	if schema.NumFields() != f.inputSchema.NumFields() {
		return fmt.Errorf("function %q: batch schema has %d fields, want %d",
			f.name, schema.NumFields(), f.inputSchema.NumFields())
	}
	for i := 0; i < schema.NumFields(); i++ {
		want := f.inputSchema.Field(i)
		got := schema.Field(i)
		if !typesCompatible(want.Type, got.Type) {
			return fmt.Errorf("function %q: argument %q: batch field %q has type %s, want %s",
				f.name, want.Name, got.Name, got.Type, want.Type)
		}
	}
	return nil
}

// typesCompatible reports whether a column of the got type can be decoded
// by a decoder compiled for the want type. String and binary columns may
// arrive in either offset width; everything else must match exactly.
func typesCompatible(want, got arrow.DataType) bool {
	switch want.ID() {
	case arrow.STRING, arrow.LARGE_STRING:
		return got.ID() == arrow.STRING || got.ID() == arrow.LARGE_STRING
	case arrow.BINARY, arrow.LARGE_BINARY:
		return got.ID() == arrow.BINARY || got.ID() == arrow.LARGE_BINARY
	case arrow.LIST, arrow.LARGE_LIST:
		if got.ID() != arrow.LIST && got.ID() != arrow.LARGE_LIST {
			return false
		}
		return typesCompatible(
			want.(arrow.ListLikeType).ElemField().Type,
			got.(arrow.ListLikeType).ElemField().Type,
		)
	case arrow.STRUCT:
		gs, ok := got.(*arrow.StructType)
		if !ok {
			return false
		}
		ws := want.(*arrow.StructType)
		if gs.NumFields() != ws.NumFields() {
			return false
		}
		for i := 0; i < ws.NumFields(); i++ {
			if !typesCompatible(ws.Field(i).Type, gs.Field(i).Type) {
				return false
			}
		}
		return true
	case arrow.MAP:
		gm, ok := got.(*arrow.MapType)
		if !ok {
			return false
		}
		wm := want.(*arrow.MapType)
		return typesCompatible(wm.KeyField().Type, gm.KeyField().Type) &&
			typesCompatible(wm.ItemField().Type, gm.ItemField().Type)
	default:
		return arrow.TypeEqual(want, got)
	}
}

func formatField(field arrow.Field) string {
	s, err := sqltype.FormatArrowField(field)
	if err != nil {
		// Fields derived from parsed descriptors always format; anything
		// else is a programming error.
		return field.Type.String()
	}
	return s
}
