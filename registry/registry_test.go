package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/exabend/udf-go/codec"
)

func gcd(x, y int64) int64 {
	for y != 0 {
		x, y = y, x%y
	}
	return x
}

func gcdRow(_ context.Context, args []any) (any, error) {
	return gcd(args[0].(int64), args[1].(int64)), nil
}

func gcdDef() Function {
	return Function{
		Name:       "gcd",
		ArgNames:   []string{"x", "y"},
		ArgTypes:   []string{"BIGINT NOT NULL", "BIGINT NOT NULL"},
		ReturnType: "BIGINT",
		RowFunc:    gcdRow,
	}
}

// int64Batch builds an input batch of int64 columns. A nil *int64 marks a
// null slot.
func int64Batch(t *testing.T, schema *arrow.Schema, cols [][]*int64) arrow.RecordBatch {
	t.Helper()
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for i, col := range cols {
		fb := b.Field(i).(*array.Int64Builder)
		for _, v := range col {
			if v == nil {
				fb.AppendNull()
			} else {
				fb.Append(*v)
			}
		}
	}
	return b.NewRecordBatch()
}

func ptr(v int64) *int64 { return &v }

func int64Column(t *testing.T, rec arrow.RecordBatch) []*int64 {
	t.Helper()
	arr, ok := rec.Column(0).(*array.Int64)
	if !ok {
		t.Fatalf("output column is %T, want *array.Int64", rec.Column(0))
	}
	out := make([]*int64, arr.Len())
	for i := range out {
		if arr.IsValid(i) {
			out[i] = ptr(arr.Value(i))
		}
	}
	return out
}

func TestRegistryAddAndLookup(t *testing.T) {
	reg := New(nil)

	fn, err := reg.Add(gcdDef())
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if fn.Name() != "gcd" {
		t.Errorf("Name() = %q", fn.Name())
	}

	got, err := reg.Lookup("gcd")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got != fn {
		t.Error("Lookup returned a different function")
	}

	if _, err := reg.Add(gcdDef()); !errors.Is(err, ErrDuplicateFunction) {
		t.Errorf("duplicate Add = %v, want ErrDuplicateFunction", err)
	}
	if _, err := reg.Lookup("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(nope) = %v, want ErrNotFound", err)
	}
}

func TestSignature(t *testing.T) {
	fn, err := Compile(gcdDef())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	want := "gcd(BIGINT NOT NULL, BIGINT NOT NULL) RETURNS BIGINT"
	if got := fn.Signature(); got != want {
		t.Errorf("Signature() = %q, want %q", got, want)
	}

	def := fn.SQLDefinition("python", "localhost:8815")
	if !strings.Contains(def, "CREATE FUNCTION gcd (BIGINT NOT NULL, BIGINT NOT NULL) RETURNS BIGINT") {
		t.Errorf("SQLDefinition() = %q", def)
	}
	if !strings.Contains(def, "ADDRESS = 'http://localhost:8815'") {
		t.Errorf("SQLDefinition() missing address: %q", def)
	}
}

func TestDiscoverySchema(t *testing.T) {
	fn, err := Compile(gcdDef())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	schema := fn.DiscoverySchema()
	if schema.NumFields() != 3 {
		t.Fatalf("discovery schema has %d fields, want 3", schema.NumFields())
	}
	if schema.Field(0).Name != "x" || schema.Field(1).Name != "y" {
		t.Errorf("input field names = %q, %q", schema.Field(0).Name, schema.Field(1).Name)
	}
	if schema.Field(2).Name != "output" {
		t.Errorf("output field name = %q, want output", schema.Field(2).Name)
	}
}

func TestCompileValidation(t *testing.T) {
	t.Run("SkipNullRequiresNullableOutput", func(t *testing.T) {
		def := gcdDef()
		def.ReturnType = "BIGINT NOT NULL"
		def.SkipNull = true
		if _, err := Compile(def); !errors.Is(err, ErrConfig) {
			t.Errorf("Compile = %v, want ErrConfig", err)
		}

		def.ReturnType = "BIGINT"
		if _, err := Compile(def); err != nil {
			t.Errorf("Compile with nullable output failed: %v", err)
		}
	})

	t.Run("ExactlyOneBody", func(t *testing.T) {
		def := gcdDef()
		def.RowFunc = nil
		if _, err := Compile(def); !errors.Is(err, ErrConfig) {
			t.Errorf("Compile without body = %v, want ErrConfig", err)
		}

		def = gcdDef()
		def.BatchFunc = func(_ context.Context, cols [][]any) ([]any, error) { return cols[0], nil }
		if _, err := Compile(def); !errors.Is(err, ErrConfig) {
			t.Errorf("Compile with two bodies = %v, want ErrConfig", err)
		}
	})

	t.Run("ArgCountMismatch", func(t *testing.T) {
		def := gcdDef()
		def.ArgNames = []string{"x"}
		if _, err := Compile(def); !errors.Is(err, ErrConfig) {
			t.Errorf("Compile = %v, want ErrConfig", err)
		}
	})

	t.Run("BadTypeDescriptor", func(t *testing.T) {
		def := gcdDef()
		def.ArgTypes = []string{"BIGINT", "FROBNICATOR"}
		if _, err := Compile(def); err == nil {
			t.Error("Compile with unknown type succeeded")
		}
	})
}

func TestSkipNullForcesNullRows(t *testing.T) {
	def := Function{
		Name:       "add_one",
		ArgNames:   []string{"x"},
		ArgTypes:   []string{"BIGINT"},
		ReturnType: "BIGINT",
		RowFunc: func(_ context.Context, args []any) (any, error) {
			return args[0].(int64) + 1, nil
		},
		SkipNull: true,
	}
	fn, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	rec := int64Batch(t, fn.InputSchema(), [][]*int64{{ptr(10), nil, ptr(30)}})
	defer rec.Release()

	out, err := fn.EvalBatch(context.Background(), rec, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("EvalBatch failed: %v", err)
	}
	defer out.Release()

	got := int64Column(t, out)
	if got[0] == nil || *got[0] != 11 {
		t.Errorf("row 0 = %v, want 11", got[0])
	}
	if got[1] != nil {
		t.Errorf("row 1 = %v, want null", *got[1])
	}
	if got[2] == nil || *got[2] != 31 {
		t.Errorf("row 2 = %v, want 31", got[2])
	}
}

func TestBatchModeMatchesSequential(t *testing.T) {
	seqFn, err := Compile(gcdDef())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	batchDef := gcdDef()
	batchDef.Name = "gcd_batch"
	batchDef.RowFunc = nil
	batchDef.BatchFunc = func(_ context.Context, cols [][]any) ([]any, error) {
		out := make([]any, len(cols[0]))
		for i := range out {
			out[i] = gcd(cols[0][i].(int64), cols[1][i].(int64))
		}
		return out, nil
	}
	batchFn, err := Compile(batchDef)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	xs := [][]*int64{{ptr(1), ptr(2), ptr(3)}, {ptr(3), ptr(2), ptr(1)}}
	ctx := context.Background()

	seqRec := int64Batch(t, seqFn.InputSchema(), xs)
	defer seqRec.Release()
	seqOut, err := seqFn.EvalBatch(ctx, seqRec, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("sequential EvalBatch failed: %v", err)
	}
	defer seqOut.Release()

	batchRec := int64Batch(t, batchFn.InputSchema(), xs)
	defer batchRec.Release()
	batchOut, err := batchFn.EvalBatch(ctx, batchRec, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("batch EvalBatch failed: %v", err)
	}
	defer batchOut.Release()

	seqVals := int64Column(t, seqOut)
	batchVals := int64Column(t, batchOut)
	for i := range seqVals {
		if *seqVals[i] != *batchVals[i] {
			t.Errorf("row %d: sequential %d, batch %d", i, *seqVals[i], *batchVals[i])
		}
	}
	if *seqVals[0] != 1 || *seqVals[1] != 2 || *seqVals[2] != 1 {
		t.Errorf("gcd results = %v, want [1 2 1]", []int64{*seqVals[0], *seqVals[1], *seqVals[2]})
	}
}

func TestConcurrentMatchesSequential(t *testing.T) {
	const rows = 1000

	seqFn, err := Compile(gcdDef())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	concDef := gcdDef()
	concDef.Name = "gcd_conc"
	concDef.IOThreads = 8
	concFn, err := Compile(concDef)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	xs := make([]*int64, rows)
	ys := make([]*int64, rows)
	for i := range xs {
		xs[i] = ptr(int64(i%97 + 1))
		ys[i] = ptr(int64(i%41 + 1))
	}
	ctx := context.Background()

	seqRec := int64Batch(t, seqFn.InputSchema(), [][]*int64{xs, ys})
	defer seqRec.Release()
	seqOut, err := seqFn.EvalBatch(ctx, seqRec, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("sequential EvalBatch failed: %v", err)
	}
	defer seqOut.Release()

	concRec := int64Batch(t, concFn.InputSchema(), [][]*int64{xs, ys})
	defer concRec.Release()
	concOut, err := concFn.EvalBatch(ctx, concRec, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("concurrent EvalBatch failed: %v", err)
	}
	defer concOut.Release()

	seqVals := int64Column(t, seqOut)
	concVals := int64Column(t, concOut)
	for i := range seqVals {
		if *seqVals[i] != *concVals[i] {
			t.Fatalf("row %d: sequential %d, concurrent %d", i, *seqVals[i], *concVals[i])
		}
	}
}

func TestEvalErrorAbortsBatch(t *testing.T) {
	def := Function{
		Name:       "explode",
		ArgNames:   []string{"x"},
		ArgTypes:   []string{"BIGINT"},
		ReturnType: "BIGINT",
		RowFunc: func(_ context.Context, args []any) (any, error) {
			if args[0].(int64) == 2 {
				return nil, errors.New("boom")
			}
			return args[0], nil
		},
	}
	fn, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	rec := int64Batch(t, fn.InputSchema(), [][]*int64{{ptr(1), ptr(2), ptr(3)}})
	defer rec.Release()

	out, err := fn.EvalBatch(context.Background(), rec, memory.DefaultAllocator)
	if out != nil {
		out.Release()
		t.Fatal("EvalBatch returned partial output alongside error")
	}
	if !errors.Is(err, ErrEvaluation) {
		t.Fatalf("EvalBatch = %v, want ErrEvaluation", err)
	}
	// The error carries the function name and the offending row index.
	if !strings.Contains(err.Error(), `"explode"`) || !strings.Contains(err.Error(), "row 1") {
		t.Errorf("error not annotated with name and row: %v", err)
	}
}

func TestRowPanicRecovered(t *testing.T) {
	def := Function{
		Name:       "panics",
		ArgNames:   []string{"x"},
		ArgTypes:   []string{"BIGINT"},
		ReturnType: "BIGINT",
		RowFunc: func(_ context.Context, args []any) (any, error) {
			panic("user bug")
		},
	}
	fn, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	rec := int64Batch(t, fn.InputSchema(), [][]*int64{{ptr(1)}})
	defer rec.Release()

	if _, err := fn.EvalBatch(context.Background(), rec, memory.DefaultAllocator); !errors.Is(err, ErrEvaluation) {
		t.Errorf("EvalBatch after panic = %v, want ErrEvaluation", err)
	}
}

func TestBatchModeRowCountMismatch(t *testing.T) {
	def := Function{
		Name:       "shrink",
		ArgNames:   []string{"x"},
		ArgTypes:   []string{"BIGINT"},
		ReturnType: "BIGINT",
		BatchFunc: func(_ context.Context, cols [][]any) ([]any, error) {
			return cols[0][:1], nil
		},
	}
	fn, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	rec := int64Batch(t, fn.InputSchema(), [][]*int64{{ptr(1), ptr(2)}})
	defer rec.Release()

	if _, err := fn.EvalBatch(context.Background(), rec, memory.DefaultAllocator); !errors.Is(err, ErrEvaluation) {
		t.Errorf("EvalBatch = %v, want ErrEvaluation for short output", err)
	}
}

func TestColumnTypeMismatchReturnsError(t *testing.T) {
	fn, err := Compile(gcdDef())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// Same shape, wrong physical type: int32 columns for BIGINT arguments.
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Int32},
		{Name: "y", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	b.Field(0).(*array.Int32Builder).Append(6)
	b.Field(1).(*array.Int32Builder).Append(4)
	rec := b.NewRecordBatch()
	b.Release()
	defer rec.Release()

	out, err := fn.EvalBatch(context.Background(), rec, memory.DefaultAllocator)
	if out != nil {
		out.Release()
		t.Fatal("EvalBatch returned output for a mismatched batch")
	}
	if !errors.Is(err, ErrEvaluation) {
		t.Fatalf("EvalBatch = %v, want ErrEvaluation", err)
	}
}

func TestValidateInputSchema(t *testing.T) {
	def := Function{
		Name:       "wave",
		ArgNames:   []string{"name", "times"},
		ArgTypes:   []string{"VARCHAR", "BIGINT"},
		ReturnType: "VARCHAR",
		RowFunc: func(_ context.Context, args []any) (any, error) {
			return args[0], nil
		},
	}
	fn, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	t.Run("ExactMatch", func(t *testing.T) {
		if err := fn.ValidateInputSchema(fn.InputSchema()); err != nil {
			t.Errorf("ValidateInputSchema = %v, want nil", err)
		}
	})

	t.Run("WidthVariantsAndNamesAccepted", func(t *testing.T) {
		// Narrow string offsets and engine-chosen field names both decode.
		schema := arrow.NewSchema([]arrow.Field{
			{Name: "col0", Type: arrow.BinaryTypes.String, Nullable: true},
			{Name: "col1", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		}, nil)
		if err := fn.ValidateInputSchema(schema); err != nil {
			t.Errorf("ValidateInputSchema = %v, want nil", err)
		}
	})

	t.Run("WrongTypeRejected", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			{Name: "name", Type: arrow.BinaryTypes.LargeString, Nullable: true},
			{Name: "times", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		}, nil)
		err := fn.ValidateInputSchema(schema)
		if err == nil {
			t.Fatal("ValidateInputSchema accepted a float64 column for BIGINT")
		}
		if !strings.Contains(err.Error(), `"times"`) {
			t.Errorf("error does not name the argument: %v", err)
		}
	})

	t.Run("FieldCountMismatch", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			{Name: "name", Type: arrow.BinaryTypes.LargeString, Nullable: true},
		}, nil)
		if err := fn.ValidateInputSchema(schema); err == nil {
			t.Fatal("ValidateInputSchema accepted a one-field schema for two arguments")
		}
	})
}

func TestVariantDecodeErrorIdentity(t *testing.T) {
	def := Function{
		Name:       "variant_echo",
		ArgNames:   []string{"v"},
		ArgTypes:   []string{"VARIANT"},
		ReturnType: "VARIANT",
		RowFunc: func(_ context.Context, args []any) (any, error) {
			return args[0], nil
		},
	}
	fn, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	b := array.NewRecordBuilder(memory.DefaultAllocator, fn.InputSchema())
	b.Field(0).(*array.BinaryBuilder).Append([]byte("{not json"))
	rec := b.NewRecordBatch()
	b.Release()
	defer rec.Release()

	_, err = fn.EvalBatch(context.Background(), rec, memory.DefaultAllocator)
	if !errors.Is(err, ErrEvaluation) {
		t.Fatalf("EvalBatch = %v, want ErrEvaluation", err)
	}
	if !errors.Is(err, codec.ErrSerialization) {
		t.Errorf("EvalBatch = %v, want ErrSerialization in the chain", err)
	}
}

func TestConcurrentSkipNullForcesNullRows(t *testing.T) {
	const rows = 100

	def := Function{
		Name:       "add_one_conc",
		ArgNames:   []string{"x"},
		ArgTypes:   []string{"BIGINT"},
		ReturnType: "BIGINT",
		RowFunc: func(_ context.Context, args []any) (any, error) {
			return args[0].(int64) + 1, nil
		},
		IOThreads: 8,
		SkipNull:  true,
	}
	fn, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	xs := make([]*int64, rows)
	for i := range xs {
		if i%3 == 1 {
			continue
		}
		xs[i] = ptr(int64(i))
	}

	rec := int64Batch(t, fn.InputSchema(), [][]*int64{xs})
	defer rec.Release()

	out, err := fn.EvalBatch(context.Background(), rec, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("EvalBatch failed: %v", err)
	}
	defer out.Release()

	got := int64Column(t, out)
	for i := range got {
		if xs[i] == nil {
			if got[i] != nil {
				t.Errorf("row %d = %d, want null", i, *got[i])
			}
			continue
		}
		if got[i] == nil || *got[i] != int64(i)+1 {
			t.Errorf("row %d = %v, want %d", i, got[i], i+1)
		}
	}
}
