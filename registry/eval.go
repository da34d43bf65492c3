package registry

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/errgroup"

	"github.com/exabend/udf-go/internal/recovery"
)

// EvalBatch evaluates one input batch and returns the single-column output
// batch, preserving row count and row order. The input batch is only read;
// the caller owns it. The caller must release the returned batch.
//
// Any error raised for any row aborts the whole batch: no partial output
// is ever returned.
func (f *ScalarFunction) EvalBatch(ctx context.Context, rec arrow.RecordBatch, mem memory.Allocator) (arrow.RecordBatch, error) {
	if int(rec.NumCols()) != len(f.decoders) {
		return nil, fmt.Errorf("%w: function %q: batch has %d columns, want %d",
			ErrEvaluation, f.name, rec.NumCols(), len(f.decoders))
	}

	cols := make([][]any, len(f.decoders))
	for i, dec := range f.decoders {
		// Recovery also guards the codec: a batch violating the declared
		// schema must fail this exchange, not unwind the handler goroutine.
		col, err := recovery.RecoverToValue(f.logger, f.name, func() ([]any, error) {
			return dec.DecodeColumn(rec.Column(i))
		})
		if err != nil {
			return nil, fmt.Errorf("%w: function %q: argument %q: %w",
				ErrEvaluation, f.name, f.inputSchema.Field(i).Name, err)
		}
		cols[i] = col
	}

	rows := int(rec.NumRows())
	var (
		out []any
		err error
	)
	switch {
	case f.batchFn != nil:
		out, err = f.evalWholeBatch(ctx, cols, rows)
	case f.ioThreads > 1:
		out, err = f.evalConcurrent(ctx, cols, rows)
	default:
		out, err = f.evalSequential(ctx, cols, rows)
	}
	if err != nil {
		return nil, err
	}

	arr, err := recovery.RecoverToValue(f.logger, f.name, func() (arrow.Array, error) {
		return f.encoder.EncodeColumn(mem, out)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: function %q: output: %w", ErrEvaluation, f.name, err)
	}
	defer arr.Release()

	return array.NewRecordBatch(f.resultSchema, []arrow.Array{arr}, int64(rows)), nil
}

// evalWholeBatch hands the full decoded columns to the user function in a
// single call. No null skipping happens here, even with SkipNull set.
func (f *ScalarFunction) evalWholeBatch(ctx context.Context, cols [][]any, rows int) ([]any, error) {
	out, err := recovery.RecoverToValue(f.logger, f.name, func() ([]any, error) {
		return f.batchFn(ctx, cols)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: function %q: %v", ErrEvaluation, f.name, err)
	}
	if len(out) != rows {
		return nil, fmt.Errorf("%w: function %q: returned %d rows, want %d", ErrEvaluation, f.name, len(out), rows)
	}
	return out, nil
}

func (f *ScalarFunction) evalSequential(ctx context.Context, cols [][]any, rows int) ([]any, error) {
	out := make([]any, rows)
	for row := 0; row < rows; row++ {
		if f.skipNull && rowHasNull(cols, row) {
			continue
		}
		v, err := f.callRow(ctx, cols, row)
		if err != nil {
			return nil, err
		}
		out[row] = v
	}
	return out, nil
}

// evalConcurrent schedules one task per row on the function's bounded
// worker pool and waits for the whole batch before returning, so batches
// from the same exchange never overlap in flight.
func (f *ScalarFunction) evalConcurrent(ctx context.Context, cols [][]any, rows int) ([]any, error) {
	out := make([]any, rows)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(f.ioThreads)
	for row := 0; row < rows; row++ {
		if f.skipNull && rowHasNull(cols, row) {
			continue
		}
		eg.Go(func() error {
			v, err := f.callRow(ctx, cols, row)
			if err != nil {
				return err
			}
			// Row slots are disjoint; no further synchronization needed
			// beyond the group wait.
			out[row] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *ScalarFunction) callRow(ctx context.Context, cols [][]any, row int) (any, error) {
	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = col[row]
	}
	v, err := recovery.RecoverToValue(f.logger, f.name, func() (any, error) {
		return f.rowFn(ctx, args)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: function %q: row %d: %v", ErrEvaluation, f.name, row, err)
	}
	return v, nil
}

func rowHasNull(cols [][]any, row int) bool {
	for _, col := range cols {
		if col[row] == nil {
			return true
		}
	}
	return false
}
