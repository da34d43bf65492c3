package flight

import (
	"errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/exabend/udf-go/registry"
)

// DoExchange evaluates a registered function over a bidirectional stream.
//
// Protocol:
//   - The first inbound message carries a PATH flight descriptor naming the
//     function, followed by the input schema and data batches.
//   - For every inbound batch the server evaluates the function and sends
//     exactly one outbound batch with the single "output" column, preserving
//     row count and row order.
//
// Each exchange occupies one slot of the shared session pool for its whole
// duration. Batches within one exchange are processed strictly in order
// with no pipelining: an output batch is written only after the whole input
// batch has been evaluated, so no partial batch is ever streamed.
//
// A stream whose schema is incompatible with the declared arguments is
// rejected with InvalidArgument before any batch is evaluated. Any
// evaluation error aborts the exchange with a status carrying the function
// name; other sessions are unaffected.
func (s *Server) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	ctx := stream.Context()

	if err := s.sessions.Acquire(ctx, 1); err != nil {
		return status.FromContextError(err).Err()
	}
	defer s.sessions.Release(1)

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.allocator))
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "failed to read input stream: %v", err)
	}
	defer reader.Release()

	desc := reader.LatestFlightDescriptor()
	if desc == nil || len(desc.Path) == 0 {
		return status.Error(codes.InvalidArgument, "missing function name in flight descriptor")
	}
	name := desc.Path[0]

	fn, err := s.registry.Lookup(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return status.Errorf(codes.NotFound, "function not found: %s", name)
		}
		return status.Errorf(codes.Internal, "failed to look up function: %v", err)
	}

	if err := fn.ValidateInputSchema(reader.Schema()); err != nil {
		return status.Errorf(codes.InvalidArgument, "%v", err)
	}

	s.logger.Debug("DoExchange started",
		"function", name,
		"input_schema", reader.Schema(),
	)

	writer := flight.NewRecordWriter(stream, s.writerOptions(fn.ResultSchema())...)
	defer writer.Close()

	batches := 0
	rows := int64(0)
	for reader.Next() {
		in := reader.RecordBatch()

		out, err := fn.EvalBatch(ctx, in, s.allocator)
		if err != nil {
			s.logger.Error("Function evaluation failed",
				"function", name,
				"batch", batches,
				"error", err,
			)
			return status.Errorf(codes.Internal, "function %q execution failed: %v", name, err)
		}

		err = writer.Write(out)
		out.Release()
		if err != nil {
			return status.Errorf(codes.Internal, "failed to write output batch: %v", err)
		}

		batches++
		rows += in.NumRows()
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return status.Errorf(codes.Internal, "error reading input: %v", err)
	}

	s.logger.Debug("DoExchange completed",
		"function", name,
		"batches", batches,
		"rows", rows,
	)
	return nil
}
