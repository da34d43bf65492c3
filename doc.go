// Package udf provides a high-level API for serving remote scalar
// functions to a SQL engine over Apache Arrow Flight.
//
// The engine registers functions with textual SQL type descriptors; the
// package parses them, derives Arrow schemas and compile-once value codecs,
// and evaluates inbound record batches against user-provided Go functions:
//   - Registering Flight service handlers on an existing grpc.Server
//   - Translating SQL type descriptors (ARRAY, MAP, TUPLE, DECIMAL,
//     VARIANT, ...) to Arrow fields and back
//   - Marshalling columnar batches into native per-row arguments and back,
//     including deeply nested types and null propagation
//   - Per-row, concurrent per-row and whole-batch execution strategies
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "net"
//
//	    "google.golang.org/grpc"
//
//	    udf "github.com/exabend/udf-go"
//	    "github.com/exabend/udf-go/registry"
//	)
//
//	func main() {
//	    reg := registry.New(nil)
//	    _, err := reg.Add(registry.Function{
//	        Name:       "gcd",
//	        ArgNames:   []string{"x", "y"},
//	        ArgTypes:   []string{"INT", "INT"},
//	        ReturnType: "INT",
//	        RowFunc: func(ctx context.Context, args []any) (any, error) {
//	            x, y := args[0].(int32), args[1].(int32)
//	            for y != 0 {
//	                x, y = y, x%y
//	            }
//	            return x, nil
//	        },
//	        SkipNull: true,
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    grpcServer := grpc.NewServer()
//	    if err := udf.NewServer(grpcServer, udf.ServerConfig{Registry: reg}); err != nil {
//	        log.Fatal(err)
//	    }
//	    lis, _ := net.Listen("tcp", ":8815")
//	    grpcServer.Serve(lis)
//	}
//
// # Execution strategies
//
// A function runs in one of three modes, fixed at registration:
//   - Sequential per-row: RowFunc is called once per row on the serving
//     goroutine, in increasing row order.
//   - Concurrent per-row: with IOThreads > 1, rows are scheduled on a
//     bounded per-function worker pool; the batch completes before the
//     next one starts. Intended for I/O bound functions.
//   - Batch: BatchFunc receives the full decoded columns in one call and
//     returns one result column. No null skipping is applied in this mode.
//
// With SkipNull set, a row whose arguments contain any NULL is never passed
// to the function; its result is NULL. The return type must be nullable.
//
// # Server Lifecycle
//
// The package registers Flight service handlers on a user-provided
// grpc.Server but does NOT manage server lifecycle (start/stop/listen).
// This gives users full control over TLS via grpc.Creds(), server options
// and interceptors, and graceful shutdown via grpcServer.GracefulStop().
//
// # Concurrency
//
// Exchanges are gated by a shared bounded session pool (default 128) so a
// slow function cannot block acceptance of other clients' sessions. The
// per-function row worker pool is a separate, independently sized resource.
// Registered functions are immutable; evaluation needs no locking.
package udf
