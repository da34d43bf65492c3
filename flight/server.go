// Package flight provides the Flight RPC handlers for the remote scalar
// function protocol: GetFlightInfo for signature discovery, ListFlights for
// enumeration and DoExchange for batch evaluation.
package flight

import (
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"

	"github.com/exabend/udf-go/registry"
)

// DefaultMaxSessions bounds the shared session pool when no explicit limit
// is configured. One slow function cannot starve other clients below this
// concurrency.
const DefaultMaxSessions = 128

// Config carries the dependencies of the Flight server. All fields except
// Registry are optional.
type Config struct {
	// Registry provides the callable functions. REQUIRED.
	Registry *registry.Registry

	// Allocator for Arrow memory management.
	Allocator memory.Allocator

	// Logger for internal logging.
	Logger *slog.Logger

	// Address is the server's public address, used only for logging the
	// SQL definitions of registered functions.
	Address string

	// MaxSessions caps concurrently served exchanges.
	// Zero means DefaultMaxSessions.
	MaxSessions int64

	// CompressOutput enables zstd buffer compression on outbound batches.
	CompressOutput bool
}

// Server implements the Flight service handlers.
// Embeds BaseFlightServer for forward compatibility with protocol changes.
type Server struct {
	flight.BaseFlightServer

	registry  *registry.Registry
	allocator memory.Allocator
	logger    *slog.Logger
	address   string
	compress  bool

	// sessions is the shared bounded pool gating concurrent exchanges.
	// It is independent from the per-function row worker pools.
	sessions *semaphore.Weighted
}

// NewServer creates a Flight server serving the registry's functions.
func NewServer(cfg Config) *Server {
	allocator := cfg.Allocator
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}

	return &Server{
		registry:  cfg.Registry,
		allocator: allocator,
		logger:    logger,
		address:   cfg.Address,
		compress:  cfg.CompressOutput,
		sessions:  semaphore.NewWeighted(maxSessions),
	}
}

// RegisterFlightServer registers the Flight service on the provided gRPC
// server. This follows the standard gRPC service registration pattern.
func RegisterFlightServer(grpcServer *grpc.Server, flightServer *Server) {
	flight.RegisterFlightServiceServer(grpcServer, flightServer)
}

// writerOptions builds the IPC options for an outbound stream writer.
func (s *Server) writerOptions(schema *arrow.Schema) []ipc.Option {
	opts := []ipc.Option{
		ipc.WithSchema(schema),
		ipc.WithAllocator(s.allocator),
	}
	if s.compress {
		opts = append(opts, ipc.WithZstd())
	}
	return opts
}
