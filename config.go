package udf

import (
	"errors"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/exabend/udf-go/registry"
)

// ServerConfig contains configuration for the UDF Flight server.
type ServerConfig struct {
	// Registry holds the scalar functions exposed by this server.
	// REQUIRED: MUST NOT be nil.
	Registry *registry.Registry

	// Allocator for Arrow memory management.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger

	// MaxSessions caps the number of concurrently served DoExchange
	// streams. Additional sessions block until a slot frees up.
	// OPTIONAL: If 0, defaults to 128.
	MaxSessions int64

	// MaxMessageSize sets maximum gRPC message size in bytes.
	// OPTIONAL: If 0, uses gRPC default (4MB).
	// Recommended: 16MB for large Arrow batches.
	MaxMessageSize int

	// Address is the server's public address (e.g., "localhost:8815").
	// OPTIONAL: Used only for logging.
	Address string

	// CompressOutput enables zstd compression on result streams.
	// OPTIONAL: Off by default.
	CompressOutput bool
}

// Standard errors returned by the udf package.
var (
	// ErrInvalidConfig indicates ServerConfig validation failed.
	ErrInvalidConfig = errors.New("invalid server config")
)
