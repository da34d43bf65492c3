package udf

import (
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"

	"github.com/exabend/udf-go/flight"
)

// NewServer registers UDF Flight service handlers on the provided gRPC server.
// This is the main entry point for the udf package.
//
// The function:
//  1. Validates the ServerConfig
//  2. Creates the Flight service implementation
//  3. Registers it on grpcServer
//
// Returns error if config is invalid (e.g., nil Registry).
// Does NOT start the gRPC server - user controls lifecycle via grpcServer.Serve().
//
// Basic example:
//
//	grpcServer := grpc.NewServer()
//	err := udf.NewServer(grpcServer, udf.ServerConfig{
//	    Registry: reg,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	lis, _ := net.Listen("tcp", ":8815")
//	grpcServer.Serve(lis)
func NewServer(grpcServer *grpc.Server, config ServerConfig) error {
	// Validate configuration
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// Use defaults for optional fields
	allocator := config.Allocator
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Create Flight server
	flightServer := flight.NewServer(flight.Config{
		Registry:       config.Registry,
		Allocator:      allocator,
		Logger:         logger,
		Address:        config.Address,
		MaxSessions:    config.MaxSessions,
		CompressOutput: config.CompressOutput,
	})

	// Register Flight service
	flight.RegisterFlightServer(grpcServer, flightServer)

	logger.Info("UDF Flight server registered",
		"functions", len(config.Registry.Names()),
		"max_message_size", config.MaxMessageSize,
	)

	return nil
}

// validateConfig checks that required ServerConfig fields are valid.
func validateConfig(config ServerConfig) error {
	if config.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	return nil
}

// ServerOptions returns gRPC server options derived from the config.
// Use this when creating a gRPC server to raise message size limits for
// large Arrow batches.
//
// Example:
//
//	config := udf.ServerConfig{
//	    Registry:       reg,
//	    MaxMessageSize: 16 * 1024 * 1024,
//	}
//	opts := udf.ServerOptions(config)
//	grpcServer := grpc.NewServer(opts...)
//	udf.NewServer(grpcServer, config)
func ServerOptions(config ServerConfig) []grpc.ServerOption {
	var opts []grpc.ServerOption

	// Add max message size if specified
	if config.MaxMessageSize > 0 {
		opts = append(opts,
			grpc.MaxRecvMsgSize(config.MaxMessageSize),
			grpc.MaxSendMsgSize(config.MaxMessageSize),
		)
	}

	return opts
}
