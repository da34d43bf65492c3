package flight

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/exabend/udf-go/registry"
)

// GetFlightInfo returns the discovery schema of a registered function: its
// input fields concatenated with the single output field. Clients use this
// to validate call sites before exchanging batches.
//
// The descriptor.Path must contain exactly one element, the function name.
func (s *Server) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	if desc.GetType() != flight.DescriptorPATH {
		return nil, status.Error(codes.InvalidArgument, "descriptor must be PATH type")
	}
	path := desc.GetPath()
	if len(path) != 1 {
		return nil, status.Error(codes.InvalidArgument, "path must contain exactly 1 element: [function_name]")
	}
	name := path[0]

	s.logger.Debug("GetFlightInfo requested", "function", name)

	schema, err := s.registry.DiscoverySchema(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, status.Errorf(codes.NotFound, "function not found: %s", name)
		}
		return nil, status.Errorf(codes.Internal, "failed to get function schema: %v", err)
	}

	return &flight.FlightInfo{
		Schema:           flight.SerializeSchema(schema, s.allocator),
		FlightDescriptor: desc,
		Endpoint:         []*flight.FlightEndpoint{},
		TotalRecords:     int64(schema.NumFields()),
		TotalBytes:       0,
	}, nil
}

// ListFlights enumerates all registered functions, one FlightInfo per
// function, carrying its discovery schema. Criteria is ignored.
func (s *Server) ListFlights(criteria *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	s.logger.Debug("ListFlights called")

	for _, name := range s.registry.Names() {
		schema, err := s.registry.DiscoverySchema(name)
		if err != nil {
			return status.Errorf(codes.Internal, "failed to get function schema: %v", err)
		}

		info := &flight.FlightInfo{
			Schema: flight.SerializeSchema(schema, s.allocator),
			FlightDescriptor: &flight.FlightDescriptor{
				Type: flight.DescriptorPATH,
				Path: []string{name},
			},
			Endpoint:     []*flight.FlightEndpoint{},
			TotalRecords: int64(schema.NumFields()),
			TotalBytes:   0,
		}
		if err := stream.Send(info); err != nil {
			return status.Errorf(codes.Internal, "failed to send flight info: %v", err)
		}
	}
	return nil
}
