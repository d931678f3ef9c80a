// Package grpcapi exposes stored entity forecasts over gRPC.
//
// The service is microcast.v1.ForecastService. Requests and responses are
// google.protobuf.Struct messages, so no generated code is needed on either
// side:
//
//	GetForecast({"entity_id": "01001"}) -> {"entity_id", "status", "reason",
//	    "model", "generated_at", "periods", "values"}
//	ListEntities({}) -> {"entities": [...]}
//
// The standard grpc.health.v1 service is registered alongside it.
package grpcapi

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pramodhsway/microcast/pkg/features"
	"github.com/pramodhsway/microcast/pkg/storage"
)

const (
	ServiceName        = "microcast.v1.ForecastService"
	GetForecastMethod  = "/" + ServiceName + "/GetForecast"
	ListEntitiesMethod = "/" + ServiceName + "/ListEntities"
)

// ForecastServiceServer is the server API of ForecastService.
type ForecastServiceServer interface {
	GetForecast(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEntities(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes ForecastService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ForecastServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetForecast", Handler: unaryHandler(GetForecastMethod, ForecastServiceServer.GetForecast)},
		{MethodName: "ListEntities", Handler: unaryHandler(ListEntitiesMethod, ForecastServiceServer.ListEntities)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "microcast/v1/forecast.proto",
}

type unaryMethod func(ForecastServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ForecastServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ForecastServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Service serves forecasts from a storage.Store.
type Service struct {
	store  storage.Store
	logger *slog.Logger
}

// NewService creates the ForecastService implementation.
func NewService(store storage.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

func (s *Service) GetForecast(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := req.GetFields()["entity_id"].GetStringValue()
	entityID := features.NormalizeEntityID(raw)
	if entityID == "" {
		return nil, status.Error(codes.InvalidArgument, "entity_id is required")
	}

	f, found, err := s.store.Get(entityID)
	if err != nil {
		s.logger.Error("failed to get forecast", "entity_id", entityID, "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	if !found {
		return nil, status.Errorf(codes.NotFound, "no forecast for entity %q", entityID)
	}

	return forecastStruct(f)
}

func (s *Service) ListEntities(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	ids, err := s.store.Entities()
	if err != nil {
		s.logger.Error("failed to list entities", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	return structpb.NewStruct(map[string]any{"entities": list})
}

func forecastStruct(f storage.EntityForecast) (*structpb.Struct, error) {
	periods := make([]any, len(f.Periods))
	for i, p := range f.Periods {
		periods[i] = p.Format(features.DateLayout)
	}
	values := make([]any, len(f.Values))
	for i, v := range f.Values {
		values[i] = v
	}

	out, err := structpb.NewStruct(map[string]any{
		"entity_id":    f.EntityID,
		"status":       f.Status,
		"reason":       f.Reason,
		"model":        f.Model,
		"generated_at": f.GeneratedAt.UTC().Format(time.RFC3339),
		"periods":      periods,
		"values":       values,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode forecast: %v", err)
	}
	return out, nil
}

// NewServer creates a gRPC server with ForecastService, health and
// reflection registered. The health status is SERVING.
func NewServer(store storage.Store, logger *slog.Logger) *grpc.Server {
	srv := grpc.NewServer()
	srv.RegisterService(&ServiceDesc, NewService(store, logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(srv)
	return srv
}

// Client calls ForecastService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// GetForecast fetches the stored forecast of one entity.
func (c *Client) GetForecast(ctx context.Context, entityID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"entity_id": entityID})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetForecastMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEntities returns the ids of every stored forecast.
func (c *Client) ListEntities(ctx context.Context, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListEntitiesMethod, &structpb.Struct{}, out, opts...); err != nil {
		return nil, err
	}
	values := out.GetFields()["entities"].GetListValue().GetValues()
	ids := make([]string, len(values))
	for i, v := range values {
		ids[i] = v.GetStringValue()
	}
	return ids, nil
}
