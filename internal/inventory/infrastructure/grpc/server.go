package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/order-placement/internal/inventory/application"
	"github.com/dmehra2102/order-placement/internal/inventory/domain"
	"github.com/dmehra2102/order-placement/internal/inventory/infrastructure/grpc/catalogv1"
)

type Server struct {
	log *slog.Logger
	svc *application.Service
}

func NewServer(log *slog.Logger, svc *application.Service) *Server {
	return &Server{log: log, svc: svc}
}

func (s *Server) FindProducts(ctx context.Context, req *catalogv1.FindProductsRequest) (*catalogv1.FindProductsResponse, error) {
	products, err := s.svc.FindProducts(ctx, req.IDs)
	if errors.Is(err, domain.ErrNoProductIDs) {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err != nil {
		s.log.ErrorContext(ctx, "find products failed", "err", err)
		return nil, status.Error(codes.Internal, "catalog lookup failed")
	}

	resp := &catalogv1.FindProductsResponse{Products: make([]catalogv1.Product, 0, len(products))}
	for _, p := range products {
		resp.Products = append(resp.Products, catalogv1.Product{
			ID:         p.ID,
			Name:       p.Name,
			PriceCents: p.PriceCents,
			Quantity:   int64(p.Quantity),
		})
	}
	return resp, nil
}

// NewGRPCServer returns a traced server with the catalog and health services.
func NewGRPCServer(srv *Server) *grpc.Server {
	gs := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	catalogv1.RegisterCatalogServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(catalogv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs
}

// Run listens on addr and serves in the background.
func Run(log *slog.Logger, addr string, srv *Server) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	gs := NewGRPCServer(srv)
	go func() {
		log.Info("grpc listening", "addr", addr)
		if err := gs.Serve(lis); err != nil {
			log.Error("grpc server stopped", "err", err)
		}
	}()
	return gs, nil
}
