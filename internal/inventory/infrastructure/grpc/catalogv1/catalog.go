// Package catalogv1 is the catalog.v1 gRPC contract. Messages travel as JSON
// through the "json" codec registered by this package.
package catalogv1

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	ServiceName            = "catalog.v1.Catalog"
	FindProductsFullMethod = "/catalog.v1.Catalog/FindProducts"
	CodecName              = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

type FindProductsRequest struct {
	IDs []string `json:"ids"`
}

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int64  `json:"quantity"`
}

type FindProductsResponse struct {
	Products []Product `json:"products"`
}

type CatalogServer interface {
	// FindProducts returns the products that exist among req.IDs.
	FindProducts(ctx context.Context, req *FindProductsRequest) (*FindProductsResponse, error)
}

func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&CatalogServiceDesc, srv)
}

var CatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FindProducts", Handler: findProductsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catalog/v1/catalog",
}

func findProductsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(FindProductsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).FindProducts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FindProductsFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CatalogServer).FindProducts(ctx, req.(*FindProductsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type CatalogClient interface {
	FindProducts(ctx context.Context, in *FindProductsRequest, opts ...grpc.CallOption) (*FindProductsResponse, error)
}

type catalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) CatalogClient {
	return &catalogClient{cc: cc}
}

func (c *catalogClient) FindProducts(ctx context.Context, in *FindProductsRequest, opts ...grpc.CallOption) (*FindProductsResponse, error) {
	out := new(FindProductsResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, FindProductsFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
