package grpcx

import (
	"context"

	"github.com/localli/booking/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey carries the request id over gRPC metadata.
const RequestIDMetadataKey = "x-request-id"

// UnaryClientRequestIDInterceptor forwards the request id stored by the HTTP
// middleware or a previous server interceptor.
func UnaryClientRequestIDInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if id := httpx.RequestIDFromContext(ctx); id != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, RequestIDMetadataKey, id)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// UnaryServerRequestIDInterceptor adopts a clean incoming id or mints one,
// echoes it in the response header and stores it in the handler context.
func UnaryServerRequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
				id = httpx.CleanRequestID(vals[0])
			}
		}
		if id == "" {
			id = httpx.NewRequestID()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, id))
		return handler(httpx.ContextWithRequestID(ctx, id), req)
	}
}
