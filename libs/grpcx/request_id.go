package grpcx

import "context"

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
)

// RequestIDMetadataKey carries the request id in gRPC metadata.
const RequestIDMetadataKey = "x-request-id"

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, id)
}
