package rpc

import (
	"context"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/raftchat/raftchat/pkg/log"
	"github.com/raftchat/raftchat/pkg/metrics"
	"github.com/raftchat/raftchat/pkg/types"
	"google.golang.org/grpc"
)

type requestIDKey struct{}

// RequestIDFromContext returns the id RequestIDInterceptor attached to ctx,
// or "" if none is present.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDInterceptor mints a request id for every unary RPC and attaches
// it to the context, the way the API server mints an id for every resource
// it creates. Handlers and logs can pull it back out with
// RequestIDFromContext to correlate a single call across log lines.
func RequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		id := uuid.New().String()
		ctx = context.WithValue(ctx, requestIDKey{}, id)

		resp, err := handler(ctx, req)
		if err != nil {
			log.WithComponent("rpc").Error().Str("request_id", id).Str("method", methodName(info.FullMethod)).Err(err).Msg("rpc failed")
		}
		return resp, err
	}
}

// MetricsInterceptor records per-method request latency and outcome for
// every unary RPC. The outcome label is read off the response's Error field
// by reflection rather than a type switch, since every response struct in
// this package follows the same Error *ErrorDetail convention but there is
// no shared interface to assert against without one more layer of
// boilerplate per method.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		method := methodName(info.FullMethod)
		timer := metrics.NewTimer()

		resp, err := handler(ctx, req)

		timer.ObserveDurationVec(metrics.RPCRequestDuration, method)
		metrics.RPCRequestsTotal.WithLabelValues(method, string(resultKind(resp, err))).Inc()

		return resp, err
	}
}

func methodName(fullMethod string) string {
	parts := strings.Split(fullMethod, "/")
	return parts[len(parts)-1]
}

// resultKind extracts the ErrorKind of a handler's response, if any. Every
// response struct embeds an `Error *ErrorDetail` field with that exact name;
// a response with no such field, or a nil Error, counts as types.ErrNone.
func resultKind(resp interface{}, err error) types.ErrorKind {
	if err != nil {
		return types.ErrTransport
	}
	v := reflect.ValueOf(resp)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return types.ErrNone
	}
	field := v.FieldByName("Error")
	if !field.IsValid() || field.IsNil() {
		return types.ErrNone
	}
	detail, ok := field.Interface().(*ErrorDetail)
	if !ok || detail == nil {
		return types.ErrNone
	}
	return detail.Kind
}
