package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var tracer = otel.Tracer("tindecisos/server")

type requestIDKey struct{}

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "x-request-id"

// RequestID returns the id assigned to the current call, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func begin(ctx context.Context, method string, kind string) (context.Context, trace.Span, string) {
	id := ksuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey{}, id)
	ctx, span := tracer.Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.method", method),
			attribute.String("rpc.kind", kind),
			attribute.String("request.id", id),
		),
	)
	return ctx, span, id
}

func finish(log *slog.Logger, span trace.Span, id, method string, start time.Time, err error) {
	code := status.Code(err)
	span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()

	attrs := []any{"request_id", id, "method", method, "code", code.String(), "duration_ms", time.Since(start).Milliseconds()}
	switch code {
	case codes.OK, codes.Canceled:
		log.Debug("rpc", attrs...)
	case codes.Internal, codes.Unknown, codes.Unavailable:
		log.Error("rpc", append(attrs, "err", err)...)
	default:
		log.Info("rpc", append(attrs, "err", err)...)
	}
}

// UnaryInterceptor assigns a request id, opens a server span and logs the
// outcome of every unary call.
func UnaryInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		ctx, span, id := begin(ctx, info.FullMethod, "unary")
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

		resp, err := handler(ctx, req)
		finish(log, span, id, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamInterceptor is UnaryInterceptor for streams; the span covers the
// whole stream.
func StreamInterceptor(log *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx, span, id := begin(ss.Context(), info.FullMethod, "server_stream")
		_ = ss.SetHeader(metadata.Pairs(RequestIDHeader, id))
		log.Debug("stream opened", "request_id", id, "method", info.FullMethod)

		err := handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
		finish(log, span, id, info.FullMethod, start, err)
		return err
	}
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }
