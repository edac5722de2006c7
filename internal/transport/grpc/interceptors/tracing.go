package interceptors

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// TracingOptions configures the tracing interceptor.
type TracingOptions struct {
	TracerProvider trace.TracerProvider
	Propagators    propagation.TextMapPropagator
	Additional     []otelgrpc.Option
}

func (o TracingOptions) otelOptions() []otelgrpc.Option {
	options := make([]otelgrpc.Option, 0, len(o.Additional)+2)
	if o.TracerProvider != nil {
		options = append(options, otelgrpc.WithTracerProvider(o.TracerProvider))
	}
	if o.Propagators != nil {
		options = append(options, otelgrpc.WithPropagators(o.Propagators))
	}
	return append(options, o.Additional...)
}

// TracingInterceptor wraps the OpenTelemetry server interceptors for gRPC
// traffic. A nil interceptor degrades to a passthrough, so the server wiring
// does not need to special-case disabled tracing.
type TracingInterceptor struct {
	unary  grpc.UnaryServerInterceptor
	stream grpc.StreamServerInterceptor
}

// NewTracingInterceptor builds unary and stream interceptors with the
// supplied options.
func NewTracingInterceptor(opts TracingOptions) *TracingInterceptor {
	options := opts.otelOptions()
	return &TracingInterceptor{
		unary:  otelgrpc.UnaryServerInterceptor(options...),
		stream: otelgrpc.StreamServerInterceptor(options...),
	}
}

// Unary returns the unary server interceptor.
func (ti *TracingInterceptor) Unary() grpc.UnaryServerInterceptor {
	if ti == nil || ti.unary == nil {
		return passthroughUnary
	}
	return ti.unary
}

// Stream returns the stream server interceptor.
func (ti *TracingInterceptor) Stream() grpc.StreamServerInterceptor {
	if ti == nil || ti.stream == nil {
		return passthroughStream
	}
	return ti.stream
}

func passthroughUnary(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	return handler(ctx, req)
}

func passthroughStream(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	return handler(srv, ss)
}
