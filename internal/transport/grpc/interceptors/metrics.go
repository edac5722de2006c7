package interceptors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const (
	metricsNamespace = "k9auth"
	metricsSubsystem = "grpc"
)

// GRPCMetrics instruments unary RPC traffic: a request counter and latency
// histogram labelled by service, method, and status code, plus a per-service
// in-flight gauge.
type GRPCMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// registerOrReuse registers the collector, or returns the previously
// registered collector when one with the same descriptor already exists.
// Rebuilding the interceptor against a shared registry is therefore safe.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
		return collector, fmt.Errorf("collector already registered with mismatched type %T", already.ExistingCollector)
	}
	return collector, err
}

// NewGRPCMetrics builds and registers the collectors with reg. A nil reg uses
// the default Prometheus registerer.
func NewGRPCMetrics(reg prometheus.Registerer) (*GRPCMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	labels := []string{"service", "method", "code"}

	requests, err := registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_total",
		Help:      "Count of gRPC unary requests by service, method, and status code.",
	}, labels))
	if err != nil {
		return nil, fmt.Errorf("register grpc request counter: %w", err)
	}

	duration, err := registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "request_duration_seconds",
		Help:      "gRPC unary request latency in seconds by service, method, and status code.",
		Buckets:   prometheus.DefBuckets,
	}, labels))
	if err != nil {
		return nil, fmt.Errorf("register grpc latency histogram: %w", err)
	}

	inFlight, err := registerOrReuse(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "in_flight_requests",
		Help:      "Number of gRPC unary requests currently being served, by service.",
	}, []string{"service"}))
	if err != nil {
		return nil, fmt.Errorf("register grpc in-flight gauge: %w", err)
	}

	return &GRPCMetrics{requests: requests, duration: duration, inFlight: inFlight}, nil
}

// UnaryServerInterceptor returns a gRPC unary interceptor that records
// request count, latency, and an in-flight gauge. A nil receiver degrades to
// a passthrough.
func (m *GRPCMetrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	if m == nil {
		return passthroughUnary
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		service, method := splitFullMethod(info.FullMethod)
		start := time.Now()

		inflight := m.inFlight.WithLabelValues(service)
		inflight.Inc()
		defer inflight.Dec()

		resp, err := handler(ctx, req)

		labels := prometheus.Labels{
			"service": service,
			"method":  method,
			"code":    status.Code(err).String(),
		}
		m.requests.With(labels).Inc()
		m.duration.With(labels).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

// splitFullMethod separates "/package.Service/Method" into its service and
// method labels. Anything that does not match the shape is labelled as-is
// with an unknown method.
func splitFullMethod(full string) (string, string) {
	trimmed := strings.TrimPrefix(full, "/")
	if trimmed == "" {
		return "unknown", "unknown"
	}

	service, method, found := strings.Cut(trimmed, "/")
	if !found || strings.Contains(method, "/") {
		return trimmed, "unknown"
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
