package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "k9auth"
	metricsSubsystem = "http"
)

// HTTPMetrics instruments the Gin router: a request counter and latency
// histogram labelled by method, route, and status, plus an in-flight gauge.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// registerOrReuse registers the collector, or returns the previously
// registered collector when one with the same descriptor already exists.
// Rebuilding the middleware against a shared registry is therefore safe.
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

// NewHTTPMetrics builds and registers the collectors with reg. A nil reg uses
// the default Prometheus registerer.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	labels := []string{"method", "route", "status"}

	requests, err := registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_total",
		Help:      "Count of HTTP requests by method, route, and status code.",
	}, labels))
	if err != nil {
		return nil, fmt.Errorf("register request counter: %w", err)
	}

	duration, err := registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds by method, route, and status code.",
		Buckets:   prometheus.DefBuckets,
	}, labels))
	if err != nil {
		return nil, fmt.Errorf("register latency histogram: %w", err)
	}

	inFlight, err := registerOrReuse(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "in_flight_requests",
		Help:      "Number of HTTP requests currently being served.",
	}))
	if err != nil {
		return nil, fmt.Errorf("register in-flight gauge: %w", err)
	}

	return &HTTPMetrics{requests: requests, duration: duration, inFlight: inFlight}, nil
}

// Handler returns a Gin middleware that records the HTTP metrics. A nil
// receiver degrades to a passthrough.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		c.Next()

		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  routeLabel(c),
			"status": strconv.Itoa(c.Writer.Status()),
		}
		m.requests.With(labels).Inc()
		m.duration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// routeLabel prefers the matched route template; requests that match no route
// are labelled with the raw URL path so scanner noise still shows up in the
// counters.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return c.Request.URL.Path
}
