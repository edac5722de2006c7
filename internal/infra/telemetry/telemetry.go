package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/odaiidemos/k9-sub001/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	buildInfo *prometheus.GaugeVec
}

// Attach registers the service build-info gauge and returns a provider
// handle. Request-level metrics live in the transport middleware; this gauge
// identifies the running instance on the shared /metrics endpoint.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	buildInfo := promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "k9auth",
		Name:      "build_info",
		Help:      "Environment metadata for the running authentication service.",
	}, []string{"service", "env"})
	buildInfo.WithLabelValues(cfg.App.Name, cfg.App.Env).Set(1)

	return &Provider{
		buildInfo: buildInfo,
	}, nil
}

// BuildInfo exposes the build-info gauge.
func (p *Provider) BuildInfo() *prometheus.GaugeVec {
	if p == nil {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{}, []string{"service", "env"})
	}
	return p.buildInfo
}
