// Package metrics exposes Prometheus counters for the tenant isolation
// subsystem.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TenantResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_resolutions_total",
			Help: "Total tenant resolutions by source (header, subdomain, principal, default, none)",
		},
		[]string{"source"},
	)

	TenantResolutionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_resolution_failures_total",
			Help: "Total failed tenant resolutions by reason (not_found, access_denied, error)",
		},
		[]string{"reason"},
	)

	PermissionDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_denials_total",
			Help: "Total permission check denials by permission",
		},
		[]string{"permission"},
	)

	SequenceRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sequence_retries_total",
			Help: "Total sequence issuance retries after collisions, by series",
		},
		[]string{"series"},
	)

	IsolationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_isolation_failures_total",
			Help: "Total units of work aborted because the tenant session variable could not be set",
		},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(TenantResolutions)
	prometheus.MustRegister(TenantResolutionFailures)
	prometheus.MustRegister(PermissionDenials)
	prometheus.MustRegister(SequenceRetries)
	prometheus.MustRegister(IsolationFailures)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
