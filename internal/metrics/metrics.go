// Package metrics exposes the server's ambient Prometheus counters and
// histograms: tool-call volume/latency/errors, pool health, and token
// session counts. This is the one piece of the teacher's observability
// surface this spec keeps — OpenTelemetry trace export is explicitly
// peripheral per spec.md §1, but a scrape endpoint is the kind of ambient
// concern every component in this codebase's corpus carries, and
// prometheus/client_golang is a teacher dependency with no other home in
// this spec's component list.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric this server publishes, instantiated once at
// startup and held by the dispatcher (internal/server).
type Registry struct {
	ToolCalls        *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
	ToolCallErrors   *prometheus.CounterVec
	ActivePools      prometheus.Gauge
	ActiveSessions   prometheus.Gauge
}

// NewRegistry constructs and registers every metric against a fresh
// prometheus.Registry, so repeated test construction never collides with
// the global default registerer.
func NewRegistry() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Registry{
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "db2i_mcp_tool_calls_total",
			Help: "Total number of tools/call invocations, by tool name.",
		}, []string{"tool"}),
		ToolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db2i_mcp_tool_call_duration_seconds",
			Help:    "tools/call latency in seconds, by tool name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		ToolCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "db2i_mcp_tool_call_errors_total",
			Help: "Total number of failed tools/call invocations, by tool name and error kind.",
		}, []string{"tool", "kind"}),
		ActivePools: factory.NewGauge(prometheus.GaugeOpts{
			Name: "db2i_mcp_active_pools",
			Help: "Number of currently initialized gateway connection pools.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "db2i_mcp_active_token_sessions",
			Help: "Number of live IBM-i auth token sessions.",
		}),
	}
	return m, reg
}

// Handler returns the /metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
