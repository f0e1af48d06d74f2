package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpcgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rpcgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpcgate",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "RPC requests handled by the dispatcher.",
		},
		[]string{"method", "outcome"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rpcgate",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "RPC dispatch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "outcome"},
	)
	pluginCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpcgate",
			Subsystem: "plugin",
			Name:      "calls_total",
			Help:      "Plugin method invocations.",
		},
		[]string{"object", "method", "result"},
	)
	pluginDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rpcgate",
			Subsystem: "plugin",
			Name:      "call_duration_seconds",
			Help:      "Plugin method duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"object", "method", "result"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rpcgate",
			Subsystem: "session",
			Name:      "active",
			Help:      "Live authenticated sessions.",
		},
	)
	peersConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rpcgate",
			Subsystem: "transport",
			Name:      "peers",
			Help:      "Connected transport peers.",
		},
		[]string{"transport"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			rpcRequests, rpcDuration,
			pluginCalls, pluginDuration,
			sessionsActive, peersConnected,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordRPC counts one dispatched request. outcome is "result", "error" or "dropped".
func RecordRPC(method, outcome string, duration time.Duration) {
	RegisterMetrics()
	rpcRequests.WithLabelValues(method, outcome).Inc()
	rpcDuration.WithLabelValues(method, outcome).Observe(duration.Seconds())
}

// RecordPluginCall counts one Invoke; result is "ok" or the errno name.
func RecordPluginCall(object, method, result string, duration time.Duration) {
	RegisterMetrics()
	pluginCalls.WithLabelValues(object, method, result).Inc()
	pluginDuration.WithLabelValues(object, method, result).Observe(duration.Seconds())
}

func SetActiveSessions(n int) {
	RegisterMetrics()
	sessionsActive.Set(float64(n))
}

func PeerConnected(transport string) {
	RegisterMetrics()
	peersConnected.WithLabelValues(transport).Inc()
}

func PeerDisconnected(transport string) {
	RegisterMetrics()
	peersConnected.WithLabelValues(transport).Dec()
}
