// metrics.go registers the broker's Prometheus collectors: connection,
// object, service, channel, bus-listener, and function-call counters
// and gauges.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_connections_total",
		Help: "Total number of client connections established",
	})
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_connections_active",
		Help: "Current number of active client connections",
	})
	ConnectionsMax = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_connections_max",
		Help: "Maximum allowed client connections",
	})
	ConnectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aldrin_connections_rejected_total",
		Help: "Total connection attempts rejected, by reason",
	}, []string{"reason"})
	DisconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aldrin_disconnects_total",
		Help: "Total disconnections by reason",
	}, []string{"reason"})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_messages_sent_total",
		Help: "Total number of protocol messages sent to clients",
	})
	MessagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_messages_received_total",
		Help: "Total number of protocol messages received from clients",
	})
	BytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_bytes_sent_total",
		Help: "Total number of bytes sent to clients",
	})
	BytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_bytes_received_total",
		Help: "Total number of bytes received from clients",
	})

	ObjectsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_objects_active",
		Help: "Current number of registered objects",
	})
	ServicesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_services_active",
		Help: "Current number of registered services",
	})
	ChannelsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_channels_active",
		Help: "Current number of open channels",
	})
	BusListenersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_bus_listeners_active",
		Help: "Current number of registered bus listeners",
	})

	FunctionCallsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_function_calls_in_flight",
		Help: "Current number of function calls awaiting a reply",
	})
	FunctionCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aldrin_function_calls_total",
		Help: "Total function calls completed, by result",
	}, []string{"result"})
	FunctionCallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aldrin_function_call_duration_seconds",
		Help:    "Function call round-trip duration",
		Buckets: prometheus.DefBuckets,
	})

	ChannelItemsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_channel_items_sent_total",
		Help: "Total channel items forwarded by the broker",
	})
	ChannelItemsDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_channel_items_discarded_total",
		Help: "Total channel items discarded (receiver closed)",
	})

	MemoryUsageBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_memory_bytes",
		Help: "Current memory usage in bytes",
	})
	MemoryLimitBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_memory_limit_bytes",
		Help: "Memory limit in bytes (from cgroup)",
	})
	CPUUsagePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_cpu_usage_percent",
		Help: "Current CPU usage percentage, relative to container allocation",
	})
	GoroutinesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_goroutines_active",
		Help: "Current number of active goroutines",
	})

	CPUThrottledPeriods = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_cpu_throttled_periods_total",
		Help: "Total cgroup CFS periods during which this process was throttled",
	})

	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aldrin_errors_total",
		Help: "Total errors by type and severity",
	}, []string{"type", "severity"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal, ConnectionsActive, ConnectionsMax, ConnectionsRejected, DisconnectsTotal,
		MessagesSent, MessagesReceived, BytesSent, BytesReceived,
		ObjectsActive, ServicesActive, ChannelsActive, BusListenersActive,
		FunctionCallsInFlight, FunctionCallsTotal, FunctionCallDuration,
		ChannelItemsSent, ChannelItemsDiscarded,
		MemoryUsageBytes, MemoryLimitBytes, CPUUsagePercent, GoroutinesActive, CPUThrottledPeriods,
		ErrorsTotal,
	)
}

// Handler returns the HTTP handler serving the Prometheus text
// exposition format, for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
