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
			Namespace: "bece",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bece",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	packetsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bece",
			Subsystem: "link",
			Name:      "packets_received_total",
			Help:      "Valid packets received, by message type.",
		},
		[]string{"node", "type"},
	)
	packetsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bece",
			Subsystem: "link",
			Name:      "packets_sent_total",
			Help:      "Packets sent, by message type and transport.",
		},
		[]string{"node", "type", "transport"},
	)
	checksumFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bece",
			Subsystem: "link",
			Name:      "checksum_failures_total",
			Help:      "Packets discarded on CRC mismatch.",
		},
		[]string{"node"},
	)
	resendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bece",
			Subsystem: "link",
			Name:      "resend_requests_total",
			Help:      "RESEND control messages sent, by reason.",
		},
		[]string{"node", "reason"},
	)
	dispatchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bece",
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Poll cycle outcomes.",
		},
		[]string{"node", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bece",
			Subsystem: "dispatch",
			Name:      "handler_duration_seconds",
			Help:      "Command handler run time in seconds.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"node"},
	)
	arenaHighWater = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bece",
			Subsystem: "arena",
			Name:      "high_water_bytes",
			Help:      "Largest arena usage seen in one cycle.",
		},
		[]string{"node"},
	)
	resendsOutstanding = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bece",
			Subsystem: "link",
			Name:      "resends_outstanding",
			Help:      "Packet ids awaiting a valid resend.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			packetsReceived,
			packetsSent,
			checksumFailures,
			resendRequests,
			dispatchOutcomes,
			dispatchDuration,
			arenaHighWater,
			resendsOutstanding,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacketReceived(node, msgType string) {
	RegisterMetrics()
	packetsReceived.WithLabelValues(node, msgType).Inc()
}

func RecordPacketSent(node, msgType, transport string) {
	RegisterMetrics()
	packetsSent.WithLabelValues(node, msgType, transport).Inc()
}

func RecordChecksumFailure(node string) {
	RegisterMetrics()
	checksumFailures.WithLabelValues(node).Inc()
}

func RecordResendRequest(node, reason string, outstanding int) {
	RegisterMetrics()
	resendRequests.WithLabelValues(node, reason).Inc()
	resendsOutstanding.WithLabelValues(node).Set(float64(outstanding))
}

func RecordResendsOutstanding(node string, outstanding int) {
	RegisterMetrics()
	resendsOutstanding.WithLabelValues(node).Set(float64(outstanding))
}

func RecordDispatch(node, outcome string) {
	RegisterMetrics()
	dispatchOutcomes.WithLabelValues(node, outcome).Inc()
}

func RecordHandlerDuration(node string, d time.Duration) {
	RegisterMetrics()
	dispatchDuration.WithLabelValues(node).Observe(d.Seconds())
}

func RecordArenaHighWater(node string, bytes int) {
	RegisterMetrics()
	arenaHighWater.WithLabelValues(node).Set(float64(bytes))
}
