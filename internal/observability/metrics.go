package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "transport",
			Name:      "frames_received_total",
			Help:      "Inbound frames by outcome (applied, discarded, decode_error).",
		},
		[]string{"outcome"},
	)
	framesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "transport",
			Name:      "frames_sent_total",
			Help:      "Outbound frames handed to the transport.",
		},
	)
	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "transport",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts fired by the reconnect timer.",
		},
	)
	connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentchat",
			Subsystem: "transport",
			Name:      "connected",
			Help:      "1 while the agent connection is open.",
		},
	)
	turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "session",
			Name:      "turns_total",
			Help:      "Turns by terminal event (agent_end, error) or rejection (blocked).",
		},
		[]string{"outcome"},
	)
	turnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agentchat",
			Subsystem: "session",
			Name:      "turn_duration_seconds",
			Help:      "Time from submission to terminal event.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentchat",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesReceived, framesSent, reconnects, connected, turns, turnDuration, httpRequests, httpDuration)
	})
}

func RecordFrameReceived(outcome string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(outcome).Inc()
}

func RecordFrameSent() {
	RegisterMetrics()
	framesSent.Inc()
}

func RecordReconnect() {
	RegisterMetrics()
	reconnects.Inc()
}

func SetConnected(up bool) {
	RegisterMetrics()
	if up {
		connected.Set(1)
		return
	}
	connected.Set(0)
}

func RecordTurn(outcome string, duration time.Duration) {
	RegisterMetrics()
	turns.WithLabelValues(outcome).Inc()
	if duration > 0 {
		turnDuration.Observe(duration.Seconds())
	}
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
