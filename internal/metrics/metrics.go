// Package metrics exposes channel and guard activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pseudocoder/inkwell/internal/channel"
	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

const namespace = "inkwell"

var allStatuses = []channel.Status{
	channel.Connecting,
	channel.Connected,
	channel.Reconnecting,
	channel.Disconnected,
}

// Collectors implements channel.Observer and guard.Observer.
type Collectors struct {
	// ChannelStatus is 1 for the current state of each endpoint and 0 for
	// the others.
	// Labels: endpoint, status
	ChannelStatus *prometheus.GaugeVec

	// Reconnects counts scheduled reconnect attempts.
	// Labels: endpoint
	Reconnects *prometheus.CounterVec

	// RetryDelay observes each scheduled reconnect delay.
	// Labels: endpoint
	RetryDelay *prometheus.HistogramVec

	// ProtocolErrors counts inbound frames that could not be decoded.
	// Labels: endpoint, code (protocol.decode_failed, protocol.unknown_type)
	ProtocolErrors *prometheus.CounterVec

	// GuardInvocations counts settled guarded invocations.
	// Labels: operation, result (executed, failed, suppressed, superseded, cancelled)
	GuardInvocations *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Panics if they are already registered with reg.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		ChannelStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "status",
			Help:      "Current channel state (1 for the active state)",
		}, []string{"endpoint", "status"}),
		Reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "reconnects_total",
			Help:      "Total reconnect attempts scheduled",
		}, []string{"endpoint"}),
		RetryDelay: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "retry_delay_seconds",
			Help:      "Delay before each reconnect attempt in seconds",
			Buckets:   []float64{0.5, 0.8, 1.2, 1.8, 2.7, 4.05, 6.075, 8, 16},
		}, []string{"endpoint"}),
		ProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "protocol_errors_total",
			Help:      "Total inbound frames rejected by the decoder",
		}, []string{"endpoint", "code"}),
		GuardInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "invocations_total",
			Help:      "Total guarded invocations by outcome",
		}, []string{"operation", "result"}),
	}
}

// StatusChanged records the new state of ev.Endpoint.
func (c *Collectors) StatusChanged(ev channel.StatusEvent) {
	for _, s := range allStatuses {
		v := 0.0
		if s == ev.Status {
			v = 1
		}
		c.ChannelStatus.WithLabelValues(ev.Endpoint, string(s)).Set(v)
	}
}

// ReconnectScheduled counts the attempt and observes its delay.
func (c *Collectors) ReconnectScheduled(endpoint string, attempt int, delay time.Duration) {
	c.Reconnects.WithLabelValues(endpoint).Inc()
	c.RetryDelay.WithLabelValues(endpoint).Observe(delay.Seconds())
}

// ProtocolError counts a rejected frame by error code.
func (c *Collectors) ProtocolError(endpoint string, err error) {
	c.ProtocolErrors.WithLabelValues(endpoint, apperrors.GetCode(err)).Inc()
}

// Invocation counts a settled guarded invocation.
func (c *Collectors) Invocation(operation, result string) {
	c.GuardInvocations.WithLabelValues(operation, result).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
