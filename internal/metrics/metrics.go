package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/phx-stream/internal/phx"
	"github.com/rickgao/phx-stream/internal/recorder"
)

const namespace = "phxtail"

// Metrics holds every collector the gatherer exports. It implements
// phx.Observer and recorder.Observer.
type Metrics struct {
	registry *prometheus.Registry

	envelopesSent     *prometheus.CounterVec
	envelopesBuffered *prometheus.CounterVec
	envelopesReceived *prometheus.CounterVec
	decodeFailures    prometheus.Counter
	writeFailures     prometheus.Counter
	reconnects        prometheus.Counter
	connectionState   prometheus.Gauge
	channels          prometheus.Gauge

	recorderRows     prometheus.Counter
	recorderFailures prometheus.Counter
	recorderDropped  prometheus.Counter
	recorderBatch    prometheus.Histogram
	recorderLatency  prometheus.Histogram
}

// New registers all collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		envelopesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "envelopes_sent_total",
			Help:      "Envelopes written to the transport",
		}, []string{"event"}),

		envelopesBuffered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "envelopes_buffered_total",
			Help:      "Sends deferred while the socket was not connected",
		}, []string{"event"}),

		envelopesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "envelopes_received_total",
			Help:      "Valid inbound envelopes",
		}, []string{"topic", "event"}),

		decodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "decode_failures_total",
			Help:      "Inbound text frames that were not valid envelopes",
		}),

		writeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "write_failures_total",
			Help:      "Envelopes the transport failed to write",
		}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts",
		}),

		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "connection_state",
			Help:      "0 = disconnected, 1 = connecting, 2 = connected",
		}),

		channels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "channels",
			Help:      "Channels currently held by the socket",
		}),

		recorderRows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "rows_inserted_total",
			Help:      "Events written to the database",
		}),

		recorderFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "batch_failures_total",
			Help:      "Batches that failed to insert",
		}),

		recorderDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "events_dropped_total",
			Help:      "Events rejected because the recorder buffer was full or stopped",
		}),

		recorderBatch: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "batch_size",
			Help:      "Rows per insert batch",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000},
		}),

		recorderLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "batch_duration_seconds",
			Help:      "Insert batch latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// phx.Observer

func (m *Metrics) EnvelopeSent(event string) { m.envelopesSent.WithLabelValues(event).Inc() }

func (m *Metrics) EnvelopeBuffered(event string) { m.envelopesBuffered.WithLabelValues(event).Inc() }

func (m *Metrics) EnvelopeReceived(topic, event string) {
	m.envelopesReceived.WithLabelValues(topic, event).Inc()
}

func (m *Metrics) DecodeFailed() { m.decodeFailures.Inc() }

func (m *Metrics) WriteFailed() { m.writeFailures.Inc() }

func (m *Metrics) Reconnecting() { m.reconnects.Inc() }

func (m *Metrics) ChannelsChanged(count int) { m.channels.Set(float64(count)) }

func (m *Metrics) StateChanged(state phx.ConnectionState) {
	m.connectionState.Set(float64(state))
}

// recorder.Observer

// BatchWritten records a successful insert of rows events.
func (m *Metrics) BatchWritten(rows int, d time.Duration) {
	m.recorderRows.Add(float64(rows))
	m.recorderBatch.Observe(float64(rows))
	m.recorderLatency.Observe(d.Seconds())
}

// BatchFailed records a failed insert.
func (m *Metrics) BatchFailed(rows int) { m.recorderFailures.Inc() }

// EventDropped records an event the recorder could not accept.
func (m *Metrics) EventDropped() { m.recorderDropped.Inc() }

var (
	_ phx.Observer      = (*Metrics)(nil)
	_ recorder.Observer = (*Metrics)(nil)
)
