package monitoring

import (
	"strconv"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streamcast"

type PrometheusCollector struct {
	sockets      prometheus.Gauge
	broadcasters prometheus.Gauge
	viewers      prometheus.Gauge
	liveStreams  prometheus.Gauge
	identified   prometheus.Gauge

	relayedTotal  *prometheus.CounterVec
	watchTotal    *prometheus.CounterVec
	rosterPublish prometheus.Counter
	rosterSize    prometheus.Histogram
	storeFailures *prometheus.CounterVec
	remoteEvents  *prometheus.CounterVec
}

var _ ports.SignalMetrics = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the signal metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		sockets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sockets_connected",
			Help:      "Number of attached signaling sockets",
		}),

		broadcasters: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcasters",
			Help:      "Number of sockets in the broadcaster set",
		}),

		viewers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewers",
			Help:      "Number of viewer sockets bound to a broadcaster",
		}),

		liveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_live",
			Help:      "Number of stream ids bound to a live socket",
		}),

		identified: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sockets_identified",
			Help:      "Number of sockets with a known user",
		}),

		relayedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_relayed_total",
			Help:      "Relayed offer, answer and candidate messages",
		}, []string{"kind", "delivered"}),

		watchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_requests_total",
			Help:      "watch-stream requests by whether the stream resolved to a live broadcaster",
		}, []string{"resolved"}),

		rosterPublish: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_publish_total",
			Help:      "Broadcaster list snapshots published to all clients",
		}),

		rosterSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "roster_size",
			Help:      "Size of published broadcaster lists",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),

		storeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Failed store calls made on behalf of a socket",
		}, []string{"operation"}),

		remoteEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_events_total",
			Help:      "Lifecycle events received from other instances",
		}, []string{"type"}),
	}
}

func (p *PrometheusCollector) RecordRegistry(stats domain.RegistryStats) {
	p.sockets.Set(float64(stats.Sockets))
	p.broadcasters.Set(float64(stats.Broadcasters))
	p.viewers.Set(float64(stats.Viewers))
	p.liveStreams.Set(float64(stats.Streams))
	p.identified.Set(float64(stats.Users))
}

func (p *PrometheusCollector) RecordRelay(kind domain.SignalKind, delivered bool) {
	p.relayedTotal.WithLabelValues(string(kind), strconv.FormatBool(delivered)).Inc()
}

func (p *PrometheusCollector) RecordWatch(resolved bool) {
	p.watchTotal.WithLabelValues(strconv.FormatBool(resolved)).Inc()
}

func (p *PrometheusCollector) RecordRosterPublish(size int) {
	p.rosterPublish.Inc()
	p.rosterSize.Observe(float64(size))
}

func (p *PrometheusCollector) RecordStoreFailure(operation string) {
	p.storeFailures.WithLabelValues(operation).Inc()
}

func (p *PrometheusCollector) RecordRemoteEvent(eventType domain.LifecycleEventType) {
	p.remoteEvents.WithLabelValues(string(eventType)).Inc()
}
