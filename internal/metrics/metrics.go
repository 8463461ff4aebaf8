// Package metrics exposes client counters in Prometheus format.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client's Prometheus collectors on a private registry.
// All methods are safe on a nil *Metrics.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	bytesRecvTotal prometheus.Counter
	bytesSentTotal prometheus.Counter
	messagesTotal  *prometheus.CounterVec
	estimatesTotal *prometheus.CounterVec
	estimateTime   prometheus.Histogram
	droppedTotal   prometheus.Counter
	walksTotal     *prometheus.CounterVec
	currentRoom    prometheus.Gauge
	uptimeSeconds  prometheus.Gauge
	goroutines     prometheus.Gauge
}

func New(startTime time.Time) *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: startTime,
		bytesRecvTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nightfall_bytes_received_total",
			Help: "Total bytes read from the game server.",
		}),
		bytesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nightfall_bytes_sent_total",
			Help: "Total bytes written to the game server.",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightfall_messages_total",
			Help: "Framed messages by flush reason.",
		}, []string{"reason"}),
		estimatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightfall_estimates_total",
			Help: "Position estimates by confidence.",
		}, []string{"confidence"}),
		estimateTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nightfall_estimate_seconds",
			Help:    "Time spent estimating the position for one message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nightfall_estimates_dropped_total",
			Help: "Messages dropped because the estimation queue was full.",
		}),
		walksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightfall_walks_total",
			Help: "Finished walks by outcome.",
		}, []string{"state", "reason"}),
		currentRoom: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nightfall_current_room",
			Help: "Id of the current room, -1 when unknown.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nightfall_uptime_seconds",
			Help: "Client uptime in seconds.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nightfall_goroutines",
			Help: "Number of active goroutines.",
		}),
	}
	m.currentRoom.Set(-1)

	m.registry.MustRegister(
		m.bytesRecvTotal,
		m.bytesSentTotal,
		m.messagesTotal,
		m.estimatesTotal,
		m.estimateTime,
		m.droppedTotal,
		m.walksTotal,
		m.currentRoom,
		m.uptimeSeconds,
		m.goroutines,
	)
	return m
}

func (m *Metrics) BytesIn(n int) {
	if m == nil {
		return
	}
	m.bytesRecvTotal.Add(float64(n))
}

func (m *Metrics) BytesOut(n int) {
	if m == nil {
		return
	}
	m.bytesSentTotal.Add(float64(n))
}

func (m *Metrics) MessageFlushed(reason string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(reason).Inc()
}

// Estimated records one finished estimate.
func (m *Metrics) Estimated(confidence string, took time.Duration) {
	if m == nil {
		return
	}
	m.estimatesTotal.WithLabelValues(confidence).Inc()
	m.estimateTime.Observe(took.Seconds())
}

func (m *Metrics) EstimateDropped() {
	if m == nil {
		return
	}
	m.droppedTotal.Inc()
}

func (m *Metrics) WalkFinished(state, reason string) {
	if m == nil {
		return
	}
	m.walksTotal.WithLabelValues(state, reason).Inc()
}

func (m *Metrics) SetCurrentRoom(id int) {
	if m == nil {
		return
	}
	m.currentRoom.Set(float64(id))
}

// Update refreshes the runtime gauges.
func (m *Metrics) Update() {
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates gauges before serving them.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		inner.ServeHTTP(w, r)
	})
}
