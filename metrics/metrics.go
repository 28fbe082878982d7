// Package metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provisioning outcomes.
const (
	ResultOK             = "ok"
	ResultRolledBack     = "rolled_back"
	ResultRollbackFailed = "rollback_failed"
)

type Metrics struct {
	Registry *prometheus.Registry

	missionsStarted   prometheus.Counter
	missionsCompleted prometheus.Counter
	xpAwarded         prometheus.Counter
	provisioning      *prometheus.CounterVec
	orphansRemoved    prometheus.Counter
	feedSubscribers   prometheus.Gauge
	requestDuration   *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		missionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecodigital", Name: "missions_started_total",
			Help: "Missions moved to in_progress.",
		}),
		missionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecodigital", Name: "missions_completed_total",
			Help: "Missions completed with evidence.",
		}),
		xpAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecodigital", Name: "xp_awarded_total",
			Help: "XP granted by missions and manual grants.",
		}),
		provisioning: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecodigital", Name: "provisioning_total",
			Help: "Account provisioning and collaborator creation runs by result.",
		}, []string{"flow", "result"}),
		orphansRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecodigital", Name: "orphan_evidence_removed_total",
			Help: "Evidence objects deleted by the sweep.",
		}),
		feedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ecodigital", Name: "feed_stream_subscribers",
			Help: "Open activity feed streams.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ecodigital", Name: "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		m.missionsStarted, m.missionsCompleted, m.xpAwarded, m.provisioning,
		m.orphansRemoved, m.feedSubscribers, m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) MissionStarted() {
	if m != nil {
		m.missionsStarted.Inc()
	}
}

func (m *Metrics) MissionCompleted(xp int64) {
	if m != nil {
		m.missionsCompleted.Inc()
		m.XPAwarded(xp)
	}
}

func (m *Metrics) XPAwarded(xp int64) {
	if m != nil && xp > 0 {
		m.xpAwarded.Add(float64(xp))
	}
}

func (m *Metrics) Provisioned(flow, result string) {
	if m != nil {
		m.provisioning.WithLabelValues(flow, result).Inc()
	}
}

func (m *Metrics) OrphansRemoved(n int) {
	if m != nil && n > 0 {
		m.orphansRemoved.Add(float64(n))
	}
}

func (m *Metrics) FeedSubscribers(delta float64) {
	if m != nil {
		m.feedSubscribers.Add(delta)
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m != nil {
		m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
	}
}
