// Package metrics provides Prometheus metrics for cubscrape.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
)

const namespace = "cubscrape"

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	// RebuildsTotal tracks rebuilds by outcome
	RebuildsTotal *prometheus.CounterVec
	// RebuildDuration tracks rebuild duration in seconds
	RebuildDuration prometheus.Histogram
	// RecordsTotal tracks input records seen by rebuilds, by kind
	RecordsTotal *prometheus.CounterVec
	// RejectionsTotal tracks rejected records by kind
	RejectionsTotal *prometheus.CounterVec
	// ConflictsTotal tracks settled conflicts by kind
	ConflictsTotal *prometheus.CounterVec
	// FetchRequestsTotal tracks emitted fetch requests
	FetchRequestsTotal prometheus.Counter
	// AbsorptionsTotal tracks accepted cross-platform merges by match case
	AbsorptionsTotal *prometheus.CounterVec
	// Entities is the entity count of the active snapshot
	Entities prometheus.Gauge
	// VisibleEntities is the visible entity count of the active snapshot
	VisibleEntities prometheus.Gauge

	// QueryDuration tracks read queries in seconds
	QueryDuration *prometheus.HistogramVec

	// CollectedTotal tracks records stored by collectors, by source
	CollectedTotal *prometheus.CounterVec
	// NotificationsTotal tracks outbound notifications by notifier and status
	NotificationsTotal *prometheus.CounterVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RebuildsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "total",
			Help:      "Total number of rebuilds by outcome",
		}, []string{"status"}),
		RebuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "duration_seconds",
			Help:      "Duration of rebuilds in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "records_total",
			Help:      "Total number of input records processed by rebuilds",
		}, []string{"kind"}),
		RejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "rejections_total",
			Help:      "Total number of rejected input records",
		}, []string{"kind"}),
		ConflictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "conflicts_total",
			Help:      "Total number of contradictory inputs settled",
		}, []string{"kind"}),
		FetchRequestsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "fetch_requests_total",
			Help:      "Total number of fetch requests emitted",
		}),
		AbsorptionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "absorptions_total",
			Help:      "Total number of cross-platform merges",
		}, []string{"case"}),
		Entities: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "entities",
			Help:      "Number of entities in the active snapshot",
		}),
		VisibleEntities: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "visible_entities",
			Help:      "Number of visible entities in the active snapshot",
		}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Duration of snapshot queries in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"cache"}),
		CollectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "records_total",
			Help:      "Total number of records stored by collectors",
		}, []string{"source"}),
		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total number of notifications by notifier and status",
		}, []string{"notifier", "status"}),
	}
}

// ObserveQuery records a snapshot query.
func (m *Metrics) ObserveQuery(d time.Duration, cached bool) {
	label := "miss"
	if cached {
		label = "hit"
	}
	m.QueryDuration.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveRebuild records a successful rebuild and its report.
func (m *Metrics) ObserveRebuild(report resolve.Report, d time.Duration) {
	m.RebuildsTotal.WithLabelValues("ok").Inc()
	m.RebuildDuration.Observe(d.Seconds())
	m.RecordsTotal.WithLabelValues("game").Add(float64(report.GameRecords))
	m.RecordsTotal.WithLabelValues("video").Add(float64(report.VideoRecords))
	for kind, n := range report.RejectionsByKind() {
		m.RejectionsTotal.WithLabelValues(string(kind)).Add(float64(n))
	}
	for _, c := range report.Conflicts {
		m.ConflictsTotal.WithLabelValues(string(c.Kind)).Inc()
	}
	for _, a := range report.Absorptions {
		m.AbsorptionsTotal.WithLabelValues(string(a.Case)).Inc()
	}
	m.FetchRequestsTotal.Add(float64(len(report.FetchRequests)))
}

// RebuildFailed records a failed rebuild.
func (m *Metrics) RebuildFailed() {
	m.RebuildsTotal.WithLabelValues("error").Inc()
}

// SetSnapshot publishes the counts of the active snapshot.
func (m *Metrics) SetSnapshot(entities, visible int) {
	m.Entities.Set(float64(entities))
	m.VisibleEntities.Set(float64(visible))
}

// ObserveNotification counts one notification attempt.
func (m *Metrics) ObserveNotification(notifier string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.NotificationsTotal.WithLabelValues(notifier, status).Inc()
}
