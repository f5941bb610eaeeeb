package syncer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"campusgate/internal/jobs"
)

// Metrics are the sync job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	records  *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusgate",
			Name:      "sync_jobs_total",
			Help:      "Sync jobs by terminal status.",
		}, []string{"status"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "campusgate",
			Name:      "sync_job_duration_seconds",
			Help:      "Wall time of sync jobs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusgate",
			Name:      "sync_records_total",
			Help:      "Roster records processed by stage.",
		}, []string{"stage"}),
	}
}

func (m *Metrics) observe(status jobs.Status, took time.Duration, s jobs.Stats) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
	m.duration.Observe(took.Seconds())
	m.records.WithLabelValues("fetched").Add(float64(s.Fetched))
	m.records.WithLabelValues("created").Add(float64(s.Created))
	m.records.WithLabelValues("updated").Add(float64(s.Updated))
	m.records.WithLabelValues("exported").Add(float64(s.Exported))
	m.records.WithLabelValues("skipped").Add(float64(s.Skipped))
}
