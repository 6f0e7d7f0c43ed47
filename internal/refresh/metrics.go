package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bryan-buckman/feedsync/internal/rss"
)

// Metrics records refresh activity. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	fetches  *prometheus.CounterVec
	newItems prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics registers the refresh collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_refresh_runs_total",
			Help: "Refresh requests by outcome (ok, error, busy)",
		}, []string{"outcome"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_feed_fetches_total",
			Help: "Feed fetches by status class",
		}, []string{"status"}),
		newItems: f.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_new_items_total",
			Help: "Entries ingested",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedsync_refresh_duration_seconds",
			Help:    "Wall-clock time of completed refresh cycles",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

func (m *Metrics) observeRun(outcome string, sum Summary) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if outcome == "busy" {
		return
	}
	m.newItems.Add(float64(sum.NewItems))
	m.duration.Observe(sum.TimeSpent)
}

func (m *Metrics) observeFetch(status rss.Status) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(status.String()).Inc()
}
