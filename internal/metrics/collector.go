package metrics

import (
	"net/http"
	"time"

	"lib2notes/internal/progress"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes metrics
type Collector struct {
	itemsTotal      *prometheus.CounterVec
	retriesTotal    prometheus.Counter
	duration        prometheus.Histogram
	progressTracker *progress.Tracker
}

// New creates a new metrics collector
func New() *Collector {
	c := &Collector{
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lib2notes_items_total",
				Help: "Total number of items processed, by outcome",
			},
			[]string{"outcome"},
		),
		retriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lib2notes_retries_total",
				Help: "Total number of retried collaborator calls",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lib2notes_item_duration_seconds",
				Help:    "Time taken to process an item",
				Buckets: prometheus.DefBuckets,
			},
		),
		progressTracker: progress.NewTracker(),
	}

	prometheus.MustRegister(c.itemsTotal)
	prometheus.MustRegister(c.retriesTotal)
	prometheus.MustRegister(c.duration)

	return c
}

// IncCompleted increments the completed item counter
func (c *Collector) IncCompleted() {
	c.itemsTotal.WithLabelValues("completed").Inc()
	c.progressTracker.AddCompleted()
}

// IncFailed increments the failed item counter
func (c *Collector) IncFailed() {
	c.itemsTotal.WithLabelValues("failed").Inc()
	c.progressTracker.AddFailed()
}

// IncSkipped increments the skipped item counter
func (c *Collector) IncSkipped() {
	c.itemsTotal.WithLabelValues("skipped").Inc()
	c.progressTracker.AddSkipped()
}

// AddRetries adds to the retry counter
func (c *Collector) AddRetries(count int) {
	c.retriesTotal.Add(float64(count))
}

// ObserveDuration observes per-item processing duration
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.duration.Observe(duration.Seconds())
}

// StartServer starts the metrics HTTP server
func (c *Collector) StartServer(addr string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, nil)
}

// GetProgressTracker returns the progress tracker
func (c *Collector) GetProgressTracker() *progress.Tracker {
	return c.progressTracker
}

// SetTotal sets the total item count for progress tracking
func (c *Collector) SetTotal(items int) {
	c.progressTracker.SetTotal(int64(items))
}
