package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueueStats provides the metrics collector access to render queue state.
type QueueStats interface {
	Pending() int
	Completed() int64
	Failed() int64
}

// SubscriberCounter reports live SSE subscribers.
type SubscriberCounter interface {
	SubscriberCount() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	queue QueueStats
	subs  SubscriberCounter

	// Descriptors for scrape-time gauges.
	queuePending   *prometheus.Desc
	rendersTotal   *prometheus.Desc
	sseSubscribers *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Either argument may be nil (metrics will report 0).
func NewCollector(queue QueueStats, subs SubscriberCounter) *Collector {
	return &Collector{
		queue: queue,
		subs:  subs,
		queuePending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "render_queue", "pending"),
			"Render jobs waiting for a worker.",
			nil, nil,
		),
		rendersTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "renders_total"),
			"Render jobs finished, by outcome.",
			[]string{"outcome"}, nil,
		),
		sseSubscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sse_subscribers_active"),
			"Current number of SSE subscribers.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queuePending
	ch <- c.rendersTotal
	ch <- c.sseSubscribers
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var pending, completed, failed float64
	if c.queue != nil {
		pending = float64(c.queue.Pending())
		completed = float64(c.queue.Completed())
		failed = float64(c.queue.Failed())
	}
	ch <- prometheus.MustNewConstMetric(c.queuePending, prometheus.GaugeValue, pending)
	ch <- prometheus.MustNewConstMetric(c.rendersTotal, prometheus.CounterValue, completed, "completed")
	ch <- prometheus.MustNewConstMetric(c.rendersTotal, prometheus.CounterValue, failed, "failed")

	var subs float64
	if c.subs != nil {
		subs = float64(c.subs.SubscriberCount())
	}
	ch <- prometheus.MustNewConstMetric(c.sseSubscribers, prometheus.GaugeValue, subs)
}
