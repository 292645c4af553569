// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package taskpool

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// poolMetrics holds the atomic counters a Pool maintains regardless of
// whether anything ever scrapes them; Collector just exposes them.
type poolMetrics struct {
	completed atomic.Int64
	errored   atomic.Int64
	panicked  atomic.Int64
}

// Collector adapts a Pool's internal counters and live queue depths to
// prometheus.Collector, so a caller can register it with their own
// registry. The pool never registers itself: a library should not reach
// into a process-global registry behind its caller's back.
type Collector struct {
	pool *Pool

	queueDepth    *prometheus.Desc
	workers       *prometheus.Desc
	completedDesc *prometheus.Desc
	erroredDesc   *prometheus.Desc
	panickedDesc  *prometheus.Desc
}

// NewCollector returns a prometheus.Collector reporting p's live state.
// Typical use: prometheus.MustRegister(taskpool.NewCollector(p)).
func NewCollector(p *Pool) *Collector {
	return &Collector{
		pool: p,
		queueDepth: prometheus.NewDesc(
			"taskpool_queue_depth",
			"Number of capsules currently queued.",
			[]string{"queue"}, nil,
		),
		workers: prometheus.NewDesc(
			"taskpool_workers",
			"Number of live worker goroutines.",
			nil, nil,
		),
		completedDesc: prometheus.NewDesc(
			"taskpool_tasks_completed_total",
			"Total number of capsules invoked without error.",
			nil, nil,
		),
		erroredDesc: prometheus.NewDesc(
			"taskpool_tasks_errored_total",
			"Total number of capsules whose invocation returned an error.",
			nil, nil,
		),
		panickedDesc: prometheus.NewDesc(
			"taskpool_tasks_panicked_total",
			"Total number of fiber panics recovered and confined.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.workers
	ch <- c.completedDesc
	ch <- c.erroredDesc
	ch <- c.panickedDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	p := c.pool
	p.mu.Lock()
	shared := p.sharedQueue.Len()
	workerDepths := make([]int, len(p.workers))
	for i, w := range p.workers {
		workerDepths[i] = w.privateQueue.Len()
	}
	workerCount := len(p.workers)
	p.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(shared), "shared")
	total := shared
	for _, d := range workerDepths {
		total += d
	}
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(total), "total")
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(workerCount))
	ch <- prometheus.MustNewConstMetric(c.completedDesc, prometheus.CounterValue, float64(p.metrics.completed.Load()))
	ch <- prometheus.MustNewConstMetric(c.erroredDesc, prometheus.CounterValue, float64(p.metrics.errored.Load()))
	ch <- prometheus.MustNewConstMetric(c.panickedDesc, prometheus.CounterValue, float64(p.metrics.panicked.Load()))
}
