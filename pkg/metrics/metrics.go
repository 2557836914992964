// Package metrics provides observability for the scheduler's cache pool and
// queues.
//
// Implementations can use this interface to collect metrics about pool
// occupancy, queue depth, and sticky errors. This is optional - if not
// provided, metrics collection is skipped.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector is the observability hook the cachepool and scheduler packages
// call into. A nil Collector is valid: both packages skip every call when
// it is nil, so callers that don't care about metrics can pass nil.
type Collector interface {
	// SetPoolCapacity records the pool's current_capacity in blocks.
	SetPoolCapacity(n int)

	// SetPoolFree records the number of free (unreferenced) blocks.
	SetPoolFree(n int)

	// SetQueueDepth records the request count for one named queue
	// ("working_set", "dp_queue", "ip_queue", "ext_queue"). The ext_queue
	// holds no requests; its value is the number of dentries on it.
	SetQueueDepth(queue string, n int)

	// SetCacheWaiters records the number of foreground threads currently
	// blocked on pool exhaustion.
	SetCacheWaiters(n int)

	// IncWriteErrors increments the count of sticky write errors stamped
	// on dentries.
	IncWriteErrors(partition string)
}

// Prometheus is a Collector backed by github.com/prometheus/client_golang.
type Prometheus struct {
	poolCapacity  prometheus.Gauge
	poolFree      prometheus.Gauge
	queueDepth    *prometheus.GaugeVec
	cacheWaiters  prometheus.Gauge
	writeErrors   *prometheus.CounterVec
}

// NewPrometheus creates a Collector and registers its metrics against reg.
// Pass prometheus.DefaultRegisterer to use the global registry.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	p := &Prometheus{
		poolCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cachepool",
			Name:      "capacity_blocks",
			Help:      "Current cache block pool capacity, in blocks.",
		}),
		poolFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cachepool",
			Name:      "free_blocks",
			Help:      "Free (unreferenced) blocks currently on the pool's free list.",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_requests",
			Help:      "Pending request count per scheduler queue.",
		}, []string{"queue"}),
		cacheWaiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cache_waiters",
			Help:      "Foreground threads currently blocked on pool exhaustion.",
		}),
		writeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "write_errors_total",
			Help:      "Sticky write errors stamped on dentries, by partition.",
		}, []string{"partition"}),
	}

	reg.MustRegister(p.poolCapacity, p.poolFree, p.queueDepth, p.cacheWaiters, p.writeErrors)
	return p
}

func (p *Prometheus) SetPoolCapacity(n int) { p.poolCapacity.Set(float64(n)) }
func (p *Prometheus) SetPoolFree(n int)     { p.poolFree.Set(float64(n)) }

func (p *Prometheus) SetQueueDepth(queue string, n int) {
	p.queueDepth.WithLabelValues(queue).Set(float64(n))
}

func (p *Prometheus) SetCacheWaiters(n int) { p.cacheWaiters.Set(float64(n)) }

func (p *Prometheus) IncWriteErrors(partition string) {
	p.writeErrors.WithLabelValues(partition).Inc()
}
