// internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once              sync.Once
	ConsumedMessages  prometheus.Counter
	ValidationErrors  prometheus.Counter
	ProcessedTasks    prometheus.Counter
	ProcessErrors     prometheus.Counter
	SuccessPublished  prometheus.Counter
	FailurePublished  prometheus.Counter
	PublishErrors     prometheus.Counter
	QueueDepth        prometheus.Gauge
	ProcessingLatency prometheus.Histogram
)

// Register initializes and registers all metrics exactly once.
// If r == nil, uses prometheus.DefaultRegisterer; duplicate registrations are ignored.
func Register(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}

		ConsumedMessages = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskflow", Subsystem: "pipeline", Name: "consumed_messages_total",
			Help: "Total number of records fetched from the consumer topic",
		})
		ValidationErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskflow", Subsystem: "pipeline", Name: "validation_errors_total",
			Help: "Total number of records rejected by the validator",
		})
		ProcessedTasks = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskflow", Subsystem: "pipeline", Name: "processed_tasks_total",
			Help: "Total number of tasks processed successfully",
		})
		ProcessErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskflow", Subsystem: "pipeline", Name: "process_errors_total",
			Help: "Total number of tasks that failed inside the processor",
		})
		SuccessPublished = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskflow", Subsystem: "pipeline", Name: "success_outcomes_total",
			Help: "Success outcomes published to the result topic",
		})
		FailurePublished = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskflow", Subsystem: "pipeline", Name: "failure_outcomes_total",
			Help: "Failure outcomes published to the error topic",
		})
		PublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskflow", Subsystem: "pipeline", Name: "publish_errors_total",
			Help: "Outcomes that could not be delivered (offset committed regardless)",
		})
		QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskflow", Subsystem: "pipeline", Name: "queue_depth",
			Help: "Current number of tasks waiting in the worker-pool queue",
		})
		ProcessingLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskflow", Subsystem: "pipeline", Name: "processing_latency_seconds",
			Help:    "Latency of a single task from dequeue to published outcome",
			Buckets: prometheus.DefBuckets,
		})

		collectors := []prometheus.Collector{
			ConsumedMessages,
			ValidationErrors,
			ProcessedTasks,
			ProcessErrors,
			SuccessPublished,
			FailurePublished,
			PublishErrors,
			QueueDepth,
			ProcessingLatency,
		}
		for _, c := range collectors {
			if err := r.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	})
}
