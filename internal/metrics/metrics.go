package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Worker pipeline
	TasksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_processed_total",
			Help: "Tasks pulled off the queue, by task tag and outcome status",
		},
		[]string{"task", "status"}, // success|error
	)
	TaskRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "task_retries_total",
			Help: "Tasks resubmitted after a retryable failure",
		},
	)
	TasksDeadLettered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_dead_lettered_total",
			Help: "Tasks routed to the dead-letter queue",
		},
	)
	LockContention = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lock_contention_total",
			Help: "Messages requeued because a touched account was locked",
		},
	)

	// Queue
	QueuePublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_published_total",
			Help: "Envelopes published, by queue",
		},
		[]string{"queue"},
	)

	TransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transfer_duration_seconds",
			Help:    "Wall time of the atomic transfer operation",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// /metrics endpoint handler
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(TasksProcessed)
	prometheus.MustRegister(TaskRetries)
	prometheus.MustRegister(TasksDeadLettered)
	prometheus.MustRegister(LockContention)
	prometheus.MustRegister(QueuePublished)
	prometheus.MustRegister(TransferDuration)
}
