package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "floodwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Ingest metrics
	IngestReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_ingest_readings_total",
			Help: "Total number of sensor readings received",
		},
		[]string{"device_id", "status"}, // status: ok, error
	)

	IngestValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_ingest_validation_errors_total",
			Help: "Total number of validation errors",
		},
		[]string{"error_type"},
	)

	// Alert engine metrics
	AlertsTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_alerts_triggered_total",
			Help: "Total number of alerts created",
		},
		[]string{"rule", "severity"},
	)

	AlertsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_alerts_resolved_total",
			Help: "Total number of alerts resolved",
		},
		[]string{"rule"},
	)

	// Notification metrics
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_notifications_sent_total",
			Help: "Total number of push deliveries attempted",
		},
		[]string{"status"}, // status: success, failed
	)

	SubscriptionsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "floodwatch_subscriptions_pruned_total",
			Help: "Total number of dead push subscriptions deleted",
		},
	)

	// Realtime broadcast metrics
	RealtimePublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_realtime_publish_total",
			Help: "Total number of realtime events published",
		},
		[]string{"event", "status"},
	)

	// Liveness metrics
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "floodwatch_liveness_sweep_duration_seconds",
			Help:    "Time taken by one device liveness sweep",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	DeviceStatusChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_device_status_changes_total",
			Help: "Total number of device online/offline transitions",
		},
		[]string{"status"}, // status: online, offline
	)

	// Export queue metrics
	ExportQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "floodwatch_export_queue_size",
			Help: "Current size of the reading export queue",
		},
	)

	ExportQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "floodwatch_export_queue_capacity",
			Help: "Capacity of the reading export queue",
		},
	)

	ExportProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "floodwatch_export_processed_total",
			Help: "Total number of readings exported by workers",
		},
	)

	ExportFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "floodwatch_export_failed_total",
			Help: "Total number of readings that failed to export",
		},
	)

	ExportBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "floodwatch_export_batch_publish_duration_seconds",
			Help:    "Time taken to publish an export batch to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "floodwatch_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "floodwatch_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retry attempts",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
