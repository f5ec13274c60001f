package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RelayEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Total number of raw message events submitted to the pipeline (count)",
		},
		[]string{"origin", "outcome"},
	)

	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_duration_us",
			Help:    "OTP extraction duration in microseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"result"},
	)

	DedupClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_claims_total",
			Help: "Total number of dedup gate decisions (count)",
		},
		[]string{"status"},
	)

	DedupProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dedup_processing_duration_ms",
			Help:    "Processing duration for dedup gate checks in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	DedupReleasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_releases_total",
			Help: "Total number of dedup claims rolled back after failed delivery (count)",
		},
	)

	DedupCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_cache_size",
			Help: "Approximate size of deduplication cache (count)",
		},
	)

	ForwardAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forward_attempts_total",
			Help: "Total number of forwarding attempts (count)",
		},
		[]string{"transport", "status"},
	)

	ForwardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forward_duration_ms",
			Help:    "Duration of forwarding attempts in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"transport"},
	)

	DispatchInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_in_flight",
			Help: "Number of deliveries currently in flight (count)",
		},
	)

	SourceWatermark = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "source_watermark",
			Help: "Highest message store identifier handed to the pipeline (id)",
		},
	)

	SourceEnabled = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_enabled",
			Help: "Whether a message source is running (1) or disabled (0)",
		},
		[]string{"source"},
	)

	SourceScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_scans_total",
			Help: "Total number of message store scans (count)",
		},
		[]string{"origin", "status"},
	)

	NotificationsFilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_filtered_total",
			Help: "Total number of notifications dropped before the pipeline (count)",
		},
		[]string{"reason"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "message_queue_size",
			Help: "Current size of the in-process hand-off queue (count)",
		},
		[]string{"topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy"},
	)

	ConfigReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_reloads_total",
			Help: "Total number of live configuration reloads (count)",
		},
		[]string{"trigger", "status"},
	)
)

var registerOnce sync.Once

// RegisterRelayMetrics registers every collector with the default registry. Safe to call more than once.
func RegisterRelayMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RelayEventsTotal,
			ExtractionDuration,
			DedupClaimsTotal,
			DedupProcessingDuration,
			DedupReleasesTotal,
			DedupCacheSize,
			ForwardAttemptsTotal,
			ForwardDuration,
			DispatchInFlight,
			SourceWatermark,
			SourceEnabled,
			SourceScansTotal,
			NotificationsFilteredTotal,
			RetryAttemptsTotal,
			DLQMessagesTotal,
			KafkaMessagesReadTotal,
			KafkaMessagesWrittenTotal,
			KafkaWriteDuration,
			QueueDepth,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RateLimitRequestsTotal,
			FallbackUsageTotal,
			ConfigReloadsTotal,
		)
	})
}

func ObserveExtraction(duration time.Duration, found bool) {
	result := "miss"
	if found {
		result = "found"
	}
	ExtractionDuration.WithLabelValues(result).Observe(float64(duration.Microseconds()))
}

func ObserveDedupDuration(duration time.Duration, status string) {
	DedupProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func SetDedupCacheSize(size int) {
	DedupCacheSize.Set(float64(size))
}

func ObserveForward(transport string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	ForwardAttemptsTotal.WithLabelValues(transport, status).Inc()
	ForwardDuration.WithLabelValues(transport).Observe(float64(duration.Milliseconds()))
}

func SetSourceEnabled(source string, enabled bool) {
	v := 0.0
	if enabled {
		v = 1
	}
	SourceEnabled.WithLabelValues(source).Set(v)
}

func SetWatermark(id int64) {
	SourceWatermark.Set(float64(id))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func SetQueueDepth(topic string, depth int) {
	QueueDepth.WithLabelValues(topic).Set(float64(depth))
}

func IncConfigReload(trigger string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ConfigReloadsTotal.WithLabelValues(trigger, status).Inc()
}
