package telemetry

// PublishBuckets covers sink round trips from local NATS to a remote Kafka cluster
var PublishBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Callback boundary metrics
var (
	// SyncEventsTotal counts sync notifications by event name
	SyncEventsTotal CounterVec = noopCounterVec{}

	// SyncEventsDroppedTotal counts events not spooled by reason (filtered, spool_error, closed)
	SyncEventsDroppedTotal CounterVec = noopCounterVec{}

	// LogLinesTotal counts log notifications by level
	LogLinesTotal CounterVec = noopCounterVec{}
)

// Spool and sink metrics
var (
	// SpoolAppendsTotal counts events written to the spool
	SpoolAppendsTotal Counter = NoopStat{}

	// SpoolBacklog tracks events not yet acknowledged by the slowest sink
	SpoolBacklog Gauge = NoopStat{}

	// PublishTotal counts publish attempts by sink and result (success, retry, failed, filtered)
	PublishTotal CounterVec = noopCounterVec{}

	// PublishDurationSeconds measures sink publish latency
	PublishDurationSeconds HistogramVec = noopHistogramVec{}

	// HubSubscribers tracks live in-process subscribers
	HubSubscribers Gauge = NoopStat{}
)

// FIM database metrics
var (
	// FileEntries tracks the number of monitored file entries
	FileEntries Gauge = NoopStat{}

	// IntegrityChecksTotal counts integrity passes by event
	IntegrityChecksTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	SyncEventsTotal = NewCounterVec(
		"sync_events_total",
		"Sync notifications by event name",
		[]string{"name"},
	)
	SyncEventsDroppedTotal = NewCounterVec(
		"sync_events_dropped_total",
		"Sync notifications not spooled by reason",
		[]string{"reason"},
	)
	LogLinesTotal = NewCounterVec(
		"log_lines_total",
		"Log notifications by level",
		[]string{"level"},
	)

	SpoolAppendsTotal = NewCounter(
		"spool_appends_total",
		"Events appended to the spool",
	)
	SpoolBacklog = NewGauge(
		"spool_backlog",
		"Spooled events not yet acknowledged by every sink",
	)
	PublishTotal = NewCounterVec(
		"publish_total",
		"Sink publish attempts by result",
		[]string{"sink", "result"},
	)
	PublishDurationSeconds = NewHistogramVec(
		"publish_duration_seconds",
		"Sink publish latency",
		[]string{"sink"},
		PublishBuckets,
	)
	HubSubscribers = NewGauge(
		"hub_subscribers",
		"Live in-process sync subscribers",
	)

	FileEntries = NewGauge(
		"file_entries",
		"Monitored file entries",
	)
	IntegrityChecksTotal = NewCounterVec(
		"integrity_checks_total",
		"Integrity passes by emitted event",
		[]string{"event"},
	)
}
