package publisher

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/fimsync/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	// Default batch size for reading events per poll cycle
	DefaultBatchSize = 100
	// Default interval between poll cycles
	DefaultPollInterval = 100 * time.Millisecond
	// Default initial retry delay for failed publish operations
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 30 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
	// Maximum number of retry attempts before giving up on an event
	DefaultMaxRetries = 100
)

// WorkerConfig configures a sink worker
type WorkerConfig struct {
	Name            string        // Sink name (for cursor tracking)
	Spool           *Spool        // Spool to read from
	Sink            Sink          // Destination sink
	Transformer     Transformer   // Event transformer
	Filter          Filter        // Event filter
	TopicPrefix     string        // Topic prefix (e.g., "fimsync")
	BatchSize       int           // Events per poll cycle
	PollInterval    time.Duration // Poll interval
	RetryInitial    time.Duration // Initial retry delay
	RetryMax        time.Duration // Max retry delay
	RetryMultiplier float64       // Backoff multiplier
	MaxRetries      int           // Maximum retry attempts per event
}

// Worker polls the spool and publishes events to a sink
type Worker struct {
	config      WorkerConfig
	cursor      uint64
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     atomic.Bool
	lifecycleMu sync.Mutex
}

// NewWorker creates a new sink worker
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if config.Spool == nil {
		return nil, fmt.Errorf("spool is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if config.Transformer == nil {
		return nil, fmt.Errorf("transformer is required")
	}
	if config.Filter == nil {
		return nil, fmt.Errorf("filter is required")
	}

	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	cursor, err := config.Spool.GetCursor(config.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	// New sink: start at the earliest event still in the spool
	if cursor == 0 {
		cursor, err = findEarliestEntry(config.Spool)
		if err != nil {
			return nil, fmt.Errorf("failed to find earliest entry: %w", err)
		}
	}

	return &Worker{
		config: config,
		cursor: cursor,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// findEarliestEntry returns the cursor just before the first spooled event
func findEarliestEntry(spool *Spool) (uint64, error) {
	events, err := spool.ReadFrom(0, 1)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	return events[0].SeqNum - 1, nil
}

// Cursor returns the last sequence number this worker handled
func (w *Worker) Cursor() uint64 {
	return atomic.LoadUint64(&w.cursor)
}

// Start starts the worker goroutine
func (w *Worker) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running.Load() {
		return
	}

	w.running.Store(true)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	log.Info().
		Str("worker", w.config.Name).
		Uint64("cursor", w.Cursor()).
		Msg("Starting sink worker")

	go w.pollLoop()
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running.Load() {
		return
	}

	close(w.stopCh)
	<-w.doneCh
	w.running.Store(false)

	log.Info().Str("worker", w.config.Name).Msg("Sink worker stopped")
}

func (w *Worker) pollLoop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		events, err := w.config.Spool.ReadFrom(w.Cursor(), w.config.BatchSize)
		if err != nil {
			log.Error().
				Err(err).
				Str("worker", w.config.Name).
				Uint64("cursor", w.Cursor()).
				Msg("Failed to read from spool")
			w.sleep(w.config.PollInterval)
			continue
		}

		if len(events) == 0 {
			w.sleep(w.config.PollInterval)
			continue
		}

		for _, event := range events {
			if err := w.processEvent(event); err != nil {
				log.Error().
					Err(err).
					Str("worker", w.config.Name).
					Uint64("seq", event.SeqNum).
					Msg("Failed to process event")
				return
			}
			atomic.StoreUint64(&w.cursor, event.SeqNum)
		}
	}
}

// processEvent publishes one event.
// Delivery is at-least-once: the cursor moves only after a successful publish,
// so a crash in between redelivers the event on restart.
func (w *Worker) processEvent(event SyncEvent) error {
	if !w.config.Filter.Match(event.Name) {
		telemetry.PublishTotal.With(w.config.Name, "filtered").Inc()
		if err := w.config.Spool.AdvanceCursor(w.config.Name, event.SeqNum); err != nil {
			log.Warn().
				Err(err).
				Str("worker", w.config.Name).
				Uint64("seq", event.SeqNum).
				Msg("Failed to advance cursor for filtered event")
		}
		return nil
	}

	data, err := w.config.Transformer.Transform(event)
	if err != nil {
		return fmt.Errorf("failed to transform event %d: %w", event.SeqNum, err)
	}

	topic := w.buildTopic(event.Name)
	key := strconv.FormatUint(event.AgentID, 16)

	if err := w.publishWithRetry(topic, key, data); err != nil {
		telemetry.PublishTotal.With(w.config.Name, "failed").Inc()
		return err
	}
	telemetry.PublishTotal.With(w.config.Name, "success").Inc()

	if err := w.config.Spool.AdvanceCursor(w.config.Name, event.SeqNum); err != nil {
		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Uint64("seq", event.SeqNum).
			Msg("Failed to advance cursor after successful publish - event may be redelivered")
	}

	return nil
}

// buildTopic maps an event name to a topic, e.g. fimsync.file_added
func (w *Worker) buildTopic(name string) string {
	if w.config.TopicPrefix == "" {
		return name
	}
	return w.config.TopicPrefix + "." + name
}

// publishWithRetry publishes data with exponential backoff retry
// Returns error if max retries exhausted or worker stopped
func (w *Worker) publishWithRetry(topic, key string, data []byte) error {
	delay := w.config.RetryInitial
	attempts := 0

	for {
		start := time.Now()
		err := w.config.Sink.Publish(topic, key, data)
		telemetry.PublishDurationSeconds.With(w.config.Name).Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= w.config.MaxRetries {
			return fmt.Errorf("exhausted max retries (%d) for topic %s: %w", w.config.MaxRetries, topic, err)
		}
		telemetry.PublishTotal.With(w.config.Name, "retry").Inc()

		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Str("topic", topic).
			Int("attempt", attempts).
			Dur("retry_delay", delay).
			Msg("Failed to publish event, retrying")

		if !w.sleep(delay) {
			return fmt.Errorf("worker stopped during retry")
		}

		delay = time.Duration(float64(delay) * w.config.RetryMultiplier)
		if delay > w.config.RetryMax {
			delay = w.config.RetryMax
		}
	}
}

// sleep sleeps for the given duration, checking stopCh
// Returns true if sleep completed, false if stopped
func (w *Worker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
