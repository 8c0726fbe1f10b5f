package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/fimsync/cfg"
	"github.com/maxpert/fimsync/encoding"
	"github.com/rs/zerolog/log"
)

// RegistryConfig configures the publisher registry
type RegistryConfig struct {
	DataDir     string                  // Spool lives under {DataDir}/spool
	AgentID     uint64                  // Stamped on every spooled event
	Spool       cfg.SpoolConfiguration  // Compression and spool-side filter
	SinkConfigs []cfg.SinkConfiguration // One worker per sink
}

// Registry owns the spool and the lifecycle of all sink workers
type Registry struct {
	spool    *Spool
	notifier *Notifier
	workers  []*Worker
	running  atomic.Bool
	mu       sync.Mutex
}

// NewRegistry opens the spool and creates a worker per sink configuration
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	compressor, err := encoding.NewCompressor(config.Spool.CompressionLevel, config.Spool.CompressionThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	spoolFilter, err := NewGlobFilter(config.Spool.FilterEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to create spool filter: %w", err)
	}

	spool, err := NewSpool(config.DataDir, compressor)
	if err != nil {
		return nil, fmt.Errorf("failed to create spool: %w", err)
	}

	registry := &Registry{
		spool:    spool,
		notifier: NewNotifier(spool, spoolFilter, config.AgentID),
		workers:  make([]*Worker, 0, len(config.SinkConfigs)),
	}

	for _, sinkCfg := range config.SinkConfigs {
		if err := registry.AddSink(sinkCfg); err != nil {
			for _, worker := range registry.workers {
				worker.config.Sink.Close()
			}
			spool.Close()
			return nil, fmt.Errorf("failed to add sink %q: %w", sinkCfg.Name, err)
		}
	}

	log.Info().
		Int("workers", len(registry.workers)).
		Msg("Publisher registry initialized")

	return registry, nil
}

// AddSink creates and adds a new worker for the given sink configuration
func (r *Registry) AddSink(config cfg.SinkConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snk, err := NewSink(config)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	trans, err := createTransformer(config.Format)
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create transformer: %w", err)
	}

	filter, err := NewGlobFilter(config.FilterEvents)
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create filter: %w", err)
	}

	worker, err := NewWorker(WorkerConfig{
		Name:            config.Name,
		Spool:           r.spool,
		Sink:            snk,
		Transformer:     trans,
		Filter:          filter,
		TopicPrefix:     config.TopicPrefix,
		BatchSize:       config.BatchSize,
		PollInterval:    time.Duration(config.PollIntervalMS) * time.Millisecond,
		RetryInitial:    time.Duration(config.RetryInitialMS) * time.Millisecond,
		RetryMax:        time.Duration(config.RetryMaxMS) * time.Millisecond,
		RetryMultiplier: config.RetryMultiplier,
		MaxRetries:      config.MaxRetries,
	})
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create worker: %w", err)
	}

	r.workers = append(r.workers, worker)
	if r.running.Load() {
		worker.Start()
	}

	log.Info().
		Str("sink", config.Name).
		Str("type", config.Type).
		Str("format", config.Format).
		Msg("Added sink")

	return nil
}

// Notifier returns the SyncNotifier feeding this registry's spool
func (r *Registry) Notifier() *Notifier {
	return r.notifier
}

// Spool returns the underlying spool
func (r *Registry) Spool() *Spool {
	return r.spool
}

// Start starts all workers
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return fmt.Errorf("registry already running")
	}

	for _, worker := range r.workers {
		worker.Start()
	}
	r.running.Store(true)

	return nil
}

// Stop stops all workers, closes their sinks and closes the spool.
// Events notified after Stop are dropped and counted.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.spool.closed.Load() {
		return
	}

	for _, worker := range r.workers {
		worker.Stop()
		if err := worker.config.Sink.Close(); err != nil {
			log.Warn().Err(err).Str("sink", worker.config.Name).Msg("Failed to close sink")
		}
	}
	r.running.Store(false)

	if err := r.spool.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close spool")
	}

	log.Info().Msg("Publisher registry stopped")
}

// NewSink builds a sink with the factory registered for config.Type
func NewSink(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, exists := sinkFactories[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}

	return factory(config)
}

// SinkFactory is a function that creates a Sink from a configuration
type SinkFactory func(cfg.SinkConfiguration) (Sink, error)

// TransformerFactory is a function that creates a Transformer
type TransformerFactory func() Transformer

var (
	sinkFactories        = make(map[string]SinkFactory)
	transformerFactories = make(map[string]TransformerFactory)
	factoryMu            sync.RWMutex
)

// RegisterSink registers a sink factory for a type
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}

// RegisterTransformer registers a transformer factory for a format
func RegisterTransformer(format string, factory TransformerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	transformerFactories[format] = factory
}

func createTransformer(format string) (Transformer, error) {
	factoryMu.RLock()
	factory, exists := transformerFactories[format]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown format: %s", format)
	}

	return factory(), nil
}
