package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FileCounter reports the number of monitored entries
type FileCounter interface {
	CountFiles(ctx context.Context) (int64, error)
}

// BacklogProvider reports how many spooled events are still pending
type BacklogProvider interface {
	Backlog() uint64
}

// MetricsCollector periodically collects stats and updates telemetry gauges
type MetricsCollector struct {
	files    FileCounter
	spool    BacklogProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector. Either source may be nil.
func NewMetricsCollector(files FileCounter, spool BacklogProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		files:    files,
		spool:    spool,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.files != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mc.interval)
		n, err := mc.files.CountFiles(ctx)
		cancel()
		if err != nil {
			log.Debug().Err(err).Msg("Failed to count file entries")
		} else {
			FileEntries.Set(float64(n))
		}
	}

	if mc.spool != nil {
		SpoolBacklog.Set(float64(mc.spool.Backlog()))
	}
}
