package fimdb

import (
	"context"
	"sync"
	"time"

	"github.com/maxpert/fimsync/callback"
)

// IntegrityScheduler runs RunIntegrity on a fixed interval.
type IntegrityScheduler struct {
	db       *DB
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewIntegrityScheduler creates a scheduler; call Start to begin.
func NewIntegrityScheduler(db *DB, interval time.Duration) *IntegrityScheduler {
	return &IntegrityScheduler{
		db:       db,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background loop. A non-positive interval disables it.
func (s *IntegrityScheduler) Start() {
	if s.interval <= 0 {
		return
	}
	s.wg.Add(1)
	go s.run()
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (s *IntegrityScheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *IntegrityScheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if _, err := s.db.RunIntegrity(ctx); err != nil {
				s.db.notify.Logf(callback.LevelError, "integrity check failed: %v", err)
			}
			cancel()
		}
	}
}
