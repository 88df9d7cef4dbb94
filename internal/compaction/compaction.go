// Package compaction runs the periodic persistence tick: it walks every
// currently-live room and flushes any dirty snapshot through the
// registry's debounced saver, then sweeps for rooms left registered
// with zero members.
package compaction

import (
	"context"
	"log"
	"sync"
	"time"
)

// Registry is the subset of registry.Registry the tick needs. Declaring
// it here (rather than importing internal/registry directly) keeps this
// package able to be unit tested against a fake without pulling in the
// whole persistence stack.
type Registry interface {
	RoomIDs() []string
	SaveDirty(ctx context.Context, id string)
	RoomCount() int
	EvictEmpty(ctx context.Context)
}

// Config controls how often the tick runs.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns the tick cadence used when the save interval is
// unset.
func DefaultConfig() Config {
	return Config{Interval: 1 * time.Second}
}

// Service is the background scheduler that keeps every live room's
// persisted copy from drifting too far behind its in-memory state.
type Service struct {
	registry Registry
	config   Config
	logger   *log.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates a Service over reg using the given cadence.
func New(reg Registry, config Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		registry: reg,
		config:   config,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins ticking in a background goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Printf("compaction: persistence tick started (interval: %v)", s.config.Interval)
}

// Stop halts the ticker and waits for the in-flight tick to finish.
func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.logger.Println("compaction: persistence tick stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep saves every live room's dirty snapshot, if any. SaveDirty is a
// no-op for a room with nothing unsaved, so this is safe to run on a
// short interval against a large room set.
func (s *Service) sweep() {
	ctx := context.Background()
	ids := s.registry.RoomIDs()
	for _, id := range ids {
		s.registry.SaveDirty(ctx, id)
	}
	s.registry.EvictEmpty(ctx)
}

// SweepNow runs one sweep immediately, for tests and for a clean-shutdown
// final flush before the process exits.
func (s *Service) SweepNow() {
	s.sweep()
}
