package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

// DefaultDriftInterval is the drift period used when none is configured.
const DefaultDriftInterval = 30 * time.Second

// Drifter applies one drift tick.
type Drifter interface {
	DriftTick(ctx context.Context) ([]*types.Entity, error)
}

// DriftScheduler runs drift ticks at a fixed interval. Each tick runs in
// its own goroutine with a deadline equal to the interval, so a slow store
// delays nothing but that tick, and a failing tick never stops the loop.
type DriftScheduler struct {
	drifter  Drifter
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	running  bool
	done     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup
	lastTick time.Time
}

// NewDriftScheduler creates a scheduler. A non-positive interval uses
// DefaultDriftInterval; a nil logger uses slog.Default().
func NewDriftScheduler(drifter Drifter, interval time.Duration, logger *slog.Logger) *DriftScheduler {
	if interval <= 0 {
		interval = DefaultDriftInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DriftScheduler{
		drifter:  drifter,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Interval returns the tick period.
func (s *DriftScheduler) Interval() time.Duration {
	return s.interval
}

// LastTick returns when the most recent tick finished successfully.
func (s *DriftScheduler) LastTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// Start runs the tick loop until ctx is done or Stop is called. It blocks,
// and waits for in-flight ticks before returning.
func (s *DriftScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("drift scheduler is already running")
	}
	s.running = true
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	defer func() {
		s.inflight.Wait()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("drift scheduler started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("drift scheduler stopping (context cancelled)")
			return ctx.Err()

		case <-s.stopCh:
			s.logger.Info("drift scheduler stopping (stop requested)")
			return nil

		case <-ticker.C:
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				if err := s.TickNow(ctx); err != nil {
					s.logger.Error("scheduled drift tick failed", "error", err)
				}
			}()
		}
	}
}

// Stop ends the loop started by Start and waits for in-flight ticks.
// Safe to call more than once, and before Start.
func (s *DriftScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	running, done := s.running, s.done
	s.mu.Unlock()
	if running {
		<-done
	}
}

// TickNow runs one drift tick synchronously, bounded by the interval.
func (s *DriftScheduler) TickNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	start := time.Now()
	updated, err := s.drifter.DriftTick(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastTick = time.Now()
	s.mu.Unlock()

	s.logger.Debug("drift tick applied", "entities", len(updated), "duration", time.Since(start))
	return nil
}
