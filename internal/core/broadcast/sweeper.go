package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbitsync/orbitsync/internal/core/observability/log"
	"github.com/orbitsync/orbitsync/internal/core/room"
)

// Sweeper periodically evicts rooms whose last activity is older than the
// idle timeout. It is the backstop against clients that disconnect without
// ever sending a leave.
type Sweeper struct {
	registry *room.Registry
	interval time.Duration
	maxIdle  time.Duration
	logger   log.Log

	running  int32 // atomic bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewSweeper(registry *room.Registry, interval, maxIdle time.Duration, logger log.Log) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		maxIdle:  maxIdle,
		logger:   logger.With(log.String("component", "sweeper")),
	}
}

func (s *Sweeper) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrAlreadyRunning
	}
	s.stopChan = make(chan struct{})
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("sweeper started",
		log.Duration("interval", s.interval),
		log.Duration("max_idle", s.maxIdle))
	return nil
}

func (s *Sweeper) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrNotRunning
	}
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
	return nil
}

func (s *Sweeper) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if evicted := s.registry.Sweep(s.maxIdle); len(evicted) > 0 {
				s.logger.Info("idle rooms evicted",
					log.Int("count", len(evicted)),
					log.Any("room_ids", evicted))
			}
		}
	}
}
