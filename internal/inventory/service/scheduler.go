package service

import (
	"context"
	"time"
)

const sweepJob = "expiry_sweep"

// SweepScheduler refreshes the expiry dashboard periodically
type SweepScheduler struct {
	sweep    *ExpirySweep
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweepScheduler creates a new sweep scheduler
func NewSweepScheduler(sweep *ExpirySweep, interval time.Duration) *SweepScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SweepScheduler{
		sweep:    sweep,
		interval: interval,
	}
}

// Start starts the scheduler in a background goroutine.
// The first sweep runs immediately.
func (s *SweepScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		log := s.sweep.logger
		log.Info().Dur("interval", s.interval).Msg("expiry sweep scheduler started")

		s.runCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("expiry sweep scheduler stopped")
				return
			case <-ticker.C:
				s.runCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine and waits for a running sweep to finish
func (s *SweepScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *SweepScheduler) runCycle(ctx context.Context) {
	start := time.Now()
	d, err := s.sweep.Refresh(ctx)
	s.sweep.jobMetrics.ObserveDuration(sweepJob, time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.sweep.jobMetrics.IncFailure(sweepJob)
		s.sweep.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}

	s.sweep.jobMetrics.IncSuccess(sweepJob)
	s.sweep.logger.Info().
		Dur("duration", time.Since(start)).
		Int("lots", d.TotalLots).
		Int("units", d.TotalUnits).
		Msg("expiry sweep completed")
}
