package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
)

// Maintainer is implemented by storage drivers that benefit from periodic
// upkeep (the sqlite driver).
type Maintainer interface {
	Optimize(ctx context.Context) error
}

// HousekeepingService periodically reports OTP challenge counts and runs
// storage maintenance. It never deletes challenges; they are kept for audit.
type HousekeepingService struct {
	Challenges store.OTPChallenges
	Maintainer Maintainer // optional
	Logger     *slog.Logger
	Interval   time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(challenges store.OTPChallenges, m Maintainer, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Challenges: challenges,
		Maintainer: m,
		Logger:     logger,
		Interval:   interval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop() to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until the worker has finished any in-progress pass.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs a single pass. Each step is independent, a failure in one
// won't stop the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	stats, err := s.Challenges.Stats(ctx, time.Now().UTC())
	if err != nil {
		s.Logger.Error("failed to collect otp stats", "error", err)
	} else {
		s.Logger.Info("otp challenge stats",
			"total", stats.Total,
			"valid", stats.Valid,
			"verified", stats.Verified,
		)
	}

	if s.Maintainer != nil {
		if err := s.Maintainer.Optimize(ctx); err != nil {
			s.Logger.Error("storage maintenance failed", "error", err)
		} else {
			s.Logger.Debug("storage maintenance completed")
		}
	}
}
