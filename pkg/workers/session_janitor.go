package workers

import (
	"context"
	"log/slog"
	"time"
)

type SessionSweeper interface {
	Sweep() int
}

type sessionJanitor struct {
	sweeper  SessionSweeper
	interval time.Duration
}

func NewSessionJanitor(sweeper SessionSweeper, interval time.Duration) *sessionJanitor {
	return &sessionJanitor{
		sweeper:  sweeper,
		interval: interval,
	}
}

func (s *sessionJanitor) Name() string { return "session_janitor" }

func (s *sessionJanitor) Start(ctx context.Context) error {
	slog.Info("Starting worker", "name", s.Name(), "interval", s.interval)
	defer slog.Info("Worker stopped", "name", s.Name())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.sweeper.Sweep(); n > 0 {
				slog.Debug("Expired sessions removed", "count", n)
			}
		}
	}
}
