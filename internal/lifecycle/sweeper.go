package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically times out open assignments whose deadline has passed,
// so they converge without any further candidate action.
type Sweeper struct {
	machine  *Machine
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewSweeper(m *Machine, interval time.Duration, batch int) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		machine:  m,
		interval: interval,
		batch:    batch,
		logger:   slog.With("component", "sweeper"),
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("starting deadline sweeper", "interval", s.interval.String(), "batch", s.batch)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping deadline sweeper")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	n, err := s.SweepOnce(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("deadline sweep failed", "error", err)
	}
	if n > 0 {
		s.logger.Info("overdue assignments timed out", "count", n)
	}
}

// SweepOnce converts overdue assignments in batches until a batch comes back
// short, and returns how many were timed out.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		timedOut, err := s.machine.store.TimeoutOverdue(ctx, s.machine.now(), s.batch)
		if err != nil {
			return total, err
		}
		for _, a := range timedOut {
			s.machine.timedOut(ctx, a, "sweep")
		}
		total += len(timedOut)
		if len(timedOut) < s.batch {
			return total, nil
		}
	}
}
