package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Cycle runs one unit of work. It reports whether it found any, in which case
// the loop runs it again without waiting.
type Cycle func(ctx context.Context) (busy bool, err error)

// Loop polls a Cycle until its context is canceled. Errors and panics from a
// cycle are logged and never stop the loop.
type Loop struct {
	Name     string
	Interval time.Duration
	Logger   *slog.Logger
}

// Run blocks until ctx is canceled. The first cycle starts immediately.
func (l *Loop) Run(ctx context.Context, cycle Cycle) error {
	if l.Interval <= 0 {
		return ErrInvalidInterval
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("loop", l.Name)
	logger.Info("loop started", "interval", l.Interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("loop stopped")
			return nil
		case <-timer.C:
		}

		busy, err := runCycle(ctx, cycle)
		if err != nil && ctx.Err() == nil {
			logger.Error("cycle failed", "err", err)
		}

		if busy && err == nil {
			timer.Reset(0)
		} else {
			timer.Reset(l.Interval)
		}
	}
}

func runCycle(ctx context.Context, cycle Cycle) (busy bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			busy = false
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return cycle(ctx)
}
