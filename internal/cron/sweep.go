// Package cron schedules background housekeeping.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/labstack/echo/v4"
)

// DefaultSweepInterval is how often expired refresh tokens are purged.
const DefaultSweepInterval = time.Hour

// Sweeper purges unusable refresh tokens.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// StartSweep runs s.Sweep once right away and then every interval.  Runs
// never overlap; each gets at most timeout.  Stop the returned scheduler
// on shutdown.
func StartSweep(s Sweeper, interval, timeout time.Duration, logger echo.Logger) (*gocron.Scheduler, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}

	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	_, err := sched.Every(interval).StartImmediately().Do(func() {
		runSweep(s, timeout, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	sched.StartAsync()
	logger.Infof("cron: refresh-token sweep every %s", interval)
	return sched, nil
}

func runSweep(s Sweeper, timeout time.Duration, logger echo.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		// retried on the next tick
		logger.Warnf("cron: sweep failed: %v", err)
	}
}
