// internal/pipeline/scheduler.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/signalnine/marvinous/internal/report"
)

// Scheduler drives hourly runs and the daily rollup inside `serve`. Runs
// execute on the scheduler goroutine one at a time; a tick that finds the
// guard held by a manual run is skipped.
type Scheduler struct {
	App *App
	// Every is the hourly interval; zero disables hourly runs
	Every time.Duration
	// DailyAt is HH:MM UTC for the rollup of the previous day; empty disables it
	DailyAt string
	// RunOnStart triggers one hourly run before the first tick
	RunOnStart bool
}

// dailyRetry is how long a rollup waits when it finds the guard held
const dailyRetry = time.Minute

// NextDaily returns the first HH:MM (UTC) strictly after now
func NextDaily(now time.Time, at string) (time.Time, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid daily time %q: %w", at, err)
	}
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// Run blocks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting", "every", s.Every, "daily_at", s.DailyAt)

	var hourly <-chan time.Time
	if s.Every > 0 {
		ticker := time.NewTicker(s.Every)
		defer ticker.Stop()
		hourly = ticker.C
	}

	var daily <-chan time.Time
	var timer *time.Timer
	if s.DailyAt != "" {
		next, err := NextDaily(s.App.now(), s.DailyAt)
		if err != nil {
			return err
		}
		timer = time.NewTimer(time.Until(next))
		defer timer.Stop()
		daily = timer.C
		slog.Info("next daily rollup scheduled", "at", next)
	}

	if s.RunOnStart && s.Every > 0 {
		s.hourly(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			return nil
		case <-hourly:
			s.hourly(ctx)
		case <-daily:
			if !s.daily(ctx) {
				timer.Reset(dailyRetry)
				continue
			}
			next, _ := NextDaily(s.App.now(), s.DailyAt)
			timer.Reset(time.Until(next))
			slog.Info("next daily rollup scheduled", "at", next)
		}
	}
}

func (s *Scheduler) hourly(ctx context.Context) {
	if _, err := s.App.RunHourly(ctx); errors.Is(err, ErrAlreadyRunning) {
		slog.Info("hourly tick skipped, collection already running")
	}
}

// daily reports false when the guard was held and the rollup should be retried
func (s *Scheduler) daily(ctx context.Context) bool {
	date := report.YesterdayUTC(s.App.now())
	if _, err := s.App.RunDaily(ctx, date); errors.Is(err, ErrAlreadyRunning) {
		slog.Info("daily rollup deferred, collection already running", "date", date, "retry_in", dailyRetry)
		return false
	}
	return true
}
