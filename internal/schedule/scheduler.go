// Package schedule fires digest runs at fixed local hours on weekdays,
// plus on demand through a trigger channel.
package schedule

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/avolkov/maildigest/internal/store"
)

// RunFunc performs one digest run including delivery.
type RunFunc func(ctx context.Context) error

// Scheduler drives RunFunc at the configured hours, Monday through
// Friday, in the configured timezone. Manual triggers run immediately
// and bypass the paused flag; scheduled runs honor it. Runs never
// overlap because the loop executes them inline.
type Scheduler struct {
	run     RunFunc
	hours   []int
	loc     *time.Location
	store   store.Store
	trigger <-chan struct{}
	logger  *slog.Logger
}

// New creates a scheduler. hours are local hours in [0,23]; duplicates
// are collapsed.
func New(
	run RunFunc,
	hours []int,
	loc *time.Location,
	s store.Store,
	trigger <-chan struct{},
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	uniq := make([]int, 0, len(hours))
	seen := make(map[int]bool)
	for _, h := range hours {
		if !seen[h] {
			seen[h] = true
			uniq = append(uniq, h)
		}
	}
	sort.Ints(uniq)

	return &Scheduler{
		run:     run,
		hours:   uniq,
		loc:     loc,
		store:   s,
		trigger: trigger,
		logger:  logger,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.nextFire(time.Now().In(s.loc))
		timer := time.NewTimer(time.Until(next))
		s.logger.Info("next scheduled digest", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case <-timer.C:
			paused, err := s.store.GetPaused(ctx)
			if err != nil {
				s.logger.Error("reading paused flag", "err", err)
			}
			if paused {
				s.logger.Info("digests paused, skipping scheduled run")
				continue
			}
			s.fire(ctx, "schedule")

		case <-s.trigger:
			timer.Stop()
			s.fire(ctx, "manual")
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, reason string) {
	s.logger.Info("starting digest run", "reason", reason)
	if err := s.run(ctx); err != nil {
		s.logger.Error("digest run failed", "reason", reason, "err", err)
	}
}

// nextFire returns the earliest weekday instant strictly after now
// whose hour is one of the configured hours, at minute zero.
func (s *Scheduler) nextFire(now time.Time) time.Time {
	day := now
	for i := 0; i < 8; i++ {
		if isWeekday(day.Weekday()) {
			for _, h := range s.hours {
				candidate := time.Date(
					day.Year(), day.Month(), day.Day(), h, 0, 0, 0, s.loc,
				)
				if candidate.After(now) {
					return candidate
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	// No hours configured; park the timer far out, triggers still work.
	return now.Add(24 * time.Hour)
}

func isWeekday(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}
