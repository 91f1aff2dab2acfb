package alerts

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/util"

	"go.uber.org/zap"
)

type taskFunc func(ctx context.Context) error

// scheduleEvery registers a task firing once per interval. Caller holds e.mu.
func (e *Engine) scheduleEvery(name string, interval time.Duration, fn taskFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	e.tasks[name] = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.runTask(ctx, name, fn)
			}
		}
	}()

	e.logger.Info("Scheduled task", zap.String("task", name), zap.Duration("interval", interval))
}

// scheduleAt registers a task firing at the times produced by next. Caller
// holds e.mu.
func (e *Engine) scheduleAt(name string, next func(now time.Time) time.Time, fn taskFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	e.tasks[name] = cancel

	first := next(e.now())

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		at := first
		for {
			timer := time.NewTimer(at.Sub(e.now()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				e.runTask(ctx, name, fn)
			}
			// computed from wall time so a late fire never repeats the same slot
			at = next(maxTime(e.now(), at.Add(time.Second)))
		}
	}()

	e.logger.Info("Scheduled task", zap.String("task", name), zap.Time("next_run", first))
}

// runTask executes a task body detached from the registry's cancellation and
// never lets an error or panic escape into the scheduling loop.
func (e *Engine) runTask(ctx context.Context, name string, fn taskFunc) {
	defer func() {
		if r := recover(); r != nil {
			util.AlertTaskPanicsTotal.WithLabelValues(name).Inc()
			e.logger.Error("Recovered panic in scheduled task",
				zap.String("task", name),
				zap.Any("panic", r))
		}
	}()

	start := time.Now()
	err := fn(context.WithoutCancel(ctx))
	util.AlertRunDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		e.logger.Error("Scheduled task failed", zap.String("task", name), zap.Error(err))
	}
}

// nextDailyRun returns the first hour:00 in loc strictly after now
func nextDailyRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	run := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !run.After(local) {
		run = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return run
}

// nextWeeklyRun returns the first weekday at hour:00 in loc strictly after now
func nextWeeklyRun(now time.Time, weekday time.Weekday, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	days := (int(weekday) - int(local.Weekday()) + 7) % 7
	run := time.Date(local.Year(), local.Month(), local.Day()+days, hour, 0, 0, 0, loc)
	if !run.After(local) {
		run = time.Date(local.Year(), local.Month(), local.Day()+days+7, hour, 0, 0, 0, loc)
	}
	return run
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func lockKey(task string) string {
	return fmt.Sprintf("alerts:%s", task)
}
