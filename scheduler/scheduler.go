// Package scheduler runs a task once a day at a fixed wall-clock time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/moriyoshi/badass-mailer/internal/logging"
)

type InvalidTimeError struct {
	Hour   int
	Minute int
}

func (e *InvalidTimeError) Error() string {
	return fmt.Sprintf("invalid time of day %02d:%02d (hour must be within 0..23 and minute within 0..59)", e.Hour, e.Minute)
}

// Task is the unit of work a schedule fires.
type Task func(ctx context.Context) error

// Trigger delivers a tick on C every time the schedule comes due.
type Trigger struct {
	c    *cron.Cron
	ch   chan time.Time
	spec string
}

type TriggerOptionFunc func(*triggerConfig)

type triggerConfig struct {
	location *time.Location
}

// WithLocation sets the time zone the hour and minute are interpreted in.
// The default is the local time zone.
func WithLocation(loc *time.Location) TriggerOptionFunc {
	return func(c *triggerConfig) {
		c.location = loc
	}
}

func validateTimeOfDay(hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return &InvalidTimeError{Hour: hour, Minute: minute}
	}
	return nil
}

// NewDaily starts a trigger that fires at hour:minute every day.
func NewDaily(hour, minute int, options ...TriggerOptionFunc) (*Trigger, error) {
	if err := validateTimeOfDay(hour, minute); err != nil {
		return nil, err
	}
	cfg := triggerConfig{location: time.Local}
	for _, option := range options {
		option(&cfg)
	}
	t := &Trigger{
		c:    cron.New(cron.WithLocation(cfg.location)),
		ch:   make(chan time.Time, 1),
		spec: fmt.Sprintf("%d %d * * *", minute, hour),
	}
	_, err := t.c.AddFunc(t.spec, func() {
		// a firing that arrives while the previous one is still pending is dropped
		select {
		case t.ch <- time.Now():
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	t.c.Start()
	return t, nil
}

func (t *Trigger) C() <-chan time.Time {
	return t.ch
}

// Next returns the time of the upcoming firing.
func (t *Trigger) Next() time.Time {
	entries := t.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop halts the trigger and waits for a running firing to finish.
func (t *Trigger) Stop() {
	<-t.c.Stop().Done()
}

type runner struct {
	logger       *slog.Logger
	errorHandler func(context.Context, error)
}

type RunOptionFunc func(*runner)

func WithLogger(logger *slog.Logger) RunOptionFunc {
	return func(r *runner) {
		r.logger = logging.OrDiscard(logger)
	}
}

// WithErrorHandler makes Run hand task errors to fn and keep waiting for the
// next firing instead of returning.
func WithErrorHandler(fn func(context.Context, error)) RunOptionFunc {
	return func(r *runner) {
		r.errorHandler = fn
	}
}

// Run invokes task synchronously once per value received from fire until
// ctx is done or fire is closed. Without an error handler, the first task
// error ends Run and is returned.
func Run(ctx context.Context, fire <-chan time.Time, task Task, options ...RunOptionFunc) error {
	r := &runner{logger: logging.Discard()}
	for _, option := range options {
		option(r)
	}
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "scheduler stopped")
			return nil
		case at, ok := <-fire:
			if !ok {
				return nil
			}
			r.logger.InfoContext(ctx, "scheduled task fired", slog.Time("at", at))
			if err := task(ctx); err != nil {
				if r.errorHandler == nil {
					return err
				}
				r.errorHandler(ctx, err)
			}
		}
	}
}

// ScheduleDaily runs task at hour:minute local time every day until ctx is
// done.
func ScheduleDaily(ctx context.Context, task Task, hour, minute int, options ...RunOptionFunc) error {
	t, err := NewDaily(hour, minute)
	if err != nil {
		return err
	}
	defer t.Stop()
	r := &runner{logger: logging.Discard()}
	for _, option := range options {
		option(r)
	}
	r.logger.InfoContext(ctx, "waiting for the next firing", slog.Time("next", t.Next()))
	return Run(ctx, t.C(), task, options...)
}
