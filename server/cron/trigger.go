// Package cron runs catalog scripts on cron schedules.
//
// Schedules come from the config file or the --cron flag. Each schedule
// becomes a CronTrigger; a CronTriggerManager owns all of them.
//
//	specs, err := cron.ParseTriggerSpecs("report_open_prs:0 7 * * 1-5", available)
//	if err != nil {
//		return err
//	}
//	manager, err := cron.NewCronTriggerManager(specs, registry, logger)
//	if err != nil {
//		return err
//	}
//	manager.Start(ctx)
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when a cron expression cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// parseSchedule parses a standard 5 field cron expression.
func parseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := specParser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}
	return schedule, nil
}

// CronTrigger calls a function according to a cron schedule.
type CronTrigger struct {
	spec     string
	schedule cron.Schedule
	callback func() error
	logger   *slog.Logger
}

// NewCronTrigger creates a trigger for the 5 field cron expression spec.
// Returns ErrInvalidCronSpec if spec cannot be parsed.
func NewCronTrigger(spec string, callback func() error, logger *slog.Logger) (*CronTrigger, error) {
	schedule, err := parseSchedule(spec)
	if err != nil {
		return nil, err
	}
	return &CronTrigger{
		spec:     spec,
		schedule: schedule,
		callback: callback,
		logger:   logger.With("schedule", spec),
	}, nil
}

// Start runs the trigger loop in a new goroutine until ctx is cancelled.
func (ct *CronTrigger) Start(ctx context.Context) {
	go ct.loop(ctx)
}

// NextRun returns the next scheduled time after now.
func (ct *CronTrigger) NextRun() time.Time {
	return ct.schedule.Next(time.Now())
}

func (ct *CronTrigger) loop(ctx context.Context) {
	for {
		next := ct.schedule.Next(time.Now())
		wait := time.Until(next)
		ct.logger.Debug("waiting for next scheduled run", "next_run", next, "wait_duration", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			ct.logger.Debug("cron trigger shutting down")
			return
		case <-timer.C:
			ct.fire()
		}
	}
}

func (ct *CronTrigger) fire() {
	ct.logger.Info("starting scheduled run")
	if err := ct.callback(); err != nil {
		ct.logger.Warn("scheduled run not started", "error", err)
	}
}
