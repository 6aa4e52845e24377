package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Runnable starts a script with named argument values.
type Runnable interface {
	RunWithValues(script string, values map[string]string) error
}

// CronTriggerManager owns the triggers of every schedule.
type CronTriggerManager struct {
	triggers []*CronTrigger
	specs    []TriggerSpec
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewCronTriggerManager creates one trigger per spec. Each firing starts
// the spec's scripts in order; a script that is already running is skipped.
func NewCronTriggerManager(specs []TriggerSpec, runnable Runnable, logger *slog.Logger) (*CronTriggerManager, error) {
	triggers := make([]*CronTrigger, 0, len(specs))
	for _, spec := range specs {
		spec := spec
		callback := func() error {
			var errs []error
			for _, script := range spec.Scripts {
				if err := runnable.RunWithValues(script, spec.Args); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", script, err))
				}
			}
			return errors.Join(errs...)
		}

		trigger, err := NewCronTrigger(spec.CronSpec, callback, logger)
		if err != nil {
			return nil, fmt.Errorf("creating trigger for '%s:%s': %w",
				strings.Join(spec.Scripts, ","), spec.CronSpec, err)
		}
		triggers = append(triggers, trigger)
	}

	for i, trigger := range triggers {
		logger.Info("trigger registered",
			"scripts", specs[i].Scripts,
			"schedule", specs[i].CronSpec,
			"next_run", trigger.NextRun(),
		)
	}

	return &CronTriggerManager{
		triggers: triggers,
		specs:    specs,
		logger:   logger,
	}, nil
}

// Start launches every trigger. They stop when ctx is cancelled.
func (m *CronTriggerManager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		m.wg.Add(1)
		go func(t *CronTrigger) {
			defer m.wg.Done()
			t.loop(ctx)
		}(trigger)
	}
}

// Wait blocks until all started triggers have stopped.
func (m *CronTriggerManager) Wait() {
	m.wg.Wait()
}

// Len returns the number of triggers.
func (m *CronTriggerManager) Len() int {
	return len(m.triggers)
}

// NextRun returns the earliest scheduled run across all triggers, or the
// zero time when there are none.
func (m *CronTriggerManager) NextRun() time.Time {
	var earliest time.Time
	for _, t := range m.triggers {
		next := t.NextRun()
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}

// ScheduledRun describes when a script will next run.
type ScheduledRun struct {
	Scripts  []string  `json:"scripts"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
}

// Schedule lists every trigger with its next run time.
func (m *CronTriggerManager) Schedule() []ScheduledRun {
	result := make([]ScheduledRun, 0, len(m.triggers))
	for i, t := range m.triggers {
		result = append(result, ScheduledRun{
			Scripts:  m.specs[i].Scripts,
			Schedule: m.specs[i].CronSpec,
			NextRun:  t.NextRun(),
		})
	}
	return result
}
