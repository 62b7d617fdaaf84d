package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Runnable is implemented by anything that can be triggered by the cron
// scheduler. An empty source list means all enabled sources.
type Runnable interface {
	Run(sources []string) error
}

// CronTriggerManager manages multiple CronTrigger instances with different
// source groups and schedules.
type CronTriggerManager struct {
	triggers []*CronTrigger
	logger   *slog.Logger
}

// NewCronTriggerManager creates a new CronTriggerManager from a multi-trigger
// specification. The spec format is:
// source1,source2:cron_expression;source3:cron_expression2, where a bare
// cron expression runs all enabled sources.
//
// Example:
//
//	"csv,json:0 2 * * *;api:30 2 * * *"
//
// Returns an error if:
//   - The spec is invalid or cannot be parsed
//   - Any source name is not in enabledSources
//   - Any cron expression is invalid
func NewCronTriggerManager(spec string, runnable Runnable, logger *slog.Logger, enabledSources map[string]bool) (*CronTriggerManager, error) {
	triggerSpecs, err := ParseTriggerSpecs(spec, enabledSources)
	if err != nil {
		return nil, err
	}

	triggers := make([]*CronTrigger, 0, len(triggerSpecs))
	for _, spec := range triggerSpecs {
		sources := spec.Sources // Capture for closure
		callback := func() error {
			return runnable.Run(sources)
		}

		trigger, err := NewCronTrigger(spec.CronSpec, callback, logger)
		if err != nil {
			return nil, fmt.Errorf("creating trigger for '%s:%s': %w",
				strings.Join(spec.Sources, ","), spec.CronSpec, err)
		}
		triggers = append(triggers, trigger)
	}

	logger.Info("cron trigger manager created", "trigger_count", len(triggers))

	for i, trigger := range triggers {
		logger.Info("trigger registered",
			"index", i,
			"sources", triggerSpecs[i].Sources,
			"schedule", triggerSpecs[i].CronSpec,
			"next_run", trigger.NextRun(),
		)
	}

	return &CronTriggerManager{
		triggers: triggers,
		logger:   logger,
	}, nil
}

// Start launches all triggers. Each trigger runs in its own goroutine.
// Returns immediately. All goroutines exit when ctx is cancelled.
func (m *CronTriggerManager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// NextRun returns the earliest scheduled run time across all triggers.
// Returns zero time if there are no triggers.
func (m *CronTriggerManager) NextRun() time.Time {
	if len(m.triggers) == 0 {
		return time.Time{}
	}

	earliest := m.triggers[0].NextRun()
	for i := 1; i < len(m.triggers); i++ {
		next := m.triggers[i].NextRun()
		if next.Before(earliest) {
			earliest = next
		}
	}

	return earliest
}
