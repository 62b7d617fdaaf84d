package cron

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

const (
	triggerSeparator    = ";"
	sourceSeparator     = ":"
	sourceListSeparator = ","
)

// TriggerSpec is a parsed trigger: which sources to run on which schedule.
// An empty source list means all enabled sources.
type TriggerSpec struct {
	Sources  []string
	CronSpec string
}

// ParseTriggerSpecs parses a multi-trigger specification string into
// individual trigger specs. The format is:
// source1,source2:cron_expression;source3:cron_expression2. A trigger with no
// source prefix (a bare cron expression) runs all enabled sources.
//
// Example:
//
//	"csv,json:0 2 * * *;api:30 2 * * *"
//
// Returns an error if:
//   - Any trigger is missing a cron expression
//   - Any source name is not in enabledSources
//   - Any cron expression is invalid
//   - Any trigger names the same source twice
func ParseTriggerSpecs(spec string, enabledSources map[string]bool) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	// Split by semicolon for multiple triggers
	triggerStrs := strings.Split(spec, triggerSeparator)
	specs := make([]TriggerSpec, 0, len(triggerStrs))

	for _, triggerStr := range triggerStrs {
		triggerStr = strings.TrimSpace(triggerStr)
		if triggerStr == "" {
			continue // Skip empty triggers (e.g., trailing semicolon)
		}

		triggerSpec, err := parseSingleTrigger(triggerStr, enabledSources)
		if err != nil {
			return nil, err
		}
		specs = append(specs, triggerSpec)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in cron spec")
	}

	return specs, nil
}

// parseSingleTrigger parses a single trigger specification.
func parseSingleTrigger(triggerStr string, enabledSources map[string]bool) (TriggerSpec, error) {
	// A bare cron expression has no colon and runs all enabled sources.
	var sourcesStr, cronSpec string
	if before, after, found := strings.Cut(triggerStr, sourceSeparator); found {
		sourcesStr = strings.TrimSpace(before)
		cronSpec = strings.TrimSpace(after)
		if sourcesStr == "" {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing sources in '%s'", triggerStr)
		}
	} else {
		cronSpec = triggerStr
	}

	if cronSpec == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing cron schedule in '%s'", triggerStr)
	}

	var sources []string
	if sourcesStr != "" {
		sourceStrs := strings.Split(sourcesStr, sourceListSeparator)
		sources = make([]string, 0, len(sourceStrs))
		seen := make(map[string]bool, len(sourceStrs))

		for _, s := range sourceStrs {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if seen[s] {
				return TriggerSpec{}, fmt.Errorf("invalid trigger spec: duplicate source '%s' in '%s'", s, triggerStr)
			}
			seen[s] = true

			if !enabledSources[s] {
				return TriggerSpec{}, fmt.Errorf("invalid trigger spec: unknown source '%s' in '%s' (enabled: %s)",
					s, triggerStr, formatEnabledSources(enabledSources))
			}
			sources = append(sources, s)
		}

		if len(sources) == 0 {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: no valid sources in '%s'", triggerStr)
		}
	}

	// Validate cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cronSpec); err != nil {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: invalid cron expression in '%s': %w", triggerStr, err)
	}

	return TriggerSpec{
		Sources:  sources,
		CronSpec: cronSpec,
	}, nil
}

// formatEnabledSources formats the enabled sources for error messages.
func formatEnabledSources(enabledSources map[string]bool) string {
	sources := make([]string, 0, len(enabledSources))
	for s := range enabledSources {
		sources = append(sources, s)
	}
	return strings.Join(sources, ", ")
}
