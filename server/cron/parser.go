package cron

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nomis52/scriptdash/config"
)

const (
	triggerSeparator    = ";"
	scriptsSeparator    = ":"
	scriptListSeparator = ","
)

// TriggerSpec is a set of scripts run together on one schedule.
type TriggerSpec struct {
	Scripts  []string
	Args     map[string]string
	CronSpec string
}

// ParseTriggerSpecs parses the --cron flag format:
//
//	script1,script2:cron_expression;script3:cron_expression2
//
// Every script must be in available and every expression must parse.
func ParseTriggerSpecs(spec string, available map[string]bool) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	var specs []TriggerSpec
	for _, triggerStr := range strings.Split(spec, triggerSeparator) {
		triggerStr = strings.TrimSpace(triggerStr)
		if triggerStr == "" {
			continue
		}
		ts, err := parseSingleTrigger(triggerStr, available)
		if err != nil {
			return nil, err
		}
		specs = append(specs, ts)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in cron spec")
	}
	return specs, nil
}

// FromSchedules converts the schedules of the config file to trigger specs.
func FromSchedules(schedules []config.ScheduleConfig, available map[string]bool) ([]TriggerSpec, error) {
	specs := make([]TriggerSpec, 0, len(schedules))
	for i, s := range schedules {
		if !available[s.Script] {
			return nil, fmt.Errorf("schedules[%d]: unknown script '%s' (available: %s)",
				i, s.Script, formatAvailable(available))
		}
		if _, err := parseSchedule(s.Schedule); err != nil {
			return nil, fmt.Errorf("schedules[%d]: %w", i, err)
		}
		specs = append(specs, TriggerSpec{
			Scripts:  []string{s.Script},
			Args:     s.Args,
			CronSpec: s.Schedule,
		})
	}
	return specs, nil
}

func parseSingleTrigger(triggerStr string, available map[string]bool) (TriggerSpec, error) {
	parts := strings.Split(triggerStr, scriptsSeparator)
	if len(parts) != 2 {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: expected format 'scripts:cron', got '%s'", triggerStr)
	}

	scriptsStr := strings.TrimSpace(parts[0])
	cronSpec := strings.TrimSpace(parts[1])
	if scriptsStr == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing scripts in '%s'", triggerStr)
	}
	if cronSpec == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing cron schedule in '%s'", triggerStr)
	}

	var scripts []string
	seen := make(map[string]bool)
	for _, s := range strings.Split(scriptsStr, scriptListSeparator) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if seen[s] {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: duplicate script '%s' in '%s'", s, triggerStr)
		}
		seen[s] = true

		if !available[s] {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: unknown script '%s' in '%s' (available: %s)",
				s, triggerStr, formatAvailable(available))
		}
		scripts = append(scripts, s)
	}
	if len(scripts) == 0 {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: no valid scripts in '%s'", triggerStr)
	}

	if _, err := parseSchedule(cronSpec); err != nil {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: invalid cron expression in '%s': %w", triggerStr, err)
	}

	return TriggerSpec{Scripts: scripts, CronSpec: cronSpec}, nil
}

func formatAvailable(available map[string]bool) string {
	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
