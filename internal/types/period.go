package types

import (
	"fmt"
	"sync"
	"time"
)

// ResetMode controls when a number sequence rolls back to its reset value
type ResetMode string

const (
	ResetModeNever   ResetMode = "NEVER"
	ResetModeDaily   ResetMode = "DAILY"
	ResetModeMonthly ResetMode = "MONTHLY"
	ResetModeYearly  ResetMode = "YEARLY"
	ResetModeCustom  ResetMode = "CUSTOM"
)

func (m ResetMode) String() string {
	return string(m)
}

func (m ResetMode) Validate() bool {
	switch m {
	case ResetModeNever, ResetModeDaily, ResetModeMonthly, ResetModeYearly, ResetModeCustom:
		return true
	}
	return false
}

// PeriodFunc maps an instant to the key of the calendar period it falls in.
// Two instants share a period exactly when their keys are equal.
type PeriodFunc func(t time.Time) string

var (
	periodMu    sync.RWMutex
	periodFuncs = map[string]PeriodFunc{
		"weekly": func(t time.Time) string {
			year, week := t.UTC().ISOWeek()
			return fmt.Sprintf("%04dW%02d", year, week)
		},
		"quarterly": func(t time.Time) string {
			t = t.UTC()
			return fmt.Sprintf("%04dQ%d", t.Year(), (int(t.Month())-1)/3+1)
		},
	}
)

// RegisterPeriodFunc registers a named custom period strategy for sequences
// with ResetModeCustom. Registration happens at process start; later
// registrations with the same name overwrite earlier ones.
func RegisterPeriodFunc(name string, fn PeriodFunc) {
	periodMu.Lock()
	defer periodMu.Unlock()
	periodFuncs[name] = fn
}

// LookupPeriodFunc returns the registered custom period strategy by name
func LookupPeriodFunc(name string) (PeriodFunc, bool) {
	periodMu.RLock()
	defer periodMu.RUnlock()
	fn, ok := periodFuncs[name]
	return fn, ok
}

// PeriodKey returns the period key for t under the given reset mode.
// ResetModeNever always yields the empty key so no boundary is ever crossed.
// ResetModeCustom resolves periodSpec against the strategy registry; an
// unknown spec yields an error rather than silently never resetting.
func PeriodKey(mode ResetMode, periodSpec string, t time.Time) (string, error) {
	switch mode {
	case ResetModeNever:
		return "", nil
	case ResetModeDaily:
		return t.UTC().Format("2006-01-02"), nil
	case ResetModeMonthly:
		return t.UTC().Format("200601"), nil
	case ResetModeYearly:
		return t.UTC().Format("2006"), nil
	case ResetModeCustom:
		fn, ok := LookupPeriodFunc(periodSpec)
		if !ok {
			return "", fmt.Errorf("unknown custom period spec %q", periodSpec)
		}
		return fn(t), nil
	default:
		return "", fmt.Errorf("unknown reset mode %q", mode)
	}
}
