// Package recurrence resolves transaction definitions into concrete due
// dates. Everything here is pure: same inputs, same outputs, no clock and
// no store.
package recurrence

import (
	"fmt"
	"time"

	"contas/internal/core"
)

// IsBusinessDay reports whether d falls on a weekday. Saturdays and
// Sundays are the only non-business days; holidays are out of scope.
func IsBusinessDay(d core.Date) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// AdjustForward shifts d forward to the next business day. A business day
// is returned unchanged.
func AdjustForward(d core.Date) core.Date {
	for !IsBusinessDay(d) {
		d = d.AddDays(1)
	}
	return d
}

// StepPeriod advances d by one period of the given kind and shifts the
// result forward off weekends. EveryBusinessDay advances one day at a time
// so the result is the very next business day, never double-shifted.
// customInterval is only read for core.Custom.
func StepPeriod(d core.Date, p core.Periodicity, customInterval int) (core.Date, error) {
	switch p {
	case core.Weekly:
		return AdjustForward(d.AddDays(7)), nil
	case core.Biweekly:
		return AdjustForward(d.AddDays(14)), nil
	case core.Monthly:
		return AdjustForward(addMonthsClamped(d, 1)), nil
	case core.Bimonthly:
		return AdjustForward(addMonthsClamped(d, 2)), nil
	case core.Quarterly:
		return AdjustForward(addMonthsClamped(d, 3)), nil
	case core.Semiannual:
		return AdjustForward(addMonthsClamped(d, 6)), nil
	case core.Annual:
		return AdjustForward(addMonthsClamped(d, 12)), nil
	case core.EveryBusinessDay:
		return AdjustForward(d.AddDays(1)), nil
	case core.Custom:
		if customInterval < 1 || customInterval > 6 {
			return core.Date{}, fmt.Errorf("%w: %d", core.ErrInvalidInterval, customInterval)
		}
		return AdjustForward(d.AddDays(customInterval)), nil
	}
	return core.Date{}, fmt.Errorf("%w: %q", core.ErrInvalidPeriodicity, p)
}

// addMonthsClamped adds n months keeping the day of month, clamped to the
// target month's length (Jan 31 + 1 month = Feb 28/29, not Mar 2/3).
func addMonthsClamped(d core.Date, n int) core.Date {
	months := d.Year()*12 + (d.Month() - 1) + n
	y, m := months/12, months%12+1
	day := d.Day()
	if last := core.DaysInMonth(y, m); day > last {
		day = last
	}
	return core.NewDate(y, m, day)
}
