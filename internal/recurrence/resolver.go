package recurrence

import (
	"fmt"
	"time"

	"contas/internal/core"
)

// DueDatesInRange resolves the definition's due dates inside [from, to],
// inclusive on both ends. The result is rebuilt from scratch on every call,
// so recomputing is always safe and yields identical dates.
func DueDatesInRange(def core.Transaction, from, to core.Date) ([]core.Date, error) {
	if to.Before(from.Time) {
		return nil, nil
	}
	var due []core.Date
	err := occurrences(def, func(d core.Date) bool {
		if d.After(to.Time) {
			return false
		}
		if !d.Before(from.Time) {
			due = append(due, d)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return due, nil
}

// NextDueDate returns the first due date strictly after ref, or false when
// the definition has no occurrence left. It walks the same occurrence
// stream as DueDatesInRange, so the two can never disagree.
func NextDueDate(def core.Transaction, ref core.Date) (core.Date, bool, error) {
	var next core.Date
	var found bool
	err := occurrences(def, func(d core.Date) bool {
		if d.After(ref.Time) {
			next, found = d, true
			return false
		}
		return true
	})
	if err != nil {
		return core.Date{}, false, err
	}
	return next, found, nil
}

// occurrences calls visit with every due date of the definition in
// ascending order, starting at its start date, until visit returns false
// or the definition is exhausted (end date, parcel count). Definitions
// without an end produce an unbounded stream; the visitor bounds it.
func occurrences(def core.Transaction, visit func(core.Date) bool) error {
	switch def.Kind {
	case core.OneTime:
		visit(def.StartDate)
		return nil
	case core.Recurring:
		return monthlyOccurrences(def.StartDate, def.DueDay, def.EndDate, visit)
	case core.Installment:
		return installmentOccurrences(def, visit)
	case core.Periodic:
		return periodicOccurrences(def, visit)
	}
	return fmt.Errorf("%w: %q", core.ErrInvalidKind, def.Kind)
}

// monthlyOccurrences walks month by month from the start date's month. The
// due day is clamped to each month's length; a due date falling before the
// start date (start mid-month after the due day) is skipped.
func monthlyOccurrences(start core.Date, dueDay int, end core.Date, visit func(core.Date) bool) error {
	if dueDay < 1 || dueDay > 31 {
		return fmt.Errorf("%w: %d", core.ErrInvalidDueDay, dueDay)
	}
	y, m := start.Year(), start.Month()
	for {
		day := dueDay
		if last := core.DaysInMonth(y, m); day > last {
			day = last
		}
		d := core.NewDate(y, m, day)
		if !end.IsEmpty() && d.After(end.Time) {
			return nil
		}
		if !d.Before(start.Time) && !visit(d) {
			return nil
		}
		y, m = core.NextMonth(y, m)
	}
}

func installmentOccurrences(def core.Transaction, visit func(core.Date) bool) error {
	if def.ParcelCount < 1 {
		return fmt.Errorf("%w: %d", core.ErrInvalidParcelCount, def.ParcelCount)
	}
	if def.DueDay < 1 || def.DueDay > 31 {
		return fmt.Errorf("%w: %d", core.ErrInvalidDueDay, def.DueDay)
	}
	y, m := def.StartDate.Year(), def.StartDate.Month()
	for k := 0; k < def.ParcelCount; k++ {
		months := y*12 + (m - 1) + k
		py, pm := months/12, months%12+1
		day := def.DueDay
		if last := core.DaysInMonth(py, pm); day > last {
			day = last
		}
		if !visit(core.NewDate(py, pm, day)) {
			return nil
		}
	}
	return nil
}

func periodicOccurrences(def core.Transaction, visit func(core.Date) bool) error {
	switch def.Periodicity {
	case core.Monthly:
		return monthlyOccurrences(def.StartDate, def.StartDate.Day(), def.EndDate, visit)
	case core.Annual:
		return annualOccurrences(def, visit)
	case core.EveryBusinessDay:
		return businessDayOccurrences(def.StartDate, def.EndDate, visit)
	case core.Weekly, core.Biweekly, core.Bimonthly, core.Quarterly, core.Semiannual, core.Custom:
		return steppedOccurrences(def, visit)
	}
	return fmt.Errorf("%w: %q", core.ErrInvalidPeriodicity, def.Periodicity)
}

// steppedOccurrences yields the first occurrence, then repeatedly applies
// StepPeriod to the previous one. Weekly definitions anchor on their
// declared weekday: the first occurrence is the first such weekday on or
// after the start date. The first occurrence is shifted off weekends the
// same way StepPeriod shifts every later one.
func steppedOccurrences(def core.Transaction, visit func(core.Date) bool) error {
	cur := def.StartDate
	if def.Periodicity == core.Weekly {
		cur = alignToWeekday(cur, def.Weekday)
	}
	cur = AdjustForward(cur)
	for {
		if !def.EndDate.IsEmpty() && cur.After(def.EndDate.Time) {
			return nil
		}
		if !visit(cur) {
			return nil
		}
		next, err := StepPeriod(cur, def.Periodicity, def.IntervalDays)
		if err != nil {
			return err
		}
		cur = next
	}
}

// alignToWeekday moves d forward to the first wd, at most six days ahead.
func alignToWeekday(d core.Date, wd time.Weekday) core.Date {
	return d.AddDays((int(wd) - int(d.Weekday()) + 7) % 7)
}

// annualOccurrences yields one date per year at the definition's day of
// year, clamped to 365 in non-leap years.
func annualOccurrences(def core.Transaction, visit func(core.Date) bool) error {
	if def.DayOfYear < 1 || def.DayOfYear > 366 {
		return fmt.Errorf("%w: %d", core.ErrInvalidDayOfYear, def.DayOfYear)
	}
	for y := def.StartDate.Year(); ; y++ {
		doy := def.DayOfYear
		if max := daysInYear(y); doy > max {
			doy = max
		}
		d := core.NewDate(y, 1, 1).AddDays(doy - 1)
		if !def.EndDate.IsEmpty() && d.After(def.EndDate.Time) {
			return nil
		}
		if !d.Before(def.StartDate.Time) && !visit(d) {
			return nil
		}
	}
}

func businessDayOccurrences(start, end core.Date, visit func(core.Date) bool) error {
	cur := AdjustForward(start)
	for {
		if !end.IsEmpty() && cur.After(end.Time) {
			return nil
		}
		if !visit(cur) {
			return nil
		}
		cur = AdjustForward(cur.AddDays(1))
	}
}

func daysInYear(y int) int {
	if time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC).YearDay() == 366 {
		return 366
	}
	return 365
}
