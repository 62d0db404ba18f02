package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	OneTime     TransactionKind = "one_time"
	Recurring   TransactionKind = "recurring"
	Installment TransactionKind = "installment"
	Periodic    TransactionKind = "periodic"
)

const (
	Weekly           Periodicity = "weekly"
	Biweekly         Periodicity = "biweekly"
	Monthly          Periodicity = "monthly"
	Bimonthly        Periodicity = "bimonthly"
	Quarterly        Periodicity = "quarterly"
	Semiannual       Periodicity = "semiannual"
	Annual           Periodicity = "annual"
	EveryBusinessDay Periodicity = "every_business_day"
	Custom           Periodicity = "custom"
)

type (
	TransactionKind string
	Periodicity     string

	// Transaction is a declarative income/expense definition. It is a
	// tagged union discriminated by Kind; the recurrence-specific fields
	// are only meaningful (and only allowed) for the kinds that declare
	// them, which Validate enforces.
	Transaction struct {
		ID             int64
		Kind           TransactionKind
		Description    string
		Amount         Money  // provisioned amount
		RealizedAmount *Money // set when the definition is born realized
		StartDate      Date
		EndDate        Date // optional; derived for installments
		Direction      Direction
		AccountID      int64
		CategoryID     *int64
		OwnerID        int64
		Active         bool

		// Recurring and Installment.
		DueDay int

		// Installment.
		ParcelCount  int
		ParcelAmount *Money // per-parcel override; default is Amount/ParcelCount

		// Periodic.
		Periodicity  Periodicity
		Weekday      time.Weekday
		DayOfYear    int
		IntervalDays int

		LastProcessedAt time.Time
	}
)

func (k TransactionKind) IsValid() bool {
	switch k {
	case OneTime, Recurring, Installment, Periodic:
		return true
	}
	return false
}

func (p Periodicity) IsValid() bool {
	switch p {
	case Weekly, Biweekly, Monthly, Bimonthly, Quarterly, Semiannual,
		Annual, EveryBusinessDay, Custom:
		return true
	}
	return false
}

// Validate enforces the structural invariants of the definition's kind.
// A definition must carry every field its kind requires and none of the
// fields that belong to other kinds.
func (t Transaction) Validate() error {
	if !t.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.RealizedAmount != nil {
		if err := t.RealizedAmount.Validate(); err != nil {
			return fmt.Errorf("realized amount: %w", err)
		}
	}
	if t.StartDate.IsZero() {
		return ErrInvalidStartDate
	}
	if !t.EndDate.IsZero() && t.EndDate.Before(t.StartDate.Time) {
		return ErrEndBeforeStart
	}
	if !t.Direction.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, t.Direction)
	}

	switch t.Kind {
	case OneTime:
		return t.validateOneTime()
	case Recurring:
		return t.validateRecurring()
	case Installment:
		return t.validateInstallment()
	case Periodic:
		return t.validatePeriodic()
	}
	return nil
}

func (t Transaction) validateOneTime() error {
	if !t.EndDate.IsZero() {
		return fmt.Errorf("%w: one-time end date", ErrUnexpectedField)
	}
	if t.DueDay != 0 || t.ParcelCount != 0 || t.Periodicity != "" || t.IntervalDays != 0 {
		return fmt.Errorf("%w: one-time recurrence fields", ErrUnexpectedField)
	}
	return nil
}

func (t Transaction) validateRecurring() error {
	if t.DueDay < 1 || t.DueDay > 31 {
		return fmt.Errorf("%w: %d", ErrInvalidDueDay, t.DueDay)
	}
	if t.ParcelCount != 0 || t.Periodicity != "" || t.IntervalDays != 0 {
		return fmt.Errorf("%w: recurring parcel/periodicity fields", ErrUnexpectedField)
	}
	return nil
}

func (t Transaction) validateInstallment() error {
	if t.ParcelCount < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidParcelCount, t.ParcelCount)
	}
	if t.DueDay < 1 || t.DueDay > 31 {
		return fmt.Errorf("%w: %d", ErrInvalidDueDay, t.DueDay)
	}
	if t.Periodicity != "" || t.IntervalDays != 0 {
		return fmt.Errorf("%w: installment periodicity fields", ErrUnexpectedField)
	}
	if t.ParcelAmount != nil {
		if err := t.ParcelAmount.Validate(); err != nil {
			return fmt.Errorf("parcel amount: %w", err)
		}
	}
	// The end date is derived from the due day and parcel count, never
	// user-set.
	if !t.EndDate.IsZero() && !t.EndDate.Equal(t.DerivedEndDate().Time) {
		return fmt.Errorf("%w: installment end date", ErrUnexpectedField)
	}
	return nil
}

func (t Transaction) validatePeriodic() error {
	if !t.Periodicity.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPeriodicity, t.Periodicity)
	}
	if t.DueDay != 0 || t.ParcelCount != 0 {
		return fmt.Errorf("%w: periodic due-day/parcel fields", ErrUnexpectedField)
	}
	switch t.Periodicity {
	case Weekly:
		if t.Weekday < time.Sunday || t.Weekday > time.Saturday {
			return fmt.Errorf("%w: %d", ErrInvalidWeekday, t.Weekday)
		}
	case Annual:
		if t.DayOfYear < 1 || t.DayOfYear > 366 {
			return fmt.Errorf("%w: %d", ErrInvalidDayOfYear, t.DayOfYear)
		}
	case Custom:
		if t.IntervalDays < 1 || t.IntervalDays > 6 {
			return fmt.Errorf("%w: %d", ErrInvalidInterval, t.IntervalDays)
		}
	}
	return nil
}

// DerivedEndDate returns the installment's computed end date: the final
// parcel's due date, parcel count minus one months after the start month on
// the due day, clamped to the target month's length. Meaningless for other
// kinds.
func (t Transaction) DerivedEndDate() Date {
	if t.ParcelCount < 1 {
		return Date{}
	}
	y, m := t.StartDate.Year(), t.StartDate.Month()
	months := y*12 + (m - 1) + (t.ParcelCount - 1)
	ey, em := months/12, months%12+1
	day := t.DueDay
	if day < 1 || day > 31 {
		day = t.StartDate.Day()
	}
	if last := DaysInMonth(ey, em); day > last {
		day = last
	}
	return NewDate(ey, em, day)
}

// ProvisionedParcel returns the amount one installment parcel provisions:
// the explicit per-parcel override when present, otherwise the total split
// evenly with the remainder cents on the first parcel.
func (t Transaction) ProvisionedParcel(parcel int) Money {
	if t.ParcelAmount != nil {
		return *t.ParcelAmount
	}
	if t.ParcelCount < 1 {
		return t.Amount
	}
	each := t.Amount.Cents / int64(t.ParcelCount)
	if parcel == 1 {
		return Money{Cents: each + t.Amount.Cents%int64(t.ParcelCount)}
	}
	return Money{Cents: each}
}
