package core

import (
	"time"
)

const (
	Income  Direction = "income"
	Expense Direction = "expense"
)

const (
	AccountPersonal AccountKind = "personal"
	AccountJoint    AccountKind = "joint"
)

const (
	SheetOpen   SheetState = "open"
	SheetClosed SheetState = "closed"
)

// ShareScale is the basis-point scale for apportionment shares: 10000 = 100%.
const ShareScale int64 = 10000

type (
	Direction   string
	AccountKind string
	SheetState  string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Account struct {
		ID                  int64
		OwnerID             int64
		Name                string
		Kind                AccountKind
		IsPrimary           bool
		InitialBalance      Money
		Balance             Money
		KeepPositiveBalance bool
		LastSettlementAt    time.Time
		Active              bool
	}

	// Sheet is the materialized ledger for one (owner, account, year, month).
	// Balances and totals are carried in two parallel tracks: Real counts
	// only realized entries, Provisioned counts every entry.
	Sheet struct {
		ID                 int64
		OwnerID            int64
		AccountID          int64
		Year               int
		Month              int
		OpeningReal        Money
		OpeningProvisioned Money
		IncomeReal         Money
		IncomeProvisioned  Money
		ExpenseReal        Money
		ExpenseProvisioned Money
		ClosingReal        Money
		ClosingProvisioned Money
		StatusID           *int64
	}

	// SheetEntry is one concrete dated occurrence of a transaction
	// definition inside a sheet. (SheetID, TransactionID, DueDate) is
	// unique; the due date never changes after creation.
	SheetEntry struct {
		ID             int64
		SheetID        int64
		TransactionID  int64
		DueDate        Date
		Description    string
		Amount         Money
		RealizedAmount *Money
		RealizedAt     Date
		Realized       bool
		ParcelNumber   int
		ParcelTotal    int
	}

	// SheetStatus gates sequential close/reopen of an account-month.
	// A missing row means implicit Open.
	SheetStatus struct {
		ID        int64
		AccountID int64
		Year      int
		Month     int
		State     SheetState
		ChangedAt time.Time
		ChangedBy int64
	}

	// Apportionment is one participant's share of a joint account's
	// settlement, in basis points of ShareScale.
	Apportionment struct {
		ID            int64
		AccountID     int64
		ParticipantID int64
		ShareBP       int64
		Active        bool
	}

	ParticipantShare struct {
		ParticipantID int64
		AccountID     int64 // participant's primary account the posting went to
		ShareBP       int64
		Amount        Money
	}

	SettlementResult struct {
		AccountID int64
		Net       Money
		SettledAt time.Time
		Retained  bool // surplus kept on the joint account's own balance
		Postings  []ParticipantShare
	}
)

// NewDate creates a Date at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day at UTC midnight.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as an int.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// IsEmpty returns true if the date is zero (optional dates).
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// String formats the date as YYYY-MM-DD, the storage representation.
func (d Date) String() string {
	return d.Time.Format("2006-01-02")
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// Share returns the basis-point share of m with half-up rounding.
func (m Money) Share(bp int64) Money {
	n := m.Cents * bp
	half := ShareScale / 2
	if n >= 0 {
		return Money{Cents: (n + half) / ShareScale}
	}
	return Money{Cents: (n - half) / ShareScale}
}

func (k AccountKind) IsValid() bool {
	return k == AccountPersonal || k == AccountJoint
}

func (d Direction) IsValid() bool {
	return d == Income || d == Expense
}

// PrevMonth returns the account-month preceding (year, month).
func PrevMonth(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}

// NextMonth returns the account-month following (year, month).
func NextMonth(year, month int) (int, int) {
	if month == 12 {
		return year + 1, 1
	}
	return year, month + 1
}
