package recurrence

import (
	"errors"
	"testing"
	"time"

	"contas/internal/core"
)

func datesEqual(got []core.Date, want []core.Date) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if !got[i].Equal(want[i].Time) {
			return false
		}
	}
	return true
}

func oneTime(start core.Date) core.Transaction {
	return core.Transaction{
		Kind:        core.OneTime,
		Description: "one-time",
		Amount:      core.Money{Cents: 1000},
		StartDate:   start,
		Direction:   core.Expense,
	}
}

func recurring(start core.Date, dueDay int, end core.Date) core.Transaction {
	return core.Transaction{
		Kind:        core.Recurring,
		Description: "recurring",
		Amount:      core.Money{Cents: 1000},
		StartDate:   start,
		EndDate:     end,
		DueDay:      dueDay,
		Direction:   core.Expense,
	}
}

func installment(start core.Date, dueDay, parcels int) core.Transaction {
	return core.Transaction{
		Kind:        core.Installment,
		Description: "installment",
		Amount:      core.Money{Cents: 6000},
		StartDate:   start,
		DueDay:      dueDay,
		ParcelCount: parcels,
		Direction:   core.Expense,
	}
}

func periodic(start core.Date, p core.Periodicity, end core.Date) core.Transaction {
	return core.Transaction{
		Kind:        core.Periodic,
		Description: "periodic",
		Amount:      core.Money{Cents: 1000},
		StartDate:   start,
		EndDate:     end,
		Periodicity: p,
		Direction:   core.Expense,
	}
}

func weekly(start core.Date, wd time.Weekday, end core.Date) core.Transaction {
	def := periodic(start, core.Weekly, end)
	def.Weekday = wd
	return def
}

func TestDueDatesInRange_OneTime(t *testing.T) {
	def := oneTime(core.NewDate(2024, 3, 10))

	tests := []struct {
		name string
		from core.Date
		to   core.Date
		want []core.Date
	}{
		{name: "inside range", from: core.NewDate(2024, 3, 1), to: core.NewDate(2024, 3, 31), want: []core.Date{core.NewDate(2024, 3, 10)}},
		{name: "on range edge", from: core.NewDate(2024, 3, 10), to: core.NewDate(2024, 3, 10), want: []core.Date{core.NewDate(2024, 3, 10)}},
		{name: "before range", from: core.NewDate(2024, 4, 1), to: core.NewDate(2024, 4, 30), want: nil},
		{name: "after range", from: core.NewDate(2024, 2, 1), to: core.NewDate(2024, 2, 29), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DueDatesInRange(def, tt.from, tt.to)
			if err != nil {
				t.Fatalf("DueDatesInRange() error = %v", err)
			}
			if !datesEqual(got, tt.want) {
				t.Errorf("DueDatesInRange() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueDatesInRange_Recurring(t *testing.T) {
	tests := []struct {
		name string
		def  core.Transaction
		from core.Date
		to   core.Date
		want []core.Date
	}{
		{
			name: "due day 31 clamps to leap february",
			def:  recurring(core.NewDate(2024, 1, 1), 31, core.Date{}),
			from: core.NewDate(2024, 2, 1),
			to:   core.NewDate(2024, 2, 29),
			want: []core.Date{core.NewDate(2024, 2, 29)},
		},
		{
			name: "due day 31 clamps to plain february",
			def:  recurring(core.NewDate(2023, 1, 1), 31, core.Date{}),
			from: core.NewDate(2023, 2, 1),
			to:   core.NewDate(2023, 2, 28),
			want: []core.Date{core.NewDate(2023, 2, 28)},
		},
		{
			name: "one hit per month",
			def:  recurring(core.NewDate(2024, 1, 1), 5, core.Date{}),
			from: core.NewDate(2024, 1, 1),
			to:   core.NewDate(2024, 3, 31),
			want: []core.Date{core.NewDate(2024, 1, 5), core.NewDate(2024, 2, 5), core.NewDate(2024, 3, 5)},
		},
		{
			name: "start mid-month after due day skips first month",
			def:  recurring(core.NewDate(2024, 1, 10), 5, core.Date{}),
			from: core.NewDate(2024, 1, 1),
			to:   core.NewDate(2024, 2, 29),
			want: []core.Date{core.NewDate(2024, 2, 5)},
		},
		{
			name: "end date cuts the walk",
			def:  recurring(core.NewDate(2024, 1, 1), 5, core.NewDate(2024, 2, 10)),
			from: core.NewDate(2024, 1, 1),
			to:   core.NewDate(2024, 12, 31),
			want: []core.Date{core.NewDate(2024, 1, 5), core.NewDate(2024, 2, 5)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DueDatesInRange(tt.def, tt.from, tt.to)
			if err != nil {
				t.Fatalf("DueDatesInRange() error = %v", err)
			}
			if !datesEqual(got, tt.want) {
				t.Errorf("DueDatesInRange() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueDatesInRange_Installment(t *testing.T) {
	// Six parcels starting 2024-01-15, due day 15: exactly one per month
	// January through June.
	def := installment(core.NewDate(2024, 1, 15), 15, 6)

	got, err := DueDatesInRange(def, core.NewDate(2024, 1, 1), core.NewDate(2025, 12, 31))
	if err != nil {
		t.Fatalf("DueDatesInRange() error = %v", err)
	}
	want := []core.Date{
		core.NewDate(2024, 1, 15),
		core.NewDate(2024, 2, 15),
		core.NewDate(2024, 3, 15),
		core.NewDate(2024, 4, 15),
		core.NewDate(2024, 5, 15),
		core.NewDate(2024, 6, 15),
	}
	if !datesEqual(got, want) {
		t.Errorf("DueDatesInRange() = %v, want %v", got, want)
	}

	// Narrow window keeps only the parcels inside it.
	got, err = DueDatesInRange(def, core.NewDate(2024, 3, 1), core.NewDate(2024, 4, 30))
	if err != nil {
		t.Fatalf("DueDatesInRange() error = %v", err)
	}
	want = []core.Date{core.NewDate(2024, 3, 15), core.NewDate(2024, 4, 15)}
	if !datesEqual(got, want) {
		t.Errorf("DueDatesInRange() windowed = %v, want %v", got, want)
	}
}

func TestDueDatesInRange_InstallmentClamping(t *testing.T) {
	// Due day 31 across February: the parcel lands on the month's last day.
	def := installment(core.NewDate(2024, 1, 31), 31, 3)

	got, err := DueDatesInRange(def, core.NewDate(2024, 1, 1), core.NewDate(2024, 12, 31))
	if err != nil {
		t.Fatalf("DueDatesInRange() error = %v", err)
	}
	want := []core.Date{
		core.NewDate(2024, 1, 31),
		core.NewDate(2024, 2, 29),
		core.NewDate(2024, 3, 31),
	}
	if !datesEqual(got, want) {
		t.Errorf("DueDatesInRange() = %v, want %v", got, want)
	}
}

func TestDueDatesInRange_InstallmentEndsOnDerivedEndDate(t *testing.T) {
	// Due day later in the month than the start day: every parcel,
	// including the last, must stay on the due day, and the derived end
	// date must be exactly the final parcel's due date.
	def := installment(core.NewDate(2024, 1, 15), 20, 3)

	got, err := DueDatesInRange(def, core.NewDate(2024, 1, 1), core.NewDate(2024, 12, 31))
	if err != nil {
		t.Fatalf("DueDatesInRange() error = %v", err)
	}
	want := []core.Date{
		core.NewDate(2024, 1, 20),
		core.NewDate(2024, 2, 20),
		core.NewDate(2024, 3, 20),
	}
	if !datesEqual(got, want) {
		t.Errorf("DueDatesInRange() = %v, want %v", got, want)
	}
	if end := def.DerivedEndDate(); !got[len(got)-1].Equal(end.Time) {
		t.Errorf("last parcel %s != derived end date %s", got[len(got)-1], end)
	}
}

func TestDueDatesInRange_Periodic(t *testing.T) {
	tests := []struct {
		name string
		def  core.Transaction
		from core.Date
		to   core.Date
		want []core.Date
	}{
		{
			name: "weekly steps seven days",
			def:  weekly(core.NewDate(2024, 1, 8), time.Monday, core.Date{}),
			from: core.NewDate(2024, 1, 1),
			to:   core.NewDate(2024, 1, 31),
			want: []core.Date{
				core.NewDate(2024, 1, 8),
				core.NewDate(2024, 1, 15),
				core.NewDate(2024, 1, 22),
				core.NewDate(2024, 1, 29),
			},
		},
		{
			name: "weekly anchors on the declared weekday",
			def:  weekly(core.NewDate(2024, 1, 8), time.Friday, core.Date{}),
			from: core.NewDate(2024, 1, 1),
			to:   core.NewDate(2024, 1, 31),
			want: []core.Date{
				core.NewDate(2024, 1, 12),
				core.NewDate(2024, 1, 19),
				core.NewDate(2024, 1, 26),
			},
		},
		{
			name: "weekly weekend anchor shifts to monday",
			def:  weekly(core.NewDate(2024, 1, 6), time.Saturday, core.Date{}),
			from: core.NewDate(2024, 1, 1),
			to:   core.NewDate(2024, 1, 21),
			want: []core.Date{
				core.NewDate(2024, 1, 8),
				core.NewDate(2024, 1, 15),
			},
		},
		{
			name: "biweekly",
			def:  periodic(core.NewDate(2024, 1, 8), core.Biweekly, core.Date{}),
			from: core.NewDate(2024, 1, 1),
			to:   core.NewDate(2024, 2, 10),
			want: []core.Date{
				core.NewDate(2024, 1, 8),
				core.NewDate(2024, 1, 22),
				core.NewDate(2024, 2, 5),
			},
		},
		{
			name: "monthly follows the start day with clamping",
			def:  periodic(core.NewDate(2024, 1, 31), core.Monthly, core.Date{}),
			from: core.NewDate(2024, 1, 1),
			to:   core.NewDate(2024, 3, 31),
			want: []core.Date{
				core.NewDate(2024, 1, 31),
				core.NewDate(2024, 2, 29),
				core.NewDate(2024, 3, 31),
			},
		},
		{
			name: "every business day skips weekends",
			def:  periodic(core.NewDate(2024, 1, 11), core.EveryBusinessDay, core.Date{}),
			from: core.NewDate(2024, 1, 11),
			to:   core.NewDate(2024, 1, 16),
			want: []core.Date{
				core.NewDate(2024, 1, 11),
				core.NewDate(2024, 1, 12),
				core.NewDate(2024, 1, 15),
				core.NewDate(2024, 1, 16),
			},
		},
		{
			name: "every business day weekend start shifts forward",
			def:  periodic(core.NewDate(2024, 1, 13), core.EveryBusinessDay, core.Date{}),
			from: core.NewDate(2024, 1, 13),
			to:   core.NewDate(2024, 1, 16),
			want: []core.Date{
				core.NewDate(2024, 1, 15),
				core.NewDate(2024, 1, 16),
			},
		},
		{
			name: "end date bounds the stream",
			def:  weekly(core.NewDate(2024, 1, 8), time.Monday, core.NewDate(2024, 1, 20)),
			from: core.NewDate(2024, 1, 1),
			to:   core.NewDate(2024, 3, 31),
			want: []core.Date{
				core.NewDate(2024, 1, 8),
				core.NewDate(2024, 1, 15),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DueDatesInRange(tt.def, tt.from, tt.to)
			if err != nil {
				t.Fatalf("DueDatesInRange() error = %v", err)
			}
			if !datesEqual(got, tt.want) {
				t.Errorf("DueDatesInRange() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueDatesInRange_PeriodicCustom(t *testing.T) {
	def := periodic(core.NewDate(2024, 1, 8), core.Custom, core.Date{})
	def.IntervalDays = 3

	got, err := DueDatesInRange(def, core.NewDate(2024, 1, 8), core.NewDate(2024, 1, 17))
	if err != nil {
		t.Fatalf("DueDatesInRange() error = %v", err)
	}
	// Jan 8 Mon, +3 = Jan 11 Thu, +3 = Jan 14 Sun -> Jan 15 Mon, +3 = Jan 18.
	want := []core.Date{
		core.NewDate(2024, 1, 8),
		core.NewDate(2024, 1, 11),
		core.NewDate(2024, 1, 15),
	}
	if !datesEqual(got, want) {
		t.Errorf("DueDatesInRange() = %v, want %v", got, want)
	}
}

func TestDueDatesInRange_PeriodicCustomWeekendStart(t *testing.T) {
	// Jan 6 is a Saturday: the first occurrence shifts to Monday the 8th,
	// the same adjustment every later step gets.
	def := periodic(core.NewDate(2024, 1, 6), core.Custom, core.Date{})
	def.IntervalDays = 3

	got, err := DueDatesInRange(def, core.NewDate(2024, 1, 6), core.NewDate(2024, 1, 12))
	if err != nil {
		t.Fatalf("DueDatesInRange() error = %v", err)
	}
	want := []core.Date{
		core.NewDate(2024, 1, 8),
		core.NewDate(2024, 1, 11),
	}
	if !datesEqual(got, want) {
		t.Errorf("DueDatesInRange() = %v, want %v", got, want)
	}
}

func TestDueDatesInRange_PeriodicAnnual(t *testing.T) {
	def := periodic(core.NewDate(2023, 1, 1), core.Annual, core.Date{})
	def.DayOfYear = 366

	got, err := DueDatesInRange(def, core.NewDate(2023, 1, 1), core.NewDate(2024, 12, 31))
	if err != nil {
		t.Fatalf("DueDatesInRange() error = %v", err)
	}
	// Clamped to Dec 31 in the non-leap year, true day 366 in the leap year.
	want := []core.Date{
		core.NewDate(2023, 12, 31),
		core.NewDate(2024, 12, 31),
	}
	if !datesEqual(got, want) {
		t.Errorf("DueDatesInRange() = %v, want %v", got, want)
	}
}

func TestDueDatesInRange_Restartable(t *testing.T) {
	def := recurring(core.NewDate(2024, 1, 1), 10, core.Date{})
	from, to := core.NewDate(2024, 1, 1), core.NewDate(2024, 6, 30)

	first, err := DueDatesInRange(def, from, to)
	if err != nil {
		t.Fatalf("DueDatesInRange() error = %v", err)
	}
	second, err := DueDatesInRange(def, from, to)
	if err != nil {
		t.Fatalf("DueDatesInRange() error = %v", err)
	}
	if !datesEqual(first, second) {
		t.Errorf("two identical calls diverged: %v vs %v", first, second)
	}
	if len(first) != 6 {
		t.Errorf("expected 6 dates, got %d", len(first))
	}
}

func TestNextDueDate(t *testing.T) {
	tests := []struct {
		name      string
		def       core.Transaction
		ref       core.Date
		want      core.Date
		wantFound bool
	}{
		{
			name:      "recurring next month",
			def:       recurring(core.NewDate(2024, 1, 1), 5, core.Date{}),
			ref:       core.NewDate(2024, 1, 5),
			want:      core.NewDate(2024, 2, 5),
			wantFound: true,
		},
		{
			name:      "recurring before first occurrence",
			def:       recurring(core.NewDate(2024, 3, 1), 5, core.Date{}),
			ref:       core.NewDate(2024, 1, 1),
			want:      core.NewDate(2024, 3, 5),
			wantFound: true,
		},
		{
			name:      "one-time already past",
			def:       oneTime(core.NewDate(2024, 3, 10)),
			ref:       core.NewDate(2024, 3, 10),
			wantFound: false,
		},
		{
			name:      "installment exhausted",
			def:       installment(core.NewDate(2024, 1, 15), 15, 6),
			ref:       core.NewDate(2024, 6, 15),
			wantFound: false,
		},
		{
			name:      "recurring past end date",
			def:       recurring(core.NewDate(2024, 1, 1), 5, core.NewDate(2024, 3, 31)),
			ref:       core.NewDate(2024, 3, 5),
			wantFound: false,
		},
		{
			name:      "periodic weekly",
			def:       weekly(core.NewDate(2024, 1, 8), time.Monday, core.Date{}),
			ref:       core.NewDate(2024, 1, 9),
			want:      core.NewDate(2024, 1, 15),
			wantFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := NextDueDate(tt.def, tt.ref)
			if err != nil {
				t.Fatalf("NextDueDate() error = %v", err)
			}
			if found != tt.wantFound {
				t.Fatalf("NextDueDate() found = %v, want %v", found, tt.wantFound)
			}
			if found && !got.Equal(tt.want.Time) {
				t.Errorf("NextDueDate() = %s, want %s", got, tt.want)
			}
		})
	}
}

// NextDueDate must agree with DueDatesInRange over the same window.
func TestNextDueDate_ConsistentWithRange(t *testing.T) {
	defs := []core.Transaction{
		recurring(core.NewDate(2024, 1, 7), 31, core.Date{}),
		installment(core.NewDate(2024, 2, 10), 10, 4),
		periodic(core.NewDate(2024, 1, 3), core.Biweekly, core.Date{}),
		periodic(core.NewDate(2024, 1, 3), core.Quarterly, core.Date{}),
	}

	for _, def := range defs {
		ref := core.NewDate(2024, 1, 1)
		horizon := core.NewDate(2025, 12, 31)
		all, err := DueDatesInRange(def, ref.AddDays(1), horizon)
		if err != nil {
			t.Fatalf("DueDatesInRange() error = %v", err)
		}
		for _, want := range all {
			got, found, err := NextDueDate(def, ref)
			if err != nil {
				t.Fatalf("NextDueDate() error = %v", err)
			}
			if !found {
				t.Fatalf("%s: NextDueDate(%s) found nothing, range has %s", def.Kind, ref, want)
			}
			if !got.Equal(want.Time) {
				t.Fatalf("%s: NextDueDate(%s) = %s, range says %s", def.Kind, ref, got, want)
			}
			ref = got
		}
	}
}

func TestOccurrences_InvalidKind(t *testing.T) {
	def := oneTime(core.NewDate(2024, 1, 1))
	def.Kind = "mystery"
	if _, err := DueDatesInRange(def, core.NewDate(2024, 1, 1), core.NewDate(2024, 12, 31)); !errors.Is(err, core.ErrInvalidKind) {
		t.Errorf("error = %v, want ErrInvalidKind", err)
	}
}
