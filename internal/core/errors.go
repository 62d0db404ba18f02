package core

import "errors"

// Engine error taxonomy. Storage maps driver-level failures onto these so
// callers can branch with errors.Is without knowing the backend.
var (
	// ErrNotFound reports a lookup of a record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition reports a state-machine transition attempted out of
	// sequence. No partial mutation happens when it is returned.
	ErrPrecondition = errors.New("precondition not met")

	// ErrConflict reports a uniqueness violation from the store, typically
	// two writers racing to create the same sheet or entry. Callers should
	// re-fetch rather than retry the insert.
	ErrConflict = errors.New("already exists")
)

// Validation sentinels for transaction definitions.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrInvalidStartDate   = errors.New("invalid start date")
	ErrEndBeforeStart     = errors.New("end date before start date")
	ErrInvalidDirection   = errors.New("invalid direction")
	ErrInvalidKind        = errors.New("invalid transaction kind")
	ErrInvalidDueDay      = errors.New("due day out of range")
	ErrInvalidParcelCount = errors.New("invalid parcel count")
	ErrInvalidPeriodicity = errors.New("invalid periodicity")
	ErrInvalidWeekday     = errors.New("invalid weekday")
	ErrInvalidDayOfYear   = errors.New("day of year out of range")
	ErrInvalidInterval    = errors.New("custom interval out of range")
	ErrUnexpectedField    = errors.New("field not allowed for this kind")
	ErrShareOverflow      = errors.New("apportionment shares exceed 100%")
)
