package ledger

import (
	"fmt"
	"strings"
	"time"
)

// AccountID identifies a player account. The value is the opaque user id
// supplied by the authentication layer.
type AccountID struct {
	value string
}

// BetID identifies a bet.
type BetID struct {
	value string
}

// EntryID identifies a ledger entry.
type EntryID struct {
	value string
}

// RaceID identifies a race in the external race catalog.
type RaceID struct {
	value string
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// NewBetID validates and normalizes a bet id.
func NewBetID(raw string) (BetID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BetID{}, fmt.Errorf("%w: empty value", ErrInvalidBetID)
	}
	return BetID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BetID) String() string {
	return id.value
}

// NewEntryID validates and normalizes an entry id.
func NewEntryID(raw string) (EntryID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EntryID{}, fmt.Errorf("%w: empty value", ErrInvalidEntryID)
	}
	return EntryID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id EntryID) String() string {
	return id.value
}

// NewRaceID validates and normalizes a race id.
func NewRaceID(raw string) (RaceID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RaceID{}, fmt.Errorf("%w: empty value", ErrInvalidRaceID)
	}
	return RaceID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id RaceID) String() string {
	return id.value
}

// Coins is a non-negative coin quantity.
type Coins int64

// NewCoins validates a non-negative coin quantity.
func NewCoins(raw int64) (Coins, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Coins(raw), nil
}

// Int64 exposes the raw value.
func (coins Coins) Int64() int64 {
	return int64(coins)
}

// PositiveCoins is a strictly positive coin quantity.
type PositiveCoins int64

// NewPositiveCoins validates a strictly positive coin quantity.
func NewPositiveCoins(raw int64) (PositiveCoins, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return PositiveCoins(raw), nil
}

// Int64 exposes the raw value.
func (coins PositiveCoins) Int64() int64 {
	return int64(coins)
}

// Coins converts to the non-negative representation.
func (coins PositiveCoins) Coins() Coins {
	return Coins(coins)
}

// EntryKind tags the origin of a ledger entry.
type EntryKind string

const (
	EntryKindSpend    EntryKind = "spend"
	EntryKindEarn     EntryKind = "earn"
	EntryKindBonus    EntryKind = "bonus"
	EntryKindPurchase EntryKind = "purchase"
)

// ParseEntryKind validates an entry kind string.
func ParseEntryKind(raw string) (EntryKind, error) {
	switch EntryKind(strings.TrimSpace(strings.ToLower(raw))) {
	case EntryKindSpend:
		return EntryKindSpend, nil
	case EntryKindEarn:
		return EntryKindEarn, nil
	case EntryKindBonus:
		return EntryKindBonus, nil
	case EntryKindPurchase:
		return EntryKindPurchase, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryKind, raw)
	}
}

// String returns the stored representation.
func (kind EntryKind) String() string {
	return string(kind)
}

// BetType enumerates the supported wagers.
type BetType string

const (
	BetTypeWin      BetType = "win"
	BetTypePlace    BetType = "place"
	BetTypeExacta   BetType = "exacta"
	BetTypeWide     BetType = "wide"
	BetTypeTrio     BetType = "trio"
	BetTypeTrifecta BetType = "trifecta"
)

var betTypeSelectionCounts = map[BetType]int{
	BetTypeWin:      1,
	BetTypePlace:    1,
	BetTypeExacta:   2,
	BetTypeWide:     2,
	BetTypeTrio:     3,
	BetTypeTrifecta: 3,
}

// ParseBetType validates a bet type string.
func ParseBetType(raw string) (BetType, error) {
	betType := BetType(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := betTypeSelectionCounts[betType]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidBetType, raw)
	}
	return betType, nil
}

// SelectionCount returns how many horses the bet type requires.
func (betType BetType) SelectionCount() int {
	return betTypeSelectionCounts[betType]
}

// String returns the stored representation.
func (betType BetType) String() string {
	return string(betType)
}

// BetStatus is the lifecycle state of a bet.
type BetStatus string

const (
	BetStatusPending  BetStatus = "pending"
	BetStatusWon      BetStatus = "won"
	BetStatusLost     BetStatus = "lost"
	BetStatusRefunded BetStatus = "refunded"
)

// ParseBetStatus validates a bet status string.
func ParseBetStatus(raw string) (BetStatus, error) {
	switch BetStatus(strings.TrimSpace(strings.ToLower(raw))) {
	case BetStatusPending:
		return BetStatusPending, nil
	case BetStatusWon:
		return BetStatusWon, nil
	case BetStatusLost:
		return BetStatusLost, nil
	case BetStatusRefunded:
		return BetStatusRefunded, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBetStatus, raw)
	}
}

// IsTerminal reports whether no further transition is allowed.
func (status BetStatus) IsTerminal() bool {
	return status == BetStatusWon || status == BetStatusLost || status == BetStatusRefunded
}

// String returns the stored representation.
func (status BetStatus) String() string {
	return string(status)
}

// RaceStatus is the lifecycle state of a race as reported by the catalog.
type RaceStatus string

const (
	RaceStatusUpcoming  RaceStatus = "upcoming"
	RaceStatusBetting   RaceStatus = "betting"
	RaceStatusRunning   RaceStatus = "running"
	RaceStatusFinished  RaceStatus = "finished"
	RaceStatusCancelled RaceStatus = "cancelled"
)

// ParseRaceStatus validates a race status string.
func ParseRaceStatus(raw string) (RaceStatus, error) {
	switch RaceStatus(strings.TrimSpace(strings.ToLower(raw))) {
	case RaceStatusUpcoming:
		return RaceStatusUpcoming, nil
	case RaceStatusBetting:
		return RaceStatusBetting, nil
	case RaceStatusRunning:
		return RaceStatusRunning, nil
	case RaceStatusFinished:
		return RaceStatusFinished, nil
	case RaceStatusCancelled:
		return RaceStatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRaceStatus, raw)
	}
}

// String returns the stored representation.
func (status RaceStatus) String() string {
	return string(status)
}

// HorseNumber is the saddle-cloth number of a runner.
type HorseNumber int

// NewHorseNumber validates a horse number.
func NewHorseNumber(raw int) (HorseNumber, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: horse number %d must be positive", ErrInvalidSelection, raw)
	}
	return HorseNumber(raw), nil
}

// Int returns the raw number.
func (number HorseNumber) Int() int {
	return int(number)
}

// Selections is the ordered list of horses a bet names. Order is significant
// only for trifecta bets.
type Selections []HorseNumber

// NewSelections validates the selection shape for betType.
func NewSelections(betType BetType, raw []int) (Selections, error) {
	expected := betType.SelectionCount()
	if len(raw) != expected {
		return nil, fmt.Errorf("%w: %s requires %d, got %d", ErrSelectionCountMismatch, betType, expected, len(raw))
	}
	selections := make(Selections, 0, len(raw))
	seen := make(map[HorseNumber]struct{}, len(raw))
	for _, value := range raw {
		number, err := NewHorseNumber(value)
		if err != nil {
			return nil, err
		}
		if _, duplicate := seen[number]; duplicate {
			return nil, fmt.Errorf("%w: horse %d selected twice", ErrInvalidSelection, value)
		}
		seen[number] = struct{}{}
		selections = append(selections, number)
	}
	return selections, nil
}

// Ints returns the selections as plain integers.
func (selections Selections) Ints() []int {
	values := make([]int, len(selections))
	for index, number := range selections {
		values[index] = number.Int()
	}
	return values
}

const calendarDayLayout = "2006-01-02"

// CalendarDay is a date without time of day. The zero value means "never".
type CalendarDay struct {
	value time.Time
}

// CalendarDayOf returns the date of instant in location.
func CalendarDayOf(instant time.Time, location *time.Location) CalendarDay {
	if location == nil {
		location = time.UTC
	}
	local := instant.In(location)
	return CalendarDay{value: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseCalendarDay parses a YYYY-MM-DD date.
func ParseCalendarDay(raw string) (CalendarDay, error) {
	parsed, err := time.Parse(calendarDayLayout, strings.TrimSpace(raw))
	if err != nil {
		return CalendarDay{}, fmt.Errorf("%w: %v", ErrInvalidCalendarDay, err)
	}
	return CalendarDay{value: parsed}, nil
}

// IsZero reports whether the day is unset.
func (day CalendarDay) IsZero() bool {
	return day.value.IsZero()
}

// Equal reports whether both values name the same day.
func (day CalendarDay) Equal(other CalendarDay) bool {
	return day.value.Equal(other.value)
}

// DaysSince returns the number of whole days from earlier to day.
func (day CalendarDay) DaysSince(earlier CalendarDay) int {
	return int(day.value.Sub(earlier.value).Hours() / 24)
}

// AddDays returns the day shifted by count days.
func (day CalendarDay) AddDays(count int) CalendarDay {
	return CalendarDay{value: day.value.AddDate(0, 0, count)}
}

// Time returns midnight UTC of the day.
func (day CalendarDay) Time() time.Time {
	return day.value
}

// String formats the day as YYYY-MM-DD, or "" when unset.
func (day CalendarDay) String() string {
	if day.IsZero() {
		return ""
	}
	return day.value.Format(calendarDayLayout)
}
