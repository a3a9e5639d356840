package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const oddsPlaces = 2

var (
	minimumOdds      = decimal.NewFromInt(1)
	minimumPlaceOdds = decimal.RequireFromString("1.1")
	placeOddsDivisor = decimal.NewFromInt(3)
)

// Odds is a decimal payout multiplier. A stake of n coins at odds o returns
// floor(n*o) coins on a win.
type Odds struct {
	value decimal.Decimal
}

// NewOdds validates a multiplier of at least 1.0.
func NewOdds(value decimal.Decimal) (Odds, error) {
	if value.LessThan(minimumOdds) {
		return Odds{}, fmt.Errorf("%w: %s is below 1.0", ErrInvalidOdds, value.String())
	}
	return Odds{value: value}, nil
}

// ParseOdds parses a decimal string such as "3.2".
func ParseOdds(raw string) (Odds, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Odds{}, fmt.Errorf("%w: %v", ErrInvalidOdds, err)
	}
	return NewOdds(value)
}

// Decimal exposes the multiplier.
func (odds Odds) Decimal() decimal.Decimal {
	return odds.value
}

// IsZero reports whether the odds were never set.
func (odds Odds) IsZero() bool {
	return odds.value.IsZero()
}

// Equal compares two multipliers numerically.
func (odds Odds) Equal(other Odds) bool {
	return odds.value.Equal(other.value)
}

// String formats the multiplier with two decimal places.
func (odds Odds) String() string {
	return odds.value.StringFixed(oddsPlaces)
}

// Payout returns floor(amount*odds).
func (odds Odds) Payout(amount PositiveCoins) Coins {
	return Coins(decimal.NewFromInt(amount.Int64()).Mul(odds.value).Floor().IntPart())
}

// placeOdds approximates place odds from win odds: max(1.1, win/3), truncated
// to two decimal places.
func placeOdds(winOdds Odds) Odds {
	// Stored odds carry two places, so win 5.8 prices place at 1.93 and a
	// 1000 coin stake pays 1930, not the 1933 the exact quotient would give.
	derived := winOdds.value.DivRound(placeOddsDivisor, 8).Truncate(oddsPlaces)
	if derived.LessThan(minimumPlaceOdds) {
		derived = minimumPlaceOdds
	}
	return Odds{value: derived}
}

// ResolveOdds returns the odds snapshot recorded on a new bet. Only single
// selection bets are priced; multi-selection bet types have no odds source.
func ResolveOdds(betType BetType, selections Selections, race Race) (Odds, error) {
	switch betType {
	case BetTypeWin, BetTypePlace:
	default:
		return Odds{}, fmt.Errorf("%w: %s", ErrOddsUnsupported, betType)
	}
	if len(selections) != 1 {
		return Odds{}, fmt.Errorf("%w: %s requires 1, got %d", ErrSelectionCountMismatch, betType, len(selections))
	}
	horse, ok := race.Horse(selections[0])
	if !ok {
		return Odds{}, fmt.Errorf("%w: horse %d in race %s", ErrUnknownHorse, selections[0], race.ID.String())
	}
	if betType == BetTypePlace {
		return placeOdds(horse.WinOdds), nil
	}
	return horse.WinOdds, nil
}
