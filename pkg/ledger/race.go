package ledger

import (
	"context"
	"fmt"
	"time"
)

// Race is the read-only view of a race served by the catalog.
type Race struct {
	ID              RaceID
	Name            string
	Venue           string
	RaceNumber      int
	Status          RaceStatus
	BettingOpensAt  time.Time
	BettingClosesAt time.Time
	StartsAt        time.Time
	Horses          []Horse
}

// Horse is a runner with its posted win odds.
type Horse struct {
	Number     HorseNumber
	Name       string
	Jockey     string
	WinOdds    Odds
	Popularity int
}

// Horse returns the runner wearing number.
func (race Race) Horse(number HorseNumber) (Horse, bool) {
	for _, horse := range race.Horses {
		if horse.Number == number {
			return horse, true
		}
	}
	return Horse{}, false
}

// AcceptsBets reports whether the race is in its betting window at now.
// Unset window bounds are not enforced.
func (race Race) AcceptsBets(now time.Time) bool {
	if race.Status != RaceStatusBetting {
		return false
	}
	if !race.BettingOpensAt.IsZero() && now.Before(race.BettingOpensAt) {
		return false
	}
	if !race.BettingClosesAt.IsZero() && !now.Before(race.BettingClosesAt) {
		return false
	}
	return true
}

// RaceCatalog looks races up. Implementations return ErrRaceNotFound for
// unknown ids.
type RaceCatalog interface {
	LookupRace(ctx context.Context, raceID RaceID) (Race, error)
}

// RaceResult is the settlement input for one race.
type RaceResult struct {
	RaceID         RaceID
	FinishingOrder []HorseNumber
	Cancelled      bool
}

// NewRaceResult validates a finishing order. A cancelled race needs no order.
func NewRaceResult(raceID RaceID, finishingOrder []int, cancelled bool) (RaceResult, error) {
	if raceID.String() == "" {
		return RaceResult{}, fmt.Errorf("%w: empty race id", ErrInvalidRaceResult)
	}
	if !cancelled && len(finishingOrder) == 0 {
		return RaceResult{}, fmt.Errorf("%w: finishing order is required", ErrInvalidRaceResult)
	}
	order := make([]HorseNumber, 0, len(finishingOrder))
	seen := make(map[HorseNumber]struct{}, len(finishingOrder))
	for _, value := range finishingOrder {
		number, err := NewHorseNumber(value)
		if err != nil {
			return RaceResult{}, fmt.Errorf("%w: %v", ErrInvalidRaceResult, err)
		}
		if _, duplicate := seen[number]; duplicate {
			return RaceResult{}, fmt.Errorf("%w: horse %d finishes twice", ErrInvalidRaceResult, value)
		}
		seen[number] = struct{}{}
		order = append(order, number)
	}
	return RaceResult{RaceID: raceID, FinishingOrder: order, Cancelled: cancelled}, nil
}

// top returns the first count finishers, or nil when fewer finished.
func (result RaceResult) top(count int) []HorseNumber {
	if len(result.FinishingOrder) < count {
		return nil
	}
	return result.FinishingOrder[:count]
}

// Matches reports whether a bet of betType on selections is correct.
// placePositions is how many finishers pay out on a place bet.
func (result RaceResult) Matches(betType BetType, selections Selections, placePositions int) bool {
	if result.Cancelled || len(selections) != betType.SelectionCount() {
		return false
	}
	switch betType {
	case BetTypeWin:
		return containsAll(result.top(1), selections)
	case BetTypePlace:
		positions := placePositions
		if positions > len(result.FinishingOrder) {
			positions = len(result.FinishingOrder)
		}
		return containsAll(result.top(positions), selections)
	case BetTypeExacta:
		return containsAll(result.top(2), selections)
	case BetTypeWide:
		return containsAll(result.top(3), selections)
	case BetTypeTrio:
		return containsAll(result.top(3), selections)
	case BetTypeTrifecta:
		finishers := result.top(3)
		if finishers == nil {
			return false
		}
		for index, number := range selections {
			if finishers[index] != number {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func containsAll(finishers []HorseNumber, selections Selections) bool {
	if len(finishers) == 0 {
		return false
	}
	for _, number := range selections {
		found := false
		for _, finisher := range finishers {
			if finisher == number {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
