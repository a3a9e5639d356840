package ledger

import (
	"fmt"
	"time"
)

// RaceRecord is the plain serialized form of a Race used by caches, race
// card files, events and the admin API.
type RaceRecord struct {
	ID              string        `json:"id" yaml:"id"`
	Name            string        `json:"name" yaml:"name"`
	Venue           string        `json:"venue,omitempty" yaml:"venue"`
	RaceNumber      int           `json:"race_number,omitempty" yaml:"race_number"`
	Status          string        `json:"status" yaml:"status"`
	BettingOpensAt  *time.Time    `json:"betting_opens_at,omitempty" yaml:"betting_opens_at"`
	BettingClosesAt *time.Time    `json:"betting_closes_at,omitempty" yaml:"betting_closes_at"`
	StartsAt        *time.Time    `json:"starts_at,omitempty" yaml:"starts_at"`
	Horses          []HorseRecord `json:"horses" yaml:"horses"`
}

// HorseRecord is the serialized form of a Horse. WinOdds is a decimal string.
type HorseRecord struct {
	Number     int    `json:"number" yaml:"number"`
	Name       string `json:"name" yaml:"name"`
	Jockey     string `json:"jockey,omitempty" yaml:"jockey"`
	WinOdds    string `json:"win_odds" yaml:"win_odds"`
	Popularity int    `json:"popularity,omitempty" yaml:"popularity"`
}

// Record converts the race to its serialized form.
func (race Race) Record() RaceRecord {
	record := RaceRecord{
		ID:              race.ID.String(),
		Name:            race.Name,
		Venue:           race.Venue,
		RaceNumber:      race.RaceNumber,
		Status:          race.Status.String(),
		BettingOpensAt:  optionalTime(race.BettingOpensAt),
		BettingClosesAt: optionalTime(race.BettingClosesAt),
		StartsAt:        optionalTime(race.StartsAt),
		Horses:          make([]HorseRecord, 0, len(race.Horses)),
	}
	for _, horse := range race.Horses {
		record.Horses = append(record.Horses, HorseRecord{
			Number:     horse.Number.Int(),
			Name:       horse.Name,
			Jockey:     horse.Jockey,
			WinOdds:    horse.WinOdds.String(),
			Popularity: horse.Popularity,
		})
	}
	return record
}

// Race validates the record and converts it back to a Race.
func (record RaceRecord) Race() (Race, error) {
	raceID, err := NewRaceID(record.ID)
	if err != nil {
		return Race{}, err
	}
	status, err := ParseRaceStatus(record.Status)
	if err != nil {
		return Race{}, err
	}
	race := Race{
		ID:              raceID,
		Name:            record.Name,
		Venue:           record.Venue,
		RaceNumber:      record.RaceNumber,
		Status:          status,
		BettingOpensAt:  timeOrZero(record.BettingOpensAt),
		BettingClosesAt: timeOrZero(record.BettingClosesAt),
		StartsAt:        timeOrZero(record.StartsAt),
	}
	seen := make(map[HorseNumber]struct{}, len(record.Horses))
	for _, horseRecord := range record.Horses {
		number, err := NewHorseNumber(horseRecord.Number)
		if err != nil {
			return Race{}, err
		}
		if _, duplicate := seen[number]; duplicate {
			return Race{}, fmt.Errorf("%w: horse %d listed twice", ErrInvalidSelection, horseRecord.Number)
		}
		seen[number] = struct{}{}
		odds, err := ParseOdds(horseRecord.WinOdds)
		if err != nil {
			return Race{}, err
		}
		race.Horses = append(race.Horses, Horse{
			Number:     number,
			Name:       horseRecord.Name,
			Jockey:     horseRecord.Jockey,
			WinOdds:    odds,
			Popularity: horseRecord.Popularity,
		})
	}
	return race, nil
}

// BetRecord is the serialized form of a Bet published on bet events.
type BetRecord struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"account_id"`
	RaceID     string     `json:"race_id"`
	Type       string     `json:"bet_type"`
	Selections []int      `json:"selections"`
	Amount     int64      `json:"amount"`
	Odds       string     `json:"odds"`
	Status     string     `json:"status"`
	Payout     int64      `json:"payout"`
	CreatedAt  time.Time  `json:"created_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
}

// Record converts the bet to its serialized form.
func (bet Bet) Record() BetRecord {
	return BetRecord{
		ID:         bet.ID.String(),
		AccountID:  bet.AccountID.String(),
		RaceID:     bet.RaceID.String(),
		Type:       bet.Type.String(),
		Selections: bet.Selections.Ints(),
		Amount:     bet.Amount.Int64(),
		Odds:       bet.Odds.String(),
		Status:     bet.Status.String(),
		Payout:     bet.Payout.Int64(),
		CreatedAt:  bet.CreatedAt,
		SettledAt:  bet.SettledAt,
	}
}

// RaceResultRecord is the serialized form of a RaceResult.
type RaceResultRecord struct {
	RaceID         string `json:"race_id"`
	FinishingOrder []int  `json:"finishing_order"`
	Cancelled      bool   `json:"cancelled"`
}

// Result validates the record and converts it to a RaceResult.
func (record RaceResultRecord) Result() (RaceResult, error) {
	raceID, err := NewRaceID(record.RaceID)
	if err != nil {
		return RaceResult{}, err
	}
	return NewRaceResult(raceID, record.FinishingOrder, record.Cancelled)
}

func optionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func timeOrZero(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return value.UTC()
}
