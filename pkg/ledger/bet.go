package ledger

import "time"

// Bet is a wager on one race.
type Bet struct {
	ID         BetID
	AccountID  AccountID
	RaceID     RaceID
	Type       BetType
	Selections Selections
	Amount     PositiveCoins
	Odds       Odds
	Status     BetStatus
	Payout     Coins
	CreatedAt  time.Time
	SettledAt  *time.Time
}

// BetFilter narrows ListBets. Zero values disable a criterion.
type BetFilter struct {
	Status BetStatus
	RaceID RaceID
	Limit  int
	Offset int
}

// BetOutcome is the terminal transition written by settlement.
type BetOutcome struct {
	BetID     BetID
	AccountID AccountID
	Status    BetStatus
	Payout    Coins
	SettledAt time.Time
}

// PlaceBetInput carries an unvalidated placement request.
type PlaceBetInput struct {
	AccountID  AccountID
	RaceID     RaceID
	BetType    string
	Selections []int
	Amount     int64
}
