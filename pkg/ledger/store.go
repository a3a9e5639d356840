package ledger

import "context"

// Store is the persistence contract used by the ledger services.
// Every mutation runs inside WithTx; LockAccount must hold the account row
// until the transaction ends.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, accountID AccountID) (Account, error)
	LockAccount(ctx context.Context, accountID AccountID) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error

	InsertEntry(ctx context.Context, entry Entry) error
	ListEntries(ctx context.Context, accountID AccountID, filter EntryFilter) ([]Entry, error)
	SumEntryDeltas(ctx context.Context, accountID AccountID) (int64, error)

	InsertBet(ctx context.Context, bet Bet) error
	GetBet(ctx context.Context, accountID AccountID, betID BetID) (Bet, error)
	FindBet(ctx context.Context, betID BetID) (Bet, error)
	ListBets(ctx context.Context, accountID AccountID, filter BetFilter) ([]Bet, error)
	ListPendingBets(ctx context.Context, raceID RaceID) ([]Bet, error)
	UpdateBetOutcome(ctx context.Context, outcome BetOutcome) error

	// LockRace reads the race status and holds the race row until the
	// transaction ends. Placements take RaceLockShare and settlement takes
	// RaceLockUpdate, so a race cannot leave Betting between a placement's
	// check and its commit.
	LockRace(ctx context.Context, raceID RaceID, mode RaceLock) (RaceStatus, error)
}

// RaceLock selects the row lock LockRace takes.
type RaceLock int

const (
	RaceLockShare RaceLock = iota
	RaceLockUpdate
)
