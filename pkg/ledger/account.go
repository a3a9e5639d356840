package ledger

import "time"

// Account is the per-player aggregate. It is only mutated through Ledger
// postings and the engines built on top of them.
type Account struct {
	ID                   AccountID
	Balance              Coins
	TotalBetsPlaced      int64
	TotalWins            int64
	TotalEarned          Coins
	TotalSpent           Coins
	WinRate              float64
	ConsecutiveLoginDays int
	LastLoginDay         CalendarDay
	AdViewDay            CalendarDay
	AdViewCount          int
	IsPremium            bool
	EntrySequence        int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Profit is total earned minus total spent.
func (account Account) Profit() int64 {
	return account.TotalEarned.Int64() - account.TotalSpent.Int64()
}

func (account *Account) refreshWinRate() {
	if account.TotalBetsPlaced == 0 {
		account.WinRate = 0
		return
	}
	account.WinRate = float64(account.TotalWins) / float64(account.TotalBetsPlaced)
}

// Entry is a single immutable line in an account's coin log.
type Entry struct {
	ID             EntryID
	AccountID      AccountID
	Sequence       int64
	Kind           EntryKind
	Delta          int64
	BalanceAfter   Coins
	Reason         string
	RelatedBetID   *BetID
	IdempotencyKey string
	CreatedAt      time.Time
}

// EntryFilter narrows ListEntries. Zero values disable a criterion.
type EntryFilter struct {
	Kind   EntryKind
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// Reconciliation compares the cached balance with the entry log.
type Reconciliation struct {
	AccountID AccountID
	Balance   Coins
	EntrySum  int64
}

// Matches reports whether the balance equals the sum of entry deltas.
func (reconciliation Reconciliation) Matches() bool {
	return reconciliation.Balance.Int64() == reconciliation.EntrySum
}
