package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table.
type Account struct {
	AccountID            string    `gorm:"primaryKey;size:128"`
	Balance              int64     `gorm:"not null;check:chk_accounts_balance_non_negative,balance >= 0"`
	TotalBetsPlaced      int64     `gorm:"not null"`
	TotalWins            int64     `gorm:"not null"`
	TotalEarned          int64     `gorm:"not null"`
	TotalSpent           int64     `gorm:"not null"`
	WinRate              float64   `gorm:"not null"`
	ConsecutiveLoginDays int       `gorm:"not null"`
	LastLoginDay         *string   `gorm:"size:10"`
	AdViewDay            *string   `gorm:"size:10"`
	AdViewCount          int       `gorm:"not null"`
	IsPremium            bool      `gorm:"not null"`
	EntrySequence        int64     `gorm:"not null"`
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// LedgerEntry mirrors the ledger_entries table. Rows are never updated.
type LedgerEntry struct {
	EntryID        string    `gorm:"primaryKey;size:64"`
	AccountID      string    `gorm:"size:128;not null;index:uniq_ledger_entries_account_sequence,unique,priority:1;index:uniq_ledger_entries_account_idempotency,unique,priority:1"`
	Sequence       int64     `gorm:"not null;index:uniq_ledger_entries_account_sequence,unique,priority:2"`
	Kind           string    `gorm:"size:16;not null"`
	Delta          int64     `gorm:"not null"`
	BalanceAfter   int64     `gorm:"not null"`
	Reason         string    `gorm:"not null"`
	RelatedBetID   *string   `gorm:"size:64;index:idx_ledger_entries_related_bet"`
	IdempotencyKey string    `gorm:"size:255;not null;index:uniq_ledger_entries_account_idempotency,unique,priority:2"`
	CreatedAt      time.Time `gorm:"not null;index:idx_ledger_entries_created"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Bet mirrors the bets table.
type Bet struct {
	BetID      string          `gorm:"primaryKey;size:64"`
	AccountID  string          `gorm:"size:128;not null;index:idx_bets_account_created,priority:1"`
	RaceID     string          `gorm:"size:64;not null;index:idx_bets_race_status,priority:1"`
	BetType    string          `gorm:"size:16;not null"`
	Selections datatypes.JSON  `gorm:"type:jsonb;not null"`
	Amount     int64           `gorm:"not null"`
	Odds       decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Status     string          `gorm:"size:16;not null;index:idx_bets_race_status,priority:2"`
	Payout     int64           `gorm:"not null"`
	CreatedAt  time.Time       `gorm:"not null;index:idx_bets_account_created,priority:2"`
	SettledAt  *time.Time
}

func (Bet) TableName() string { return "bets" }

func (bet *Bet) BeforeCreate(tx *gorm.DB) error {
	if bet.BetID == "" {
		bet.BetID = uuid.NewString()
	}
	return nil
}

// Race mirrors the races table.
type Race struct {
	RaceID          string `gorm:"primaryKey;size:64"`
	Name            string `gorm:"not null"`
	Venue           string `gorm:"not null"`
	RaceNumber      int    `gorm:"not null"`
	Status          string `gorm:"size:16;not null;index:idx_races_status"`
	BettingOpensAt  *time.Time
	BettingClosesAt *time.Time
	StartsAt        *time.Time  `gorm:"index:idx_races_starts_at"`
	Horses          []RaceHorse `gorm:"foreignKey:RaceID;references:RaceID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time   `gorm:"not null"`
	UpdatedAt       time.Time   `gorm:"not null"`
}

func (Race) TableName() string { return "races" }

// RaceHorse mirrors the race_horses table.
type RaceHorse struct {
	RaceID     string          `gorm:"primaryKey;size:64"`
	Number     int             `gorm:"primaryKey;autoIncrement:false"`
	Name       string          `gorm:"not null"`
	Jockey     string          `gorm:"not null"`
	WinOdds    decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Popularity int             `gorm:"not null"`
}

func (RaceHorse) TableName() string { return "race_horses" }

// AllModels lists every table for AutoMigrate.
func AllModels() []any {
	return []any{&Account{}, &LedgerEntry{}, &Bet{}, &Race{}, &RaceHorse{}}
}
