package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintAccountPrimary        = "accounts_pkey"
	constraintAccountIdempotencyKey = "uniq_ledger_entries_account_idempotency"
	constraintBetPrimary            = "bets_pkey"
	pgUniqueViolationCode           = "23505"
	sqliteConstraintCode            = 19
	betStatusColumn                 = "status"
	errorOperationStore             = "store"
	errorSubjectAccount             = "account"
	errorSubjectBalance             = "balance"
	errorSubjectBet                 = "bet"
	errorSubjectEntry               = "entry"
	errorSubjectRace                = "race"
	errorCodeCreate                 = "create"
	errorCodeDuplicate              = "duplicate"
	errorCodeGet                    = "get"
	errorCodeInsert                 = "insert"
	errorCodeInvalid                = "invalid"
	lockStrengthShare               = "SHARE"
	lockStrengthUpdate              = "UPDATE"
	errorCodeList                   = "list"
	errorCodeLock                   = "lock"
	errorCodeSumTotal               = "sum_total"
	errorCodeUpdate                 = "update"
	errorCodeUpdateStatus           = "update_status"
	errorCodeUpsert                 = "upsert"
)

var (
	_ ledger.Store       = (*Store)(nil)
	_ ledger.RaceCatalog = (*Store)(nil)
)

// Store implements ledger.Store and ledger.RaceCatalog using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateAccount(ctx context.Context, account ledger.Account) error {
	model := accountModel(account)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintAccountPrimary) {
		return wrapStoreError(errorSubjectAccount, errorCodeDuplicate, ledger.ErrAccountExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetAccount(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	return store.findAccount(store.db.WithContext(ctx), accountID, errorCodeGet)
}

// LockAccount reads the account with FOR UPDATE. SQLite ignores the clause;
// its single writer connection serializes transactions instead.
func (store *Store) LockAccount(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	return store.findAccount(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: lockStrengthUpdate}), accountID, errorCodeLock)
}

func (store *Store) findAccount(query *gorm.DB, accountID ledger.AccountID, code string) (ledger.Account, error) {
	var model Account
	err := query.Where("account_id = ?", accountID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, code, ledger.ErrUnknownAccount)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, code, err)
	}
	account, err := mapAccount(model)
	if err != nil {
		return ledger.Account{}, wrapDecodeError(errorSubjectAccount, err)
	}
	return account, nil
}

func (store *Store) UpdateAccount(ctx context.Context, account ledger.Account) error {
	model := accountModel(account)
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ?", model.AccountID).
		Updates(map[string]any{
			"balance":                model.Balance,
			"total_bets_placed":      model.TotalBetsPlaced,
			"total_wins":             model.TotalWins,
			"total_earned":           model.TotalEarned,
			"total_spent":            model.TotalSpent,
			"win_rate":               model.WinRate,
			"consecutive_login_days": model.ConsecutiveLoginDays,
			"last_login_day":         model.LastLoginDay,
			"ad_view_day":            model.AdViewDay,
			"ad_view_count":          model.AdViewCount,
			"is_premium":             model.IsPremium,
			"entry_sequence":         model.EntrySequence,
			"updated_at":             model.UpdatedAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrUnknownAccount)
	}
	return nil
}

func (store *Store) InsertEntry(ctx context.Context, entry ledger.Entry) error {
	model := LedgerEntry{
		EntryID:        entry.ID.String(),
		AccountID:      entry.AccountID.String(),
		Sequence:       entry.Sequence,
		Kind:           entry.Kind.String(),
		Delta:          entry.Delta,
		BalanceAfter:   entry.BalanceAfter.Int64(),
		Reason:         entry.Reason,
		IdempotencyKey: entry.IdempotencyKey,
		CreatedAt:      entry.CreatedAt.UTC(),
	}
	if entry.RelatedBetID != nil {
		value := entry.RelatedBetID.String()
		model.RelatedBetID = &value
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintAccountIdempotencyKey) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

// ListEntries returns entries newest first.
func (store *Store) ListEntries(ctx context.Context, accountID ledger.AccountID, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	query := store.db.WithContext(ctx).Where("account_id = ?", accountID.String())
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind.String())
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at < ?", filter.Until.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []LedgerEntry
	err := query.Order("sequence DESC").Offset(filter.Offset).Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapDecodeError(errorSubjectEntry, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) SumEntryDeltas(ctx context.Context, accountID ledger.AccountID) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(delta),0) as total").
		Where("account_id = ?", accountID.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSumTotal, err)
	}
	return sum.Total, nil
}

func (store *Store) InsertBet(ctx context.Context, bet ledger.Bet) error {
	selections, err := json.Marshal(bet.Selections.Ints())
	if err != nil {
		return wrapStoreError(errorSubjectBet, errorCodeInsert, err)
	}
	model := Bet{
		BetID:      bet.ID.String(),
		AccountID:  bet.AccountID.String(),
		RaceID:     bet.RaceID.String(),
		BetType:    bet.Type.String(),
		Selections: datatypes.JSON(selections),
		Amount:     bet.Amount.Int64(),
		Odds:       bet.Odds.Decimal(),
		Status:     bet.Status.String(),
		Payout:     bet.Payout.Int64(),
		CreatedAt:  bet.CreatedAt.UTC(),
		SettledAt:  bet.SettledAt,
	}
	err = store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintBetPrimary) {
		return wrapStoreError(errorSubjectBet, errorCodeDuplicate, ledger.ErrDuplicateBet)
	}
	if err != nil {
		return wrapStoreError(errorSubjectBet, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetBet(ctx context.Context, accountID ledger.AccountID, betID ledger.BetID) (ledger.Bet, error) {
	return store.findBet(store.db.WithContext(ctx).Where("account_id = ? AND bet_id = ?", accountID.String(), betID.String()))
}

func (store *Store) FindBet(ctx context.Context, betID ledger.BetID) (ledger.Bet, error) {
	return store.findBet(store.db.WithContext(ctx).Where("bet_id = ?", betID.String()))
}

func (store *Store) findBet(query *gorm.DB) (ledger.Bet, error) {
	var model Bet
	err := query.Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Bet{}, wrapStoreError(errorSubjectBet, errorCodeGet, ledger.ErrUnknownBet)
		}
		return ledger.Bet{}, wrapStoreError(errorSubjectBet, errorCodeGet, err)
	}
	bet, err := mapBet(model)
	if err != nil {
		return ledger.Bet{}, wrapDecodeError(errorSubjectBet, err)
	}
	return bet, nil
}

// ListBets returns the account's bets newest first.
func (store *Store) ListBets(ctx context.Context, accountID ledger.AccountID, filter ledger.BetFilter) ([]ledger.Bet, error) {
	query := store.db.WithContext(ctx).Where("account_id = ?", accountID.String())
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.RaceID.String() != "" {
		query = query.Where("race_id = ?", filter.RaceID.String())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []Bet
	if err := query.Order("created_at DESC").Order("bet_id DESC").Offset(filter.Offset).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectBet, errorCodeList, err)
	}
	return mapBets(rows)
}

// ListPendingBets returns the race's pending bets oldest first.
func (store *Store) ListPendingBets(ctx context.Context, raceID ledger.RaceID) ([]ledger.Bet, error) {
	var rows []Bet
	err := store.db.WithContext(ctx).
		Where("race_id = ? AND status = ?", raceID.String(), ledger.BetStatusPending.String()).
		Order("created_at ASC").
		Order("bet_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBet, errorCodeList, err)
	}
	return mapBets(rows)
}

// UpdateBetOutcome moves a pending bet to its terminal state. A bet that is
// no longer pending yields ErrBetAlreadySettled.
func (store *Store) UpdateBetOutcome(ctx context.Context, outcome ledger.BetOutcome) error {
	settledAt := outcome.SettledAt.UTC()
	result := store.db.WithContext(ctx).
		Model(&Bet{}).
		Where("bet_id = ? AND account_id = ? AND status = ?", outcome.BetID.String(), outcome.AccountID.String(), ledger.BetStatusPending.String()).
		Updates(map[string]any{
			betStatusColumn: outcome.Status.String(),
			"payout":        outcome.Payout.Int64(),
			"settled_at":    &settledAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBet, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetBet(ctx, outcome.AccountID, outcome.BetID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectBet, errorCodeUpdateStatus, ledger.ErrBetAlreadySettled)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

// wrapDecodeError reports a stored row that no longer converts to a domain
// value. The cause is flattened so its validation category does not leak.
func wrapDecodeError(subject string, err error) error {
	return wrapStoreError(subject, errorCodeInvalid, fmt.Errorf("%w: %v", ledger.ErrCorruptRecord, err))
}

type sqlSum struct {
	Total int64
}

func accountModel(account ledger.Account) Account {
	return Account{
		AccountID:            account.ID.String(),
		Balance:              account.Balance.Int64(),
		TotalBetsPlaced:      account.TotalBetsPlaced,
		TotalWins:            account.TotalWins,
		TotalEarned:          account.TotalEarned.Int64(),
		TotalSpent:           account.TotalSpent.Int64(),
		WinRate:              account.WinRate,
		ConsecutiveLoginDays: account.ConsecutiveLoginDays,
		LastLoginDay:         dayColumn(account.LastLoginDay),
		AdViewDay:            dayColumn(account.AdViewDay),
		AdViewCount:          account.AdViewCount,
		IsPremium:            account.IsPremium,
		EntrySequence:        account.EntrySequence,
		CreatedAt:            account.CreatedAt.UTC(),
		UpdatedAt:            account.UpdatedAt.UTC(),
	}
}

func mapAccount(model Account) (ledger.Account, error) {
	accountID, err := ledger.NewAccountID(model.AccountID)
	if err != nil {
		return ledger.Account{}, err
	}
	balance, err := ledger.NewCoins(model.Balance)
	if err != nil {
		return ledger.Account{}, err
	}
	lastLogin, err := parseDayColumn(model.LastLoginDay)
	if err != nil {
		return ledger.Account{}, err
	}
	adViewDay, err := parseDayColumn(model.AdViewDay)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{
		ID:                   accountID,
		Balance:              balance,
		TotalBetsPlaced:      model.TotalBetsPlaced,
		TotalWins:            model.TotalWins,
		TotalEarned:          ledger.Coins(model.TotalEarned),
		TotalSpent:           ledger.Coins(model.TotalSpent),
		WinRate:              model.WinRate,
		ConsecutiveLoginDays: model.ConsecutiveLoginDays,
		LastLoginDay:         lastLogin,
		AdViewDay:            adViewDay,
		AdViewCount:          model.AdViewCount,
		IsPremium:            model.IsPremium,
		EntrySequence:        model.EntrySequence,
		CreatedAt:            model.CreatedAt.UTC(),
		UpdatedAt:            model.UpdatedAt.UTC(),
	}, nil
}

func dayColumn(day ledger.CalendarDay) *string {
	if day.IsZero() {
		return nil
	}
	value := day.String()
	return &value
}

func parseDayColumn(value *string) (ledger.CalendarDay, error) {
	if value == nil || *value == "" {
		return ledger.CalendarDay{}, nil
	}
	return ledger.ParseCalendarDay(*value)
}

func mapLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	entryID, err := ledger.NewEntryID(row.EntryID)
	if err != nil {
		return ledger.Entry{}, err
	}
	accountID, err := ledger.NewAccountID(row.AccountID)
	if err != nil {
		return ledger.Entry{}, err
	}
	kind, err := ledger.ParseEntryKind(row.Kind)
	if err != nil {
		return ledger.Entry{}, err
	}
	balanceAfter, err := ledger.NewCoins(row.BalanceAfter)
	if err != nil {
		return ledger.Entry{}, err
	}
	var relatedBetID *ledger.BetID
	if row.RelatedBetID != nil {
		parsedBetID, err := ledger.NewBetID(*row.RelatedBetID)
		if err != nil {
			return ledger.Entry{}, err
		}
		relatedBetID = &parsedBetID
	}
	return ledger.Entry{
		ID:             entryID,
		AccountID:      accountID,
		Sequence:       row.Sequence,
		Kind:           kind,
		Delta:          row.Delta,
		BalanceAfter:   balanceAfter,
		Reason:         row.Reason,
		RelatedBetID:   relatedBetID,
		IdempotencyKey: row.IdempotencyKey,
		CreatedAt:      row.CreatedAt.UTC(),
	}, nil
}

func mapBets(rows []Bet) ([]ledger.Bet, error) {
	bets := make([]ledger.Bet, 0, len(rows))
	for _, row := range rows {
		bet, err := mapBet(row)
		if err != nil {
			return nil, wrapDecodeError(errorSubjectBet, err)
		}
		bets = append(bets, bet)
	}
	return bets, nil
}

func mapBet(row Bet) (ledger.Bet, error) {
	betID, err := ledger.NewBetID(row.BetID)
	if err != nil {
		return ledger.Bet{}, err
	}
	accountID, err := ledger.NewAccountID(row.AccountID)
	if err != nil {
		return ledger.Bet{}, err
	}
	raceID, err := ledger.NewRaceID(row.RaceID)
	if err != nil {
		return ledger.Bet{}, err
	}
	betType, err := ledger.ParseBetType(row.BetType)
	if err != nil {
		return ledger.Bet{}, err
	}
	var rawSelections []int
	if err := json.Unmarshal(row.Selections, &rawSelections); err != nil {
		return ledger.Bet{}, err
	}
	selections, err := ledger.NewSelections(betType, rawSelections)
	if err != nil {
		return ledger.Bet{}, err
	}
	amount, err := ledger.NewPositiveCoins(row.Amount)
	if err != nil {
		return ledger.Bet{}, err
	}
	odds, err := ledger.NewOdds(row.Odds)
	if err != nil {
		return ledger.Bet{}, err
	}
	status, err := ledger.ParseBetStatus(row.Status)
	if err != nil {
		return ledger.Bet{}, err
	}
	payout, err := ledger.NewCoins(row.Payout)
	if err != nil {
		return ledger.Bet{}, err
	}
	var settledAt *time.Time
	if row.SettledAt != nil {
		value := row.SettledAt.UTC()
		settledAt = &value
	}
	return ledger.Bet{
		ID:         betID,
		AccountID:  accountID,
		RaceID:     raceID,
		Type:       betType,
		Selections: selections,
		Amount:     amount,
		Odds:       odds,
		Status:     status,
		Payout:     payout,
		CreatedAt:  row.CreatedAt.UTC(),
		SettledAt:  settledAt,
	}, nil
}

// isUniqueViolation matches a unique constraint failure. On Postgres the
// constraint name must match; SQLite does not report it.
func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
