package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ledger owns account balances and the append-only entry log. Every balance
// change in the system goes through one of its postings.
type Ledger struct {
	store     Store
	clock     func() time.Time
	locker    *AccountLocker
	logger    OperationLogger
	publisher EventPublisher
	newID     func() string
}

// NewLedger wires a Ledger.
func NewLedger(store Store, clock func() time.Time, options ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if clock == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	ledger := &Ledger{
		store:  store,
		clock:  clock,
		locker: NewAccountLocker(),
		newID:  uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(ledger)
		}
	}
	return ledger, nil
}

// Account returns the account aggregate.
func (ledger *Ledger) Account(ctx context.Context, accountID AccountID) (Account, error) {
	return ledger.store.GetAccount(ctx, accountID)
}

// Balance returns the current coin balance.
func (ledger *Ledger) Balance(ctx context.Context, accountID AccountID) (Coins, error) {
	account, err := ledger.store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Credit adds amount to the balance and appends one entry.
func (ledger *Ledger) Credit(ctx context.Context, accountID AccountID, amount PositiveCoins, kind EntryKind, reason string, relatedBetID *BetID) (Entry, error) {
	var entry Entry
	operationError := func() error {
		if kind == EntryKindSpend {
			return fmt.Errorf("%w: %s cannot be credited", ErrInvalidEntryKind, kind)
		}
		return ledger.withLockedAccount(ctx, accountID, func(ctx context.Context, txStore Store, account *Account) error {
			posted, err := ledger.post(ctx, txStore, account, posting{
				kind:           kind,
				delta:          amount.Int64(),
				reason:         reason,
				relatedBetID:   relatedBetID,
				idempotencyKey: ledger.uniqueKey(idempotencyPrefixCredit),
			})
			entry = posted
			return err
		})
	}()
	ledger.logOperation(ctx, OperationLog{
		Operation: OperationCredit,
		AccountID: accountID,
		Kind:      kind.String(),
		Amount:    amount.Int64(),
		Error:     operationError,
	})
	return entry, operationError
}

// Debit removes amount from the balance and appends one entry. It fails with
// ErrInsufficientFunds, leaving no trace, when amount exceeds the balance.
func (ledger *Ledger) Debit(ctx context.Context, accountID AccountID, amount PositiveCoins, kind EntryKind, reason string, relatedBetID *BetID) (Entry, error) {
	var entry Entry
	operationError := func() error {
		if kind != EntryKindSpend {
			return fmt.Errorf("%w: %s cannot be debited", ErrInvalidEntryKind, kind)
		}
		return ledger.withLockedAccount(ctx, accountID, func(ctx context.Context, txStore Store, account *Account) error {
			posted, err := ledger.post(ctx, txStore, account, posting{
				kind:           kind,
				delta:          -amount.Int64(),
				reason:         reason,
				relatedBetID:   relatedBetID,
				idempotencyKey: ledger.uniqueKey(idempotencyPrefixDebit),
			})
			entry = posted
			return err
		})
	}()
	ledger.logOperation(ctx, OperationLog{
		Operation: OperationDebit,
		AccountID: accountID,
		Kind:      kind.String(),
		Amount:    amount.Int64(),
		Error:     operationError,
	})
	return entry, operationError
}

// ListEntries returns entries newest first.
func (ledger *Ledger) ListEntries(ctx context.Context, accountID AccountID, filter EntryFilter) ([]Entry, error) {
	normalized, err := normalizeEntryFilter(filter)
	if err != nil {
		return nil, err
	}
	if _, err := ledger.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return ledger.store.ListEntries(ctx, accountID, normalized)
}

// Reconcile compares the cached balance against the entry log under the
// account lock.
func (ledger *Ledger) Reconcile(ctx context.Context, accountID AccountID) (Reconciliation, error) {
	var reconciliation Reconciliation
	err := ledger.withLockedAccount(ctx, accountID, func(ctx context.Context, txStore Store, account *Account) error {
		sum, err := txStore.SumEntryDeltas(ctx, accountID)
		if err != nil {
			return err
		}
		reconciliation = Reconciliation{AccountID: accountID, Balance: account.Balance, EntrySum: sum}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	if !reconciliation.Matches() {
		return reconciliation, fmt.Errorf("%w: balance %d, entries %d", ErrBalanceMismatch, reconciliation.Balance, reconciliation.EntrySum)
	}
	return reconciliation, nil
}

// SetPremium switches the account between the standard and premium stake
// ceilings.
func (ledger *Ledger) SetPremium(ctx context.Context, accountID AccountID, premium bool) (Account, error) {
	var updated Account
	operationError := ledger.withLockedAccount(ctx, accountID, func(ctx context.Context, txStore Store, account *Account) error {
		account.IsPremium = premium
		account.UpdatedAt = ledger.clock().UTC()
		updated = *account
		return txStore.UpdateAccount(ctx, *account)
	})
	ledger.logOperation(ctx, OperationLog{
		Operation: OperationSetPremium,
		AccountID: accountID,
		Kind:      strconv.FormatBool(premium),
		Error:     operationError,
	})
	if operationError != nil {
		return Account{}, operationError
	}
	return updated, nil
}

type posting struct {
	kind           EntryKind
	delta          int64
	reason         string
	relatedBetID   *BetID
	idempotencyKey string
}

// post applies a signed delta to a locked account, appends the matching
// entry and persists the account, including any aggregate fields the caller
// changed beforehand.
func (ledger *Ledger) post(ctx context.Context, txStore Store, account *Account, entryPosting posting) (Entry, error) {
	if entryPosting.delta == 0 {
		return Entry{}, fmt.Errorf("%w: zero delta", ErrInvalidAmount)
	}
	balanceAfter := account.Balance.Int64() + entryPosting.delta
	if balanceAfter < 0 {
		return Entry{}, fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, account.Balance, -entryPosting.delta)
	}
	entryID, err := NewEntryID(ledger.newID())
	if err != nil {
		return Entry{}, err
	}
	now := ledger.clock().UTC()
	account.EntrySequence++
	account.Balance = Coins(balanceAfter)
	account.UpdatedAt = now
	entry := Entry{
		ID:             entryID,
		AccountID:      account.ID,
		Sequence:       account.EntrySequence,
		Kind:           entryPosting.kind,
		Delta:          entryPosting.delta,
		BalanceAfter:   account.Balance,
		Reason:         entryPosting.reason,
		RelatedBetID:   entryPosting.relatedBetID,
		IdempotencyKey: entryPosting.idempotencyKey,
		CreatedAt:      now,
	}
	if err := txStore.InsertEntry(ctx, entry); err != nil {
		return Entry{}, err
	}
	if err := txStore.UpdateAccount(ctx, *account); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (ledger *Ledger) withLockedAccount(ctx context.Context, accountID AccountID, fn func(ctx context.Context, txStore Store, account *Account) error) error {
	unlock := ledger.locker.Lock(accountID)
	defer unlock()
	return ledger.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		account, err := txStore.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		return fn(ctx, txStore, &account)
	})
}

func (ledger *Ledger) publishBetPlaced(ctx context.Context, bet Bet) {
	if ledger.publisher == nil {
		return
	}
	ledger.logPublishFailure(ctx, bet, ledger.publisher.PublishBetPlaced(ctx, bet))
}

func (ledger *Ledger) publishBetSettled(ctx context.Context, bet Bet) {
	if ledger.publisher == nil {
		return
	}
	ledger.logPublishFailure(ctx, bet, ledger.publisher.PublishBetSettled(ctx, bet))
}

func (ledger *Ledger) logPublishFailure(ctx context.Context, bet Bet, err error) {
	if err == nil {
		return
	}
	ledger.logOperation(ctx, OperationLog{
		Operation: OperationPublishEvent,
		AccountID: bet.AccountID,
		BetID:     bet.ID,
		RaceID:    bet.RaceID,
		Kind:      bet.Status.String(),
		Error:     err,
	})
}

func (ledger *Ledger) uniqueKey(prefix string) string {
	return idempotencyKey(prefix, ledger.newID())
}

func idempotencyKey(parts ...string) string {
	return strings.Join(parts, idempotencyKeyDelimiter)
}

func normalizeEntryFilter(filter EntryFilter) (EntryFilter, error) {
	if filter.Kind != "" {
		kind, err := ParseEntryKind(filter.Kind.String())
		if err != nil {
			return EntryFilter{}, err
		}
		filter.Kind = kind
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && filter.Until.Before(filter.Since) {
		return EntryFilter{}, fmt.Errorf("%w: until before since", ErrInvalidListFilter)
	}
	limit, err := normalizeLimit(filter.Limit, defaultEntryListLimit, maxEntryListLimit)
	if err != nil {
		return EntryFilter{}, err
	}
	if filter.Offset < 0 {
		return EntryFilter{}, fmt.Errorf("%w: negative offset", ErrInvalidListFilter)
	}
	filter.Limit = limit
	return filter, nil
}

func normalizeLimit(limit int, fallback int, maximum int) (int, error) {
	if limit == 0 {
		return fallback, nil
	}
	if limit < 0 || limit > maximum {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidListFilter, maximum)
	}
	return limit, nil
}
