package ledger

import (
	"context"
	"fmt"
)

// BetEngine validates and places bets.
type BetEngine struct {
	ledger  *Ledger
	catalog RaceCatalog
	rules   Rules
}

// NewBetEngine wires a BetEngine on top of ledger.
func NewBetEngine(ledger *Ledger, catalog RaceCatalog, rules Rules) (*BetEngine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: race catalog dependency is nil", ErrInvalidServiceConfig)
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, err)
	}
	return &BetEngine{ledger: ledger, catalog: catalog, rules: rules}, nil
}

// PlaceBet validates input, snapshots the odds and debits the stake. The
// debit, the pending bet and the account counters are written in one
// transaction; on any failure nothing is written.
//
// Checks run in order: bet type, selection count, stake range, race state,
// balance. The first failing check decides the error.
func (engine *BetEngine) PlaceBet(ctx context.Context, input PlaceBetInput) (Bet, error) {
	bet, operationError := engine.placeBet(ctx, input)
	engine.ledger.logOperation(ctx, OperationLog{
		Operation: OperationPlaceBet,
		AccountID: input.AccountID,
		BetID:     bet.ID,
		RaceID:    input.RaceID,
		Kind:      input.BetType,
		Amount:    input.Amount,
		Error:     operationError,
	})
	if operationError != nil {
		return Bet{}, operationError
	}
	engine.ledger.publishBetPlaced(ctx, bet)
	return bet, nil
}

func (engine *BetEngine) placeBet(ctx context.Context, input PlaceBetInput) (Bet, error) {
	betType, err := ParseBetType(input.BetType)
	if err != nil {
		return Bet{}, err
	}
	selections, err := NewSelections(betType, input.Selections)
	if err != nil {
		return Bet{}, err
	}
	account, err := engine.ledger.store.GetAccount(ctx, input.AccountID)
	if err != nil {
		return Bet{}, err
	}
	if err := engine.checkStake(input.Amount, account.IsPremium); err != nil {
		return Bet{}, err
	}
	amount := PositiveCoins(input.Amount)

	race, err := engine.catalog.LookupRace(ctx, input.RaceID)
	if err != nil {
		return Bet{}, err
	}
	now := engine.ledger.clock().UTC()
	if !race.AcceptsBets(now) {
		return Bet{}, fmt.Errorf("%w: race %s is %s", ErrRaceNotOpenForBetting, race.ID.String(), race.Status)
	}
	for _, number := range selections {
		if _, ok := race.Horse(number); !ok {
			return Bet{}, fmt.Errorf("%w: horse %d in race %s", ErrUnknownHorse, number, race.ID.String())
		}
	}
	odds, err := ResolveOdds(betType, selections, race)
	if err != nil {
		return Bet{}, err
	}

	betID, err := NewBetID(engine.ledger.newID())
	if err != nil {
		return Bet{}, err
	}
	bet := Bet{
		ID:         betID,
		AccountID:  input.AccountID,
		RaceID:     race.ID,
		Type:       betType,
		Selections: selections,
		Amount:     amount,
		Odds:       odds,
		Status:     BetStatusPending,
		CreatedAt:  now,
	}

	err = engine.ledger.withLockedAccount(ctx, input.AccountID, func(ctx context.Context, txStore Store, account *Account) error {
		if err := engine.checkStake(input.Amount, account.IsPremium); err != nil {
			return err
		}
		// The catalog snapshot may be cached; the row decides.
		status, err := txStore.LockRace(ctx, race.ID, RaceLockShare)
		if err != nil {
			return err
		}
		if status != RaceStatusBetting {
			return fmt.Errorf("%w: race %s is %s", ErrRaceNotOpenForBetting, race.ID.String(), status)
		}
		account.TotalBetsPlaced++
		account.TotalSpent += amount.Coins()
		account.refreshWinRate()
		_, err = engine.ledger.post(ctx, txStore, account, posting{
			kind:           EntryKindSpend,
			delta:          -amount.Int64(),
			reason:         fmt.Sprintf(reasonBetPlaced, betType),
			relatedBetID:   &bet.ID,
			idempotencyKey: idempotencyKey(idempotencyPrefixBet, bet.ID.String()),
		})
		if err != nil {
			return err
		}
		return txStore.InsertBet(ctx, bet)
	})
	if err != nil {
		return Bet{}, err
	}
	return bet, nil
}

func (engine *BetEngine) checkStake(amount int64, premium bool) error {
	maximum := engine.rules.MaxBetFor(premium)
	if amount < engine.rules.MinBet || amount > maximum {
		return fmt.Errorf("%w: %d not within %d..%d", ErrAmountOutOfRange, amount, engine.rules.MinBet, maximum)
	}
	return nil
}

// GetBet returns one of the account's bets.
func (engine *BetEngine) GetBet(ctx context.Context, accountID AccountID, betID BetID) (Bet, error) {
	return engine.ledger.store.GetBet(ctx, accountID, betID)
}

// ListBets returns the account's bets newest first.
func (engine *BetEngine) ListBets(ctx context.Context, accountID AccountID, filter BetFilter) ([]Bet, error) {
	if filter.Status != "" {
		status, err := ParseBetStatus(filter.Status.String())
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	limit, err := normalizeLimit(filter.Limit, defaultBetListLimit, maxBetListLimit)
	if err != nil {
		return nil, err
	}
	if filter.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalidListFilter)
	}
	filter.Limit = limit
	return engine.ledger.store.ListBets(ctx, accountID, filter)
}
