package ledger

import (
	"context"
	"errors"
	"fmt"
)

// SettlementProcessor moves pending bets of a finished or cancelled race to
// their terminal state and pays winners.
type SettlementProcessor struct {
	ledger  *Ledger
	catalog RaceCatalog
	rules   Rules
}

// SettlementReport summarizes one SettleRace run.
type SettlementReport struct {
	RaceID    RaceID
	Won       int
	Lost      int
	Refunded  int
	Skipped   int
	TotalPaid Coins
}

// NewSettlementProcessor wires a SettlementProcessor on top of ledger.
func NewSettlementProcessor(ledger *Ledger, catalog RaceCatalog, rules Rules) (*SettlementProcessor, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: race catalog dependency is nil", ErrInvalidServiceConfig)
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, err)
	}
	return &SettlementProcessor{ledger: ledger, catalog: catalog, rules: rules}, nil
}

// SettleRace settles every pending bet of result.RaceID. It is safe to call
// repeatedly: bets already in a terminal state are skipped. Each bet settles
// in its own account transaction; failures are collected and returned
// together so the caller can retry.
func (processor *SettlementProcessor) SettleRace(ctx context.Context, result RaceResult) (SettlementReport, error) {
	report, operationError := processor.settleRace(ctx, result)
	processor.ledger.logOperation(ctx, OperationLog{
		Operation: OperationSettleRace,
		RaceID:    result.RaceID,
		Amount:    report.TotalPaid.Int64(),
		Error:     operationError,
	})
	return report, operationError
}

func (processor *SettlementProcessor) settleRace(ctx context.Context, result RaceResult) (SettlementReport, error) {
	report := SettlementReport{RaceID: result.RaceID}
	// Listing under the race row lock waits out in-flight placements; later
	// placements see the race is no longer Betting.
	var bets []Bet
	err := processor.ledger.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		status, err := txStore.LockRace(ctx, result.RaceID, RaceLockUpdate)
		if err != nil {
			return err
		}
		if result, err = applyRaceStatus(result, status); err != nil {
			return err
		}
		bets, err = txStore.ListPendingBets(ctx, result.RaceID)
		return err
	})
	if err != nil {
		return report, err
	}
	var failures []error
	for _, pending := range bets {
		settled, skipped, err := processor.settleBet(ctx, pending.AccountID, pending.ID, result)
		if !skipped {
			processor.ledger.logOperation(ctx, OperationLog{
				Operation: OperationSettleBet,
				AccountID: pending.AccountID,
				BetID:     pending.ID,
				RaceID:    result.RaceID,
				Kind:      settled.Status.String(),
				Amount:    settled.Payout.Int64(),
				Error:     err,
			})
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("bet %s: %w", pending.ID.String(), err))
			continue
		}
		if skipped {
			report.Skipped++
			continue
		}
		switch settled.Status {
		case BetStatusWon:
			report.Won++
			report.TotalPaid += settled.Payout
		case BetStatusLost:
			report.Lost++
		case BetStatusRefunded:
			report.Refunded++
			report.TotalPaid += settled.Payout
		}
	}
	return report, errors.Join(failures...)
}

// SettleBet settles a single bet against result. An already settled bet is
// returned unchanged.
func (processor *SettlementProcessor) SettleBet(ctx context.Context, betID BetID, result RaceResult) (Bet, error) {
	bet, operationError := func() (Bet, error) {
		found, err := processor.ledger.store.FindBet(ctx, betID)
		if err != nil {
			return Bet{}, err
		}
		if found.RaceID != result.RaceID {
			return Bet{}, fmt.Errorf("%w: bet %s belongs to race %s", ErrInvalidRaceResult, betID.String(), found.RaceID.String())
		}
		resolved, err := processor.resolveResult(ctx, result)
		if err != nil {
			return Bet{}, err
		}
		settled, _, err := processor.settleBet(ctx, found.AccountID, betID, resolved)
		return settled, err
	}()
	processor.ledger.logOperation(ctx, OperationLog{
		Operation: OperationSettleBet,
		AccountID: bet.AccountID,
		BetID:     betID,
		RaceID:    result.RaceID,
		Kind:      bet.Status.String(),
		Amount:    bet.Payout.Int64(),
		Error:     operationError,
	})
	return bet, operationError
}

// resolveResult checks the race is settleable and folds a catalog
// cancellation into the result.
func (processor *SettlementProcessor) resolveResult(ctx context.Context, result RaceResult) (RaceResult, error) {
	race, err := processor.catalog.LookupRace(ctx, result.RaceID)
	if err != nil {
		return RaceResult{}, err
	}
	return applyRaceStatus(result, race.Status)
}

func applyRaceStatus(result RaceResult, status RaceStatus) (RaceResult, error) {
	switch status {
	case RaceStatusCancelled:
		result.Cancelled = true
	case RaceStatusFinished:
	default:
		return RaceResult{}, fmt.Errorf("%w: race %s is %s", ErrRaceNotSettleable, result.RaceID.String(), status)
	}
	if !result.Cancelled && len(result.FinishingOrder) == 0 {
		return RaceResult{}, fmt.Errorf("%w: finishing order is required", ErrInvalidRaceResult)
	}
	return result, nil
}

// settleBet performs the Pending to terminal transition under the account
// lock. skipped is true when the bet was already terminal.
func (processor *SettlementProcessor) settleBet(ctx context.Context, accountID AccountID, betID BetID, result RaceResult) (Bet, bool, error) {
	var (
		settled Bet
		skipped bool
	)
	err := processor.ledger.withLockedAccount(ctx, accountID, func(ctx context.Context, txStore Store, account *Account) error {
		bet, err := txStore.GetBet(ctx, accountID, betID)
		if err != nil {
			return err
		}
		if bet.Status.IsTerminal() {
			settled = bet
			skipped = true
			return nil
		}
		now := processor.ledger.clock().UTC()
		status, payout := processor.outcome(bet, result)
		key := idempotencyKey(idempotencyPrefixSettle, bet.ID.String())
		switch status {
		case BetStatusRefunded:
			account.TotalEarned += payout
			if _, err := processor.ledger.post(ctx, txStore, account, posting{
				kind:           EntryKindEarn,
				delta:          payout.Int64(),
				reason:         reasonBetRefunded,
				relatedBetID:   &bet.ID,
				idempotencyKey: key,
			}); err != nil {
				return err
			}
		case BetStatusWon:
			account.TotalWins++
			account.TotalEarned += payout
			account.refreshWinRate()
			if _, err := processor.ledger.post(ctx, txStore, account, posting{
				kind:           EntryKindEarn,
				delta:          payout.Int64(),
				reason:         fmt.Sprintf(reasonBetWon, bet.Type),
				relatedBetID:   &bet.ID,
				idempotencyKey: key,
			}); err != nil {
				return err
			}
		}
		if err := txStore.UpdateBetOutcome(ctx, BetOutcome{
			BetID:     bet.ID,
			AccountID: accountID,
			Status:    status,
			Payout:    payout,
			SettledAt: now,
		}); err != nil {
			return err
		}
		bet.Status = status
		bet.Payout = payout
		bet.SettledAt = &now
		settled = bet
		return nil
	})
	if err != nil {
		return Bet{}, false, err
	}
	if !skipped {
		processor.ledger.publishBetSettled(ctx, settled)
	}
	return settled, skipped, nil
}

func (processor *SettlementProcessor) outcome(bet Bet, result RaceResult) (BetStatus, Coins) {
	if result.Cancelled {
		return BetStatusRefunded, bet.Amount.Coins()
	}
	if result.Matches(bet.Type, bet.Selections, processor.rules.PlacePositions) {
		return BetStatusWon, bet.Odds.Payout(bet.Amount)
	}
	return BetStatusLost, 0
}
