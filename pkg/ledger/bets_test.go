package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPlaceWinBetDebitsStakeAndSnapshotsOdds(test *testing.T) {
	test.Parallel()
	race := bettingRace(test, raceIDValue, "1.8", "3.2")
	harness := newTestHarness(test, race)
	ctx := context.Background()
	accountID := harness.registerAccount(test, accountIDValue, 10000)

	bet, err := harness.bets.PlaceBet(ctx, PlaceBetInput{
		AccountID:  accountID,
		RaceID:     race.ID,
		BetType:    "win",
		Selections: []int{2},
		Amount:     500,
	})
	if err != nil {
		test.Fatalf("place bet failed: %v", err)
	}
	if bet.Status != BetStatusPending || !bet.Odds.Equal(mustOdds(test, "3.2")) || bet.Amount != 500 {
		test.Fatalf("unexpected bet %+v", bet)
	}
	account := harness.account(test, accountID)
	if account.Balance != 9500 {
		test.Fatalf("expected balance 9500, got %d", account.Balance)
	}
	if account.TotalBetsPlaced != 1 || account.TotalSpent != 500 {
		test.Fatalf("unexpected counters %+v", account)
	}
	entries, err := harness.ledger.ListEntries(ctx, accountID, EntryFilter{Kind: EntryKindSpend, Limit: 1})
	if err != nil || len(entries) != 1 {
		test.Fatalf("expected spend entry, got %+v %v", entries, err)
	}
	if entries[0].Delta != -500 || entries[0].RelatedBetID == nil || *entries[0].RelatedBetID != bet.ID {
		test.Fatalf("unexpected spend entry %+v", entries[0])
	}
	stored, err := harness.bets.GetBet(ctx, accountID, bet.ID)
	if err != nil || stored.Status != BetStatusPending {
		test.Fatalf("expected stored pending bet, got %+v %v", stored, err)
	}
	if len(harness.publisher.placed) != 1 {
		test.Fatalf("expected one bet_placed event, got %d", len(harness.publisher.placed))
	}
}

func TestPlacePlaceBetUsesDerivedOdds(test *testing.T) {
	test.Parallel()
	race := bettingRace(test, raceIDValue, "9.0")
	harness := newTestHarness(test, race)
	accountID := harness.registerAccount(test, accountIDValue, 10000)

	bet, err := harness.bets.PlaceBet(context.Background(), PlaceBetInput{
		AccountID:  accountID,
		RaceID:     race.ID,
		BetType:    "place",
		Selections: []int{1},
		Amount:     100,
	})
	if err != nil {
		test.Fatalf("place bet failed: %v", err)
	}
	if !bet.Odds.Decimal().Equal(decimalOf(test, "3.0")) {
		test.Fatalf("expected odds 3.0, got %s", bet.Odds)
	}
}

func TestPlaceBetValidationOrder(test *testing.T) {
	test.Parallel()
	open := bettingRace(test, raceIDValue, "2.0", "3.0", "4.0")
	closed := bettingRace(test, "race-closed", "2.0")
	closed.Status = RaceStatusRunning

	testCases := []struct {
		name    string
		balance int64
		input   func(accountID AccountID) PlaceBetInput
		wantErr error
	}{
		{
			name:    "bet type checked before selections and amount",
			balance: 10000,
			input: func(accountID AccountID) PlaceBetInput {
				return PlaceBetInput{AccountID: accountID, RaceID: mustRaceID(test, "missing"), BetType: "show", Selections: []int{1, 2}, Amount: 1}
			},
			wantErr: ErrInvalidBetType,
		},
		{
			name:    "selection count checked before amount",
			balance: 10000,
			input: func(accountID AccountID) PlaceBetInput {
				return PlaceBetInput{AccountID: accountID, RaceID: mustRaceID(test, "missing"), BetType: "exacta", Selections: []int{1}, Amount: 1}
			},
			wantErr: ErrSelectionCountMismatch,
		},
		{
			name:    "amount below minimum checked before race",
			balance: 10000,
			input: func(accountID AccountID) PlaceBetInput {
				return PlaceBetInput{AccountID: accountID, RaceID: mustRaceID(test, "missing"), BetType: "win", Selections: []int{1}, Amount: 9}
			},
			wantErr: ErrAmountOutOfRange,
		},
		{
			name:    "amount above maximum for standard account",
			balance: 60000,
			input: func(accountID AccountID) PlaceBetInput {
				return PlaceBetInput{AccountID: accountID, RaceID: open.ID, BetType: "win", Selections: []int{1}, Amount: 10001}
			},
			wantErr: ErrAmountOutOfRange,
		},
		{
			name:    "unknown race checked before balance",
			balance: 10,
			input: func(accountID AccountID) PlaceBetInput {
				return PlaceBetInput{AccountID: accountID, RaceID: mustRaceID(test, "missing"), BetType: "win", Selections: []int{1}, Amount: 500}
			},
			wantErr: ErrRaceNotFound,
		},
		{
			name:    "closed race checked before balance",
			balance: 10,
			input: func(accountID AccountID) PlaceBetInput {
				return PlaceBetInput{AccountID: accountID, RaceID: closed.ID, BetType: "win", Selections: []int{1}, Amount: 500}
			},
			wantErr: ErrRaceNotOpenForBetting,
		},
		{
			name:    "horse not entered",
			balance: 10000,
			input: func(accountID AccountID) PlaceBetInput {
				return PlaceBetInput{AccountID: accountID, RaceID: open.ID, BetType: "win", Selections: []int{9}, Amount: 500}
			},
			wantErr: ErrUnknownHorse,
		},
		{
			name:    "multi selection odds unsupported",
			balance: 10000,
			input: func(accountID AccountID) PlaceBetInput {
				return PlaceBetInput{AccountID: accountID, RaceID: open.ID, BetType: "trifecta", Selections: []int{1, 2, 3}, Amount: 500}
			},
			wantErr: ErrOddsUnsupported,
		},
		{
			name:    "insufficient balance last",
			balance: 499,
			input: func(accountID AccountID) PlaceBetInput {
				return PlaceBetInput{AccountID: accountID, RaceID: open.ID, BetType: "win", Selections: []int{1}, Amount: 500}
			},
			wantErr: ErrInsufficientFunds,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			harness := newTestHarness(test, open, closed)
			accountID := harness.registerAccount(test, accountIDValue, testCase.balance)
			entriesBefore := harness.store.entryCount(accountID)

			_, err := harness.bets.PlaceBet(context.Background(), testCase.input(accountID))
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
			account := harness.account(test, accountID)
			if account.Balance.Int64() != testCase.balance || account.TotalBetsPlaced != 0 {
				test.Fatalf("rejected bet changed the account: %+v", account)
			}
			if harness.store.betCount() != 0 || harness.store.entryCount(accountID) != entriesBefore {
				test.Fatalf("rejected bet left rows behind")
			}
			if len(harness.publisher.placed) != 0 {
				test.Fatalf("rejected bet must not be published")
			}
		})
	}
}

func TestPremiumAccountsHaveHigherLimit(test *testing.T) {
	test.Parallel()
	race := bettingRace(test, raceIDValue, "2.0")
	harness := newTestHarness(test, race)
	ctx := context.Background()
	accountID := harness.registerAccount(test, accountIDValue, 60000)
	input := PlaceBetInput{AccountID: accountID, RaceID: race.ID, BetType: "win", Selections: []int{1}, Amount: 50000}
	if _, err := harness.bets.PlaceBet(ctx, input); !errors.Is(err, ErrAmountOutOfRange) {
		test.Fatalf("expected standard ceiling to reject 50000, got %v", err)
	}
	account, err := harness.ledger.SetPremium(ctx, accountID, true)
	if err != nil || !account.IsPremium {
		test.Fatalf("set premium failed: %+v %v", account, err)
	}
	if harness.logger.last().Operation != OperationSetPremium {
		test.Fatalf("expected set_premium log, got %+v", harness.logger.last())
	}
	if _, err := harness.bets.PlaceBet(ctx, input); err != nil {
		test.Fatalf("premium bet failed: %v", err)
	}
	input.Amount = 50001
	if _, err := harness.bets.PlaceBet(ctx, input); !errors.Is(err, ErrAmountOutOfRange) {
		test.Fatalf("expected ErrAmountOutOfRange, got %v", err)
	}
}

func TestPlaceBetIsAtomicWhenBetInsertFails(test *testing.T) {
	test.Parallel()
	race := bettingRace(test, raceIDValue, "2.0")
	harness := newTestHarness(test, race)
	accountID := harness.registerAccount(test, accountIDValue, 10000)
	entriesBefore := harness.store.entryCount(accountID)
	harness.store.insertBetError = errStoreFailure

	_, err := harness.bets.PlaceBet(context.Background(), PlaceBetInput{
		AccountID: accountID, RaceID: race.ID, BetType: "win", Selections: []int{1}, Amount: 100,
	})
	if !errors.Is(err, errStoreFailure) {
		test.Fatalf("expected store failure, got %v", err)
	}
	account := harness.account(test, accountID)
	if account.Balance != 10000 || account.TotalBetsPlaced != 0 || account.TotalSpent != 0 {
		test.Fatalf("debit survived failed bet insert: %+v", account)
	}
	if harness.store.entryCount(accountID) != entriesBefore {
		test.Fatalf("spend entry survived failed bet insert")
	}
}

func TestPlaceBetRespectsBettingWindow(test *testing.T) {
	test.Parallel()
	race := bettingRace(test, raceIDValue, "2.0")
	harness := newTestHarness(test)
	race.BettingClosesAt = harness.clock.Now().Add(-time.Minute)
	harness.catalog.races[race.ID.String()] = race
	accountID := harness.registerAccount(test, accountIDValue, 10000)

	_, err := harness.bets.PlaceBet(context.Background(), PlaceBetInput{
		AccountID: accountID, RaceID: race.ID, BetType: "win", Selections: []int{1}, Amount: 100,
	})
	if !errors.Is(err, ErrRaceNotOpenForBetting) {
		test.Fatalf("expected ErrRaceNotOpenForBetting, got %v", err)
	}
}

func TestListBetsFiltersByStatusAndRace(test *testing.T) {
	test.Parallel()
	first := bettingRace(test, raceIDValue, "2.0")
	second := bettingRace(test, "race-2", "2.0")
	harness := newTestHarness(test, first, second)
	ctx := context.Background()
	accountID := harness.registerAccount(test, accountIDValue, 10000)
	for _, race := range []Race{first, second, second} {
		if _, err := harness.bets.PlaceBet(ctx, PlaceBetInput{
			AccountID: accountID, RaceID: race.ID, BetType: "win", Selections: []int{1}, Amount: 10,
		}); err != nil {
			test.Fatalf("place bet failed: %v", err)
		}
	}
	bets, err := harness.bets.ListBets(ctx, accountID, BetFilter{RaceID: second.ID, Status: BetStatusPending})
	if err != nil || len(bets) != 2 {
		test.Fatalf("expected 2 bets on race-2, got %d %v", len(bets), err)
	}
	if _, err := harness.bets.ListBets(ctx, accountID, BetFilter{Status: BetStatus("void")}); !errors.Is(err, ErrInvalidBetStatus) {
		test.Fatalf("expected ErrInvalidBetStatus, got %v", err)
	}
	if _, err := harness.bets.ListBets(ctx, accountID, BetFilter{Limit: 101}); !errors.Is(err, ErrInvalidListFilter) {
		test.Fatalf("expected ErrInvalidListFilter, got %v", err)
	}
	other := harness.registerAccount(test, otherAccountIDValue, 10000)
	if _, err := harness.bets.GetBet(ctx, other, bets[0].ID); !errors.Is(err, ErrUnknownBet) {
		test.Fatalf("expected ErrUnknownBet for foreign bet, got %v", err)
	}
}

func TestPlaceBetRejectedWhenRaceSettlesBeforeCommit(test *testing.T) {
	test.Parallel()
	race := bettingRace(test, raceIDValue, "2.0", "3.2")
	harness := newTestHarness(test, race)
	ctx := context.Background()
	accountID := harness.registerAccount(test, accountIDValue, 10000)

	var (
		report    SettlementReport
		settleErr error
	)
	// The engine has already read the race as Betting when it finishes and settles.
	harness.catalog.afterLookup = func() {
		harness.catalog.setStatus(race.ID, RaceStatusFinished)
		report, settleErr = harness.settlement.SettleRace(ctx, mustRaceResult(test, race.ID, []int{2, 1}, false))
	}

	_, err := harness.bets.PlaceBet(ctx, PlaceBetInput{
		AccountID: accountID, RaceID: race.ID, BetType: "win", Selections: []int{2}, Amount: 500,
	})
	if settleErr != nil || report.Won+report.Lost+report.Refunded != 0 {
		test.Fatalf("unexpected settlement %+v %v", report, settleErr)
	}
	if !errors.Is(err, ErrRaceNotOpenForBetting) {
		test.Fatalf("expected ErrRaceNotOpenForBetting, got %v", err)
	}
	if harness.store.betCount() != 0 {
		test.Fatalf("a pending bet was left on a settled race")
	}
	if account := harness.account(test, accountID); account.Balance != 10000 || account.TotalBetsPlaced != 0 {
		test.Fatalf("stake was debited for a rejected bet: %+v", account)
	}
}

func TestPlaceBetAndSettlementTakeRaceLocks(test *testing.T) {
	test.Parallel()
	race := bettingRace(test, raceIDValue, "2.0")
	harness := newTestHarness(test, race)
	ctx := context.Background()
	accountID := harness.registerAccount(test, accountIDValue, 10000)

	if _, err := harness.bets.PlaceBet(ctx, PlaceBetInput{
		AccountID: accountID, RaceID: race.ID, BetType: "win", Selections: []int{1}, Amount: 100,
	}); err != nil {
		test.Fatalf("place bet failed: %v", err)
	}
	harness.catalog.setStatus(race.ID, RaceStatusFinished)
	if _, err := harness.settlement.SettleRace(ctx, mustRaceResult(test, race.ID, []int{1}, false)); err != nil {
		test.Fatalf("settle failed: %v", err)
	}
	locks := harness.store.raceLocks
	if len(locks) != 2 || locks[0] != RaceLockShare || locks[1] != RaceLockUpdate {
		test.Fatalf("expected share then update race locks, got %v", locks)
	}
}
