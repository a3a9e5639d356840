package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestRegistrationBonusOncePerAccount(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	ctx := context.Background()
	accountID := mustAccountID(test, accountIDValue)

	today := mustDay(test, "2026-04-05")

	result, err := harness.bonuses.ClaimRegistrationBonus(ctx, accountID, today)
	if err != nil {
		test.Fatalf("registration failed: %v", err)
	}
	if result.Amount != 10000 || result.Account.Balance != 10000 {
		test.Fatalf("unexpected registration result %+v", result)
	}
	_, err = harness.bonuses.ClaimRegistrationBonus(ctx, accountID, today)
	if !errors.Is(err, ErrAccountExists) || !IsAlreadyClaimed(err) {
		test.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if Category(err) != CategoryConflict {
		test.Fatalf("expected conflict category, got %s", Category(err))
	}
	if harness.account(test, accountID).Balance != 10000 || harness.store.entryCount(accountID) != 1 {
		test.Fatalf("second registration changed the ledger")
	}
}

func TestRegistrationCountsAsFirstLogin(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	ctx := context.Background()
	accountID := mustAccountID(test, accountIDValue)
	today := mustDay(test, "2026-04-05")

	result, err := harness.bonuses.ClaimRegistrationBonus(ctx, accountID, today)
	if err != nil {
		test.Fatalf("registration failed: %v", err)
	}
	if result.Account.ConsecutiveLoginDays != 1 || !result.Account.LastLoginDay.Equal(today) {
		test.Fatalf("expected registration day recorded as login, got %+v", result.Account)
	}
	stored := harness.account(test, accountID)
	if stored.ConsecutiveLoginDays != 1 || !stored.LastLoginDay.Equal(today) {
		test.Fatalf("login state not persisted with registration: %+v", stored)
	}

	_, err = harness.bonuses.ClaimLoginBonus(ctx, accountID, today)
	if !errors.Is(err, ErrBonusAlreadyClaimed) {
		test.Fatalf("expected ErrBonusAlreadyClaimed on registration day, got %v", err)
	}
	if harness.account(test, accountID).Balance != 10000 || harness.store.entryCount(accountID) != 1 {
		test.Fatalf("same-day login changed the ledger")
	}

	next, err := harness.bonuses.ClaimLoginBonus(ctx, accountID, mustDay(test, "2026-04-06"))
	if err != nil {
		test.Fatalf("next day login failed: %v", err)
	}
	if next.ConsecutiveDay != 2 || next.Amount != 100 || next.Balance != 10100 {
		test.Fatalf("expected streak day 2, got %+v", next)
	}
}

func TestRegistrationRequiresDay(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	_, err := harness.bonuses.ClaimRegistrationBonus(context.Background(), mustAccountID(test, accountIDValue), CalendarDay{})
	if !errors.Is(err, ErrInvalidCalendarDay) {
		test.Fatalf("expected ErrInvalidCalendarDay, got %v", err)
	}
	if harness.store.entryCount(mustAccountID(test, accountIDValue)) != 0 {
		test.Fatalf("rejected registration appended an entry")
	}
}

func TestLoginBonusStreaks(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	ctx := context.Background()
	accountID := harness.registerAccount(test, accountIDValue, 10000)

	steps := []struct {
		day        string
		wantStreak int
		wantAmount Coins
	}{
		{day: "2026-04-01", wantStreak: 1, wantAmount: 100},
		{day: "2026-04-02", wantStreak: 2, wantAmount: 100},
		{day: "2026-04-03", wantStreak: 3, wantAmount: 150},
		{day: "2026-04-06", wantStreak: 1, wantAmount: 100},
	}
	expectedBalance := Coins(10000)
	for _, step := range steps {
		result, err := harness.bonuses.ClaimLoginBonus(ctx, accountID, mustDay(test, step.day))
		if err != nil {
			test.Fatalf("%s: login bonus failed: %v", step.day, err)
		}
		expectedBalance += step.wantAmount
		if result.ConsecutiveDay != step.wantStreak || result.Amount != step.wantAmount || result.Balance != expectedBalance {
			test.Fatalf("%s: unexpected result %+v", step.day, result)
		}
	}
	account := harness.account(test, accountID)
	if account.ConsecutiveLoginDays != 1 || !account.LastLoginDay.Equal(mustDay(test, "2026-04-06")) {
		test.Fatalf("unexpected login state %+v", account)
	}
}

func TestLoginBonusGapResetsStreak(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	ctx := context.Background()
	accountID := harness.registerAccount(test, accountIDValue, 10000)
	if _, err := harness.bonuses.ClaimLoginBonus(ctx, accountID, mustDay(test, "2026-04-01")); err != nil {
		test.Fatalf("day 1 failed: %v", err)
	}
	result, err := harness.bonuses.ClaimLoginBonus(ctx, accountID, mustDay(test, "2026-04-04"))
	if err != nil {
		test.Fatalf("day 4 failed: %v", err)
	}
	if result.ConsecutiveDay != 1 || result.StreakBonus != 0 {
		test.Fatalf("expected streak reset, got %+v", result)
	}
}

func TestLoginBonusRejectsSameDayClaim(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	ctx := context.Background()
	accountID := harness.registerAccount(test, accountIDValue, 10000)
	today := mustDay(test, "2026-04-05")
	if _, err := harness.bonuses.ClaimLoginBonus(ctx, accountID, today); err != nil {
		test.Fatalf("first claim failed: %v", err)
	}
	entries := harness.store.entryCount(accountID)
	_, err := harness.bonuses.ClaimLoginBonus(ctx, accountID, today)
	if !errors.Is(err, ErrBonusAlreadyClaimed) || !IsAlreadyClaimed(err) {
		test.Fatalf("expected ErrBonusAlreadyClaimed, got %v", err)
	}
	if _, err := harness.bonuses.ClaimLoginBonus(ctx, accountID, mustDay(test, "2026-04-04")); !errors.Is(err, ErrBonusAlreadyClaimed) {
		test.Fatalf("expected earlier day to be rejected, got %v", err)
	}
	if harness.store.entryCount(accountID) != entries {
		test.Fatalf("rejected claim appended an entry")
	}
	if harness.logger.last().Status != operationStatusError {
		test.Fatalf("expected rejected claim logged as error")
	}
}

func TestLoginBonusPaysHighestTierOnly(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	ctx := context.Background()
	accountID := harness.registerAccount(test, accountIDValue, 10000)
	account := harness.account(test, accountID)
	account.ConsecutiveLoginDays = 29
	account.LastLoginDay = mustDay(test, "2026-04-04")
	if err := harness.store.UpdateAccount(ctx, account); err != nil {
		test.Fatalf("update account: %v", err)
	}
	result, err := harness.bonuses.ClaimLoginBonus(ctx, accountID, mustDay(test, "2026-04-05"))
	if err != nil {
		test.Fatalf("login bonus failed: %v", err)
	}
	if result.ConsecutiveDay != 30 || result.StreakBonus != 2000 || result.Amount != 2100 {
		test.Fatalf("unexpected 30 day result %+v", result)
	}
}

func TestLoginBonusRequiresDay(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	accountID := harness.registerAccount(test, accountIDValue, 10000)
	if _, err := harness.bonuses.ClaimLoginBonus(context.Background(), accountID, CalendarDay{}); !errors.Is(err, ErrInvalidCalendarDay) {
		test.Fatalf("expected ErrInvalidCalendarDay, got %v", err)
	}
	if _, err := harness.bonuses.ClaimLoginBonus(context.Background(), mustAccountID(test, "ghost"), mustDay(test, "2026-04-05")); !errors.Is(err, ErrUnknownAccount) {
		test.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestAdBonusDailyCap(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	ctx := context.Background()
	accountID := harness.registerAccount(test, accountIDValue, 10000)
	today := mustDay(test, "2026-04-05")

	for view := 1; view <= 5; view++ {
		result, err := harness.bonuses.ClaimAdBonus(ctx, accountID, today)
		if err != nil {
			test.Fatalf("view %d failed: %v", view, err)
		}
		if result.Amount != 50 || result.RemainingViews != 5-view || result.Balance != Coins(10000+50*view) {
			test.Fatalf("view %d: unexpected result %+v", view, result)
		}
	}
	_, err := harness.bonuses.ClaimAdBonus(ctx, accountID, today)
	if !errors.Is(err, ErrAdViewLimitReached) || !IsAlreadyClaimed(err) {
		test.Fatalf("expected ErrAdViewLimitReached, got %v", err)
	}
	remaining, err := harness.bonuses.RemainingAdViews(ctx, accountID, today)
	if err != nil || remaining != 0 {
		test.Fatalf("expected 0 remaining views, got %d %v", remaining, err)
	}

	tomorrow := today.AddDays(1)
	remaining, err = harness.bonuses.RemainingAdViews(ctx, accountID, tomorrow)
	if err != nil || remaining != 5 {
		test.Fatalf("expected 5 views tomorrow, got %d %v", remaining, err)
	}
	result, err := harness.bonuses.ClaimAdBonus(ctx, accountID, tomorrow)
	if err != nil || result.RemainingViews != 4 {
		test.Fatalf("expected cap reset next day, got %+v %v", result, err)
	}
	if harness.account(test, accountID).Balance != 10300 {
		test.Fatalf("expected balance 10300, got %d", harness.account(test, accountID).Balance)
	}
}
