package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// BonusEngine awards registration, daily login and ad view bonuses.
type BonusEngine struct {
	ledger *Ledger
	rules  Rules
}

// RegistrationResult is returned by ClaimRegistrationBonus.
type RegistrationResult struct {
	Account Account
	Amount  Coins
}

// LoginBonusResult is returned by ClaimLoginBonus.
type LoginBonusResult struct {
	Amount         Coins
	StreakBonus    Coins
	ConsecutiveDay int
	Balance        Coins
}

// AdBonusResult is returned by ClaimAdBonus.
type AdBonusResult struct {
	Amount         Coins
	Balance        Coins
	RemainingViews int
}

// NewBonusEngine wires a BonusEngine on top of ledger.
func NewBonusEngine(ledger *Ledger, rules Rules) (*BonusEngine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, err)
	}
	return &BonusEngine{ledger: ledger, rules: rules}, nil
}

// ClaimRegistrationBonus creates the account and credits the initial coins.
// Registering counts as the first login of today, so the streak starts at 1
// and a login claim on the same day fails with ErrBonusAlreadyClaimed.
// It succeeds once per account; later calls fail with ErrAccountExists.
func (engine *BonusEngine) ClaimRegistrationBonus(ctx context.Context, accountID AccountID, today CalendarDay) (RegistrationResult, error) {
	var result RegistrationResult
	operationError := func() error {
		if today.IsZero() {
			return fmt.Errorf("%w: today is unset", ErrInvalidCalendarDay)
		}
		unlock := engine.ledger.locker.Lock(accountID)
		defer unlock()
		return engine.ledger.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			now := engine.ledger.clock().UTC()
			account := Account{ID: accountID, CreatedAt: now, UpdatedAt: now}
			if err := txStore.CreateAccount(ctx, account); err != nil {
				return err
			}
			locked, err := txStore.LockAccount(ctx, accountID)
			if err != nil {
				return err
			}
			locked.LastLoginDay = today
			locked.ConsecutiveLoginDays = 1
			if _, err := engine.ledger.post(ctx, txStore, &locked, posting{
				kind:           EntryKindBonus,
				delta:          engine.rules.InitialCoins,
				reason:         reasonRegistrationBonus,
				idempotencyKey: idempotencyKey(idempotencyPrefixRegister, accountID.String()),
			}); err != nil {
				return err
			}
			result = RegistrationResult{Account: locked, Amount: Coins(engine.rules.InitialCoins)}
			return nil
		})
	}()
	engine.ledger.logOperation(ctx, OperationLog{
		Operation: OperationRegistrationBonus,
		AccountID: accountID,
		Kind:      EntryKindBonus.String(),
		Amount:    result.Amount.Int64(),
		Error:     operationError,
	})
	return result, operationError
}

// ClaimLoginBonus awards the daily bonus for today. A claim on the day after
// the previous claim extends the streak; any longer gap restarts it at 1.
// A second claim on the same day fails with ErrBonusAlreadyClaimed.
func (engine *BonusEngine) ClaimLoginBonus(ctx context.Context, accountID AccountID, today CalendarDay) (LoginBonusResult, error) {
	var result LoginBonusResult
	operationError := func() error {
		if today.IsZero() {
			return fmt.Errorf("%w: today is unset", ErrInvalidCalendarDay)
		}
		return engine.ledger.withLockedAccount(ctx, accountID, func(ctx context.Context, txStore Store, account *Account) error {
			streak := nextStreak(account.LastLoginDay, account.ConsecutiveLoginDays, today)
			if streak == 0 {
				return fmt.Errorf("%w: last login %s", ErrBonusAlreadyClaimed, account.LastLoginDay.String())
			}
			streakBonus := engine.rules.StreakBonus(streak)
			amount := engine.rules.DailyBonus + streakBonus
			account.ConsecutiveLoginDays = streak
			account.LastLoginDay = today
			if _, err := engine.ledger.post(ctx, txStore, account, posting{
				kind:           EntryKindBonus,
				delta:          amount,
				reason:         fmt.Sprintf(reasonLoginBonus, streak),
				idempotencyKey: idempotencyKey(idempotencyPrefixLogin, today.String()),
			}); err != nil {
				return err
			}
			result = LoginBonusResult{
				Amount:         Coins(amount),
				StreakBonus:    Coins(streakBonus),
				ConsecutiveDay: streak,
				Balance:        account.Balance,
			}
			return nil
		})
	}()
	engine.ledger.logOperation(ctx, OperationLog{
		Operation: OperationLoginBonus,
		AccountID: accountID,
		Kind:      EntryKindBonus.String(),
		Amount:    result.Amount.Int64(),
		Error:     operationError,
	})
	return result, operationError
}

// nextStreak returns the streak after a claim on today, or 0 when today was
// already claimed.
func nextStreak(lastLogin CalendarDay, current int, today CalendarDay) int {
	if lastLogin.IsZero() {
		return 1
	}
	switch gap := today.DaysSince(lastLogin); {
	case gap <= 0:
		return 0
	case gap == 1:
		return current + 1
	default:
		return 1
	}
}

// ClaimAdBonus awards AdViewBonus for one ad view, at most MaxAdViewsPerDay
// times per day. Further claims fail with ErrAdViewLimitReached.
func (engine *BonusEngine) ClaimAdBonus(ctx context.Context, accountID AccountID, today CalendarDay) (AdBonusResult, error) {
	var result AdBonusResult
	operationError := func() error {
		if today.IsZero() {
			return fmt.Errorf("%w: today is unset", ErrInvalidCalendarDay)
		}
		return engine.ledger.withLockedAccount(ctx, accountID, func(ctx context.Context, txStore Store, account *Account) error {
			viewsToday := 0
			if account.AdViewDay.Equal(today) {
				viewsToday = account.AdViewCount
			}
			if viewsToday >= engine.rules.MaxAdViewsPerDay {
				return fmt.Errorf("%w: %d of %d views used", ErrAdViewLimitReached, viewsToday, engine.rules.MaxAdViewsPerDay)
			}
			viewsToday++
			account.AdViewDay = today
			account.AdViewCount = viewsToday
			if _, err := engine.ledger.post(ctx, txStore, account, posting{
				kind:           EntryKindBonus,
				delta:          engine.rules.AdViewBonus,
				reason:         reasonAdViewBonus,
				idempotencyKey: idempotencyKey(idempotencyPrefixAdView, today.String(), strconv.Itoa(viewsToday)),
			}); err != nil {
				return err
			}
			result = AdBonusResult{
				Amount:         Coins(engine.rules.AdViewBonus),
				Balance:        account.Balance,
				RemainingViews: engine.rules.MaxAdViewsPerDay - viewsToday,
			}
			return nil
		})
	}()
	engine.ledger.logOperation(ctx, OperationLog{
		Operation: OperationAdBonus,
		AccountID: accountID,
		Kind:      EntryKindBonus.String(),
		Amount:    result.Amount.Int64(),
		Error:     operationError,
	})
	return result, operationError
}

// RemainingAdViews reports how many ad bonuses are still available today.
func (engine *BonusEngine) RemainingAdViews(ctx context.Context, accountID AccountID, today CalendarDay) (int, error) {
	account, err := engine.ledger.store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if !account.AdViewDay.Equal(today) {
		return engine.rules.MaxAdViewsPerDay, nil
	}
	remaining := engine.rules.MaxAdViewsPerDay - account.AdViewCount
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// IsAlreadyClaimed reports whether err means the bonus window is used up.
func IsAlreadyClaimed(err error) bool {
	return errors.Is(err, ErrBonusAlreadyClaimed) || errors.Is(err, ErrAdViewLimitReached) || errors.Is(err, ErrAccountExists)
}
