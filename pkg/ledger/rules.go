package ledger

import "fmt"

// Rules holds the game economy settings.
type Rules struct {
	InitialCoins     int64 `mapstructure:"initial_coins" yaml:"initial_coins" validate:"gt=0"`
	DailyBonus       int64 `mapstructure:"daily_bonus" yaml:"daily_bonus" validate:"gt=0"`
	Bonus3           int64 `mapstructure:"bonus_3_days" yaml:"bonus_3_days" validate:"gte=0"`
	Bonus7           int64 `mapstructure:"bonus_7_days" yaml:"bonus_7_days" validate:"gte=0"`
	Bonus14          int64 `mapstructure:"bonus_14_days" yaml:"bonus_14_days" validate:"gte=0"`
	Bonus30          int64 `mapstructure:"bonus_30_days" yaml:"bonus_30_days" validate:"gte=0"`
	AdViewBonus      int64 `mapstructure:"ad_view_bonus" yaml:"ad_view_bonus" validate:"gt=0"`
	MaxAdViewsPerDay int   `mapstructure:"max_ad_views_per_day" yaml:"max_ad_views_per_day" validate:"gte=0"`
	MinBet           int64 `mapstructure:"min_bet" yaml:"min_bet" validate:"gt=0"`
	MaxBet           int64 `mapstructure:"max_bet" yaml:"max_bet" validate:"gtefield=MinBet"`
	PremiumMaxBet    int64 `mapstructure:"premium_max_bet" yaml:"premium_max_bet" validate:"gtefield=MaxBet"`
	PlacePositions   int   `mapstructure:"place_positions" yaml:"place_positions" validate:"gte=1"`
}

// DefaultRules returns the production economy.
func DefaultRules() Rules {
	return Rules{
		InitialCoins:     10000,
		DailyBonus:       100,
		Bonus3:           50,
		Bonus7:           200,
		Bonus14:          500,
		Bonus30:          2000,
		AdViewBonus:      50,
		MaxAdViewsPerDay: 5,
		MinBet:           10,
		MaxBet:           10000,
		PremiumMaxBet:    50000,
		PlacePositions:   3,
	}
}

// Validate checks the relationships engines rely on.
func (rules Rules) Validate() error {
	if rules.InitialCoins <= 0 {
		return fmt.Errorf("%w: initial coins must be positive", ErrInvalidRules)
	}
	if rules.DailyBonus <= 0 {
		return fmt.Errorf("%w: daily bonus must be positive", ErrInvalidRules)
	}
	if rules.Bonus3 < 0 || rules.Bonus7 < 0 || rules.Bonus14 < 0 || rules.Bonus30 < 0 {
		return fmt.Errorf("%w: streak bonuses must not be negative", ErrInvalidRules)
	}
	if rules.AdViewBonus <= 0 {
		return fmt.Errorf("%w: ad view bonus must be positive", ErrInvalidRules)
	}
	if rules.MaxAdViewsPerDay < 0 {
		return fmt.Errorf("%w: max ad views must not be negative", ErrInvalidRules)
	}
	if rules.MinBet <= 0 || rules.MaxBet < rules.MinBet || rules.PremiumMaxBet < rules.MaxBet {
		return fmt.Errorf("%w: bet limits must satisfy 0 < min <= max <= premium max", ErrInvalidRules)
	}
	if rules.PlacePositions < 1 {
		return fmt.Errorf("%w: place positions must be at least 1", ErrInvalidRules)
	}
	return nil
}

// StreakBonus returns the tier bonus for a login streak. Tiers do not stack.
func (rules Rules) StreakBonus(streak int) int64 {
	switch {
	case streak >= 30:
		return rules.Bonus30
	case streak >= 14:
		return rules.Bonus14
	case streak >= 7:
		return rules.Bonus7
	case streak >= 3:
		return rules.Bonus3
	default:
		return 0
	}
}

// MaxBetFor returns the stake ceiling for an account.
func (rules Rules) MaxBetFor(premium bool) int64 {
	if premium {
		return rules.PremiumMaxBet
	}
	return rules.MaxBet
}
