package httpapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
)

const (
	defaultPageSize = 20
	dateLayout      = "2006-01-02"
)

// placeBetRequest is decoded without binding rules so the bet engine decides
// which check fails first.
type placeBetRequest struct {
	RaceID     string `json:"race_id"`
	BetType    string `json:"bet_type"`
	Selections []int  `json:"selections"`
	Amount     int64  `json:"amount"`
}

type pageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (query pageQuery) normalized() pageQuery {
	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = defaultPageSize
	}
	return query
}

func (query pageQuery) offset() int {
	return (query.Page - 1) * query.Limit
}

type transactionsQuery struct {
	pageQuery
	Type      string `form:"type"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

type betsQuery struct {
	pageQuery
	Status string `form:"status"`
	RaceID string `form:"race_id"`
}

type paginationPayload struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type accountPayload struct {
	ID                   string    `json:"id"`
	Coins                int64     `json:"coins"`
	TotalBets            int64     `json:"total_bets"`
	TotalWins            int64     `json:"total_wins"`
	TotalEarnings        int64     `json:"total_earnings"`
	TotalSpent           int64     `json:"total_spent"`
	Profit               int64     `json:"profit"`
	WinRate              float64   `json:"win_rate"`
	ConsecutiveLoginDays int       `json:"consecutive_login_days"`
	LastLoginDay         string    `json:"last_login_day,omitempty"`
	IsPremium            bool      `json:"is_premium"`
	CreatedAt            time.Time `json:"created_at"`
}

func newAccountPayload(account ledger.Account) accountPayload {
	payload := accountPayload{
		ID:                   account.ID.String(),
		Coins:                account.Balance.Int64(),
		TotalBets:            account.TotalBetsPlaced,
		TotalWins:            account.TotalWins,
		TotalEarnings:        account.TotalEarned.Int64(),
		TotalSpent:           account.TotalSpent.Int64(),
		Profit:               account.Profit(),
		WinRate:              account.WinRate,
		ConsecutiveLoginDays: account.ConsecutiveLoginDays,
		IsPremium:            account.IsPremium,
		CreatedAt:            account.CreatedAt,
	}
	if !account.LastLoginDay.IsZero() {
		payload.LastLoginDay = account.LastLoginDay.String()
	}
	return payload
}

type entryPayload struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	Balance      int64     `json:"balance"`
	Reason       string    `json:"reason"`
	RelatedBetID string    `json:"bet_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newEntryPayload(entry ledger.Entry) entryPayload {
	payload := entryPayload{
		ID:        entry.ID.String(),
		Type:      entry.Kind.String(),
		Amount:    entry.Delta,
		Balance:   entry.BalanceAfter.Int64(),
		Reason:    entry.Reason,
		CreatedAt: entry.CreatedAt,
	}
	if entry.RelatedBetID != nil {
		payload.RelatedBetID = entry.RelatedBetID.String()
	}
	return payload
}
