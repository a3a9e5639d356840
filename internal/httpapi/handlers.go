package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleProfile(ctx *gin.Context) {
	accountID, ok := handler.accountID(ctx)
	if !ok {
		return
	}
	account, err := handler.services.Ledger.Account(ctx.Request.Context(), accountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": newAccountPayload(account)})
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	accountID, ok := handler.accountID(ctx)
	if !ok {
		return
	}
	balance, err := handler.services.Ledger.Balance(ctx.Request.Context(), accountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"coins": balance.Int64()})
}

func (handler *httpHandler) handleRegisterBonus(ctx *gin.Context) {
	accountID, ok := handler.accountID(ctx)
	if !ok {
		return
	}
	result, err := handler.services.Bonuses.ClaimRegistrationBonus(ctx.Request.Context(), accountID, handler.today())
	if errors.Is(err, ledger.ErrAccountExists) {
		balance, balanceErr := handler.services.Ledger.Balance(ctx.Request.Context(), accountID)
		if balanceErr != nil {
			handler.respondError(ctx, balanceErr)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"message":       "User already registered",
			"coins":         balance.Int64(),
			"bonus_claimed": false,
		})
		return
	}
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":       "Registration bonus claimed",
		"coins":         result.Account.Balance.Int64(),
		"bonus":         result.Amount.Int64(),
		"bonus_claimed": true,
	})
}

func (handler *httpHandler) handleLoginBonus(ctx *gin.Context) {
	accountID, ok := handler.accountID(ctx)
	if !ok {
		return
	}
	result, err := handler.services.Bonuses.ClaimLoginBonus(ctx.Request.Context(), accountID, handler.today())
	if errors.Is(err, ledger.ErrBonusAlreadyClaimed) {
		account, accountErr := handler.services.Ledger.Account(ctx.Request.Context(), accountID)
		if accountErr != nil {
			handler.respondError(ctx, accountErr)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"message":          "Login bonus already claimed today",
			"coins":            account.Balance.Int64(),
			"bonus_claimed":    false,
			"consecutive_days": account.ConsecutiveLoginDays,
		})
		return
	}
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":          fmt.Sprintf("Login bonus (%d consecutive days)", result.ConsecutiveDay),
		"coins":            result.Balance.Int64(),
		"bonus":            result.Amount.Int64(),
		"streak_bonus":     result.StreakBonus.Int64(),
		"bonus_claimed":    true,
		"consecutive_days": result.ConsecutiveDay,
	})
}

func (handler *httpHandler) handleAdBonus(ctx *gin.Context) {
	accountID, ok := handler.accountID(ctx)
	if !ok {
		return
	}
	result, err := handler.services.Bonuses.ClaimAdBonus(ctx.Request.Context(), accountID, handler.today())
	if errors.Is(err, ledger.ErrAdViewLimitReached) {
		balance, balanceErr := handler.services.Ledger.Balance(ctx.Request.Context(), accountID)
		if balanceErr != nil {
			handler.respondError(ctx, balanceErr)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"message":         "Daily ad view limit reached",
			"coins":           balance.Int64(),
			"bonus_claimed":   false,
			"remaining_views": 0,
		})
		return
	}
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":         "Ad view bonus claimed",
		"coins":           result.Balance.Int64(),
		"bonus":           result.Amount.Int64(),
		"bonus_claimed":   true,
		"remaining_views": result.RemainingViews,
	})
}

func (handler *httpHandler) handleTransactions(ctx *gin.Context) {
	accountID, ok := handler.accountID(ctx)
	if !ok {
		return
	}
	var query transactionsQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidQuery, err.Error()))
		return
	}
	page := query.pageQuery.normalized()
	filter := ledger.EntryFilter{Limit: page.Limit, Offset: page.offset()}
	if query.Type != "" {
		kind, err := ledger.ParseEntryKind(query.Type)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Kind = kind
	}
	if query.StartDate != "" {
		since, err := time.Parse(dateLayout, query.StartDate)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidQuery, "start_date must be YYYY-MM-DD"))
			return
		}
		filter.Since = since
	}
	if query.EndDate != "" {
		until, err := time.Parse(dateLayout, query.EndDate)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidQuery, "end_date must be YYYY-MM-DD"))
			return
		}
		filter.Until = until.AddDate(0, 0, 1)
	}
	entries, err := handler.services.Ledger.ListEntries(ctx.Request.Context(), accountID, filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	transactions := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		transactions = append(transactions, newEntryPayload(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"pagination":   paginationPayload{Page: page.Page, Limit: page.Limit},
	})
}

func (handler *httpHandler) handlePlaceBet(ctx *gin.Context) {
	accountID, ok := handler.accountID(ctx)
	if !ok {
		return
	}
	var request placeBetRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, errorMessageInvalidPayload))
		return
	}
	var raceID ledger.RaceID
	if request.RaceID != "" {
		parsed, err := ledger.NewRaceID(request.RaceID)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		raceID = parsed
	}
	bet, err := handler.services.Bets.PlaceBet(ctx.Request.Context(), ledger.PlaceBetInput{
		AccountID:  accountID,
		RaceID:     raceID,
		BetType:    request.BetType,
		Selections: request.Selections,
		Amount:     request.Amount,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	balance, err := handler.services.Ledger.Balance(ctx.Request.Context(), accountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"bet":  bet.Record(),
		"user": gin.H{"coins": balance.Int64()},
	})
}

func (handler *httpHandler) handleListBets(ctx *gin.Context) {
	accountID, ok := handler.accountID(ctx)
	if !ok {
		return
	}
	var query betsQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidQuery, err.Error()))
		return
	}
	page := query.pageQuery.normalized()
	filter := ledger.BetFilter{Limit: page.Limit, Offset: page.offset()}
	if query.Status != "" {
		status, err := ledger.ParseBetStatus(query.Status)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Status = status
	}
	if query.RaceID != "" {
		raceID, err := ledger.NewRaceID(query.RaceID)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.RaceID = raceID
	}
	bets, err := handler.services.Bets.ListBets(ctx.Request.Context(), accountID, filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	records := make([]ledger.BetRecord, 0, len(bets))
	for _, bet := range bets {
		records = append(records, bet.Record())
	}
	ctx.JSON(http.StatusOK, gin.H{
		"bets":       records,
		"pagination": paginationPayload{Page: page.Page, Limit: page.Limit},
	})
}

func (handler *httpHandler) handleGetBet(ctx *gin.Context) {
	accountID, ok := handler.accountID(ctx)
	if !ok {
		return
	}
	betID, err := ledger.NewBetID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	bet, err := handler.services.Bets.GetBet(ctx.Request.Context(), accountID, betID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bet": bet.Record()})
}

func (handler *httpHandler) handleListRaces(ctx *gin.Context) {
	var status ledger.RaceStatus
	if raw := ctx.Query("status"); raw != "" {
		parsed, err := ledger.ParseRaceStatus(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		status = parsed
	}
	races, err := handler.services.Races.ListRaces(ctx.Request.Context(), status)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	records := make([]ledger.RaceRecord, 0, len(races))
	for _, race := range races {
		records = append(records, race.Record())
	}
	ctx.JSON(http.StatusOK, gin.H{"races": records})
}

func (handler *httpHandler) handleGetRace(ctx *gin.Context) {
	raceID, err := ledger.NewRaceID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	race, err := handler.services.Catalog.LookupRace(ctx.Request.Context(), raceID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"race": race.Record()})
}
