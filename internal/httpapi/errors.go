package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeUnauthorized        = "unauthorized"
	errorCodeInvalidPayload      = "invalid_payload"
	errorCodeInvalidQuery        = "invalid_query"
	errorCodeInvalidRequest      = "invalid_request"
	errorCodeInvalidBetType      = "invalid_bet_type"
	errorCodeSelectionCount      = "selection_count_mismatch"
	errorCodeInvalidSelection    = "invalid_selection"
	errorCodeUnknownHorse        = "unknown_horse"
	errorCodeAmountOutOfRange    = "amount_out_of_range"
	errorCodeBetTypeUnsupported  = "bet_type_unsupported"
	errorCodeAccountNotFound     = "account_not_registered"
	errorCodeBetNotFound         = "bet_not_found"
	errorCodeRaceNotFound        = "race_not_found"
	errorCodeNotFound            = "not_found"
	errorCodeRaceNotOpen         = "race_not_open"
	errorCodeConflict            = "conflict"
	errorCodeInsufficientFunds   = "insufficient_funds"
	errorCodeInternal            = "internal_error"
	errorMessageInternal         = "internal error"
	errorMessageInvalidPayload   = "expected JSON body"
	errorMessageAccountNotFound  = "claim the registration bonus first"
	errorMessageInsufficientCoin = "insufficient coins"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order; the first match wins. Category
// fallbacks follow in mapError.
var errorMappings = []errorMapping{
	{target: ledger.ErrInvalidBetType, status: http.StatusBadRequest, code: errorCodeInvalidBetType},
	{target: ledger.ErrSelectionCountMismatch, status: http.StatusBadRequest, code: errorCodeSelectionCount},
	{target: ledger.ErrInvalidSelection, status: http.StatusBadRequest, code: errorCodeInvalidSelection},
	{target: ledger.ErrUnknownHorse, status: http.StatusBadRequest, code: errorCodeUnknownHorse},
	{target: ledger.ErrAmountOutOfRange, status: http.StatusBadRequest, code: errorCodeAmountOutOfRange},
	{target: ledger.ErrOddsUnsupported, status: http.StatusBadRequest, code: errorCodeBetTypeUnsupported},
	{target: ledger.ErrUnknownAccount, status: http.StatusNotFound, code: errorCodeAccountNotFound},
	{target: ledger.ErrUnknownBet, status: http.StatusNotFound, code: errorCodeBetNotFound},
	{target: ledger.ErrRaceNotFound, status: http.StatusNotFound, code: errorCodeRaceNotFound},
	{target: ledger.ErrRaceNotOpenForBetting, status: http.StatusConflict, code: errorCodeRaceNotOpen},
	{target: ledger.ErrInsufficientFunds, status: http.StatusConflict, code: errorCodeInsufficientFunds},
}

// respondError writes the error envelope for err. Internal failures are
// logged and their details withheld from the client.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code, message := mapError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, message))
}

func mapError(err error) (int, string, string) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			return mapping.status, mapping.code, clientMessage(mapping.code, err)
		}
	}
	switch ledger.Category(err) {
	case ledger.CategoryValidation:
		return http.StatusBadRequest, errorCodeInvalidRequest, err.Error()
	case ledger.CategoryNotFound:
		return http.StatusNotFound, errorCodeNotFound, err.Error()
	case ledger.CategoryConflict:
		return http.StatusConflict, errorCodeConflict, err.Error()
	default:
		return http.StatusInternalServerError, errorCodeInternal, errorMessageInternal
	}
}

func clientMessage(code string, err error) string {
	switch code {
	case errorCodeAccountNotFound:
		return errorMessageAccountNotFound
	case errorCodeInsufficientFunds:
		return errorMessageInsufficientCoin
	default:
		return err.Error()
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
