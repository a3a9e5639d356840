package ledger

const (
	OperationCredit            = "credit"
	OperationDebit             = "debit"
	OperationPlaceBet          = "place_bet"
	OperationSettleBet         = "settle_bet"
	OperationSettleRace        = "settle_race"
	OperationRegistrationBonus = "registration_bonus"
	OperationLoginBonus        = "login_bonus"
	OperationAdBonus           = "ad_bonus"
	OperationPublishEvent      = "publish_event"
	OperationSetPremium        = "set_premium"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	idempotencyKeyDelimiter   = ":"
	idempotencyPrefixCredit   = "credit"
	idempotencyPrefixDebit    = "debit"
	idempotencyPrefixBet      = "bet"
	idempotencyPrefixSettle   = "settle"
	idempotencyPrefixRegister = "registration"
	idempotencyPrefixLogin    = "login"
	idempotencyPrefixAdView   = "ad"
	reasonBetPlaced           = "bet placed (%s)"
	reasonBetWon              = "bet won (%s)"
	reasonBetRefunded         = "bet refunded: race cancelled"
	reasonRegistrationBonus   = "registration bonus"
	reasonLoginBonus          = "login bonus (%d consecutive days)"
	reasonAdViewBonus         = "ad view bonus"
	defaultEntryListLimit     = 50
	maxEntryListLimit         = 100
	defaultBetListLimit       = 20
	maxBetListLimit           = 100
)
