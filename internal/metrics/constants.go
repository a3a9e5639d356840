package metrics

// Metric names
const (
	MetricNameHTTPRequestsTotal    = "racecoin_http_requests_total"
	MetricNameHTTPRequestDuration  = "racecoin_http_request_duration_seconds"
	MetricNameHTTPRequestsInFlight = "racecoin_http_requests_in_flight"
	MetricNameBetsPlaced           = "racecoin_bets_placed_total"
	MetricNameBetsSettled          = "racecoin_bets_settled_total"
	MetricNameCoinsMoved           = "racecoin_coins_moved_total"
	MetricNameBonusClaims          = "racecoin_bonus_claims_total"
	MetricNameOperationErrors      = "racecoin_operation_errors_total"
)

// Help text
const (
	HelpTextHTTPRequestsTotal    = "Total number of HTTP requests"
	HelpTextHTTPRequestDuration  = "HTTP request latency in seconds"
	HelpTextHTTPRequestsInFlight = "Current number of HTTP requests being served"
	HelpTextBetsPlaced           = "Total number of bets placed"
	HelpTextBetsSettled          = "Total number of bets settled by outcome"
	HelpTextCoinsMoved           = "Total coins moved through the ledger"
	HelpTextBonusClaims          = "Total number of bonuses awarded"
	HelpTextOperationErrors      = "Total number of failed ledger operations"
)

// Labels
const (
	LabelMethod    = "method"
	LabelPath      = "path"
	LabelStatus    = "status"
	LabelBetType   = "bet_type"
	LabelKind      = "kind"
	LabelDirection = "direction"
	LabelBonus     = "bonus"
	LabelOperation = "operation"
	LabelCategory  = "category"
)

// Direction label values
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Bonus label values
const (
	BonusRegistration = "registration"
	BonusLogin        = "login"
	BonusAd           = "ad"
)

// HTTPLatencyBuckets covers fast JSON endpoints.
var HTTPLatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
