// Package metrics exposes Prometheus collectors for the coin ledger and its
// HTTP surface.
package metrics

import (
	"context"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors groups every racecoin metric registered on one registry.
type Collectors struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	BetsPlaced           *prometheus.CounterVec
	BetsSettled          *prometheus.CounterVec
	CoinsMoved           *prometheus.CounterVec
	BonusClaims          *prometheus.CounterVec
	OperationErrors      *prometheus.CounterVec
}

// New registers the collectors on registerer. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(registerer prometheus.Registerer) *Collectors {
	factory := promauto.With(registerer)
	return &Collectors{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: MetricNameHTTPRequestsTotal, Help: HelpTextHTTPRequestsTotal},
			[]string{LabelMethod, LabelPath, LabelStatus},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{Name: MetricNameHTTPRequestDuration, Help: HelpTextHTTPRequestDuration, Buckets: HTTPLatencyBuckets},
			[]string{LabelMethod, LabelPath},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{Name: MetricNameHTTPRequestsInFlight, Help: HelpTextHTTPRequestsInFlight},
		),
		BetsPlaced: factory.NewCounterVec(
			prometheus.CounterOpts{Name: MetricNameBetsPlaced, Help: HelpTextBetsPlaced},
			[]string{LabelBetType},
		),
		BetsSettled: factory.NewCounterVec(
			prometheus.CounterOpts{Name: MetricNameBetsSettled, Help: HelpTextBetsSettled},
			[]string{LabelStatus},
		),
		CoinsMoved: factory.NewCounterVec(
			prometheus.CounterOpts{Name: MetricNameCoinsMoved, Help: HelpTextCoinsMoved},
			[]string{LabelKind, LabelDirection},
		),
		BonusClaims: factory.NewCounterVec(
			prometheus.CounterOpts{Name: MetricNameBonusClaims, Help: HelpTextBonusClaims},
			[]string{LabelBonus},
		),
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{Name: MetricNameOperationErrors, Help: HelpTextOperationErrors},
			[]string{LabelOperation, LabelCategory},
		),
	}
}

// LogOperation implements ledger.OperationLogger.
func (collectors *Collectors) LogOperation(_ context.Context, entry ledger.OperationLog) {
	if entry.Error != nil {
		collectors.OperationErrors.WithLabelValues(entry.Operation, string(ledger.Category(entry.Error))).Inc()
		return
	}
	switch entry.Operation {
	case ledger.OperationPlaceBet:
		collectors.BetsPlaced.WithLabelValues(entry.Kind).Inc()
		collectors.addCoins(ledger.EntryKindSpend.String(), DirectionDebit, entry.Amount)
	case ledger.OperationSettleBet:
		if entry.Kind == "" {
			return
		}
		collectors.BetsSettled.WithLabelValues(entry.Kind).Inc()
		collectors.addCoins(ledger.EntryKindEarn.String(), DirectionCredit, entry.Amount)
	case ledger.OperationCredit:
		collectors.addCoins(entry.Kind, DirectionCredit, entry.Amount)
	case ledger.OperationDebit:
		collectors.addCoins(entry.Kind, DirectionDebit, entry.Amount)
	case ledger.OperationRegistrationBonus:
		collectors.bonus(BonusRegistration, entry.Amount)
	case ledger.OperationLoginBonus:
		collectors.bonus(BonusLogin, entry.Amount)
	case ledger.OperationAdBonus:
		collectors.bonus(BonusAd, entry.Amount)
	}
}

func (collectors *Collectors) bonus(name string, amount int64) {
	collectors.BonusClaims.WithLabelValues(name).Inc()
	collectors.addCoins(ledger.EntryKindBonus.String(), DirectionCredit, amount)
}

func (collectors *Collectors) addCoins(kind string, direction string, amount int64) {
	if amount <= 0 {
		return
	}
	collectors.CoinsMoved.WithLabelValues(kind, direction).Add(float64(amount))
}
