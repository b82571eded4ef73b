// Package metrics exposes prometheus collectors for the settlement ledger.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements ledger.MetricsRecorder on a private registry.
type Collector struct {
	registry           *prometheus.Registry
	settlementsApplied prometheus.Counter
	settlementsFailed  prometheus.Counter
	settlementDuration prometheus.Histogram
	accountBalance     *prometheus.GaugeVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		settlementsApplied: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_settlements_applied_total",
			Help: "Total number of successfully applied settlements",
		}),
		settlementsFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_settlements_failed_total",
			Help: "Total number of failed settlement attempts",
		}),
		settlementDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_settlement_duration_seconds",
			Help:    "Time taken to apply a settlement",
			Buckets: prometheus.DefBuckets,
		}),
		accountBalance: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_account_balance",
			Help: "Current account balance",
		}, []string{"account_id", "currency"}),
	}
}

// RecordSettlement observes one settlement attempt.
func (c *Collector) RecordSettlement(d time.Duration, success bool) {
	if success {
		c.settlementsApplied.Inc()
	} else {
		c.settlementsFailed.Inc()
	}
	c.settlementDuration.Observe(d.Seconds())
}

// SetAccountBalance updates the balance gauge for an account.
func (c *Collector) SetAccountBalance(accountID int64, currency string, balance float64) {
	c.accountBalance.WithLabelValues(strconv.FormatInt(accountID, 10), currency).Set(balance)
}

// Handler returns the /metrics HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
