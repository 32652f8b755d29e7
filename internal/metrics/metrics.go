// Package metrics exposes prometheus counters for the decision loop
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts signal decisions by terminal outcome
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_decisions_total",
		Help: "Signal decisions by terminal outcome (done, skipped, rejected)",
	}, []string{"outcome"})

	// TradesTotal counts executed trades by side
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_trades_total",
		Help: "Executed trades by side",
	}, []string{"side"})

	// OrderRetriesTotal counts transient execution failures that were retried
	OrderRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trader_order_retries_total",
		Help: "Transient order placement failures that triggered a retry",
	})

	// CapitalGauge tracks the last deployable capital figure written
	CapitalGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trader_deployable_capital",
		Help: "Deployable capital after the most recent sell settlement",
	})
)
