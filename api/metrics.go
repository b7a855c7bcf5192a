/*
metrics.go - Prometheus instrumentation for the rewards API

PURPOSE:
  Counters for the economy's hot paths. Purchase outcomes are labeled by
  result so dashboards can separate insufficient-funds rejections (normal)
  from transient failures (actionable).
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewards_purchases_total",
		Help: "Purchase attempts by outcome",
	}, []string{"outcome"})

	equipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewards_equips_total",
		Help: "Equip/unequip operations by outcome",
	}, []string{"op", "outcome"})

	grantsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rewards_grants_total",
		Help: "Admin point grants applied",
	})

	pointsRedeemedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rewards_points_redeemed_total",
		Help: "Total points deducted by successful purchases",
	})

	auditFaults = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rewards_audit_faults",
		Help: "Consistency faults found by the last audit run",
	})
)

const (
	outcomeOK                = "ok"
	outcomeAlreadyOwned      = "already_owned"
	outcomeInsufficientFunds = "insufficient_funds"
	outcomeItemInactive      = "item_inactive"
	outcomeNotFound          = "not_found"
	outcomeError             = "error"
)
