package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SettlementEventsObservedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "arbiter",
	Name:      "settlement_events_observed_total",
	Help:      "Total number of settlement events pulled from the chain.",
}, []string{"result"})

var SettlementsDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "arbiter",
	Name:      "settlements_decoded_total",
	Help:      "Total number of settlement calldata decode attempts.",
}, []string{"result"})

var SettlementViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "arbiter",
	Name:      "settlement_violations_total",
	Help:      "Total number of detected settlement rule violations.",
}, []string{"kind"})

var ObserverPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "arbiter",
	Name:      "observer_passes_total",
	Help:      "Total number of observer processing passes.",
}, []string{"result"})

var SolutionsRankedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "arbiter",
	Name:      "solutions_ranked_total",
	Help:      "Total number of solutions ranked during winner selection.",
}, []string{"result"})

var GuardChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "arbiter",
	Name:      "guard_checks_total",
	Help:      "Total number of solver participation checks.",
}, []string{"result"})

var GuardRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "arbiter",
	Name:      "guard_refreshes_total",
	Help:      "Total number of participation guard ban list refreshes.",
}, []string{"result"})

var LastObservedBlock = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "arbiter",
	Name:      "last_observed_block",
	Help:      "Block number of the most recently processed settlement event.",
})
