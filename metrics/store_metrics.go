package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var NonSettlingSolverInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "arbiter",
	Name:      "non_settling_solver_info",
	Help:      "Solvers that won a recent auction and failed to settle it.",
}, []string{"solver"})
