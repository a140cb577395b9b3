package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ruleEvaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "converso_rule_evaluations_total",
		Help: "Number of assignment rule evaluations run",
	})

	ruleMatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "converso_rule_matches_total",
		Help: "Number of rule matches by action type",
	}, []string{"action"})

	assignmentsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "converso_assignments_applied_total",
		Help: "Number of conversations assigned to a user by a rule",
	})
)
