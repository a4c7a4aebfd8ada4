// Package metrics holds the Prometheus instruments for rule runs.
//
// A run is a short-lived process, so metrics are collected on a dedicated
// registry and written out with WriteTextfile for a node_exporter textfile
// collector instead of being scraped.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry collects every instrument in this package.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Rule outcome metrics
var (
	RulesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrules_rules_total",
			Help: "Total number of rules processed, by terminal state",
		},
		[]string{"state"},
	)

	MatchedRecordsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "mailrules_matched_records_total",
			Help: "Total number of records selected by rules",
		},
	)

	RuleDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailrules_rule_duration_seconds",
			Help:    "Duration of processing one rule in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)
)

// Mutation metrics
var (
	MutationCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrules_mutation_calls_total",
			Help: "Total number of batched mutation calls, by backend and result",
		},
		[]string{"backend", "result"},
	)
)

// ObserveMutation counts one mutation call against backend.
func ObserveMutation(backend string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	MutationCallsTotal.WithLabelValues(backend, result).Inc()
}

// WriteTextfile writes every metric in Registry to path in the Prometheus
// text format. The file is replaced atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
