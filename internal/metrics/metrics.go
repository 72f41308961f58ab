// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package metrics registers the Prometheus instruments shared across
// service packages, built on prometheus/client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AssignmentLatency measures how long Assign takes end to end,
	// including any preemption it triggers.
	AssignmentLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cipherswarm_assignment_latency_seconds",
		Help:    "Latency of task assignment requests.",
		Buckets: prometheus.DefBuckets,
	})

	// PreemptionsTotal counts successful preemptions.
	PreemptionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cipherswarm_preemptions_total",
		Help: "Count of tasks forcibly returned to pending by preemption.",
	})

	// MaintenanceTickDuration measures the full five-step tick.
	MaintenanceTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cipherswarm_maintenance_tick_duration_seconds",
		Help:    "Duration of a full maintenance tick.",
		Buckets: prometheus.DefBuckets,
	})

	// CrackSubmissionsTotal counts submit_crack calls by outcome.
	CrackSubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cipherswarm_crack_submissions_total",
		Help: "Count of crack submissions by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(AssignmentLatency, PreemptionsTotal, MaintenanceTickDuration, CrackSubmissionsTotal)
}
