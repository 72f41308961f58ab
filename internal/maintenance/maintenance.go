// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package maintenance runs the periodic maintenance loop (C8): offline
// detection, abandonment, status trimming, retention, and rebalancing.
// Grounded on work/worker.go's update select-on-ticker loop, generalized
// from one mining-loop tick to five independent, individually tolerant
// steps.
package maintenance

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/log"
	"github.com/unclesp1d3r/cipherswarm/internal/metrics"
	"github.com/unclesp1d3r/cipherswarm/internal/preemption"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
)

var logger = log.NewModuleLogger(log.Maintenance)

var stepFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "cipherswarm_maintenance_step_failures_total",
	Help: "Count of maintenance tick steps that failed, by step name.",
}, []string{"step"})

func init() {
	prometheus.MustRegister(stepFailures)
}

// Config holds the maintenance loop's tunables.
type Config struct {
	Tick                  time.Duration
	AgentOfflineSeconds   time.Duration
	TaskAbandonSeconds    time.Duration
	NStatusKeep           int
	RetentionAgentErrors  time.Duration
	RetentionAudit        time.Duration
}

// TickPublisher emits a summary of each completed tick, e.g. to Kafka for
// downstream analytics. Optional: a nil TickPublisher means the loop only
// logs.
type TickPublisher interface {
	Publish(summary TickSummary)
}

// TickSummary is marshaled to JSON and handed to TickPublisher after every
// tick.
type TickSummary struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration_ns"`
	Counts    map[string]int `json:"counts"`
	Failures  []string       `json:"failures,omitempty"`
}

// Loop drives the five-step tick.
type Loop struct {
	store      *store.Store
	preemption *preemption.Service
	cfg        Config
	publisher  TickPublisher
}

// New builds a Loop. publisher may be nil.
func New(st *store.Store, pre *preemption.Service, cfg Config, publisher TickPublisher) *Loop {
	return &Loop{store: st, preemption: pre, cfg: cfg, publisher: publisher}
}

// Run blocks, ticking until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	summary := l.Tick(ctx)
	if l.publisher != nil {
		l.publisher.Publish(summary)
	}
}

// Tick runs the five steps once and returns the resulting summary,
// without publishing it. Run uses this on every ticker fire; it's also
// the hook an operator-triggered "run maintenance now" call or a test
// uses to drive a single iteration synchronously.
func (l *Loop) Tick(ctx context.Context) TickSummary {
	start := time.Now()
	summary := TickSummary{StartedAt: start, Counts: map[string]int{}}

	l.runStep(ctx, &summary, "offline_detection", l.offlineDetection)
	l.runStep(ctx, &summary, "abandonment", l.abandonment)
	l.runStep(ctx, &summary, "status_trimming", l.statusTrimming)
	l.runStep(ctx, &summary, "retention", l.retention)
	l.runStep(ctx, &summary, "rebalancing", l.rebalancing)

	summary.Duration = time.Since(start)
	metrics.MaintenanceTickDuration.Observe(summary.Duration.Seconds())
	logger.Info("maintenance tick complete", "duration", summary.Duration, "counts", summary.Counts, "failures", summary.Failures)
	return summary
}

func (l *Loop) runStep(ctx context.Context, summary *TickSummary, name string, fn func(context.Context) (int, error)) {
	defer func() {
		if r := recover(); r != nil {
			stepFailures.WithLabelValues(name).Inc()
			summary.Failures = append(summary.Failures, name)
			logger.Warn("maintenance step panicked", "step", name, "recover", r)
		}
	}()
	stepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	n, err := fn(stepCtx)
	if err != nil {
		stepFailures.WithLabelValues(name).Inc()
		summary.Failures = append(summary.Failures, name)
		logger.Warn("maintenance step failed", "step", name, "error", err)
		return
	}
	summary.Counts[name] = n
}

// offlineDetection marks agents offline whose last_seen_at has fallen
// behind the configured cutoff.
func (l *Loop) offlineDetection(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-l.cfg.AgentOfflineSeconds)
	agents, err := l.store.Read(ctx).AgentsLastSeenBefore(cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range agents {
		err := l.store.WithTx(ctx, func(tx *store.Tx) error {
			if err := tx.SetAgentState(a.ID, d.AgentOffline); err != nil {
				return err
			}
			return tx.InsertAuditRecord(&d.AuditRecord{
				Entity: "Agent", EntityID: a.ID, From: string(a.State), To: string(d.AgentOffline), Event: "go_offline",
			})
		})
		if err != nil {
			logger.Warn("failed to mark agent offline", "agent_id", a.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// abandonment deletes tasks that have been running past the abandon
// cutoff without a status update, freeing their attack for reassignment.
func (l *Loop) abandonment(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-l.cfg.TaskAbandonSeconds)
	tasks, err := l.store.Read(ctx).RunningTasksOlderThan(cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range tasks {
		err := l.store.WithTx(ctx, func(tx *store.Tx) error {
			if _, err := tx.LockTask(t.ID); err != nil {
				return err
			}
			if err := tx.DeleteTask(t.ID); err != nil {
				return err
			}
			return tx.InsertAuditRecord(&d.AuditRecord{
				Entity: "Task", EntityID: t.ID, From: string(d.TaskRunning), To: "", Event: "abandon",
			})
		})
		if err != nil {
			logger.Warn("failed to abandon task", "task_id", t.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// statusTrimming caps the HashcatStatus history kept per live task and
// clears it entirely for tasks that have reached a terminal state.
func (l *Loop) statusTrimming(ctx context.Context) (int, error) {
	r := l.store.Read(ctx)
	keep := l.cfg.NStatusKeep
	if keep <= 0 {
		keep = 1
	}

	n := 0
	liveIDs, err := r.TaskIDsByState([]d.TaskState{d.TaskPending, d.TaskRunning})
	if err != nil {
		return 0, err
	}
	for _, id := range liveIDs {
		err := l.store.WithTx(ctx, func(tx *store.Tx) error {
			return tx.TrimStatuses(id, keep)
		})
		if err != nil {
			logger.Warn("failed to trim statuses", "task_id", id, "error", err)
			continue
		}
		n++
	}

	terminalIDs, err := r.TaskIDsByState([]d.TaskState{d.TaskCompleted, d.TaskExhausted, d.TaskFailed})
	if err != nil {
		return n, err
	}
	for _, id := range terminalIDs {
		err := l.store.WithTx(ctx, func(tx *store.Tx) error {
			return tx.DeleteStatusesForTask(id)
		})
		if err != nil {
			logger.Warn("failed to delete statuses for terminal task", "task_id", id, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// retention deletes AgentError and AuditRecord rows older than their
// configured retention window.
func (l *Loop) retention(ctx context.Context) (int, error) {
	total := 0
	err := l.store.WithTx(ctx, func(tx *store.Tx) error {
		n, err := tx.DeleteAgentErrorsOlderThan(time.Now().Add(-l.cfg.RetentionAgentErrors))
		if err != nil {
			return err
		}
		total += int(n)
		n, err = tx.DeleteAuditRecordsOlderThan(time.Now().Add(-l.cfg.RetentionAudit))
		if err != nil {
			return err
		}
		total += int(n)
		return nil
	})
	return total, err
}

// rebalancing preempts running lower-priority tasks on behalf of
// still-incomplete higher-or-normal-priority attacks.
func (l *Loop) rebalancing(ctx context.Context) (int, error) {
	if l.preemption == nil {
		return 0, nil
	}
	attacks, err := l.store.Read(ctx).IncompleteAttacksWithPriorityAtLeast(int(d.PriorityNormal))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ca := range attacks {
		uncracked, err := l.store.Read(ctx).AttackUncrackedCount(ca.Attack.ID)
		if err != nil || uncracked == 0 {
			continue
		}
		hasRunning, err := l.store.Read(ctx).AttackHasRunningTasks(ca.Attack.ID)
		if err != nil || hasRunning {
			continue
		}
		campaign, err := l.store.Read(ctx).GetCampaign(ca.CampaignID)
		if err != nil {
			continue
		}
		if _, ok := l.preemption.Preempt(ctx, campaign.ProjectID, ca.Priority); ok {
			n++
		}
	}
	return n, nil
}
