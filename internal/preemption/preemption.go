// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package preemption implements C6: freeing capacity for higher-priority
// work by forcibly returning a lower-priority running task to pending.
// Grounded on work/worker.go's uncle/possible-work bookkeeping style for
// candidate selection, and on the design note's explicit split between
// apply_transition and force_set_pending_for_preemption (the latter
// grounded on db_manager.go's unchecked Write* accessors that sit beside
// validated higher-level calls).
package preemption

import (
	"context"
	"sort"

	uuid "github.com/satori/go.uuid"

	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/log"
	"github.com/unclesp1d3r/cipherswarm/internal/metrics"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
)

var logger = log.NewModuleLogger(log.Preemption)

// ProgressFunc returns a task's completion fraction in [0,1], used both for
// preemptability (progress below threshold) and candidate ordering (least
// complete first). Supplied by the caller since progress derives from the
// most recent HashcatStatus, which this package doesn't own.
type ProgressFunc func(ctx context.Context, task *d.Task) (float64, error)

// Service selects and preempts tasks.
type Service struct {
	store               *store.Store
	progress            ProgressFunc
	preemptableProgress float64 // tasks at or above this progress are never preempted
	starvationCap       int     // tasks at or above this preemption_count are never preempted
}

// New builds a Service. preemptableProgress and starvationCap are the
// "progress below a configured threshold" / "preemption_count below a
// starvation cap" knobs.
func New(st *store.Store, progress ProgressFunc, preemptableProgress float64, starvationCap int) *Service {
	return &Service{store: st, progress: progress, preemptableProgress: preemptableProgress, starvationCap: starvationCap}
}

// candidate pairs a running task with the facts needed to rank it.
type candidate struct {
	task       *d.Task
	priority   d.CampaignPriority
	progress   float64
}

// Preempt attempts to free one running task in projectID whose campaign
// priority is below requestingPriority. It returns (taskID, true) on
// success, or (uuid.Nil, false) if admission fails or no candidate
// qualifies. Neither outcome is returned as an error: store errors and a
// failed preemption transaction are logged at warn, while spare capacity
// or an empty candidate pool returns silently. A failed preemption leaves
// the system unchanged.
func (s *Service) Preempt(ctx context.Context, projectID uuid.UUID, requestingPriority d.CampaignPriority) (uuid.UUID, bool) {
	activeAgents, err := s.store.Read(ctx).CountActiveAgents()
	if err != nil {
		logger.Warn("preemption admission check failed", "error", err)
		return uuid.Nil, false
	}
	runningTasks, err := s.store.Read(ctx).CountRunningTasks()
	if err != nil {
		logger.Warn("preemption admission check failed", "error", err)
		return uuid.Nil, false
	}
	if activeAgents > runningTasks {
		// capacity exists without preempting anyone.
		return uuid.Nil, false
	}

	running, err := s.store.Read(ctx).RunningTasksForCampaignProject(projectID, int(requestingPriority))
	if err != nil {
		logger.Warn("failed to list preemption candidates", "error", err)
		return uuid.Nil, false
	}

	var candidates []candidate
	for _, t := range running {
		if t.PreemptionCount >= s.starvationCap {
			continue
		}
		attack, err := s.store.Read(ctx).GetAttack(t.AttackID)
		if err != nil {
			continue
		}
		campaign, err := s.store.Read(ctx).GetCampaign(attack.CampaignID)
		if err != nil {
			continue
		}
		progress := 0.0
		if s.progress != nil {
			progress, err = s.progress(ctx, t)
			if err != nil {
				continue
			}
		}
		if progress >= s.preemptableProgress {
			continue
		}
		candidates = append(candidates, candidate{task: t, priority: campaign.Priority, progress: progress})
	}
	if len(candidates) == 0 {
		return uuid.Nil, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].progress < candidates[j].progress
	})
	chosen := candidates[0].task

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.LockTask(chosen.ID); err != nil {
			return err
		}
		if err := tx.ForceSetTaskPending(chosen.ID); err != nil {
			return err
		}
		return tx.InsertAuditRecord(&d.AuditRecord{
			Entity: "Task", EntityID: chosen.ID,
			From: string(d.TaskRunning), To: string(d.TaskPending), Event: "preempt",
		})
	})
	if err != nil {
		logger.Warn("preemption transaction failed", "task_id", chosen.ID, "error", err)
		return uuid.Nil, false
	}

	metrics.PreemptionsTotal.Inc()
	logger.Info("task preempted", "task_id", chosen.ID, "project_id", projectID)
	return chosen.ID, true
}
