// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package assignment implements task assignment (C5): the priority-ordered
// algorithm that picks or creates the next task for a requesting
// agent. Grounded on work/worker.go's worker struct (mutex-guarded current
// task, atomic counters), generalized from "next block to mine" to "next
// task to assign".
package assignment

import (
	"context"
	"encoding/json"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/apierr"
	"github.com/unclesp1d3r/cipherswarm/internal/cache"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/log"
	"github.com/unclesp1d3r/cipherswarm/internal/metrics"
	"github.com/unclesp1d3r/cipherswarm/internal/preemption"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
)

var logger = log.NewModuleLogger(log.Assignment)

const allowedHashTypesTTL = time.Hour

// Thresholds maps hash_mode -> minimum acceptable hash_speed, the
// BENCHMARK_THRESHOLDS config key.
type Thresholds map[int]float64

// Service assigns tasks to agents.
type Service struct {
	store      *store.Store
	cache      cache.Cache
	preemption *preemption.Service
	thresholds Thresholds
}

// New builds a Service. thresholds may be nil, in which case every
// benchmark passes (no configured minimum).
func New(st *store.Store, c cache.Cache, pre *preemption.Service, thresholds Thresholds) *Service {
	return &Service{store: st, cache: c, preemption: pre, thresholds: thresholds}
}

// Assign runs the algorithm for agentID, returning the chosen task or
// nil (no-content) when nothing is available.
func (s *Service) Assign(ctx context.Context, agentID uuid.UUID) (*d.Task, error) {
	defer func(start time.Time) {
		metrics.AssignmentLatency.Observe(time.Since(start).Seconds())
	}(time.Now())

	agent, err := s.store.Read(ctx).GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	if len(agent.ProjectIDs) == 0 {
		return nil, nil
	}

	// reuse an already-assigned incomplete task before considering new ones.
	if task, err := s.reusableTask(ctx, agent); err != nil {
		return nil, err
	} else if task != nil {
		return task, nil
	}

	task, invokedPreemption, err := s.tryAssign(ctx, agent)
	if err != nil {
		return nil, err
	}
	if task != nil {
		return task, nil
	}
	if !invokedPreemption {
		return nil, nil
	}

	// Preemption may have freed a task; re-evaluate once more.
	task, _, err = s.tryAssign(ctx, agent)
	return task, err
}

func (s *Service) reusableTask(ctx context.Context, agent *d.Agent) (*d.Task, error) {
	task, err := s.store.Read(ctx).TaskForAgent(agent.ID)
	if err != nil || task == nil {
		return nil, err
	}
	hasFatal, err := s.store.Read(ctx).HasFatalError(task.ID)
	if err != nil {
		return nil, err
	}
	if hasFatal {
		return nil, nil
	}
	attack, err := s.store.Read(ctx).GetAttack(task.AttackID)
	if err != nil {
		return nil, err
	}
	n, err := s.store.Read(ctx).AttackUncrackedCount(attack.ID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return task, nil
}

// tryAssign enumerates candidates, claims the first assignable one, and
// falls back to preemption once, reporting whether preemption was
// invoked so Assign knows whether a second pass is worthwhile.
func (s *Service) tryAssign(ctx context.Context, agent *d.Agent) (*d.Task, bool, error) {
	allowed, err := s.allowedHashTypes(ctx, agent)
	if err != nil {
		return nil, false, err
	}
	candidates, err := s.store.Read(ctx).CandidateAttacksForAgent(agent.ProjectIDs, allowed)
	if err != nil {
		return nil, false, err
	}

	invokedPreemption := false
	for _, cand := range candidates {
		n, err := s.store.Read(ctx).AttackUncrackedCount(cand.Attack.ID)
		if err != nil {
			return nil, invokedPreemption, err
		}
		if n == 0 {
			continue
		}

		if failed, err := s.store.Read(ctx).FailedTaskForAgent(cand.Attack.ID, agent.ID); err != nil {
			return nil, invokedPreemption, err
		} else if failed != nil {
			if hasFatal, err := s.store.Read(ctx).HasFatalError(failed.ID); err != nil {
				return nil, invokedPreemption, err
			} else if !hasFatal {
				return failed, invokedPreemption, nil
			}
		}

		if pending, err := s.store.Read(ctx).PendingTaskForAgent(cand.Attack.ID, agent.ID); err != nil {
			return nil, invokedPreemption, err
		} else if pending != nil {
			return pending, invokedPreemption, nil
		}

		speed, ok, err := s.store.Read(ctx).FastestBenchmark(agent.ID, cand.Attack.HashMode)
		if err != nil {
			return nil, invokedPreemption, err
		}
		if ok && s.meetsThreshold(cand.Attack.HashMode, speed) {
			task, err := s.createTask(ctx, cand.Attack.ID, agent.ID)
			if err != nil {
				if e, isAPI := apierr.As(err); isAPI && e.Kind == apierr.KindConflict {
					continue
				}
				return nil, invokedPreemption, err
			}
			return task, invokedPreemption, nil
		}

		_ = s.store.WithTx(ctx, func(tx *store.Tx) error {
			return tx.InsertAgentError(&d.AgentError{
				AgentID: agent.ID, Severity: d.SeverityInfo,
				Message: "agent does not meet benchmark threshold for attack hash mode",
			})
		})

		if !invokedPreemption && cand.Priority != d.PriorityDeferred && s.preemption != nil {
			invokedPreemption = true
			_, _ = s.preemption.Preempt(ctx, cand.ProjectID, cand.Priority)
		}
	}

	return nil, invokedPreemption, nil
}

func (s *Service) createTask(ctx context.Context, attackID, agentID uuid.UUID) (*d.Task, error) {
	var task *d.Task
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		t, err := tx.CreateTask(attackID, agentID)
		if err != nil {
			return err
		}
		if err := tx.InsertAuditRecord(&d.AuditRecord{
			Entity: "Task", EntityID: t.ID, From: "", To: string(d.TaskPending), Event: "create",
		}); err != nil {
			return err
		}
		task = t
		return nil
	})
	return task, err
}

func (s *Service) meetsThreshold(hashMode int, speed float64) bool {
	min, ok := s.thresholds[hashMode]
	if !ok {
		return true
	}
	return speed >= min
}

// allowedHashTypes returns agent.allowed_hash_types, cached for one hour
// ("cached per-agent for 1 hour, invalidated on benchmark
// replacement").
func (s *Service) allowedHashTypes(ctx context.Context, agent *d.Agent) ([]int, error) {
	if s.cache == nil {
		return agent.AllowedHashTypes, nil
	}
	key := "agent:" + agent.ID.String() + ":allowed_hash_types"
	if b, ok := s.cache.Get(key); ok {
		var ints []int
		if json.Unmarshal(b, &ints) == nil {
			return ints, nil
		}
	}
	b, _ := json.Marshal(agent.AllowedHashTypes)
	s.cache.Set(key, b, allowedHashTypesTTL)
	return agent.AllowedHashTypes, nil
}

// InvalidateAllowedHashTypes drops the per-agent cache entry, called by
// the benchmark-submission handler on every replacement.
func (s *Service) InvalidateAllowedHashTypes(agentID uuid.UUID) {
	if s.cache != nil {
		s.cache.Delete("agent:" + agentID.String() + ":allowed_hash_types")
	}
}
