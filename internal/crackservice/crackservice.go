// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package crackservice implements crack submission (C3): applying one
// cracked hash, propagating it to duplicates across hash lists sharing a
// hash type, marking sibling tasks stale, and invalidating cached
// derivations. Grounded on the store's "assemble, then commit" transaction
// shape (internal/store's WithTx), mirroring db_manager.go's
// Put*ToBatch-then-Write idiom but with row-level SQL locks.
package crackservice

import (
	"context"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/apierr"
	"github.com/unclesp1d3r/cipherswarm/internal/cache"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/log"
	"github.com/unclesp1d3r/cipherswarm/internal/metrics"
	"github.com/unclesp1d3r/cipherswarm/internal/statemachine"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
)

var logger = log.NewModuleLogger(log.Crack)

// Service applies crack submissions.
type Service struct {
	store *store.Store
	cache cache.Cache
}

// New builds a Service backed by st, invalidating derived data in c.
func New(st *store.Store, c cache.Cache) *Service {
	return &Service{store: st, cache: c}
}

// Result reports what submitting the crack produced, for the handler to
// translate into the response shape (204 vs 200 {message}).
type Result struct {
	TaskCompleted  bool
	UncrackedCount int
	AlreadyCracked bool
}

// SubmitCrack applies one cracked hash, propagates it to duplicates
// across hash lists sharing a hash type, and marks sibling tasks stale,
// all inside one transaction.
func (s *Service) SubmitCrack(ctx context.Context, taskID uuid.UUID, hashValue []byte, plainText string, at time.Time) (*Result, error) {
	if plainText == "" {
		metrics.CrackSubmissionsTotal.WithLabelValues("invalid").Inc()
		return nil, apierr.Validation("plain_text must not be empty").WithDetails(
			apierr.Detail{Field: "plain_text", Message: "required"})
	}

	var res Result
	var campaignID uuid.UUID

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		task, err := tx.LockTask(taskID)
		if err != nil {
			return err
		}
		attack, err := tx.LockAttack(task.AttackID)
		if err != nil {
			return err
		}
		campaign, err := tx.Reader().GetCampaign(attack.CampaignID)
		if err != nil {
			return err
		}
		campaignID = campaign.ID
		hashList, err := tx.Reader().HashList(campaign.HashListID)
		if err != nil {
			return err
		}

		item, err := tx.LockHashItemByValue(hashList.ID, hashValue)
		if err != nil {
			return err
		}

		if item.Cracked {
			// at-most-once: already applied, report success without
			// overwriting plain_text.
			res.AlreadyCracked = true
			n, err := tx.Reader().AttackUncrackedCount(attack.ID)
			if err != nil {
				return err
			}
			res.UncrackedCount = n
			return nil
		}

		if err := tx.ApplyCrack(item.ID, plainText, at, attack.ID); err != nil {
			return err
		}
		if err := s.audit(tx, "HashItem", item.ID, "uncracked", "cracked", "submit_crack"); err != nil {
			return err
		}

		remaining, err := tx.Reader().AttackUncrackedCount(attack.ID)
		if err != nil {
			return err
		}
		res.UncrackedCount = remaining

		to, err := statemachine.NextOnAcceptCrack(task.State, remaining == 0)
		if err != nil {
			return err
		}
		if to != task.State {
			if err := tx.SetTaskState(task.ID, to); err != nil {
				return err
			}
			if err := s.audit(tx, "Task", task.ID, string(task.State), string(to), statemachine.EventAcceptCrack); err != nil {
				return err
			}
		}
		res.TaskCompleted = to == d.TaskCompleted

		if attack.State == d.AttackPending {
			if err := tx.SetAttackState(attack.ID, d.AttackRunning); err != nil {
				return err
			}
			_ = s.audit(tx, "Attack", attack.ID, string(d.AttackPending), string(d.AttackRunning), statemachine.EventAttackStart)
		}
		if remaining == 0 {
			if err := tx.SetAttackState(attack.ID, d.AttackCompleted); err != nil {
				return err
			}
			_ = s.audit(tx, "Attack", attack.ID, string(attack.State), string(d.AttackCompleted), statemachine.EventAttackComplete)

			states, err := tx.Reader().AttackStatesForCampaign(campaign.ID)
			if err != nil {
				return err
			}
			if allTerminal(states) {
				if err := tx.SetCampaignState(campaign.ID, d.CampaignCompleted); err != nil {
					return err
				}
				_ = s.audit(tx, "Campaign", campaign.ID, string(campaign.State), string(d.CampaignCompleted), statemachine.EventCampaignComplete)
			}
		}

		sharing, err := tx.Reader().HashListsSharingType(hashList.HashTypeID)
		if err != nil {
			return err
		}
		var others []uuid.UUID
		for _, id := range sharing {
			if id != hashList.ID {
				others = append(others, id)
			}
		}
		if len(others) > 0 {
			if _, err := tx.PropagateCrack(hashList.HashTypeID, hashList.ID, hashValue, plainText, at, attack.ID); err != nil {
				return err
			}
		}

		siblingAttacks, err := tx.Reader().AttackIDsForHashLists(sharing)
		if err != nil {
			return err
		}
		if len(siblingAttacks) > 0 {
			if err := tx.SetTasksStaleExcept(siblingAttacks, task.ID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		metrics.CrackSubmissionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if res.AlreadyCracked {
		metrics.CrackSubmissionsTotal.WithLabelValues("already_cracked").Inc()
	} else {
		metrics.CrackSubmissionsTotal.WithLabelValues("applied").Inc()
	}

	if s.cache != nil {
		s.cache.Delete(etaCacheTag(campaignID))
	}
	logger.Info("crack submitted", "task_id", taskID, "already_cracked", res.AlreadyCracked, "task_completed", res.TaskCompleted)
	return &res, nil
}

func (s *Service) audit(tx *store.Tx, entity string, id uuid.UUID, from, to, event string) error {
	return tx.InsertAuditRecord(&d.AuditRecord{Entity: entity, EntityID: id, From: from, To: to, Event: event})
}

func etaCacheTag(campaignID uuid.UUID) string {
	return "campaign:" + campaignID.String()
}

func allTerminal(states []d.AttackState) bool {
	for _, s := range states {
		switch s {
		case d.AttackCompleted, d.AttackExhausted, d.AttackFailed:
			continue
		default:
			return false
		}
	}
	return len(states) > 0
}
