// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package store

import (
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/apierr"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
)

// CandidateAttack is one row of the assignment candidate enumeration: an
// attack plus the campaign/hash-list facts the scheduler needs,
// pre-joined so the service layer doesn't issue N+1 queries.
type CandidateAttack struct {
	Attack      d.Attack
	CampaignID  uuid.UUID
	ProjectID   uuid.UUID
	Priority    d.CampaignPriority
	HashListID  uuid.UUID
	HashTypeID  int
}

// CandidateAttacksForAgent enumerates attacks eligible for agentID:
// state in {pending, running}, campaign.project_id in
// agent.project_ids, hash_list.hash_type_id in agent.allowed_hash_types;
// ordered by (campaign.priority DESC, attack.complexity_value ASC,
// attack.created_at ASC).
func (r *Reader) CandidateAttacksForAgent(projectIDs []uuid.UUID, allowedHashTypes []int) ([]CandidateAttack, error) {
	if len(projectIDs) == 0 || len(allowedHashTypes) == 0 {
		return nil, nil
	}
	type row struct {
		gormAttack
		CampProjectID uuid.UUID `gorm:"column:campaign_project_id"`
		CampPriority  int       `gorm:"column:campaign_priority"`
		HLID          uuid.UUID `gorm:"column:hash_list_id2"`
		HLType        int       `gorm:"column:hash_type_id"`
	}
	var rows []row
	err := r.gdb().Table("attacks").
		Select("attacks.*, campaigns.project_id as campaign_project_id, campaigns.priority as campaign_priority, hash_lists.id as hash_list_id2, hash_lists.hash_type_id as hash_type_id").
		Joins("JOIN campaigns ON campaigns.id = attacks.campaign_id").
		Joins("JOIN hash_lists ON hash_lists.id = campaigns.hash_list_id").
		Where("attacks.state IN (?) AND campaigns.project_id IN (?) AND hash_lists.hash_type_id IN (?)",
			[]string{string(d.AttackPending), string(d.AttackRunning)}, projectIDs, allowedHashTypes).
		Order("campaigns.priority DESC, attacks.complexity_value ASC, attacks.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]CandidateAttack, len(rows))
	for i, rw := range rows {
		out[i] = CandidateAttack{
			Attack:     *rw.gormAttack.toDomain(),
			CampaignID: rw.gormAttack.CampaignID,
			ProjectID:  rw.CampProjectID,
			Priority:   d.CampaignPriority(rw.CampPriority),
			HashListID: rw.HLID,
			HashTypeID: rw.HLType,
		}
	}
	return out, nil
}

// GetAttack is a plain read.
func (r *Reader) GetAttack(id uuid.UUID) (*d.Attack, error) {
	var g gormAttack
	err := r.gdb().Where("id = ?", id).First(&g).Error
	if errNoRows(err) {
		return nil, apierr.NotFound("attack not found")
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// LockAttack row-locks the attack for state transitions.
func (t *Tx) LockAttack(id uuid.UUID) (*d.Attack, error) {
	var g gormAttack
	err := t.gdb().Set("gorm:query_option", "FOR UPDATE").Where("id = ?", id).First(&g).Error
	if errNoRows(err) {
		return nil, apierr.NotFound("attack not found")
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// SetAttackState updates the attack's state column.
func (t *Tx) SetAttackState(id uuid.UUID, state d.AttackState) error {
	return t.gdb().Model(&gormAttack{}).Where("id = ?", id).
		Updates(map[string]interface{}{"state": string(state), "updated_at": time.Now()}).Error
}

// AttackUncrackedCount returns the uncracked-item count scoped to the
// attack's campaign's hash list, used both to detect attack exhaustion
// and to gate rebalancing against already-exhausted attacks.
func (r *Reader) AttackUncrackedCount(attackID uuid.UUID) (int, error) {
	var n int
	err := r.gdb().Model(&gormHashItem{}).
		Joins("JOIN campaigns ON campaigns.hash_list_id = hash_items.hash_list_id").
		Joins("JOIN attacks ON attacks.campaign_id = campaigns.id").
		Where("attacks.id = ? AND hash_items.cracked = ?", attackID, false).
		Count(&n).Error
	return n, err
}

// AttackHasRunningTasks reports whether the attack has any running task,
// used by maintenance's rebalancing step.
func (r *Reader) AttackHasRunningTasks(attackID uuid.UUID) (bool, error) {
	var n int
	err := r.gdb().Model(&gormTask{}).
		Where("attack_id = ? AND state = ?", attackID, string(d.TaskRunning)).Count(&n).Error
	return n > 0, err
}

// IncompleteAttacksWithPriorityAtLeast lists attacks not in a terminal
// state whose campaign priority is >= minPriority, used by maintenance's
// rebalancing step.
func (r *Reader) IncompleteAttacksWithPriorityAtLeast(minPriority int) ([]CandidateAttack, error) {
	type row struct {
		gormAttack
		CampProjectID uuid.UUID `gorm:"column:campaign_project_id"`
		CampPriority  int       `gorm:"column:campaign_priority"`
		HLID          uuid.UUID `gorm:"column:hash_list_id2"`
	}
	var rows []row
	terminal := []string{string(d.AttackCompleted), string(d.AttackExhausted), string(d.AttackFailed)}
	err := r.gdb().Table("attacks").
		Select("attacks.*, campaigns.project_id as campaign_project_id, campaigns.priority as campaign_priority, campaigns.hash_list_id as hash_list_id2").
		Joins("JOIN campaigns ON campaigns.id = attacks.campaign_id").
		Where("attacks.state NOT IN (?) AND campaigns.priority >= ?", terminal, minPriority).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]CandidateAttack, len(rows))
	for i, rw := range rows {
		out[i] = CandidateAttack{
			Attack: *rw.gormAttack.toDomain(), CampaignID: rw.gormAttack.CampaignID,
			ProjectID: rw.CampProjectID,
			Priority:  d.CampaignPriority(rw.CampPriority), HashListID: rw.HLID,
		}
	}
	return out, nil
}
