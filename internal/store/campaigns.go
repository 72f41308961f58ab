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

// GetCampaign is a plain read.
func (r *Reader) GetCampaign(id uuid.UUID) (*d.Campaign, error) {
	var g gormCampaign
	err := r.gdb().Where("id = ?", id).First(&g).Error
	if errNoRows(err) {
		return nil, apierr.NotFound("campaign not found")
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// CampaignForAttack resolves attack -> campaign -> hash_list, the lookup
// chain the assignment scheduler needs per candidate.
func (r *Reader) CampaignForAttack(attackID uuid.UUID) (*d.Campaign, error) {
	var g gormCampaign
	err := r.gdb().
		Joins("JOIN attacks ON attacks.campaign_id = campaigns.id").
		Where("attacks.id = ?", attackID).
		First(&g).Error
	if errNoRows(err) {
		return nil, apierr.NotFound("campaign not found for attack")
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// SetCampaignState updates the campaign's derived state.
func (t *Tx) SetCampaignState(id uuid.UUID, state d.CampaignState) error {
	return t.gdb().Model(&gormCampaign{}).Where("id = ?", id).
		Updates(map[string]interface{}{"state": string(state), "updated_at": time.Now()}).Error
}

// AttackStatesForCampaign returns every attack state within the campaign,
// used to evaluate the "terminal when every attack is terminal" rule.
func (r *Reader) AttackStatesForCampaign(campaignID uuid.UUID) ([]d.AttackState, error) {
	var rows []gormAttack
	if err := r.gdb().Select("state").Where("campaign_id = ?", campaignID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]d.AttackState, len(rows))
	for i, rw := range rows {
		out[i] = d.AttackState(rw.State)
	}
	return out, nil
}

// MaxAttacksUpdatedAt and MaxTasksUpdatedAt back the ETA cache key:
// "(campaign_id, max(attacks.updated_at), max(tasks.updated_at))".
func (r *Reader) MaxAttacksUpdatedAt(campaignID uuid.UUID) (time.Time, error) {
	var out struct{ Max *time.Time }
	err := r.gdb().Model(&gormAttack{}).Select("max(updated_at) as max").
		Where("campaign_id = ?", campaignID).Scan(&out).Error
	if err != nil || out.Max == nil {
		return time.Time{}, err
	}
	return *out.Max, nil
}

func (r *Reader) MaxTasksUpdatedAt(campaignID uuid.UUID) (time.Time, error) {
	var out struct{ Max *time.Time }
	err := r.gdb().Model(&gormTask{}).Select("max(tasks.updated_at) as max").
		Joins("JOIN attacks ON attacks.id = tasks.attack_id").
		Where("attacks.campaign_id = ?", campaignID).Scan(&out).Error
	if err != nil || out.Max == nil {
		return time.Time{}, err
	}
	return *out.Max, nil
}

// RunningTasksForCampaign and PendingOrPausedAttacksForCampaign back the
// ETA calculation.
type RunningTaskInfo struct {
	Task               d.Task
	AttackComplexity   int64
	AttackHashMode     int
}

func (r *Reader) RunningTasksForCampaign(campaignID uuid.UUID) ([]RunningTaskInfo, error) {
	type row struct {
		gormTask
		Complexity int64 `gorm:"column:complexity_value"`
		HashMode   int   `gorm:"column:hash_mode"`
	}
	var rows []row
	err := r.gdb().Table("tasks").
		Select("tasks.*, attacks.complexity_value, attacks.hash_mode").
		Joins("JOIN attacks ON attacks.id = tasks.attack_id").
		Where("attacks.campaign_id = ? AND tasks.state = ? AND attacks.state = ?",
			campaignID, string(d.TaskRunning), string(d.AttackRunning)).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]RunningTaskInfo, len(rows))
	for i, rw := range rows {
		out[i] = RunningTaskInfo{Task: *rw.gormTask.toDomain(), AttackComplexity: rw.Complexity, AttackHashMode: rw.HashMode}
	}
	return out, nil
}

type PendingAttackInfo struct {
	AttackID   uuid.UUID
	Complexity int64
	HashMode   int
}

func (r *Reader) PendingOrPausedAttacksForCampaign(campaignID uuid.UUID) ([]PendingAttackInfo, error) {
	var rows []gormAttack
	err := r.gdb().Where("campaign_id = ? AND state IN (?)", campaignID,
		[]string{string(d.AttackPending), string(d.AttackPaused)}).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]PendingAttackInfo, len(rows))
	for i, rw := range rows {
		out[i] = PendingAttackInfo{AttackID: rw.ID, Complexity: rw.ComplexityValue, HashMode: rw.HashMode}
	}
	return out, nil
}
