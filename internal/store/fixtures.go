// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package store

import (
	"time"

	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
)

// CreateProject inserts a new project row, the entry point for the
// project/campaign/attack/hash_list hierarchy.
func (t *Tx) CreateProject(p *d.Project) error {
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	row := &gormProject{ID: p.ID, Name: p.Name, UserIDs: uuidsToJSON(p.UserIDs), CreatedAt: now, UpdatedAt: now}
	return t.gdb().Create(row).Error
}

// CreateHashList inserts a new hash list row.
func (t *Tx) CreateHashList(h *d.HashList) error {
	now := time.Now()
	h.CreatedAt, h.UpdatedAt = now, now
	row := &gormHashList{ID: h.ID, Name: h.Name, HashTypeID: h.HashTypeID, CreatedAt: now, UpdatedAt: now}
	return t.gdb().Create(row).Error
}

// CreateHashItems bulk-inserts the uncracked items of a hash list.
func (t *Tx) CreateHashItems(items []*d.HashItem) error {
	now := time.Now()
	for _, it := range items {
		it.CreatedAt, it.UpdatedAt = now, now
		row := &gormHashItem{
			ID: it.ID, HashListID: it.HashListID, HashValue: it.HashValue,
			PlainText: it.PlainText, Cracked: it.Cracked, CrackedTime: it.CrackedTime,
			AttackID: it.AttackID, CreatedAt: now, UpdatedAt: now,
		}
		if err := t.gdb().Create(row).Error; err != nil {
			return err
		}
	}
	return nil
}

// CreateCampaign inserts a new campaign row in the draft state.
func (t *Tx) CreateCampaign(c *d.Campaign) error {
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.State == "" {
		c.State = d.CampaignDraft
	}
	row := &gormCampaign{
		ID: c.ID, ProjectID: c.ProjectID, Name: c.Name, Priority: int(c.Priority),
		HashListID: c.HashListID, State: string(c.State), CreatedAt: now, UpdatedAt: now,
	}
	return t.gdb().Create(row).Error
}

// CreateAttack inserts a new attack row in the pending state.
func (t *Tx) CreateAttack(a *d.Attack) error {
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.State == "" {
		a.State = d.AttackPending
	}
	row := &gormAttack{
		ID: a.ID, CampaignID: a.CampaignID, AttackMode: string(a.AttackMode), HashMode: a.HashMode,
		ComplexityValue: a.ComplexityValue, Mask: a.Mask, WordlistID: a.WordlistID, RulelistID: a.RulelistID,
		CharsetIDs: uuidsToJSON(a.CharsetIDs), State: string(a.State), CreatedAt: now, UpdatedAt: now,
	}
	return t.gdb().Create(row).Error
}
