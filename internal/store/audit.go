// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package store

import (
	"time"

	uuid "github.com/satori/go.uuid"

	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
)

// InsertAuditRecord logs one state-machine transition, the "every
// transition logs (entity, from, to, event, ids)" invariant. It is
// always called inside the same transaction as the transition it records.
func (t *Tx) InsertAuditRecord(rec *d.AuditRecord) error {
	rec.ID = d.NewID()
	rec.CreatedAt = time.Now()
	row := &gormAuditRecord{
		ID: rec.ID, Entity: rec.Entity, EntityID: rec.EntityID,
		From: rec.From, To: rec.To, Event: rec.Event, CreatedAt: rec.CreatedAt,
	}
	return t.gdb().Create(row).Error
}

// AuditFilter narrows ListAuditRecords; zero-valued fields are unfiltered.
type AuditFilter struct {
	Entity   string
	EntityID *uuid.UUID
	Since    *time.Time
	Limit    int
}

// ListAuditRecords backs the read-side query surface, newest
// first.
func (r *Reader) ListAuditRecords(f AuditFilter) ([]*d.AuditRecord, error) {
	q := r.gdb().Model(&gormAuditRecord{})
	if f.Entity != "" {
		q = q.Where("entity = ?", f.Entity)
	}
	if f.EntityID != nil {
		q = q.Where("entity_id = ?", *f.EntityID)
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}
	q = q.Order("created_at desc")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []gormAuditRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*d.AuditRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// DeleteAuditRecordsOlderThan enforces audit retention.
func (t *Tx) DeleteAuditRecordsOlderThan(cutoff time.Time) (int64, error) {
	res := t.gdb().Where("created_at < ?", cutoff).Delete(&gormAuditRecord{})
	return res.RowsAffected, res.Error
}
