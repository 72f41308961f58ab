// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package auditlog is the read-side query surface over audit_records: the
// write side (every state-machine transition logging (entity, from, to,
// event, ids)) lives in internal/store and is called directly by the
// service packages; this package supplements it with a way to read the
// log back out, for operator tooling outside this repository.
package auditlog

import (
	"context"
	"time"

	uuid "github.com/satori/go.uuid"

	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
)

// Filter narrows a query; zero-valued fields are unfiltered.
type Filter struct {
	Entity   string
	EntityID *uuid.UUID
	Since    *time.Time
	Limit    int
}

// Reader exposes the audit query surface.
type Reader struct {
	store *store.Store
}

// New builds a Reader backed by st.
func New(st *store.Store) *Reader {
	return &Reader{store: st}
}

// ListAuditRecords returns matching records, newest first.
func (r *Reader) ListAuditRecords(ctx context.Context, f Filter) ([]*d.AuditRecord, error) {
	return r.store.Read(ctx).ListAuditRecords(store.AuditFilter{
		Entity: f.Entity, EntityID: f.EntityID, Since: f.Since, Limit: f.Limit,
	})
}
