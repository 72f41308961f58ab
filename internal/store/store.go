// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package store

import (
	"context"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	_ "github.com/jinzhu/gorm/dialects/sqlite"

	"github.com/unclesp1d3r/cipherswarm/internal/log"
)

var logger = log.NewModuleLogger(log.Store)

// Store is the single source of truth: typed access to entities with
// row locks and transactions, mirroring storage/database.DBManager's
// one-wide-interface-over-one-impl shape.
type Store struct {
	db *gorm.DB
}

// Open connects to dialect/dsn (e.g. "mysql", "user:pass@tcp(host)/db") and
// returns a ready Store. Callers should defer Close.
func Open(dialect, dsn string) (*Store, error) {
	db, err := gorm.Open(dialect, dsn)
	if err != nil {
		return nil, err
	}
	db.LogMode(false)
	return &Store{db: db}, nil
}

// Migrate creates/updates every table in AllModels. Intended for startup
// and for test fixtures; production deployments may prefer an external
// migration tool, but bootstrapping the schema in process at startup is
// the simpler default.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(AllModels()...).Error
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Tx is a handle to one in-flight transaction, passed to WithTx's
// callback; every Tx method runs inside that transaction.
type Tx struct {
	db  *gorm.DB
	ctx context.Context
}

// WithTx runs fn inside a single transaction: assemble every store call,
// then commit once, with SQL transaction semantics (row locks,
// rollback-on-error) since several operations require row-level locking.
// fn's returned error (including any *apierr.Error) aborts and rolls back
// the transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	gtx := s.db.Begin()
	if gtx.Error != nil {
		return gtx.Error
	}
	if err := fn(&Tx{db: gtx, ctx: ctx}); err != nil {
		gtx.Rollback()
		return err
	}
	return gtx.Commit().Error
}

// gdb returns the gorm handle scoped to this transaction's context
// deadline, so a canceled or timed-out request aborts the query in
// flight instead of running it to completion.
func (t *Tx) gdb() *gorm.DB {
	if t.ctx != nil {
		return t.db.Set("gorm:context", t.ctx)
	}
	return t.db
}

// Reader returns a Reader bound to this transaction's connection and
// context, so callers inside a WithTx callback can use the read-only
// helpers (GetCampaign, HashList,...) and see their own uncommitted
// writes.
func (t *Tx) Reader() *Reader {
	return &Reader{db: t.db, ctx: t.ctx}
}

// Reader exposes read-only helpers usable both inside and outside a
// transaction (non-transactional reads go straight to s.db).
type Reader struct {
	db  *gorm.DB
	ctx context.Context
}

// Read returns a non-transactional Reader bound to ctx, for handlers that
// only need to look something up (e.g. GET /tasks/{id}).
func (s *Store) Read(ctx context.Context) *Reader {
	return &Reader{db: s.db, ctx: ctx}
}

func (r *Reader) gdb() *gorm.DB {
	if r.ctx != nil {
		return r.db.Set("gorm:context", r.ctx)
	}
	return r.db
}
