// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package storetest provides the in-memory sqlite-backed store used by
// every package's tests: a throwaway database instance per test rather
// than mocking the store interface.
package storetest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/unclesp1d3r/cipherswarm/internal/store"
)

var dbSeq int64

// New opens a fresh sqlite3 in-memory store, migrates its schema, and
// registers tb.Cleanup to close it. Each call gets its own named shared
// cache so every connection gorm opens against the pool sees the same
// database, but distinct calls never collide: the sqlite3 driver's bare
// ":memory:" DSN hands different connections in the same pool distinct
// empty databases, which breaks as soon as gorm issues concurrent
// queries over more than one pooled connection.
func New(tb testing.TB) *store.Store {
	tb.Helper()
	id := atomic.AddInt64(&dbSeq, 1)
	dsn := fmt.Sprintf("file:storetest_%d?mode=memory&cache=shared", id)
	st, err := store.Open("sqlite3", dsn)
	if err != nil {
		tb.Fatalf("opening test store: %v", err)
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		tb.Fatalf("migrating test store: %v", err)
	}
	tb.Cleanup(func() { st.Close() })
	return st
}
