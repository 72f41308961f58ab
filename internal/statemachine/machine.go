// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package statemachine implements the declarative transition tables.
// Transitions are looked up by (state, event); an unlisted event on a state
// fails with apierr.InvalidTransition, a check-before-mutate guard
// generalized into a table instead of one-off if-chains.
package statemachine

import (
	"fmt"

	"github.com/unclesp1d3r/cipherswarm/internal/apierr"
)

// Table maps (state, event) -> next state for one entity kind.
type Table map[string]map[string]string

// Machine evaluates Table lookups and reports idempotent self-transitions.
type Machine struct {
	Entity string
	Table  Table
}

// New constructs a Machine for the given entity name and transition table.
func New(entity string, table Table) *Machine {
	return &Machine{Entity: entity, Table: table}
}

// Next returns the state that `from` moves to on `event`, or an
// InvalidTransition error if the table has no entry for it. A transition
// back onto the same state is reported via idempotent=true so callers can
// short-circuit as a no-op success per the idempotence rule.
func (m *Machine) Next(from, event string) (to string, idempotent bool, err error) {
	events, ok := m.Table[from]
	if !ok {
		return "", false, apierr.InvalidTransition(
			fmt.Sprintf("%s: no transitions defined from state %q", m.Entity, from))
	}
	to, ok = events[event]
	if !ok {
		return "", false, apierr.InvalidTransition(
			fmt.Sprintf("%s: event %q not valid from state %q", m.Entity, event, from))
	}
	return to, to == from, nil
}

// Allows reports whether `event` is legal from `from` without computing
// the destination, used by read-side guards (e.g. "is this attack
// preemptable").
func (m *Machine) Allows(from, event string) bool {
	_, ok := m.Table[from][event]
	return ok
}
