// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package store

import (
	"encoding/json"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/apierr"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
)

// GetAgent is a plain read.
func (r *Reader) GetAgent(id uuid.UUID) (*d.Agent, error) {
	var g gormAgent
	err := r.gdb().Where("id = ?", id).First(&g).Error
	if errNoRows(err) {
		return nil, apierr.NotFound("agent not found")
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// GetAgentByToken resolves the bearer token to an Agent, the
// authentication lookup every C9 handler performs first.
func (r *Reader) GetAgentByToken(token string) (*d.Agent, error) {
	var g gormAgent
	err := r.gdb().Where("token = ?", token).First(&g).Error
	if errNoRows(err) {
		return nil, apierr.AuthFailure("unknown agent token")
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// LockAgent row-locks the agent for state transitions.
func (t *Tx) LockAgent(id uuid.UUID) (*d.Agent, error) {
	var g gormAgent
	err := t.gdb().Set("gorm:query_option", "FOR UPDATE").Where("id = ?", id).First(&g).Error
	if errNoRows(err) {
		return nil, apierr.NotFound("agent not found")
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// SaveAgent upserts the agent row.
func (t *Tx) SaveAgent(a *d.Agent) error {
	a.UpdatedAt = time.Now()
	return t.gdb().Save(fromDomainAgent(a)).Error
}

// CreateAgent inserts a new agent row in the pending state.
func (t *Tx) CreateAgent(a *d.Agent) error {
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.State == "" {
		a.State = d.AgentPending
	}
	return t.gdb().Create(fromDomainAgent(a)).Error
}

// TouchLastSeen bumps last_seen_at=now, heartbeat effect.
func (t *Tx) TouchLastSeen(id uuid.UUID, at time.Time) error {
	return t.gdb().Model(&gormAgent{}).Where("id = ?", id).Update("last_seen_at", at).Error
}

// SetAgentState transitions the agent's state column.
func (t *Tx) SetAgentState(id uuid.UUID, state d.AgentState) error {
	return t.gdb().Model(&gormAgent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"state": string(state), "updated_at": time.Now()}).Error
}

// AgentsLastSeenBefore lists agents whose last_seen_at predates cutoff and
// who are not already offline, used by maintenance's offline-detection
// step.
func (r *Reader) AgentsLastSeenBefore(cutoff time.Time) ([]*d.Agent, error) {
	var rows []gormAgent
	err := r.gdb().
		Where("state != ? AND (last_seen_at IS NULL OR last_seen_at < ?)", string(d.AgentOffline), cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*d.Agent, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// ReplaceBenchmarks atomically replaces the full benchmark set for
// agentID, HashcatBenchmark invariant ("Set is replaced atomically
// on each benchmark submission").
func (t *Tx) ReplaceBenchmarks(agentID uuid.UUID, benches []d.HashcatBenchmark) error {
	if err := t.gdb().Where("agent_id = ?", agentID).Delete(&gormBenchmark{}).Error; err != nil {
		return err
	}
	now := time.Now()
	for _, b := range benches {
		row := &gormBenchmark{
			ID: d.NewID(), AgentID: agentID, Device: b.Device, HashType: b.HashType,
			HashSpeed: b.HashSpeed, Runtime: b.Runtime, CreatedAt: now,
		}
		if err := t.gdb().Create(row).Error; err != nil {
			return err
		}
	}
	return nil
}

// FastestBenchmark returns the highest hash_speed recorded for agentID at
// hashType across all devices, used by the assignment eligibility check.
func (r *Reader) FastestBenchmark(agentID uuid.UUID, hashType int) (float64, bool, error) {
	var out struct{ Max *float64 }
	err := r.gdb().Model(&gormBenchmark{}).Select("max(hash_speed) as max").
		Where("agent_id = ? AND hash_type = ?", agentID, hashType).Scan(&out).Error
	if err != nil {
		return 0, false, err
	}
	if out.Max == nil {
		return 0, false, nil
	}
	return *out.Max, true, nil
}

// FastestBenchmarkForHashMode returns the fastest hash_speed across all
// agents for hashType, used by total_eta pending-attack term
// ("complexity_value / fastest_benchmark_speed(attack.hash_mode)").
func (r *Reader) FastestBenchmarkForHashMode(hashType int) (float64, bool, error) {
	var out struct{ Max *float64 }
	err := r.gdb().Model(&gormBenchmark{}).Select("max(hash_speed) as max").
		Where("hash_type = ?", hashType).Scan(&out).Error
	if err != nil {
		return 0, false, err
	}
	if out.Max == nil {
		return 0, false, nil
	}
	return *out.Max, true, nil
}

// InsertAgentError records one AgentError row, the submit_error effect.
func (t *Tx) InsertAgentError(e *d.AgentError) error {
	e.ID = d.NewID()
	e.CreatedAt = time.Now()
	meta := "{}"
	if e.Metadata != nil {
		if b, err := marshalMetadata(e.Metadata); err == nil {
			meta = b
		}
	}
	row := &gormAgentError{
		ID: e.ID, AgentID: e.AgentID, TaskID: e.TaskID,
		Severity: string(e.Severity), Message: e.Message, Metadata: meta, CreatedAt: e.CreatedAt,
	}
	return t.gdb().Create(row).Error
}

// DeleteAgentErrorsOlderThan enforces AgentError retention.
func (t *Tx) DeleteAgentErrorsOlderThan(cutoff time.Time) (int64, error) {
	res := t.gdb().Where("created_at < ?", cutoff).Delete(&gormAgentError{})
	return res.RowsAffected, res.Error
}

func marshalMetadata(m map[string]interface{}) (string, error) {
	b, err := json.Marshal(m)
	return string(b), err
}
