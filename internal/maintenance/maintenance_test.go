// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
	"github.com/unclesp1d3r/cipherswarm/internal/storetest"
)

func TestOfflineDetectionMarksStaleAgents(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	agent := &d.Agent{ID: d.NewID(), Name: "silent", Token: "csa_" + d.NewID().String()}
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateAgent(agent); err != nil {
			return err
		}
		if err := tx.SetAgentState(agent.ID, d.AgentActive); err != nil {
			return err
		}
		return tx.TouchLastSeen(agent.ID, time.Now().Add(-time.Hour))
	}))

	loop := New(st, nil, Config{AgentOfflineSeconds: time.Minute}, nil)
	n, err := loop.offlineDetection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.Read(ctx).GetAgent(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, d.AgentOffline, got.State)
}

func TestAbandonmentDeletesStaleRunningTasks(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	var task *d.Task
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		task, err = tx.CreateTask(d.NewID(), d.NewID())
		if err != nil {
			return err
		}
		if err := tx.SetTaskState(task.ID, d.TaskRunning); err != nil {
			return err
		}
		return tx.TouchActivity(task.ID, time.Now().Add(-time.Hour))
	}))

	loop := New(st, nil, Config{TaskAbandonSeconds: time.Minute}, nil)
	n, err := loop.abandonment(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = st.Read(ctx).GetTask(task.ID)
	assert.Error(t, err, "the abandoned task row should be gone")
}

func TestRetentionPrunesOldAgentErrorsAndAuditRecords(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	agentID := d.NewID()
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertAgentError(&d.AgentError{AgentID: agentID, Severity: d.SeverityInfo, Message: "old"}); err != nil {
			return err
		}
		return tx.InsertAuditRecord(&d.AuditRecord{Entity: "Agent", EntityID: agentID, From: "pending", To: "active", Event: "heartbeat"})
	}))

	loop := New(st, nil, Config{RetentionAgentErrors: -time.Hour, RetentionAudit: -time.Hour}, nil)
	n, err := loop.retention(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "a negative retention window should mean everything just inserted predates the cutoff")
}

type recordingPublisher struct{ summaries []TickSummary }

func (p *recordingPublisher) Publish(s TickSummary) { p.summaries = append(p.summaries, s) }

func TestTickPublishesSummaryWithoutFailures(t *testing.T) {
	st := storetest.New(t)
	pub := &recordingPublisher{}
	loop := New(st, nil, Config{AgentOfflineSeconds: time.Hour, TaskAbandonSeconds: time.Hour, NStatusKeep: 1, RetentionAgentErrors: time.Hour, RetentionAudit: time.Hour}, pub)

	loop.tick(context.Background())
	require.Len(t, pub.summaries, 1)
	assert.Empty(t, pub.summaries[0].Failures)
}
