// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package assignment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/assignment"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/preemption"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
	"github.com/unclesp1d3r/cipherswarm/internal/storetest"
)

func seedProjectCampaignAttack(t *testing.T, st *store.Store, hashTypeID int) (*d.Project, *d.Attack) {
	ctx := context.Background()
	project := &d.Project{ID: d.NewID(), Name: "proj"}
	hashList := &d.HashList{ID: d.NewID(), Name: "list", HashTypeID: hashTypeID}
	campaign := &d.Campaign{ID: d.NewID(), ProjectID: project.ID, Name: "camp", Priority: d.PriorityNormal, HashListID: hashList.ID}
	attack := &d.Attack{ID: d.NewID(), CampaignID: campaign.ID, AttackMode: d.AttackModeDictionary, HashMode: hashTypeID, State: d.AttackPending}

	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateProject(project); err != nil {
			return err
		}
		if err := tx.CreateHashList(hashList); err != nil {
			return err
		}
		if err := tx.CreateCampaign(campaign); err != nil {
			return err
		}
		if err := tx.CreateAttack(attack); err != nil {
			return err
		}
		return tx.CreateHashItems([]*d.HashItem{{ID: d.NewID(), HashListID: hashList.ID, HashValue: []byte("h1")}})
	}))
	return project, attack
}

func seedAgent(t *testing.T, st *store.Store, project *d.Project, hashMode int, speed float64) *d.Agent {
	ctx := context.Background()
	agent := &d.Agent{ID: d.NewID(), Name: "agent", Token: "csa_x", ProjectIDs: []uuid.UUID{project.ID}, AllowedHashTypes: []int{hashMode}}
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateAgent(agent); err != nil {
			return err
		}
		return tx.ReplaceBenchmarks(agent.ID, []d.HashcatBenchmark{{Device: 0, HashType: hashMode, HashSpeed: speed, Runtime: 1}})
	}))
	return agent
}

func TestAssignCreatesNewTaskWhenThresholdMet(t *testing.T) {
	st := storetest.New(t)
	project, attack := seedProjectCampaignAttack(t, st, 1000)
	agent := seedAgent(t, st, project, 1000, 5000)

	svc := assignment.New(st, nil, nil, assignment.Thresholds{1000: 1000})
	task, err := svc.Assign(context.Background(), agent.ID)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, attack.ID, task.AttackID)
	assert.Equal(t, d.TaskPending, task.State)
}

func TestAssignReturnsNilBelowThreshold(t *testing.T) {
	st := storetest.New(t)
	project, _ := seedProjectCampaignAttack(t, st, 1000)
	agent := seedAgent(t, st, project, 1000, 10)

	svc := assignment.New(st, nil, nil, assignment.Thresholds{1000: 1000})
	task, err := svc.Assign(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Nil(t, task, "a benchmark below the configured threshold must not produce a task")
}

func TestAssignReusesExistingIncompleteTask(t *testing.T) {
	st := storetest.New(t)
	project, attack := seedProjectCampaignAttack(t, st, 1000)
	agent := seedAgent(t, st, project, 1000, 5000)

	svc := assignment.New(st, nil, nil, assignment.Thresholds{1000: 1000})
	first, err := svc.Assign(context.Background(), agent.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.Assign(context.Background(), agent.ID)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, attack.ID, second.AttackID)
}

func TestAssignNoProjectsYieldsNil(t *testing.T) {
	st := storetest.New(t)
	agent := &d.Agent{ID: d.NewID(), Name: "lonely", Token: "csa_y"}
	require.NoError(t, st.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.CreateAgent(agent)
	}))

	svc := assignment.New(st, nil, nil, nil)
	task, err := svc.Assign(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestAssignSkipsFailedTaskWithFatalErrorAndCreatesFresh(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	project, attack := seedProjectCampaignAttack(t, st, 1000)
	agent := seedAgent(t, st, project, 1000, 5000)

	var oldTask *d.Task
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		task, err := tx.CreateTask(attack.ID, agent.ID)
		if err != nil {
			return err
		}
		if err := tx.SetTaskState(task.ID, d.TaskFailed); err != nil {
			return err
		}
		if err := tx.InsertAgentError(&d.AgentError{
			AgentID: agent.ID, TaskID: &task.ID, Severity: d.SeverityFatal, Message: "device crashed",
		}); err != nil {
			return err
		}
		oldTask = task
		return nil
	}))

	svc := assignment.New(st, nil, nil, assignment.Thresholds{1000: 1000})
	task, err := svc.Assign(ctx, agent.ID)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.NotEqual(t, oldTask.ID, task.ID, "a failed task with a fatal error must not be handed back for retry")
	assert.Equal(t, d.TaskPending, task.State)
}

func TestAssignTriggersLivePreemptionOnBenchmarkMiss(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	project := &d.Project{ID: d.NewID(), Name: "proj"}
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		return tx.CreateProject(project)
	}))

	lowHashList := &d.HashList{ID: d.NewID(), Name: "low", HashTypeID: 1000}
	lowCampaign := &d.Campaign{ID: d.NewID(), ProjectID: project.ID, Name: "low", Priority: d.PriorityNormal, HashListID: lowHashList.ID}
	lowAttack := &d.Attack{ID: d.NewID(), CampaignID: lowCampaign.ID, AttackMode: d.AttackModeDictionary, HashMode: 1000, State: d.AttackRunning}
	lowAgent := seedAgent(t, st, project, 1000, 5000)

	highHashList := &d.HashList{ID: d.NewID(), Name: "high", HashTypeID: 2000}
	highCampaign := &d.Campaign{ID: d.NewID(), ProjectID: project.ID, Name: "high", Priority: d.PriorityHigh, HashListID: highHashList.ID}
	highAttack := &d.Attack{ID: d.NewID(), CampaignID: highCampaign.ID, AttackMode: d.AttackModeDictionary, HashMode: 2000, State: d.AttackPending}

	var lowTask *d.Task
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateHashList(lowHashList); err != nil {
			return err
		}
		if err := tx.CreateCampaign(lowCampaign); err != nil {
			return err
		}
		if err := tx.CreateAttack(lowAttack); err != nil {
			return err
		}
		if err := tx.CreateHashList(highHashList); err != nil {
			return err
		}
		if err := tx.CreateCampaign(highCampaign); err != nil {
			return err
		}
		if err := tx.CreateAttack(highAttack); err != nil {
			return err
		}
		if err := tx.CreateHashItems([]*d.HashItem{{ID: d.NewID(), HashListID: highHashList.ID, HashValue: []byte("h1")}}); err != nil {
			return err
		}
		task, err := tx.CreateTask(lowAttack.ID, lowAgent.ID)
		if err != nil {
			return err
		}
		if err := tx.SetTaskState(task.ID, d.TaskRunning); err != nil {
			return err
		}
		if err := tx.SetAgentState(lowAgent.ID, d.AgentActive); err != nil {
			return err
		}
		lowTask = task
		return nil
	}))

	underBenchedAgent := &d.Agent{
		ID: d.NewID(), Name: "under-benched", Token: "csa_z",
		ProjectIDs: []uuid.UUID{project.ID}, AllowedHashTypes: []int{2000},
	}
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateAgent(underBenchedAgent); err != nil {
			return err
		}
		return tx.ReplaceBenchmarks(underBenchedAgent.ID, []d.HashcatBenchmark{{Device: 0, HashType: 2000, HashSpeed: 10, Runtime: 1}})
	}))

	progress := func(context.Context, *d.Task) (float64, error) { return 0.3, nil }
	pre := preemption.New(st, progress, 0.5, 3)
	svc := assignment.New(st, nil, pre, assignment.Thresholds{2000: 1000})

	_, err := svc.Assign(ctx, underBenchedAgent.ID)
	require.NoError(t, err, "an agent that never clears the benchmark threshold gets no task, not an error")

	gotLowTask, err := st.Read(ctx).GetTask(lowTask.ID)
	require.NoError(t, err)
	assert.Equal(t, d.TaskPending, gotLowTask.State, "GET /tasks/new failing its benchmark check must preempt the lower-priority running task in its own project")
	assert.True(t, gotLowTask.Stale)
	assert.Equal(t, 1, gotLowTask.PreemptionCount)
}
