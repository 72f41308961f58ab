// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package integration_test exercises complete request flows across
// service boundaries: agentapi's HTTP surface wired to real
// assignment/crackservice/statusservice instances over a sqlite-backed
// store, plus the maintenance loop and health checker driven directly.
package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/agentapi"
	"github.com/unclesp1d3r/cipherswarm/internal/assignment"
	"github.com/unclesp1d3r/cipherswarm/internal/crackservice"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/health"
	"github.com/unclesp1d3r/cipherswarm/internal/maintenance"
	"github.com/unclesp1d3r/cipherswarm/internal/preemption"
	"github.com/unclesp1d3r/cipherswarm/internal/statusservice"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
	"github.com/unclesp1d3r/cipherswarm/internal/storetest"
)

func newAgent(t *testing.T, st *store.Store, name string) *d.Agent {
	t.Helper()
	agent := &d.Agent{ID: d.NewID(), Name: name, Token: "csa_" + d.NewID().String() + "_secret"}
	require.NoError(t, st.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.CreateAgent(agent)
	}))
	return agent
}

func newProject(t *testing.T, st *store.Store) *d.Project {
	t.Helper()
	project := &d.Project{ID: d.NewID(), Name: "proj-" + d.NewID().String()}
	require.NoError(t, st.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.CreateProject(project)
	}))
	return project
}

func newProjectCampaignAttack(t *testing.T, st *store.Store, priority d.CampaignPriority, hashType, hashMode int, items int) (*d.Project, *d.Campaign, *d.Attack, *d.HashList) {
	t.Helper()
	project := newProject(t, st)
	campaign, attack, hashList := newCampaignAttackInProject(t, st, project.ID, priority, hashType, hashMode, items)
	return project, campaign, attack, hashList
}

func newCampaignAttackInProject(t *testing.T, st *store.Store, projectID uuid.UUID, priority d.CampaignPriority, hashType, hashMode int, items int) (*d.Campaign, *d.Attack, *d.HashList) {
	t.Helper()
	hashList := &d.HashList{ID: d.NewID(), Name: "list", HashTypeID: hashType}
	campaign := &d.Campaign{ID: d.NewID(), ProjectID: projectID, Name: "camp", Priority: priority, HashListID: hashList.ID}
	attack := &d.Attack{ID: d.NewID(), CampaignID: campaign.ID, AttackMode: d.AttackModeDictionary, HashMode: hashMode, State: d.AttackPending}

	require.NoError(t, st.WithTx(context.Background(), func(tx *store.Tx) error {
		if err := tx.CreateHashList(hashList); err != nil {
			return err
		}
		if err := tx.CreateCampaign(campaign); err != nil {
			return err
		}
		if err := tx.CreateAttack(attack); err != nil {
			return err
		}
		hashItems := make([]*d.HashItem, items)
		for i := range hashItems {
			hashItems[i] = &d.HashItem{ID: d.NewID(), HashListID: hashList.ID, HashValue: []byte(uuid.NewV4().String())}
		}
		return tx.CreateHashItems(hashItems)
	}))
	return campaign, attack, hashList
}

func authorizeAgentForAttack(t *testing.T, st *store.Store, agentID, projectID uuid.UUID, hashType, hashMode int, speed float64) {
	t.Helper()
	require.NoError(t, st.WithTx(context.Background(), func(tx *store.Tx) error {
		agent, err := tx.LockAgent(agentID)
		if err != nil {
			return err
		}
		agent.ProjectIDs = append(agent.ProjectIDs, projectID)
		agent.AllowedHashTypes = append(agent.AllowedHashTypes, hashType)
		if err := tx.SaveAgent(agent); err != nil {
			return err
		}
		return tx.ReplaceBenchmarks(agentID, []d.HashcatBenchmark{{Device: 0, HashType: hashMode, HashSpeed: speed, Runtime: 1}})
	}))
}

// TestHappyAssignmentAcceptsTaskAndAttackRuns seeds a single agent into a
// project with one pending attack and drives request_task -> accept_task
// over the real REST handlers, checking the attack transitions to
// running.
func TestHappyAssignmentAcceptsTaskAndAttackRuns(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	agent := newAgent(t, st, "A1")
	project, _, attack, _ := newProjectCampaignAttack(t, st, d.PriorityNormal, 1000, 1000, 10)
	authorizeAgentForAttack(t, st, agent.ID, project.ID, 1000, 1000, 5000)

	srv := agentapi.New(agentapi.Config{
		Store:  st,
		Crack:  crackservice.New(st, nil),
		Status: statusservice.New(st),
		Assign: assignment.New(st, nil, nil, assignment.Thresholds{1000: 1000}),
	}).Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/client/tasks/new", nil)
	req.Header.Set("Authorization", "Bearer "+agent.Token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var task d.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	require.Equal(t, attack.ID, task.AttackID)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/client/tasks/"+task.ID.String()+"/accept_task", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+agent.Token)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	gotAttack, err := st.Read(ctx).GetAttack(attack.ID)
	require.NoError(t, err)
	assert.Equal(t, d.AttackRunning, gotAttack.State)
}

// TestRebalancingPreemptsLowerPriorityRunningTask seeds a running
// normal-priority task at partial progress alongside a not-yet-started
// high-priority attack in the same project, runs one maintenance tick,
// and checks the lower-priority task was forced back to pending with
// preemption_count bumped, freeing it for the high-priority attack.
func TestRebalancingPreemptsLowerPriorityRunningTask(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	project := newProject(t, st)

	lowAgent := newAgent(t, st, "low-priority-runner")
	_, lowAttack, _ := newCampaignAttackInProject(t, st, project.ID, d.PriorityNormal, 1000, 1000, 10)
	authorizeAgentForAttack(t, st, lowAgent.ID, project.ID, 1000, 1000, 5000)

	_, highAttack, _ := newCampaignAttackInProject(t, st, project.ID, d.PriorityHigh, 1000, 1000, 5)

	var lowTask *d.Task
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
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

	highAgent := newAgent(t, st, "high-priority-runner")
	authorizeAgentForAttack(t, st, highAgent.ID, project.ID, 1000, 1000, 9000)

	progress := func(context.Context, *d.Task) (float64, error) { return 0.3, nil }
	pre := preemption.New(st, progress, 0.5, 3)
	loop := maintenance.New(st, pre, maintenance.Config{
		AgentOfflineSeconds: time.Hour,
		TaskAbandonSeconds:  time.Hour,
		NStatusKeep:         10,
	}, nil)

	loop.Tick(ctx)

	gotLowTask, err := st.Read(ctx).GetTask(lowTask.ID)
	require.NoError(t, err)
	assert.Equal(t, d.TaskPending, gotLowTask.State)
	assert.True(t, gotLowTask.Stale)
	assert.Equal(t, 1, gotLowTask.PreemptionCount)

	assign := assignment.New(st, nil, nil, assignment.Thresholds{1000: 1000})
	newHighTask, err := assign.Assign(ctx, highAgent.ID)
	require.NoError(t, err)
	require.NotNil(t, newHighTask)
	assert.Equal(t, highAttack.ID, newHighTask.AttackID)
}

// TestCrackPropagatesAcrossSharedHashType submits a crack against one
// hash list and checks the matching item in a second hash list sharing
// the same hash_type_id is cracked too, with sibling tasks on either
// list marked stale.
func TestCrackPropagatesAcrossSharedHashType(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	sharedValue := []byte("0x5f4dcc3b5aa765d61d8327deb882cf99")

	agentA := newAgent(t, st, "A")
	projectA, _, attackA, hashListA := newProjectCampaignAttack(t, st, d.PriorityNormal, 0, 0, 0)
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		return tx.CreateHashItems([]*d.HashItem{{ID: d.NewID(), HashListID: hashListA.ID, HashValue: sharedValue}})
	}))

	agentB := newAgent(t, st, "B")
	projectB, _, attackB, hashListB := newProjectCampaignAttack(t, st, d.PriorityNormal, 0, 0, 0)
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		return tx.CreateHashItems([]*d.HashItem{{ID: d.NewID(), HashListID: hashListB.ID, HashValue: sharedValue}})
	}))
	_ = projectA
	_ = projectB

	var taskA, taskB *d.Task
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		taskA, err = tx.CreateTask(attackA.ID, agentA.ID)
		if err != nil {
			return err
		}
		if err := tx.SetTaskState(taskA.ID, d.TaskRunning); err != nil {
			return err
		}
		taskB, err = tx.CreateTask(attackB.ID, agentB.ID)
		if err != nil {
			return err
		}
		return tx.SetTaskState(taskB.ID, d.TaskRunning)
	}))

	crack := crackservice.New(st, nil)
	res, err := crack.SubmitCrack(ctx, taskA.ID, sharedValue, "password", time.Now())
	require.NoError(t, err)
	assert.False(t, res.AlreadyCracked)

	itemB, err := st.Read(ctx).UncrackedCount(hashListB.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, itemB, "the item sharing the hash value in the second list should now be cracked")

	gotTaskB, err := st.Read(ctx).GetTask(taskB.ID)
	require.NoError(t, err)
	assert.True(t, gotTaskB.Stale, "the sibling task on the other hash list should be marked stale")
}

// TestStaleTaskStatusThenGetZapsClearsStale drives submit_status against
// a task already marked stale (expecting 202 Accepted), then get_zaps and
// checks task.stale flips back to false.
func TestStaleTaskStatusThenGetZapsClearsStale(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	agent := newAgent(t, st, "A1")
	project, _, attack, _ := newProjectCampaignAttack(t, st, d.PriorityNormal, 1000, 1000, 10)
	authorizeAgentForAttack(t, st, agent.ID, project.ID, 1000, 1000, 5000)

	var task *d.Task
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		task, err = tx.CreateTask(attack.ID, agent.ID)
		if err != nil {
			return err
		}
		if err := tx.SetTaskState(task.ID, d.TaskRunning); err != nil {
			return err
		}
		return tx.SetTaskStale(task.ID, true)
	}))

	srv := agentapi.New(agentapi.Config{
		Store:  st,
		Crack:  crackservice.New(st, nil),
		Status: statusservice.New(st),
		Assign: assignment.New(st, nil, nil, nil),
	}).Handler()

	statusBody := `{"session":"sess","time_start":1,"progress":[1,100],"devices":[{"device_id":0,"speed":1000}],"hashcat_guess":{"guess_base":"?a?a"}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/client/tasks/"+task.ID.String()+"/submit_status", strings.NewReader(statusBody))
	req.Header.Set("Authorization", "Bearer "+agent.Token)
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/client/tasks/"+task.ID.String()+"/get_zaps", nil)
	req.Header.Set("Authorization", "Bearer "+agent.Token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	gotTask, err := st.Read(ctx).GetTask(task.ID)
	require.NoError(t, err)
	assert.False(t, gotTask.Stale)
}

// TestAgentOfflineThenHeartbeatReturnsToPending seeds an active agent
// whose last_seen_at has fallen behind the offline cutoff, runs a
// maintenance tick, and checks a subsequent heartbeat surfaces the
// pending state until a benchmark is submitted.
func TestAgentOfflineThenHeartbeatReturnsToPending(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	agent := newAgent(t, st, "A1")
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.SetAgentState(agent.ID, d.AgentActive); err != nil {
			return err
		}
		return tx.TouchLastSeen(agent.ID, time.Now().Add(-time.Hour))
	}))

	loop := maintenance.New(st, nil, maintenance.Config{
		AgentOfflineSeconds: time.Minute,
		TaskAbandonSeconds:  time.Hour,
		NStatusKeep:         10,
	}, nil)
	loop.Tick(ctx)

	gotAgent, err := st.Read(ctx).GetAgent(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, d.AgentOffline, gotAgent.State)

	srv := agentapi.New(agentapi.Config{
		Store:  st,
		Crack:  crackservice.New(st, nil),
		Status: statusservice.New(st),
		Assign: assignment.New(st, nil, nil, nil),
	}).Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/client/agents/"+agent.ID.String()+"/heartbeat", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+agent.Token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(d.AgentPending), body["state"])

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/client/agents/"+agent.ID.String()+"/submit_benchmark", strings.NewReader(
		`{"hashcat_benchmarks":[{"device":0,"hash_speed":1000,"hash_type":1000,"runtime":1}]}`))
	req.Header.Set("Authorization", "Bearer "+agent.Token)
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/client/agents/"+agent.ID.String()+"/heartbeat", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+agent.Token)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// TestHealthCheckCollapsesConcurrentCallers fires a burst of concurrent
// Check calls against a cold cache and checks the underlying probes ran
// far fewer times than there were callers.
func TestHealthCheckCollapsesConcurrentCallers(t *testing.T) {
	var probeCalls int64
	slowProbe := func(ctx context.Context) health.Probe {
		atomic.AddInt64(&probeCalls, 1)
		time.Sleep(20 * time.Millisecond)
		return health.Probe{Status: health.StatusHealthy}
	}

	checker := health.New(health.Config{
		Store:       slowProbe,
		Cache:       slowProbe,
		ObjectStore: slowProbe,
		Queue:       slowProbe,
		TTL:         time.Minute,
	}, nil)

	const callers = 100
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			rep, err := checker.Check(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, health.StatusHealthy, rep.Store.Status)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(4), atomic.LoadInt64(&probeCalls),
		"singleflight should collapse all concurrent cold-cache callers into one probe run")
}
