// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package agentapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/agentapi"
	"github.com/unclesp1d3r/cipherswarm/internal/assignment"
	"github.com/unclesp1d3r/cipherswarm/internal/crackservice"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/statusservice"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
	"github.com/unclesp1d3r/cipherswarm/internal/storetest"
)

type harness struct {
	st     *store.Store
	srv    http.Handler
	agent  *d.Agent
	token  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := storetest.New(t)

	agent := &d.Agent{ID: d.NewID(), Name: "runner"}
	agent.Token = "csa_" + agent.ID.String() + "_secret"
	require.NoError(t, st.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.CreateAgent(agent)
	}))

	s := agentapi.New(agentapi.Config{
		Store:  st,
		Crack:  crackservice.New(st, nil),
		Status: statusservice.New(st),
		Assign: assignment.New(st, nil, nil, assignment.Thresholds{1000: 1000}),
	})
	return &harness{st: st, srv: s.Handler(), agent: agent, token: agent.Token}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}, withAuth bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if withAuth {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func TestUnauthenticatedRequestIsRejected(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/client/configuration", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConfigurationHappyPath(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/client/configuration", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAndUpdateAgent(t *testing.T) {
	h := newHarness(t)
	path := "/api/v1/client/agents/" + h.agent.ID.String()

	rec := h.do(t, http.MethodGet, path, nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPut, path, map[string]interface{}{
		"name":             "renamed",
		"client_signature": "sig",
		"operating_system": "linux",
		"devices":          []d.Device{},
	}, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := h.st.Read(context.Background()).GetAgent(h.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
}

func TestHeartbeatActiveReturnsNoContent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.st.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.SetAgentState(h.agent.ID, d.AgentActive)
	}))

	rec := h.do(t, http.MethodPost, "/api/v1/client/agents/"+h.agent.ID.String()+"/heartbeat", nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHeartbeatFromPendingReturnsState(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/client/agents/"+h.agent.ID.String()+"/heartbeat", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["state"])
}

func TestSubmitBenchmark(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/client/agents/"+h.agent.ID.String()+"/submit_benchmark", map[string]interface{}{
		"hashcat_benchmarks": []map[string]interface{}{
			{"device": 0, "hash_speed": 1000.0, "hash_type": 1000, "runtime": 1},
		},
	}, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSubmitBenchmarkRejectsEmpty(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/client/agents/"+h.agent.ID.String()+"/submit_benchmark",
		map[string]interface{}{"hashcat_benchmarks": []map[string]interface{}{}}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func seedAssignableAttack(t *testing.T, st *store.Store, agentID uuid.UUID) {
	t.Helper()
	project := &d.Project{ID: d.NewID(), Name: "proj"}
	hashList := &d.HashList{ID: d.NewID(), Name: "list", HashTypeID: 1000}
	campaign := &d.Campaign{ID: d.NewID(), ProjectID: project.ID, Name: "camp", Priority: d.PriorityNormal, HashListID: hashList.ID}
	attack := &d.Attack{ID: d.NewID(), CampaignID: campaign.ID, AttackMode: d.AttackModeDictionary, HashMode: 1000, State: d.AttackPending}

	require.NoError(t, st.WithTx(context.Background(), func(tx *store.Tx) error {
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
		if err := tx.CreateHashItems([]*d.HashItem{{ID: d.NewID(), HashListID: hashList.ID, HashValue: []byte("h1")}}); err != nil {
			return err
		}
		agent, err := tx.LockAgent(agentID)
		if err != nil {
			return err
		}
		agent.ProjectIDs = []uuid.UUID{project.ID}
		agent.AllowedHashTypes = []int{1000}
		if err := tx.SaveAgent(agent); err != nil {
			return err
		}
		return tx.ReplaceBenchmarks(agentID, []d.HashcatBenchmark{{Device: 0, HashType: 1000, HashSpeed: 5000, Runtime: 1}})
	}))
}

func TestTaskAssignmentAndCrackFlow(t *testing.T) {
	h := newHarness(t)
	seedAssignableAttack(t, h.st, h.agent.ID)

	rec := h.do(t, http.MethodGet, "/api/v1/client/tasks/new", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var task d.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	require.NotEqual(t, uuid.Nil, task.ID)

	rec = h.do(t, http.MethodPost, "/api/v1/client/tasks/"+task.ID.String()+"/accept_task", nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/client/tasks/"+task.ID.String()+"/submit_crack", map[string]interface{}{
		"hash":       "h1",
		"plain_text": "password1",
		"timestamp":  1234,
	}, true)
	assert.Equal(t, http.StatusNoContent, rec.Code, "the last uncracked item completing the attack should report task completion")
}

func TestSubmitStatusClassifications(t *testing.T) {
	h := newHarness(t)
	seedAssignableAttack(t, h.st, h.agent.ID)

	rec := h.do(t, http.MethodGet, "/api/v1/client/tasks/new", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var task d.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))

	require.NoError(t, h.st.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.SetTaskState(task.ID, d.TaskRunning)
	}))

	statusBody := map[string]interface{}{
		"session":    "sess",
		"time_start": 1234,
		"progress":   [2]int64{50, 100},
		"devices":    []d.DeviceStatus{{DeviceID: 0, Speed: 1000}},
		"hashcat_guess": map[string]interface{}{
			"guess_base": "?a?a?a?a",
		},
	}
	rec = h.do(t, http.MethodPost, "/api/v1/client/tasks/"+task.ID.String()+"/submit_status", statusBody, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	require.NoError(t, h.st.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.SetTaskStale(task.ID, true)
	}))
	rec = h.do(t, http.MethodPost, "/api/v1/client/tasks/"+task.ID.String()+"/submit_status", statusBody, true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
