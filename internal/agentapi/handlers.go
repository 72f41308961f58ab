// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package agentapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/statemachine"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
)

// handleConfiguration implements `GET /configuration`.
func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"advanced_agent_configuration": map[string]interface{}{},
		"api_version":                  1,
	})
}

// handleGetAgent implements `GET /agents/{id}`.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid agent id", nil)
		return
	}
	agent, err := s.store.Read(r.Context()).GetAgent(id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// handleUpdateAgent implements `PUT /agents/{id}`.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid agent id", nil)
		return
	}
	var body struct {
		Name            string      `json:"name"`
		ClientSignature string      `json:"client_signature"`
		OperatingSystem string      `json:"operating_system"`
		Devices         []d.Device  `json:"devices"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeAPIError(w, err)
		return
	}

	err = s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		agent, err := tx.LockAgent(id)
		if err != nil {
			return err
		}
		agent.Name, agent.ClientSignature, agent.OperatingSystem, agent.Devices = body.Name, body.ClientSignature, body.OperatingSystem, body.Devices
		return tx.SaveAgent(agent)
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleHeartbeat implements `POST /agents/{id}/heartbeat`.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid agent id", nil)
		return
	}

	var newState d.AgentState
	err = s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		agent, err := tx.LockAgent(id)
		if err != nil {
			return err
		}
		to, _, err := statemachine.AgentMachine.Next(string(agent.State), statemachine.EventAgentHeartbeat)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := tx.TouchLastSeen(id, now); err != nil {
			return err
		}
		if to != string(agent.State) {
			if err := tx.SetAgentState(id, d.AgentState(to)); err != nil {
				return err
			}
			_ = tx.InsertAuditRecord(&d.AuditRecord{Entity: "Agent", EntityID: id, From: string(agent.State), To: to, Event: statemachine.EventAgentHeartbeat})
		}
		newState = d.AgentState(to)
		return nil
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}

	if newState == d.AgentActive {
		noContent(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(newState)})
}

// handleSubmitBenchmark implements `POST /agents/{id}/submit_benchmark`.
func (s *Server) handleSubmitBenchmark(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid agent id", nil)
		return
	}
	var body benchmarkRequest
	if err := decodeJSON(r, &body); err != nil {
		writeAPIError(w, err)
		return
	}
	if len(body.HashcatBenchmarks) == 0 {
		writeError(w, http.StatusBadRequest, "hashcat_benchmarks must not be empty", nil)
		return
	}

	benches := make([]d.HashcatBenchmark, len(body.HashcatBenchmarks))
	for i, b := range body.HashcatBenchmarks {
		benches[i] = d.HashcatBenchmark{Device: b.Device, HashType: b.HashType, HashSpeed: b.HashSpeed, Runtime: b.Runtime}
	}

	err = s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		agent, err := tx.LockAgent(id)
		if err != nil {
			return err
		}
		if err := tx.ReplaceBenchmarks(id, benches); err != nil {
			return err
		}
		to, _, err := statemachine.AgentMachine.Next(string(agent.State), statemachine.EventAgentBenchmark)
		if err != nil {
			return err
		}
		if to != string(agent.State) {
			if err := tx.SetAgentState(id, d.AgentState(to)); err != nil {
				return err
			}
			_ = tx.InsertAuditRecord(&d.AuditRecord{Entity: "Agent", EntityID: id, From: string(agent.State), To: to, Event: statemachine.EventAgentBenchmark})
		}
		return nil
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if s.assign != nil {
		s.assign.InvalidateAllowedHashTypes(id)
	}
	noContent(w)
}

// handleSubmitError implements `POST /agents/{id}/submit_error`.
func (s *Server) handleSubmitError(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid agent id", nil)
		return
	}
	var body errorRequest
	if err := decodeJSON(r, &body); err != nil {
		writeAPIError(w, err)
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusBadRequest, "message required", nil)
		return
	}

	ae := &d.AgentError{
		AgentID: id, Severity: d.NormalizeSeverity(body.Severity), Message: body.Message, Metadata: body.Metadata,
	}
	if body.TaskID != nil {
		tid, err := parseUUID(*body.TaskID)
		if err == nil {
			ae.TaskID = &tid
		}
	}

	err = s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		return tx.InsertAgentError(ae)
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	noContent(w)
}

// handleShutdown implements `POST /agents/{id}/shutdown`.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid agent id", nil)
		return
	}
	err = s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		agent, err := tx.LockAgent(id)
		if err != nil {
			return err
		}
		if err := tx.SetAgentState(id, d.AgentStopped); err != nil {
			return err
		}
		return tx.InsertAuditRecord(&d.AuditRecord{Entity: "Agent", EntityID: id, From: string(agent.State), To: string(d.AgentStopped), Event: statemachine.EventAgentStop})
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	noContent(w)
}

// handleCheckForCrackerUpdate implements `GET /crackers/check_for_cracker_update`.
func (s *Server) handleCheckForCrackerUpdate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"available":      false,
		"latest_version": r.URL.Query().Get("version"),
		"download_url":   "",
		"exec_name":      "",
		"message":        "up to date",
	})
}

// handleGetAttack implements `GET /attacks/{id}`.
func (s *Server) handleGetAttack(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid attack id", nil)
		return
	}
	attack, err := s.store.Read(r.Context()).GetAttack(id)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	view := map[string]interface{}{"attack": attack}
	if s.resolver != nil && attack.WordlistID != nil {
		agent := agentFromContext(r.Context())
		if agent != nil && len(agent.ProjectIDs) > 0 {
			if res, err := s.resolver.Resolve(r.Context(), *attack.WordlistID, agent.ProjectIDs[0]); err == nil {
				view["wordlist"] = res
			}
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// handleAttackHashList implements `GET /attacks/{id}/hash_list`, streaming
// hash_list.uncracked_list as newline-delimited raw hashes.
func (s *Server) handleAttackHashList(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid attack id", nil)
		return
	}
	attack, err := s.store.Read(r.Context()).GetAttack(id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	campaign, err := s.store.Read(r.Context()).GetCampaign(attack.CampaignID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_ = s.store.Read(r.Context()).UncrackedLines(campaign.HashListID, func(hashValue []byte) error {
		_, err := fmt.Fprintf(w, "%s\n", hashValue)
		return err
	})
}

// handleNewTask implements `GET /tasks/new`.
func (s *Server) handleNewTask(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	agent := agentFromContext(r.Context())
	task, err := s.assign.Assign(r.Context(), agent.ID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if task == nil {
		noContent(w)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleGetTask implements `GET /tasks/{id}`.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid task id", nil)
		return
	}
	task, err := s.store.Read(r.Context()).GetTask(id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleAcceptTask implements `POST /tasks/{id}/accept_task`.
func (s *Server) handleAcceptTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid task id", nil)
		return
	}

	err = s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		task, err := tx.LockTask(id)
		if err != nil {
			return err
		}
		to, idempotent, err := statemachine.TaskMachine.Next(string(task.State), statemachine.EventAssign)
		if err != nil {
			return err
		}
		if idempotent {
			return nil
		}
		if err := tx.SetTaskState(id, d.TaskState(to)); err != nil {
			return err
		}
		attack, err := tx.LockAttack(task.AttackID)
		if err != nil {
			return err
		}
		if attack.State == d.AttackPending {
			if err := tx.SetAttackState(attack.ID, d.AttackRunning); err != nil {
				return err
			}
			_ = tx.InsertAuditRecord(&d.AuditRecord{Entity: "Attack", EntityID: attack.ID, From: string(d.AttackPending), To: string(d.AttackRunning), Event: statemachine.EventAttackStart})
		}
		return tx.InsertAuditRecord(&d.AuditRecord{Entity: "Task", EntityID: id, From: string(task.State), To: to, Event: statemachine.EventAssign})
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	noContent(w)
}

// handleExhausted implements `POST /tasks/{id}/exhausted`.
func (s *Server) handleExhausted(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid task id", nil)
		return
	}
	err = s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		task, err := tx.LockTask(id)
		if err != nil {
			return err
		}
		to, _, err := statemachine.TaskMachine.Next(string(task.State), statemachine.EventExhausted)
		if err != nil {
			return err
		}
		if err := tx.SetTaskState(id, d.TaskState(to)); err != nil {
			return err
		}
		return tx.InsertAuditRecord(&d.AuditRecord{Entity: "Task", EntityID: id, From: string(task.State), To: to, Event: statemachine.EventExhausted})
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	noContent(w)
}

// handleAbandon implements `POST /tasks/{id}/abandon`.
func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid task id", nil)
		return
	}
	var newState d.TaskState
	err = s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		task, err := tx.LockTask(id)
		if err != nil {
			return err
		}
		to, _, err := statemachine.TaskMachine.Next(string(task.State), statemachine.EventAbandon)
		if err != nil {
			return err
		}
		if err := tx.SetTaskState(id, d.TaskState(to)); err != nil {
			return err
		}
		newState = d.TaskState(to)
		return tx.InsertAuditRecord(&d.AuditRecord{Entity: "Task", EntityID: id, From: string(task.State), To: to, Event: statemachine.EventAbandon})
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "state": newState})
}

// handleGetZaps implements `GET /tasks/{id}/get_zaps`, streaming the
// cracked list and clearing task.stale.
func (s *Server) handleGetZaps(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid task id", nil)
		return
	}
	task, err := s.store.Read(r.Context()).GetTask(id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	attack, err := s.store.Read(r.Context()).GetAttack(task.AttackID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	campaign, err := s.store.Read(r.Context()).GetCampaign(attack.CampaignID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_ = s.store.Read(r.Context()).CrackedLines(campaign.HashListID, func(hashValue []byte, plainText string) error {
		_, err := fmt.Fprintf(w, "%s:%s\n", hashValue, plainText)
		return err
	})

	_ = s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		return tx.SetTaskStale(id, false)
	})
}

// handleSubmitCrack implements `POST /tasks/{id}/submit_crack`.
func (s *Server) handleSubmitCrack(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid task id", nil)
		return
	}
	var body crackRequest
	if err := decodeJSON(r, &body); err != nil {
		writeAPIError(w, err)
		return
	}
	hashValue := []byte(body.Hash)

	res, err := s.crack.SubmitCrack(r.Context(), id, hashValue, body.PlainText, time.Unix(body.Timestamp, 0))
	if err != nil {
		writeAPIError(w, err)
		return
	}

	if res.TaskCompleted {
		noContent(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "crack applied", "uncracked_count": res.UncrackedCount})
}

// handleSubmitStatus implements `POST /tasks/{id}/submit_status`.
func (s *Server) handleSubmitStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseUUID(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid task id", nil)
		return
	}
	snap, err := decodeStatus(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	class, err := s.status.SubmitStatus(r.Context(), id, snap)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	switch class {
	case "stale":
		w.WriteHeader(http.StatusAccepted)
	case "paused":
		w.WriteHeader(http.StatusGone)
	default:
		noContent(w)
	}
}
