// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package statusservice implements status submission (C4): ingest a
// hashcat status snapshot, bump activity, drive the task state machine,
// and classify the response the agent should see (ok/stale/paused).
// Grounded the same way as internal/crackservice, on the store's
// transaction helper.
package statusservice

import (
	"context"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/apierr"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/log"
	"github.com/unclesp1d3r/cipherswarm/internal/statemachine"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
)

var logger = log.NewModuleLogger(log.Status)

// Service ingests status submissions.
type Service struct {
	store *store.Store
}

// New builds a Service backed by st.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// Classification is the response shape surfaced to the agent.
type Classification string

const (
	ClassOK     Classification = "ok"
	ClassStale  Classification = "stale"
	ClassPaused Classification = "paused"
)

// Snapshot is the wire-level status payload before it's composed into a
// domain.HashcatStatus.
type Snapshot struct {
	Session       string
	TimeStart     time.Time
	Progress      [2]int64
	RestorePoint  int64
	RejectedCount int64
	Devices       []d.DeviceStatus
	Guess         *d.HashcatGuess
}

// SubmitStatus ingests one status snapshot: touches the task's activity
// timestamp, records the sample, and drives the task's state machine to
// classify the response the agent should receive.
func (s *Service) SubmitStatus(ctx context.Context, taskID uuid.UUID, snap Snapshot) (Classification, error) {
	if snap.Guess == nil {
		return "", apierr.Validation("hashcat_guess missing").WithDetails(
			apierr.Detail{Field: "hashcat_guess", Message: "required"})
	}
	if snap.Devices == nil {
		return "", apierr.Validation("devices missing").WithDetails(
			apierr.Detail{Field: "devices", Message: "required"})
	}

	var class Classification
	now := time.Now()

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		task, err := tx.LockTask(taskID)
		if err != nil {
			return err
		}
		attack, err := tx.LockAttack(task.AttackID)
		if err != nil {
			return err
		}

		if err := tx.TouchActivity(task.ID, now); err != nil {
			return err
		}

		status := &d.HashcatStatus{
			TaskID: task.ID, Session: snap.Session, TimeStart: snap.TimeStart,
			Progress: snap.Progress, RestorePoint: snap.RestorePoint,
			RejectedCount: snap.RejectedCount, Devices: snap.Devices, Guess: *snap.Guess,
		}
		if err := tx.InsertStatus(status); err != nil {
			return err
		}

		to, _, err := statemachine.TaskMachine.Next(string(task.State), statemachine.EventAcceptStatus)
		if err != nil {
			return err
		}
		if to != string(task.State) {
			if err := tx.SetTaskState(task.ID, d.TaskState(to)); err != nil {
				return err
			}
			if err := tx.InsertAuditRecord(&d.AuditRecord{
				Entity: "Task", EntityID: task.ID, From: string(task.State), To: to,
				Event: statemachine.EventAcceptStatus,
			}); err != nil {
				return err
			}
		}

		switch {
		case attack.State == d.AttackPaused:
			class = ClassPaused
		case task.Stale:
			class = ClassStale
		default:
			class = ClassOK
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	logger.Debug("status submitted", "task_id", taskID, "classification", class)
	return class, nil
}
