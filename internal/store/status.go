// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package store

import (
	"encoding/json"
	"time"

	uuid "github.com/satori/go.uuid"

	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
)

// InsertStatus saves one HashcatStatus sample.
func (t *Tx) InsertStatus(s *d.HashcatStatus) error {
	s.ID = d.NewID()
	s.CreatedAt = time.Now()
	devJSON, _ := json.Marshal(s.Devices)
	guessJSON, _ := json.Marshal(s.Guess)
	row := &gormStatus{
		ID: s.ID, TaskID: s.TaskID, Session: s.Session, TimeStart: s.TimeStart,
		ProgressDone: s.Progress[0], ProgressTotal: s.Progress[1],
		RestorePoint: s.RestorePoint, RejectedCount: s.RejectedCount,
		DevicesJSON: string(devJSON), GuessJSON: string(guessJSON), CreatedAt: s.CreatedAt,
	}
	return t.gdb().Create(row).Error
}

// TrimStatuses keeps only the most recent keep rows per task for
// pending/running tasks; terminal tasks have their rows deleted entirely
// by DeleteStatusesForTask instead.
func (t *Tx) TrimStatuses(taskID uuid.UUID, keep int) error {
	var ids []uuid.UUID
	err := t.gdb().Model(&gormStatus{}).
		Where("task_id = ?", taskID).
		Order("created_at desc").
		Offset(keep).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return t.gdb().Where("id IN (?)", ids).Delete(&gormStatus{}).Error
}

// DeleteStatusesForTask deletes every status row for a terminal task.
func (t *Tx) DeleteStatusesForTask(taskID uuid.UUID) error {
	return t.gdb().Where("task_id = ?", taskID).Delete(&gormStatus{}).Error
}

// RecentStatusesForTask returns the most recent limit HashcatStatus
// samples for a task, newest first, used by the daemon's task-progress
// function that feeds preemption.
func (r *Reader) RecentStatusesForTask(taskID uuid.UUID, limit int) ([]*d.HashcatStatus, error) {
	var rows []gormStatus
	err := r.gdb().Where("task_id = ?", taskID).Order("created_at desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*d.HashcatStatus, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// TaskIDsByState lists task IDs in the given states, used by the
// maintenance loop's trimming step to iterate without loading full rows.
func (r *Reader) TaskIDsByState(states []d.TaskState) ([]uuid.UUID, error) {
	ss := make([]string, len(states))
	for i, s := range states {
		ss[i] = string(s)
	}
	var ids []uuid.UUID
	err := r.gdb().Model(&gormTask{}).Where("state IN (?)", ss).Pluck("id", &ids).Error
	return ids, err
}
