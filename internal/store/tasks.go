// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package store

import (
	"time"

	"github.com/jinzhu/gorm"
	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/apierr"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
)

// LockTask reads and row-locks (SELECT... FOR UPDATE) the task row: state
// transitions on a single task are serialized via row-level locking on
// that task row.
func (t *Tx) LockTask(id uuid.UUID) (*d.Task, error) {
	var g gormTask
	err := t.gdb().Set("gorm:query_option", "FOR UPDATE").
		Where("id = ?", id).First(&g).Error
	if errNoRows(err) {
		return nil, apierr.NotFound("task not found")
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// GetTask is a plain (unlocked) read, for the read-only handlers.
func (r *Reader) GetTask(id uuid.UUID) (*d.Task, error) {
	var g gormTask
	err := r.gdb().Where("id = ?", id).First(&g).Error
	if errNoRows(err) {
		return nil, apierr.NotFound("task not found")
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// SaveTask upserts the full row. Callers normally go through the
// state-machine-aware helpers below; SaveTask is the low-level primitive
// they share.
func (t *Tx) SaveTask(task *d.Task) error {
	task.UpdatedAt = time.Now()
	return t.gdb().Save(fromDomainTask(task)).Error
}

// CreateTask inserts a brand-new pending task owned by agentID, recording
// StartDate at creation.
func (t *Tx) CreateTask(attackID, agentID uuid.UUID) (*d.Task, error) {
	now := time.Now()
	task := &d.Task{
		ID: d.NewID(), AttackID: attackID, AgentID: &agentID,
		State: d.TaskPending, StartDate: &now, CreatedAt: now, UpdatedAt: now,
	}
	if err := t.gdb().Create(fromDomainTask(task)).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// CASAssignTask implements the compare-and-swap: conflict is resolved by
// a compare-and-swap on task.agent_id and state, and the loser retries
// from the top of the assignment algorithm. Returns apierr.Conflict if
// another agent already won the race.
func (t *Tx) CASAssignTask(taskID, agentID uuid.UUID, expectState d.TaskState) error {
	res := t.gdb().Model(&gormTask{}).
		Where("id = ? AND state = ? AND (agent_id IS NULL OR agent_id = ?)", taskID, string(expectState), agentID).
		Updates(map[string]interface{}{"agent_id": agentID, "state": string(d.TaskRunning), "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.Conflict("task already claimed by another agent")
	}
	return nil
}

// DeleteTask removes a task row outright, used by maintenance's
// abandonment step.
func (t *Tx) DeleteTask(id uuid.UUID) error {
	return t.gdb().Where("id = ?", id).Delete(&gormTask{}).Error
}

// ForceSetTaskPending is the preemption primitive: it writes
// state=pending, stale=true and bumps preemption_count with a single
// UPDATE, bypassing statemachine.Machine entirely so no re-entrant
// abandon/accept callback fires. It sits beside the validated,
// state-machine-checked calls rather than replacing them.
func (t *Tx) ForceSetTaskPending(id uuid.UUID) error {
	res := t.gdb().Model(&gormTask{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":            string(d.TaskPending),
			"stale":            true,
			"preemption_count": gorm.Expr("preemption_count + 1"),
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.NotFound("task not found")
	}
	return nil
}

// SetTaskState updates the task's state column, the low-level primitive
// state-machine-driven callers use after computing the next state.
func (t *Tx) SetTaskState(id uuid.UUID, state d.TaskState) error {
	return t.gdb().Model(&gormTask{}).Where("id = ?", id).
		Updates(map[string]interface{}{"state": string(state), "updated_at": time.Now()}).Error
}

// SetTaskStale sets one task's stale flag; get_zaps uses it to clear the
// flag. Crack propagation marks tasks stale through SetTasksStaleExcept.
func (t *Tx) SetTaskStale(id uuid.UUID, stale bool) error {
	return t.gdb().Model(&gormTask{}).Where("id = ?", id).
		Update("stale", stale).Error
}

// SetTasksStaleExcept marks every task on the given attacks stale, except
// excludeTaskID, used by the crack-propagation fan-out.
func (t *Tx) SetTasksStaleExcept(attackIDs []uuid.UUID, excludeTaskID uuid.UUID) error {
	if len(attackIDs) == 0 {
		return nil
	}
	return t.gdb().Model(&gormTask{}).
		Where("attack_id IN (?) AND id != ?", attackIDs, excludeTaskID).
		Update("stale", true).Error
}

// TouchActivity bumps activity_timestamp to at.
func (t *Tx) TouchActivity(id uuid.UUID, at time.Time) error {
	return t.gdb().Model(&gormTask{}).Where("id = ?", id).
		Update("activity_timestamp", at).Error
}

// TaskForAgent returns the incomplete task already assigned to agentID, if
// one exists, so assignment can reuse it instead of creating a new one.
func (r *Reader) TaskForAgent(agentID uuid.UUID) (*d.Task, error) {
	var g gormTask
	err := r.gdb().
		Where("agent_id = ? AND state IN (?)", agentID, []string{string(d.TaskPending), string(d.TaskRunning)}).
		Order("updated_at desc").First(&g).Error
	if errNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// FailedTaskForAgent returns an existing failed task for (attackID,
// agentID) with no fatal error logged, a reuse candidate for retry.
func (r *Reader) FailedTaskForAgent(attackID, agentID uuid.UUID) (*d.Task, error) {
	var g gormTask
	err := r.gdb().
		Where("attack_id = ? AND agent_id = ? AND state = ?", attackID, agentID, string(d.TaskFailed)).
		First(&g).Error
	if errNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// PendingTaskForAgent returns an existing pending task for (attackID,
// agentID), a reuse candidate alongside FailedTaskForAgent.
func (r *Reader) PendingTaskForAgent(attackID, agentID uuid.UUID) (*d.Task, error) {
	var g gormTask
	err := r.gdb().
		Where("attack_id = ? AND agent_id = ? AND state = ?", attackID, agentID, string(d.TaskPending)).
		First(&g).Error
	if errNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// HasFatalError reports whether a fatal-severity AgentError is logged
// against the task, used to exclude it from reuse or retry.
func (r *Reader) HasFatalError(taskID uuid.UUID) (bool, error) {
	var n int
	err := r.gdb().Model(&gormAgentError{}).
		Where("task_id = ? AND severity = ?", taskID, string(d.SeverityFatal)).
		Count(&n).Error
	return n > 0, err
}

// RunningTasksOlderThan returns running tasks whose activity_timestamp is
// older than the given cutoff, the abandonment candidate set.
func (r *Reader) RunningTasksOlderThan(cutoff time.Time) ([]*d.Task, error) {
	var rows []gormTask
	err := r.gdb().Where("state = ? AND activity_timestamp < ?", string(d.TaskRunning), cutoff).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*d.Task, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// RunningTasksForCampaignProject lists running tasks whose campaign is in
// projectID with campaign priority below belowPriority (exclusive), the
// preemption candidate pool.
func (r *Reader) RunningTasksForCampaignProject(projectID uuid.UUID, belowPriority int) ([]*d.Task, error) {
	var rows []gormTask
	err := r.gdb().
		Joins("JOIN attacks ON attacks.id = tasks.attack_id").
		Joins("JOIN campaigns ON campaigns.id = attacks.campaign_id").
		Where("tasks.state = ? AND campaigns.project_id = ? AND campaigns.priority < ?",
			string(d.TaskRunning), projectID, belowPriority).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*d.Task, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// CountActiveAgents and CountRunningTasks back preemption's admission
// check: preempt only if active_agent_count <= running_task_count.
func (r *Reader) CountActiveAgents() (int, error) {
	var n int
	err := r.gdb().Model(&gormAgent{}).Where("state = ?", string(d.AgentActive)).Count(&n).Error
	return n, err
}

func (r *Reader) CountRunningTasks() (int, error) {
	var n int
	err := r.gdb().Model(&gormTask{}).Where("state = ?", string(d.TaskRunning)).Count(&n).Error
	return n, err
}
