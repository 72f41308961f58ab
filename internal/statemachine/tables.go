// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package statemachine

import d "github.com/unclesp1d3r/cipherswarm/internal/domain"

// Task events.
const (
	EventAssign      = "assign"       // pending -> running
	EventAcceptCrack = "accept_crack" // running -> running | completed
	EventAcceptStatus = "accept_status"
	EventExhausted   = "exhausted" // running -> exhausted
	EventAbandon     = "abandon"   // running -> pending
	EventReject      = "reject"    // pending|running -> failed
	EventRetry       = "retry"     // failed -> pending
)

// TaskMachine is the state table for domain.Task,:
// pending -> running -> (completed|exhausted|failed); running -> pending
// (abandoned/preempted); pending -> failed (rejected).
var TaskMachine = New("Task", Table{
	string(d.TaskPending): {
		EventAssign: string(d.TaskRunning),
		EventReject: string(d.TaskFailed),
	},
	string(d.TaskRunning): {
		EventAssign:       string(d.TaskRunning), // idempotent accept
		EventAcceptCrack:  string(d.TaskRunning),
		EventAcceptStatus: string(d.TaskRunning),
		EventExhausted:    string(d.TaskExhausted),
		EventAbandon:      string(d.TaskPending),
		EventReject:       string(d.TaskFailed),
	},
	string(d.TaskFailed): {
		EventRetry: string(d.TaskPending),
	},
	string(d.TaskCompleted): {},
	string(d.TaskExhausted): {},
})

// taskCompleteOverride is consulted by accept_crack when the attack has no
// uncracked items left assigned to this task: it drives running->completed
// instead of the plain running->running self-loop above. Kept distinct
// rather than overloading one event with branching destinations in the
// table, a dedicated handler per meaningful transition rather than one
// catch-all dispatcher.
var taskCompleteOverride = map[string]string{string(d.TaskRunning): string(d.TaskCompleted)}

// NextOnAcceptCrack resolves the accept_crack transition, choosing between
// the running->running no-op and running->completed depending on whether
// the attack still has uncracked items assigned to this task.
func NextOnAcceptCrack(from d.TaskState, attackExhausted bool) (d.TaskState, error) {
	to, _, err := TaskMachine.Next(string(from), EventAcceptCrack)
	if err != nil {
		return "", err
	}
	if attackExhausted {
		if override, ok := taskCompleteOverride[string(from)]; ok {
			return d.TaskState(override), nil
		}
	}
	return d.TaskState(to), nil
}

// Attack events.
const (
	EventAttackStart    = "start"    // pending -> running
	EventAttackComplete = "complete" // running -> completed
	EventAttackExhaust  = "exhaust"  // running -> exhausted
	EventAttackFail     = "fail"     // running -> failed
	EventAttackPause    = "pause"    // running -> paused
	EventAttackResume   = "resume"   // paused -> running
)

// AttackMachine is the state table for domain.Attack.
var AttackMachine = New("Attack", Table{
	string(d.AttackPending): {
		EventAttackStart: string(d.AttackRunning),
	},
	string(d.AttackRunning): {
		EventAttackStart:    string(d.AttackRunning), // idempotent
		EventAttackComplete: string(d.AttackCompleted),
		EventAttackExhaust:  string(d.AttackExhausted),
		EventAttackFail:     string(d.AttackFailed),
		EventAttackPause:    string(d.AttackPaused),
	},
	string(d.AttackPaused): {
		EventAttackResume: string(d.AttackRunning),
	},
	string(d.AttackCompleted): {},
	string(d.AttackExhausted): {},
	string(d.AttackFailed):    {},
})

// Campaign events,: explicit activate/pause/complete plus the
// implicit "terminal when every attack is terminal" rule enforced by the
// caller (internal/crackservice, internal/statusservice) rather than the
// table itself, since that rule depends on sibling Attack rows.
const (
	EventCampaignActivate = "activate"
	EventCampaignPause    = "pause"
	EventCampaignComplete = "complete"
)

// CampaignMachine is the state table for domain.Campaign.
var CampaignMachine = New("Campaign", Table{
	string(d.CampaignDraft): {
		EventCampaignActivate: string(d.CampaignActive),
	},
	string(d.CampaignActive): {
		EventCampaignPause:    string(d.CampaignPaused),
		EventCampaignComplete: string(d.CampaignCompleted),
	},
	string(d.CampaignPaused): {
		EventCampaignActivate: string(d.CampaignActive),
		EventCampaignComplete: string(d.CampaignCompleted),
	},
	string(d.CampaignCompleted): {},
})

// Agent events,: pending -> active -> (stopped|offline|error);
// offline/error -> pending on next valid heartbeat.
const (
	EventAgentHeartbeat = "heartbeat"
	EventAgentBenchmark = "benchmark" // pending -> active, requires non-empty set
	EventAgentStop      = "stop"
	EventAgentGoOffline = "go_offline"
	EventAgentError     = "error"
)

// AgentMachine is the state table for domain.Agent.
var AgentMachine = New("Agent", Table{
	string(d.AgentPending): {
		EventAgentBenchmark: string(d.AgentActive),
		EventAgentHeartbeat: string(d.AgentPending),
	},
	string(d.AgentActive): {
		EventAgentHeartbeat: string(d.AgentActive),
		EventAgentBenchmark: string(d.AgentActive),
		EventAgentStop:      string(d.AgentStopped),
		EventAgentGoOffline: string(d.AgentOffline),
		EventAgentError:     string(d.AgentError_),
	},
	string(d.AgentOffline): {
		EventAgentHeartbeat: string(d.AgentPending),
	},
	string(d.AgentError_): {
		EventAgentHeartbeat: string(d.AgentPending),
	},
	string(d.AgentStopped): {},
})
