// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package domain holds the entities: Project, Campaign, HashList,
// HashItem, Attack, Task, Agent, HashcatBenchmark, HashcatStatus, AgentError.
package domain

import (
	"time"

	uuid "github.com/satori/go.uuid"
)

// CampaignPriority enumerates the campaign priority tiers.
type CampaignPriority int

const (
	PriorityDeferred CampaignPriority = -1
	PriorityNormal   CampaignPriority = 0
	PriorityHigh     CampaignPriority = 2
)

// AttackMode enumerates the hashcat attack strategies.
type AttackMode string

const (
	AttackModeDictionary  AttackMode = "dictionary"
	AttackModeMask        AttackMode = "mask"
	AttackModeBruteForce  AttackMode = "brute_force"
	AttackModeHybridDict  AttackMode = "hybrid_dict"
	AttackModeHybridMask  AttackMode = "hybrid_mask"
)

// TaskState is the state-machine state of a Task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskExhausted TaskState = "exhausted"
	TaskFailed    TaskState = "failed"
)

// AttackState is the state-machine state of an Attack.
type AttackState string

const (
	AttackPending   AttackState = "pending"
	AttackRunning   AttackState = "running"
	AttackCompleted AttackState = "completed"
	AttackExhausted AttackState = "exhausted"
	AttackFailed    AttackState = "failed"
	AttackPaused    AttackState = "paused"
)

// CampaignState is the derived state of a Campaign.
type CampaignState string

const (
	CampaignDraft     CampaignState = "draft"
	CampaignActive    CampaignState = "active"
	CampaignPaused    CampaignState = "paused"
	CampaignCompleted CampaignState = "completed"
)

// AgentState is the state-machine state of an Agent.
type AgentState string

const (
	AgentPending AgentState = "pending"
	AgentActive  AgentState = "active"
	AgentStopped AgentState = "stopped"
	AgentOffline AgentState = "offline"
	AgentError_  AgentState = "error"
)

// AgentErrorSeverity enumerates the severity taxonomy for AgentError.
// "low" is a legacy wire alias that normalizes to Info before storage.
type AgentErrorSeverity string

const (
	SeverityInfo     AgentErrorSeverity = "info"
	SeverityWarning  AgentErrorSeverity = "warning"
	SeverityMinor    AgentErrorSeverity = "minor"
	SeverityMajor    AgentErrorSeverity = "major"
	SeverityCritical AgentErrorSeverity = "critical"
	SeverityFatal    AgentErrorSeverity = "fatal"
)

// NormalizeSeverity maps the legacy "low" alias onto "info".
func NormalizeSeverity(s string) AgentErrorSeverity {
	if s == "low" {
		return SeverityInfo
	}
	return AgentErrorSeverity(s)
}

// Project is the tenant boundary.
type Project struct {
	ID        uuid.UUID
	Name      string
	UserIDs   []uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Campaign is a named, prioritized workload within a Project.
type Campaign struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	Name       string
	Priority   CampaignPriority
	HashListID uuid.UUID
	State      CampaignState
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HashList is a unique set of HashItems sharing one hash type.
type HashList struct {
	ID            uuid.UUID
	Name          string
	HashTypeID    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HashItem is a single hash, optionally cracked.
type HashItem struct {
	ID           uuid.UUID
	HashListID   uuid.UUID
	HashValue    []byte
	PlainText    *string
	Cracked      bool
	CrackedTime  *time.Time
	AttackID     *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Attack is a cracking strategy within a Campaign.
type Attack struct {
	ID              uuid.UUID
	CampaignID      uuid.UUID
	AttackMode      AttackMode
	HashMode        int
	ComplexityValue int64
	Mask            string
	CharsetIDs      []uuid.UUID
	WordlistID      *uuid.UUID
	RulelistID      *uuid.UUID
	State           AttackState
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Task is a unit of work handed to one agent for one attack.
type Task struct {
	ID                uuid.UUID
	AttackID          uuid.UUID
	AgentID           *uuid.UUID
	State             TaskState
	Stale             bool
	ActivityTimestamp *time.Time
	StartDate         *time.Time
	PreemptionCount   int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Device describes one compute device reported by an agent.
type Device struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Agent is a worker node.
type Agent struct {
	ID               uuid.UUID
	Name             string
	Token            string
	State            AgentState
	LastSeenAt       *time.Time
	ProjectIDs       []uuid.UUID
	AllowedHashTypes []int
	Devices          []Device
	ClientSignature  string
	OperatingSystem  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HashcatBenchmark is a measured guess rate for an agent/device/hash mode.
type HashcatBenchmark struct {
	ID        uuid.UUID
	AgentID   uuid.UUID
	Device    int
	HashType  int
	HashSpeed float64
	Runtime   int
	CreatedAt time.Time
}

// DeviceStatus is per-device telemetry inside a HashcatStatus sample.
type DeviceStatus struct {
	DeviceID    int     `json:"device_id"`
	DeviceName  string  `json:"device_name"`
	Speed       int64   `json:"speed"`
	Temperature float64 `json:"temperature"`
	Utilization float64 `json:"utilization"`
}

// HashcatGuess is the candidate-mask/rule info inside a status sample.
type HashcatGuess struct {
	GuessBase       string `json:"guess_base"`
	GuessBaseCount  int64  `json:"guess_base_count"`
	GuessBaseOffset int64  `json:"guess_base_offset"`
	GuessModPercent float64 `json:"guess_mod_percent"`
}

// HashcatStatus is a point-in-time status sample for a Task.
type HashcatStatus struct {
	ID             uuid.UUID
	TaskID         uuid.UUID
	Session        string
	TimeStart      time.Time
	Progress       [2]int64
	RestorePoint   int64
	RejectedCount  int64
	Devices        []DeviceStatus
	Guess          HashcatGuess
	CreatedAt      time.Time
}

// AgentError is a severity-tagged event, optionally linked to a Task.
type AgentError struct {
	ID        uuid.UUID
	AgentID   uuid.UUID
	TaskID    *uuid.UUID
	Severity  AgentErrorSeverity
	Message   string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// AuditRecord logs one state-machine transition.
type AuditRecord struct {
	ID        uuid.UUID
	Entity    string
	EntityID  uuid.UUID
	From      string
	To        string
	Event     string
	CreatedAt time.Time
}

// NewID generates a fresh entity identifier.
func NewID() uuid.UUID {
	return uuid.NewV4()
}
