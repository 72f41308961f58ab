// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package store is the persistent store adapter: typed access to
// entities with row locks and transactions, backed by jinzhu/gorm over a
// relational engine rather than a KV store, since several operations
// require SELECT... FOR UPDATE row locking that a KV engine's batch
// write doesn't give us.
package store

import (
	"encoding/json"
	"time"

	"github.com/jinzhu/gorm"
	uuid "github.com/satori/go.uuid"

	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
)

// gormProject, gormCampaign,... are the row-level models gorm persists.
// Keeping them distinct from internal/domain's plain entities separates
// wire/runtime types from on-disk schema: the domain package is what
// services operate on, these are what the schema looks like.

type gormProject struct {
	ID        uuid.UUID `gorm:"type:char(36);primary_key"`
	Name      string
	UserIDs   string `gorm:"type:text"` // JSON-encoded []uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (gormProject) TableName() string { return "projects" }

type gormCampaign struct {
	ID         uuid.UUID `gorm:"type:char(36);primary_key"`
	ProjectID  uuid.UUID `gorm:"type:char(36);index"`
	Name       string
	Priority   int
	HashListID uuid.UUID `gorm:"type:char(36);index"`
	State      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (gormCampaign) TableName() string { return "campaigns" }

type gormHashList struct {
	ID         uuid.UUID `gorm:"type:char(36);primary_key"`
	Name       string
	HashTypeID int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (gormHashList) TableName() string { return "hash_lists" }

type gormHashItem struct {
	ID          uuid.UUID `gorm:"type:char(36);primary_key"`
	HashListID  uuid.UUID `gorm:"type:char(36);index"`
	HashValue   []byte    `gorm:"type:varbinary(512);index"`
	PlainText   *string
	Cracked     bool `gorm:"index"`
	CrackedTime *time.Time
	AttackID    *uuid.UUID `gorm:"type:char(36)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (gormHashItem) TableName() string { return "hash_items" }

type gormAttack struct {
	ID              uuid.UUID `gorm:"type:char(36);primary_key"`
	CampaignID      uuid.UUID `gorm:"type:char(36);index"`
	AttackMode      string
	HashMode        int
	ComplexityValue int64
	Mask            string
	WordlistID      *uuid.UUID `gorm:"type:char(36)"`
	RulelistID      *uuid.UUID `gorm:"type:char(36)"`
	CharsetIDs      string     `gorm:"type:text"` // JSON-encoded []uuid.UUID
	State           string     `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (gormAttack) TableName() string { return "attacks" }

type gormTask struct {
	ID                uuid.UUID `gorm:"type:char(36);primary_key"`
	AttackID          uuid.UUID `gorm:"type:char(36);index"`
	AgentID           *uuid.UUID `gorm:"type:char(36);index"`
	State             string     `gorm:"index"`
	Stale             bool
	ActivityTimestamp *time.Time
	StartDate         *time.Time
	PreemptionCount   int
	CreatedAt         time.Time
	UpdatedAt         time.Time `gorm:"index"`
}

func (gormTask) TableName() string { return "tasks" }

type gormAgent struct {
	ID               uuid.UUID `gorm:"type:char(36);primary_key"`
	Name             string
	Token            string `gorm:"index"`
	State            string `gorm:"index"`
	LastSeenAt       *time.Time `gorm:"index"`
	ProjectIDs       string     `gorm:"type:text"`
	AllowedHashTypes string     `gorm:"type:text"`
	Devices          string     `gorm:"type:text"`
	ClientSignature  string
	OperatingSystem  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (gormAgent) TableName() string { return "agents" }

type gormBenchmark struct {
	ID        uuid.UUID `gorm:"type:char(36);primary_key"`
	AgentID   uuid.UUID `gorm:"type:char(36);index"`
	Device    int
	HashType  int `gorm:"index"`
	HashSpeed float64
	Runtime   int
	CreatedAt time.Time
}

func (gormBenchmark) TableName() string { return "hashcat_benchmarks" }

type gormStatus struct {
	ID            uuid.UUID `gorm:"type:char(36);primary_key"`
	TaskID        uuid.UUID `gorm:"type:char(36);index"`
	Session       string
	TimeStart     time.Time
	ProgressDone  int64
	ProgressTotal int64
	RestorePoint  int64
	RejectedCount int64
	DevicesJSON   string `gorm:"type:text"`
	GuessJSON     string `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"index"`
}

func (gormStatus) TableName() string { return "hashcat_statuses" }

type gormAgentError struct {
	ID        uuid.UUID `gorm:"type:char(36);primary_key"`
	AgentID   uuid.UUID `gorm:"type:char(36);index"`
	TaskID    *uuid.UUID `gorm:"type:char(36);index"`
	Severity  string     `gorm:"index"`
	Message   string
	Metadata  string `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (gormAgentError) TableName() string { return "agent_errors" }

type gormAuditRecord struct {
	ID        uuid.UUID `gorm:"type:char(36);primary_key"`
	Entity    string     `gorm:"index"`
	EntityID  uuid.UUID  `gorm:"type:char(36);index"`
	From      string
	To        string
	Event     string
	CreatedAt time.Time `gorm:"index"`
}

func (gormAuditRecord) TableName() string { return "audit_records" }

// AllModels lists every model AutoMigrate needs to create, one call site
// for the whole schema rather than a migration per table.
func AllModels() []interface{} {
	return []interface{}{
		&gormProject{}, &gormCampaign{}, &gormHashList{}, &gormHashItem{},
		&gormAttack{}, &gormTask{}, &gormAgent{}, &gormBenchmark{},
		&gormStatus{}, &gormAgentError{}, &gormAuditRecord{},
	}
}

// --- conversions -----------------------------------------------------

func uuidsToJSON(ids []uuid.UUID) string {
	b, _ := json.Marshal(ids)
	return string(b)
}

func jsonToUUIDs(s string) []uuid.UUID {
	if s == "" {
		return nil
	}
	var ids []uuid.UUID
	_ = json.Unmarshal([]byte(s), &ids)
	return ids
}

func intsToJSON(ints []int) string {
	b, _ := json.Marshal(ints)
	return string(b)
}

func jsonToInts(s string) []int {
	if s == "" {
		return nil
	}
	var ints []int
	_ = json.Unmarshal([]byte(s), &ints)
	return ints
}

func devicesToJSON(devs []d.Device) string {
	b, _ := json.Marshal(devs)
	return string(b)
}

func jsonToDevices(s string) []d.Device {
	if s == "" {
		return nil
	}
	var devs []d.Device
	_ = json.Unmarshal([]byte(s), &devs)
	return devs
}

func (g *gormTask) toDomain() *d.Task {
	return &d.Task{
		ID: g.ID, AttackID: g.AttackID, AgentID: g.AgentID,
		State: d.TaskState(g.State), Stale: g.Stale,
		ActivityTimestamp: g.ActivityTimestamp, StartDate: g.StartDate,
		PreemptionCount: g.PreemptionCount, CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt,
	}
}

func fromDomainTask(t *d.Task) *gormTask {
	return &gormTask{
		ID: t.ID, AttackID: t.AttackID, AgentID: t.AgentID,
		State: string(t.State), Stale: t.Stale,
		ActivityTimestamp: t.ActivityTimestamp, StartDate: t.StartDate,
		PreemptionCount: t.PreemptionCount, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func (g *gormHashItem) toDomain() *d.HashItem {
	return &d.HashItem{
		ID: g.ID, HashListID: g.HashListID, HashValue: g.HashValue,
		PlainText: g.PlainText, Cracked: g.Cracked, CrackedTime: g.CrackedTime,
		AttackID: g.AttackID, CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt,
	}
}

func (g *gormAttack) toDomain() *d.Attack {
	return &d.Attack{
		ID: g.ID, CampaignID: g.CampaignID, AttackMode: d.AttackMode(g.AttackMode),
		HashMode: g.HashMode, ComplexityValue: g.ComplexityValue, Mask: g.Mask,
		WordlistID: g.WordlistID, RulelistID: g.RulelistID,
		CharsetIDs: jsonToUUIDs(g.CharsetIDs), State: d.AttackState(g.State),
		CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt,
	}
}

func (g *gormCampaign) toDomain() *d.Campaign {
	return &d.Campaign{
		ID: g.ID, ProjectID: g.ProjectID, Name: g.Name,
		Priority: d.CampaignPriority(g.Priority), HashListID: g.HashListID,
		State: d.CampaignState(g.State), CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt,
	}
}

func (g *gormHashList) toDomain() *d.HashList {
	return &d.HashList{ID: g.ID, Name: g.Name, HashTypeID: g.HashTypeID, CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt}
}

func (g *gormAgent) toDomain() *d.Agent {
	return &d.Agent{
		ID: g.ID, Name: g.Name, Token: g.Token, State: d.AgentState(g.State),
		LastSeenAt: g.LastSeenAt, ProjectIDs: jsonToUUIDs(g.ProjectIDs),
		AllowedHashTypes: jsonToInts(g.AllowedHashTypes), Devices: jsonToDevices(g.Devices),
		ClientSignature: g.ClientSignature, OperatingSystem: g.OperatingSystem,
		CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt,
	}
}

func fromDomainAgent(a *d.Agent) *gormAgent {
	return &gormAgent{
		ID: a.ID, Name: a.Name, Token: a.Token, State: string(a.State),
		LastSeenAt: a.LastSeenAt, ProjectIDs: uuidsToJSON(a.ProjectIDs),
		AllowedHashTypes: intsToJSON(a.AllowedHashTypes), Devices: devicesToJSON(a.Devices),
		ClientSignature: a.ClientSignature, OperatingSystem: a.OperatingSystem,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (g *gormBenchmark) toDomain() *d.HashcatBenchmark {
	return &d.HashcatBenchmark{
		ID: g.ID, AgentID: g.AgentID, Device: g.Device, HashType: g.HashType,
		HashSpeed: g.HashSpeed, Runtime: g.Runtime, CreatedAt: g.CreatedAt,
	}
}

func (g *gormStatus) toDomain() *d.HashcatStatus {
	var guess d.HashcatGuess
	if g.GuessJSON != "" {
		_ = json.Unmarshal([]byte(g.GuessJSON), &guess)
	}
	return &d.HashcatStatus{
		ID: g.ID, TaskID: g.TaskID, Session: g.Session, TimeStart: g.TimeStart,
		Progress: [2]int64{g.ProgressDone, g.ProgressTotal},
		RestorePoint: g.RestorePoint, RejectedCount: g.RejectedCount,
		Devices: jsonToDeviceStatuses(g.DevicesJSON), Guess: guess, CreatedAt: g.CreatedAt,
	}
}

func jsonToDeviceStatuses(s string) []d.DeviceStatus {
	if s == "" {
		return nil
	}
	var devs []d.DeviceStatus
	_ = json.Unmarshal([]byte(s), &devs)
	return devs
}

func (g *gormAuditRecord) toDomain() *d.AuditRecord {
	return &d.AuditRecord{
		ID: g.ID, Entity: g.Entity, EntityID: g.EntityID,
		From: g.From, To: g.To, Event: g.Event, CreatedAt: g.CreatedAt,
	}
}

func (g *gormAgentError) toDomain() *d.AgentError {
	var meta map[string]interface{}
	if g.Metadata != "" {
		_ = json.Unmarshal([]byte(g.Metadata), &meta)
	}
	return &d.AgentError{
		ID: g.ID, AgentID: g.AgentID, TaskID: g.TaskID,
		Severity: d.AgentErrorSeverity(g.Severity), Message: g.Message,
		Metadata: meta, CreatedAt: g.CreatedAt,
	}
}

// errNoRows reports whether the gorm error is "record not found", matching
// the check used throughout the Store implementation.
func errNoRows(err error) bool {
	return gorm.IsRecordNotFoundError(err)
}
