package compliance

import (
	"time"

	"github.com/google/uuid"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
)

// Outcome is how a step was closed.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeEscalated  Outcome = "escalated"
	OutcomeTerminated Outcome = "terminated"
	OutcomeWithdrawn  Outcome = "withdrawn"
)

var validOutcomes = map[Outcome]bool{
	OutcomeCompleted:  true,
	OutcomeEscalated:  true,
	OutcomeTerminated: true,
	OutcomeWithdrawn:  true,
}

// Step is one stage instance. Completed steps are never modified.
type Step struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	CaseID          uuid.UUID  `db:"case_id" json:"case_id"`
	StageID         StageID    `db:"stage_id" json:"stage_id"`
	Status          StepStatus `db:"status" json:"status"`
	Outcome         *Outcome   `db:"outcome" json:"outcome,omitempty"`
	StartDate       time.Time  `db:"start_date" json:"start_date"`
	DeadlineDate    time.Time  `db:"deadline_date" json:"deadline_date"`
	LegislativeRefs []string   `db:"legislative_refs" json:"legislative_refs"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	CreatedBy       string     `db:"created_by" json:"created_by"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CompletedBy     *string    `db:"completed_by" json:"completed_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// Action is the kind of workflow event an audit entry records.
type Action string

const (
	ActionInitialized   Action = "initialized"
	ActionStepCompleted Action = "step_completed"
	ActionProgressed    Action = "progressed"
	ActionEscalated     Action = "escalated"
	ActionClosed        Action = "closed"
	ActionOverdue       Action = "overdue"
	ActionParticipation Action = "participation"
	ActionFailure       Action = "failure"
)

// AuditEntry is an append-only workflow record. Checksum is unique, so
// writing the same entry twice stores it once.
type AuditEntry struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	CaseID          uuid.UUID  `db:"case_id" json:"case_id"`
	StepID          *uuid.UUID `db:"step_id" json:"step_id,omitempty"`
	Action          Action     `db:"action" json:"action"`
	Actor           string     `db:"actor" json:"actor"`
	Checksum        string     `db:"checksum" json:"checksum"`
	LegislativeRefs []string   `db:"legislative_refs" json:"legislative_refs"`
	RiskLevel       *string    `db:"risk_level" json:"risk_level,omitempty"`
	Result          string     `db:"result" json:"result"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// ParticipationLevel is how far the worker engaged with an activity.
type ParticipationLevel string

const (
	ParticipationFull    ParticipationLevel = "full"
	ParticipationPartial ParticipationLevel = "partial"
	ParticipationNone    ParticipationLevel = "none"
	ParticipationRefused ParticipationLevel = "refused"
)

// participationRisk is the audit risk derived from a participation level.
var participationRisk = map[ParticipationLevel]string{
	ParticipationFull:    "low",
	ParticipationPartial: "medium",
	ParticipationNone:    "high",
	ParticipationRefused: "high",
}

type ParticipationEvent struct {
	ID               uuid.UUID          `db:"id" json:"id"`
	CaseID           uuid.UUID          `db:"case_id" json:"case_id"`
	EventType        string             `db:"event_type" json:"event_type"`
	Level            ParticipationLevel `db:"level" json:"level"`
	LegislativeBasis string             `db:"legislative_basis" json:"legislative_basis"`
	Notes            *string            `db:"notes" json:"notes,omitempty"`
	RecordedBy       string             `db:"recorded_by" json:"recorded_by"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
}

// Transition reports the effect of completing a step.
type Transition struct {
	Step             Step    `json:"step"`
	Next             *Step   `json:"next,omitempty"`
	Stage            StageID `json:"stage"`
	ComplianceStatus string  `json:"compliance_status"`
	NoOp             bool    `json:"no_op,omitempty"`
}

// Summary is the derived compliance picture of one case.
type Summary struct {
	CaseID           uuid.UUID                  `json:"case_id"`
	Stage            StageID                    `json:"stage"`
	ComplianceStatus string                     `json:"compliance_status"`
	PendingStep      *Step                      `json:"pending_step,omitempty"`
	Overdue          bool                       `json:"overdue"`
	DaysOverdue      int                        `json:"days_overdue,omitempty"`
	NextDeadline     *time.Time                 `json:"next_deadline,omitempty"`
	Steps            []Step                     `json:"steps"`
	Participation    map[ParticipationLevel]int `json:"participation"`
	Checklist        []string                   `json:"checklist,omitempty"`
}

// OverdueResult is one case's outcome in an overdue sweep.
type OverdueResult struct {
	CaseID      uuid.UUID `json:"case_id"`
	Overdue     bool      `json:"overdue"`
	DaysOverdue int       `json:"days_overdue,omitempty"`
	Notified    bool      `json:"notified,omitempty"`
	Error       string    `json:"error,omitempty"`
}
