package casefile

import (
	"time"

	"github.com/google/uuid"
)

type CaseType string

const (
	TypePreEmployment CaseType = "pre_employment"
	TypeInjury        CaseType = "injury"
	TypeRTW           CaseType = "rtw"
	TypeOther         CaseType = "other"
)

var validCaseTypes = map[CaseType]bool{
	TypePreEmployment: true,
	TypeInjury:        true,
	TypeRTW:           true,
	TypeOther:         true,
}

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var validPriorities = map[Priority]bool{
	PriorityUrgent: true,
	PriorityHigh:   true,
	PriorityMedium: true,
	PriorityLow:    true,
}

// Status is the review lifecycle of a case.
type Status string

const (
	StatusNew               Status = "NEW"
	StatusAnalysing         Status = "ANALYSING"
	StatusAwaitingReview    Status = "AWAITING_REVIEW"
	StatusRevisionsRequired Status = "REVISIONS_REQUIRED"
	StatusReadyToSend       Status = "READY_TO_SEND"
	StatusComplete          Status = "COMPLETE"
)

var transitions = map[Status][]Status{
	StatusNew:               {StatusAnalysing, StatusAwaitingReview},
	StatusAnalysing:         {StatusAwaitingReview},
	StatusAwaitingReview:    {StatusRevisionsRequired, StatusReadyToSend},
	StatusRevisionsRequired: {StatusAwaitingReview},
	StatusReadyToSend:       {StatusComplete},
}

// CanTransition reports whether a case may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Compliance statuses recorded by the RTW workflow.
const (
	ComplianceCompliant    = "compliant"
	ComplianceNonCompliant = "non_compliant"
)

// Case is one worker's matter, owned by an organization.
type Case struct {
	ID                      uuid.UUID  `db:"id" json:"id"`
	WorkerID                uuid.UUID  `db:"worker_id" json:"worker_id"`
	OrganizationID          uuid.UUID  `db:"organization_id" json:"organization_id"`
	CaseType                CaseType   `db:"case_type" json:"case_type"`
	ClaimType               *string    `db:"claim_type" json:"claim_type,omitempty"`
	Priority                Priority   `db:"priority" json:"priority"`
	Status                  Status     `db:"status" json:"status"`
	AssignedCoordinatorID   *uuid.UUID `db:"assigned_coordinator_id" json:"assigned_coordinator_id,omitempty"`
	RequiredSpecializations []string   `db:"required_specializations" json:"required_specializations,omitempty"`
	InjuryDate              *time.Time `db:"injury_date" json:"injury_date,omitempty"`
	WorkflowStage           *string    `db:"workflow_stage" json:"workflow_stage,omitempty"`
	ComplianceStatus        *string    `db:"compliance_status" json:"compliance_status,omitempty"`
	NextDeadlineDate        *time.Time `db:"next_deadline_date" json:"next_deadline_date,omitempty"`
	NextDeadlineType        *string    `db:"next_deadline_type" json:"next_deadline_type,omitempty"`
	Archived                bool       `db:"archived" json:"archived"`
	CreatedAt               time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updated_at"`
}

// Compliance is the workflow projection stored on the case row. Nil fields
// are written as NULL.
type Compliance struct {
	WorkflowStage    *string
	ComplianceStatus *string
	NextDeadlineDate *time.Time
	NextDeadlineType *string
}

type Worker struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	Email          *string   `db:"email" json:"email,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ListFilter narrows case listings. Zero values match everything.
type ListFilter struct {
	OrganizationID *uuid.UUID
	CoordinatorID  *uuid.UUID
	Status         Status
	CaseType       CaseType
	Unassigned     bool
}
