package allocation

import (
	"time"

	"github.com/google/uuid"
)

// Availability is a coordinator's declared capacity to take new work.
type Availability string

const (
	Available   Availability = "available"
	Busy        Availability = "busy"
	Unavailable Availability = "unavailable"
)

var availabilityScore = map[Availability]float64{
	Available:   1.0,
	Busy:        0.5,
	Unavailable: 0.0,
}

// Score maps the availability class onto [0,1]. Unknown classes score 0.
func (a Availability) Score() float64 {
	return availabilityScore[a]
}

type Coordinator struct {
	ID                uuid.UUID    `db:"id" json:"id"`
	Name              string       `db:"name" json:"name"`
	Email             string       `db:"email" json:"email"`
	Specializations   []string     `db:"specializations" json:"specializations"`
	CurrentCaseload   int          `db:"current_caseload" json:"current_caseload"`
	Availability      Availability `db:"availability" json:"availability"`
	AvgCompletionDays float64      `db:"avg_completion_days" json:"avg_completion_days"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// Assignment links a case to a coordinator. At most one assignment per case
// is active.
type Assignment struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	CaseID              uuid.UUID  `db:"case_id" json:"case_id"`
	CoordinatorID       uuid.UUID  `db:"coordinator_id" json:"coordinator_id"`
	Confidence          int        `db:"confidence" json:"confidence"`
	Reason              string     `db:"reason" json:"reason"`
	WorkloadBefore      int        `db:"workload_before" json:"workload_before"`
	WorkloadAfter       int        `db:"workload_after" json:"workload_after"`
	EstimatedCompletion *time.Time `db:"estimated_completion" json:"estimated_completion,omitempty"`
	Manual              bool       `db:"manual" json:"manual"`
	Active              bool       `db:"active" json:"active"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	EndedAt             *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const (
	ConflictOverCapacity   = "over_capacity"
	ConflictSpecialization = "specialization_mismatch"
	ConflictNoHistory      = "no_organization_history"
	ConflictUnavailable    = "unavailable"
)

type Conflict struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Candidate is one scored coordinator.
type Candidate struct {
	CoordinatorID uuid.UUID `json:"coordinator_id"`
	Name          string    `json:"name"`
	Score         float64   `json:"score"`
	Confidence    int       `json:"confidence"`
	Caseload      int       `json:"caseload"`
	Reasons       []string  `json:"reasons"`
}

// Result is the outcome of an automatic allocation. Assignment is set only
// when the recommendation was applied.
type Result struct {
	CaseID              uuid.UUID   `json:"case_id"`
	CoordinatorID       uuid.UUID   `json:"coordinator_id"`
	Confidence          int         `json:"confidence"`
	Reason              string      `json:"reason"`
	WorkloadBefore      int         `json:"workload_before"`
	WorkloadAfter       int         `json:"workload_after"`
	EstimatedCompletion *time.Time  `json:"estimated_completion,omitempty"`
	Conflicts           []Conflict  `json:"conflicts"`
	RecommendAssignment bool        `json:"recommend_assignment"`
	Alternatives        []Candidate `json:"alternatives"`
	Assignment          *Assignment `json:"assignment,omitempty"`
}

type Move struct {
	CaseID uuid.UUID `json:"case_id"`
	From   uuid.UUID `json:"from"`
	To     uuid.UUID `json:"to"`
}

type RebalanceReport struct {
	Moves        []Move `json:"moves"`
	SpreadBefore int    `json:"spread_before"`
	SpreadAfter  int    `json:"spread_after"`
	Improvement  int    `json:"improvement"`
}

// BulkResult reports one case of a bulk allocation.
type BulkResult struct {
	CaseID uuid.UUID `json:"case_id"`
	Result *Result   `json:"result,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Workload is the caseload picture of one coordinator.
type Workload struct {
	CoordinatorID uuid.UUID    `json:"coordinator_id"`
	Name          string       `json:"name"`
	Caseload      int          `json:"caseload"`
	MaxCaseload   int          `json:"max_caseload"`
	Utilization   float64      `json:"utilization"`
	Availability  Availability `json:"availability"`
}
