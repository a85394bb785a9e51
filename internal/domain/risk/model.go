package risk

import (
	"time"

	"github.com/google/uuid"

	"github.com/gpnet/caseengine/internal/domain/rag"
)

// Verdict is the live fused risk state of a case. There is at most one per
// case; it is overwritten in place.
type Verdict struct {
	CaseID          uuid.UUID   `db:"case_id" json:"case_id"`
	RAG             rag.Level   `db:"rag_level" json:"rag"`
	Fitness         rag.Fitness `db:"fitness" json:"fitness"`
	Confidence      int         `db:"confidence" json:"confidence"`
	Recommendations []string    `db:"recommendations" json:"recommendations"`
	RiskFactors     []string    `db:"risk_factors" json:"risk_factors"`
	TriggerReasons  []string    `db:"trigger_reasons" json:"trigger_reasons"`
	LastAssessedAt  time.Time   `db:"last_assessed_at" json:"last_assessed_at"`
	NextReviewDue   time.Time   `db:"next_review_due" json:"next_review_due"`
}

// Change sources recorded on history entries.
const (
	SourceInitial        = "initial"
	SourceManualOverride = "manual_override"
	SourceComplianceGate = "compliance_gate"
)

// HistoryEntry records one RAG transition. Entries are never updated.
type HistoryEntry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	CaseID      uuid.UUID  `db:"case_id" json:"case_id"`
	PreviousRAG *rag.Level `db:"previous_rag" json:"previous_rag,omitempty"`
	NewRAG      rag.Level  `db:"new_rag" json:"new_rag"`
	Source      string     `db:"source" json:"source"`
	Reason      string     `db:"reason" json:"reason"`
	Confidence  int        `db:"confidence" json:"confidence"`
	RiskFactors []string   `db:"risk_factors" json:"risk_factors"`
	TriggeredBy string     `db:"triggered_by" json:"triggered_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
