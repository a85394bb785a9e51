package evidence

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/gpnet/caseengine/internal/domain/rag"
)

// Kind tags the payload carried by an Item.
type Kind string

const (
	KindFormSubmission Kind = "form_submission"
	KindCorrespondence Kind = "correspondence"
	KindDocumentSignal Kind = "document_signal"
	KindManualOverride Kind = "manual_override"
)

var validKinds = map[Kind]bool{
	KindFormSubmission: true,
	KindCorrespondence: true,
	KindDocumentSignal: true,
	KindManualOverride: true,
}

// Item is one immutable input to risk assessment. Payload holds the JSON
// encoding of the variant named by Kind.
type Item struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	CaseID     uuid.UUID       `db:"case_id" json:"case_id"`
	Kind       Kind            `db:"kind" json:"kind"`
	Source     string          `db:"source" json:"source"`
	ReceivedAt time.Time       `db:"received_at" json:"received_at"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	// AssessedAt is set when the item is folded into the case verdict.
	AssessedAt *time.Time `db:"assessed_at" json:"assessed_at,omitempty"`
}

// Payload is implemented by every evidence variant.
type Payload interface {
	Kind() Kind
}

// Form types carried by FormSubmission.
const (
	FormPreEmployment = "pre_employment"
	FormInjury        = "injury"
)

// MSK flag statuses.
const (
	MSKCurrent = "current"
	MSKPast    = "past"
)

// MSKFlag is one musculoskeletal history answer.
type MSKFlag struct {
	Area   string `json:"area"`
	Status string `json:"status"`
}

// FormSubmission is a structured questionnaire: a pre-employment health
// check or an injury report.
type FormSubmission struct {
	FormType            string            `json:"form_type"`
	LiftingKg           *float64          `json:"lifting_kg,omitempty"`
	Musculoskeletal     []MSKFlag         `json:"musculoskeletal,omitempty"`
	PsychosocialRatings map[string]int    `json:"psychosocial_ratings,omitempty"`
	MentalHealthCheck   bool              `json:"mental_health_check,omitempty"`
	Severity            string            `json:"severity,omitempty"`
	InjuryType          string            `json:"injury_type,omitempty"`
	ExpectedRecoveryWks *float64          `json:"expected_recovery_weeks,omitempty"`
	Answers             map[string]string `json:"answers,omitempty"`
}

func (FormSubmission) Kind() Kind { return KindFormSubmission }

// Correspondence is an inbound email or message about the case.
type Correspondence struct {
	From    string `json:"from,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (Correspondence) Kind() Kind { return KindCorrespondence }

// DocumentSignal reports that a medical document was processed.
// DocumentKey points at the extracted-fields object in the document bucket.
type DocumentSignal struct {
	Classification  string            `json:"classification"`
	DocumentKey     string            `json:"document_key,omitempty"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`
}

func (DocumentSignal) Kind() Kind { return KindDocumentSignal }

// ManualOverride is a human-entered verdict.
type ManualOverride struct {
	RAG    rag.Level `json:"rag"`
	Reason string    `json:"reason"`
	Actor  string    `json:"actor,omitempty"`
}

func (ManualOverride) Kind() Kind { return KindManualOverride }

var ErrUnknownKind = errors.New("unknown evidence kind")

// ErrInvalidItem marks an item that can never be stored as submitted.
var ErrInvalidItem = errors.New("invalid evidence item")

// NewItem encodes p as the payload of a new item.
func NewItem(caseID uuid.UUID, source string, receivedAt time.Time, p Payload) (Item, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Item{}, fmt.Errorf("encode %s payload: %w", p.Kind(), err)
	}
	return Item{
		CaseID:     caseID,
		Kind:       p.Kind(),
		Source:     source,
		ReceivedAt: receivedAt,
		Payload:    raw,
	}, nil
}

// Decode returns the typed payload for the item's kind.
func (it Item) Decode() (Payload, error) {
	var p Payload
	switch it.Kind {
	case KindFormSubmission:
		var v FormSubmission
		if err := json.Unmarshal(it.Payload, &v); err != nil {
			return nil, fmt.Errorf("decode form submission: %w", err)
		}
		p = v
	case KindCorrespondence:
		var v Correspondence
		if err := json.Unmarshal(it.Payload, &v); err != nil {
			return nil, fmt.Errorf("decode correspondence: %w", err)
		}
		p = v
	case KindDocumentSignal:
		var v DocumentSignal
		if err := json.Unmarshal(it.Payload, &v); err != nil {
			return nil, fmt.Errorf("decode document signal: %w", err)
		}
		p = v
	case KindManualOverride:
		var v ManualOverride
		if err := json.Unmarshal(it.Payload, &v); err != nil {
			return nil, fmt.Errorf("decode manual override: %w", err)
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, it.Kind)
	}
	return p, nil
}

// IsPreEmploymentForm reports whether the item is a pre-employment questionnaire.
func (it Item) IsPreEmploymentForm() bool {
	if it.Kind != KindFormSubmission {
		return false
	}
	p, err := it.Decode()
	if err != nil {
		return false
	}
	return p.(FormSubmission).FormType == FormPreEmployment
}

// Urgency is the correspondence urgency tier.
type Urgency string

const (
	UrgencyNone   Urgency = ""
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Judgment is the partial risk assessment derived from one item.
type Judgment struct {
	ItemID          uuid.UUID `json:"item_id"`
	Kind            Kind      `json:"kind"`
	RAG             rag.Level `json:"rag"`
	RiskFactors     []string  `json:"risk_factors"`
	Recommendations []string  `json:"recommendations"`
	Confidence      int       `json:"confidence"`
	TriggerReason   string    `json:"trigger_reason"`
	Urgency         Urgency   `json:"urgency,omitempty"`
	MentalHealth    bool      `json:"mental_health,omitempty"`
}
