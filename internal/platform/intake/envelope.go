package intake

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/gpnet/caseengine/internal/domain/evidence"
)

// Envelope is the wire form of one evidence message on the intake topic.
type Envelope struct {
	CaseID     uuid.UUID       `json:"case_id"`
	Kind       evidence.Kind   `json:"kind"`
	Source     string          `json:"source"`
	ReceivedAt *time.Time      `json:"received_at,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// ErrInvalidEnvelope marks a message value that cannot be decoded.
var ErrInvalidEnvelope = errors.New("invalid evidence envelope")

// DecodeEnvelope parses a message value into an evidence item.
func DecodeEnvelope(value []byte) (evidence.Item, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return evidence.Item{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.CaseID == uuid.Nil {
		return evidence.Item{}, fmt.Errorf("%w: no case_id", ErrInvalidEnvelope)
	}
	if len(env.Payload) == 0 {
		return evidence.Item{}, fmt.Errorf("%w: no payload", ErrInvalidEnvelope)
	}
	it := evidence.Item{
		CaseID:  env.CaseID,
		Kind:    env.Kind,
		Source:  env.Source,
		Payload: env.Payload,
	}
	if env.ReceivedAt != nil {
		it.ReceivedAt = env.ReceivedAt.UTC()
	}
	return it, nil
}
