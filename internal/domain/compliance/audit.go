package compliance

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// checksum identifies an audit event. Retried writes of the same event
// produce the same checksum.
func checksum(caseID uuid.UUID, action Action, stepID *uuid.UUID, detail string) string {
	step := ""
	if stepID != nil {
		step = stepID.String()
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{caseID.String(), string(action), step, detail}, "|")))
	return hex.EncodeToString(sum[:])
}

func newAudit(caseID uuid.UUID, stepID *uuid.UUID, action Action, actor, detail, result string, refs []string) *AuditEntry {
	if refs == nil {
		refs = []string{}
	}
	return &AuditEntry{
		CaseID:          caseID,
		StepID:          stepID,
		Action:          action,
		Actor:           actor,
		Checksum:        checksum(caseID, action, stepID, detail),
		LegislativeRefs: refs,
		Result:          result,
	}
}
