package risk

import (
	"time"

	"github.com/gpnet/caseengine/internal/domain/evidence"
	"github.com/gpnet/caseengine/internal/domain/rag"
)

// ShouldReassess reports whether a case is due for another assessment:
// new correspondence of medium or high urgency, any new document signal, or
// the review window for the current level has elapsed. It never mutates
// anything.
func ShouldReassess(lastAssessedAt time.Time, newItems []evidence.Item, current rag.Level, now time.Time) bool {
	for _, it := range newItems {
		switch it.Kind {
		case evidence.KindDocumentSignal:
			return true
		case evidence.KindCorrespondence:
			p, err := it.Decode()
			if err != nil {
				continue
			}
			switch evidence.CorrespondenceUrgency(p.(evidence.Correspondence)) {
			case evidence.UrgencyMedium, evidence.UrgencyHigh:
				return true
			}
		}
	}
	window := time.Duration(rag.ReviewDays(current)) * 24 * time.Hour
	return now.Sub(lastAssessedAt) > window
}
