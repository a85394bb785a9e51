package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetVerdict(ctx context.Context, caseID uuid.UUID) (*Verdict, error)
	UpsertVerdict(ctx context.Context, v *Verdict) error
	AppendHistory(ctx context.Context, h *HistoryEntry) error
	ListHistory(ctx context.Context, caseID uuid.UUID) ([]HistoryEntry, error)
	// ListDue returns verdicts whose review date is at or before now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Verdict, error)
}
