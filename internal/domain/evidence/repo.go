package evidence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, it *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	// ListByCase returns items stored after since (zero time for all), ordered
	// by received time.
	ListByCase(ctx context.Context, caseID uuid.UUID, since time.Time) ([]Item, error)
	// ListUnassessed returns items not yet folded into a verdict, ordered by
	// received time.
	ListUnassessed(ctx context.Context, caseID uuid.UUID) ([]Item, error)
	MarkAssessed(ctx context.Context, ids []uuid.UUID, at time.Time) error
}
