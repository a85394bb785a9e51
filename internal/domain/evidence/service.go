package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	items    Repository
	now      func() time.Time
	onRecord func(ctx context.Context, it Item)
}

func NewService(items Repository) *Service {
	return &Service{items: items, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// OnRecord registers a callback run after each item is stored.
func (s *Service) OnRecord(fn func(ctx context.Context, it Item)) { s.onRecord = fn }

// Record validates and stores a new item. The payload must decode as the
// variant its kind names; items are immutable once stored.
func (s *Service) Record(ctx context.Context, it *Item) error {
	if it.CaseID == uuid.Nil {
		return fmt.Errorf("%w: case_id is required", ErrInvalidItem)
	}
	if !validKinds[it.Kind] {
		return fmt.Errorf("%w: invalid kind: %s", ErrInvalidItem, it.Kind)
	}
	p, err := it.Decode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if o, ok := p.(ManualOverride); ok {
		if !o.RAG.Valid() {
			return fmt.Errorf("%w: manual override requires a rag level", ErrInvalidItem)
		}
		if o.Reason == "" {
			return fmt.Errorf("%w: manual override requires a reason", ErrInvalidItem)
		}
	}
	if it.Source == "" {
		it.Source = string(it.Kind)
	}
	if it.ReceivedAt.IsZero() {
		it.ReceivedAt = s.now().UTC()
	}
	if err := s.items.Create(ctx, it); err != nil {
		return err
	}
	if s.onRecord != nil {
		s.onRecord(ctx, *it)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.items.GetByID(ctx, id)
}

func (s *Service) ListByCase(ctx context.Context, caseID uuid.UUID) ([]Item, error) {
	return s.items.ListByCase(ctx, caseID, time.Time{})
}
