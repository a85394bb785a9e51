package evidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gpnet/caseengine/internal/domain/rag"
)

// -- Mock Repository --

type mockItemRepo struct {
	store map[uuid.UUID]*Item
}

func newMockItemRepo() *mockItemRepo {
	return &mockItemRepo{store: make(map[uuid.UUID]*Item)}
}

func (m *mockItemRepo) Create(_ context.Context, it *Item) error {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	it.CreatedAt = time.Now()
	m.store[it.ID] = it
	return nil
}

func (m *mockItemRepo) GetByID(_ context.Context, id uuid.UUID) (*Item, error) {
	it, ok := m.store[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	return it, nil
}

func (m *mockItemRepo) ListByCase(_ context.Context, caseID uuid.UUID, since time.Time) ([]Item, error) {
	var out []Item
	for _, it := range m.store {
		if it.CaseID == caseID && it.CreatedAt.After(since) {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *mockItemRepo) ListUnassessed(_ context.Context, caseID uuid.UUID) ([]Item, error) {
	var out []Item
	for _, it := range m.store {
		if it.CaseID == caseID && it.AssessedAt == nil {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *mockItemRepo) MarkAssessed(_ context.Context, ids []uuid.UUID, at time.Time) error {
	for _, id := range ids {
		if it, ok := m.store[id]; ok && it.AssessedAt == nil {
			t := at
			it.AssessedAt = &t
		}
	}
	return nil
}

func TestService_Record(t *testing.T) {
	repo := newMockItemRepo()
	svc := NewService(repo)
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	it, _ := NewItem(uuid.New(), "", time.Time{}, Correspondence{Subject: "hi", Body: "there"})
	if err := svc.Record(context.Background(), &it); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if it.ID == uuid.Nil {
		t.Error("expected ID assigned")
	}
	if !it.ReceivedAt.Equal(now) {
		t.Errorf("expected received_at defaulted to now, got %v", it.ReceivedAt)
	}
	if it.Source != string(KindCorrespondence) {
		t.Errorf("expected source defaulted to kind, got %q", it.Source)
	}
}

func TestService_RecordValidation(t *testing.T) {
	svc := NewService(newMockItemRepo())
	caseID := uuid.New()

	tests := []struct {
		name string
		item Item
	}{
		{"missing case", Item{Kind: KindCorrespondence, Payload: []byte(`{}`)}},
		{"unknown kind", Item{CaseID: caseID, Kind: "fax", Payload: []byte(`{}`)}},
		{"bad payload", Item{CaseID: caseID, Kind: KindDocumentSignal, Payload: []byte(`[`)}},
		{"override without reason", Item{CaseID: caseID, Kind: KindManualOverride, Payload: []byte(`{"rag":"red"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := tt.item
			err := svc.Record(context.Background(), &it)
			if !errors.Is(err, ErrInvalidItem) {
				t.Errorf("expected ErrInvalidItem, got %v", err)
			}
		})
	}
}

func TestService_RecordOverride(t *testing.T) {
	svc := NewService(newMockItemRepo())
	it, _ := NewItem(uuid.New(), "case-manager", time.Now(), ManualOverride{RAG: rag.Red, Reason: "Site visit concerns"})
	if err := svc.Record(context.Background(), &it); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestService_OnRecord(t *testing.T) {
	svc := NewService(newMockItemRepo())
	var seen []Item
	svc.OnRecord(func(_ context.Context, it Item) { seen = append(seen, it) })

	it, _ := NewItem(uuid.New(), "email", time.Now(), Correspondence{Subject: "update"})
	if err := svc.Record(context.Background(), &it); err != nil {
		t.Fatalf("Record: %v", err)
	}
	bad := Item{CaseID: uuid.New(), Kind: "fax"}
	svc.Record(context.Background(), &bad)

	if len(seen) != 1 || seen[0].ID != it.ID {
		t.Errorf("expected callback once for the stored item, got %d", len(seen))
	}
}
