package risk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gpnet/caseengine/internal/domain/casefile"
	"github.com/gpnet/caseengine/internal/domain/evidence"
	"github.com/gpnet/caseengine/internal/domain/organization"
)

// -- Mock Repositories --

type mockVerdictRepo struct {
	mu       sync.Mutex
	verdicts map[uuid.UUID]Verdict
	history  []HistoryEntry
}

func newMockVerdictRepo() *mockVerdictRepo {
	return &mockVerdictRepo{verdicts: make(map[uuid.UUID]Verdict)}
}

func (m *mockVerdictRepo) GetVerdict(_ context.Context, caseID uuid.UUID) (*Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verdicts[caseID]
	if !ok {
		return nil, ErrVerdictNotFound
	}
	return &v, nil
}

func (m *mockVerdictRepo) UpsertVerdict(_ context.Context, v *Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts[v.CaseID] = *v
	return nil
}

func (m *mockVerdictRepo) AppendHistory(_ context.Context, h *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = uuid.New()
	h.CreatedAt = time.Now()
	m.history = append(m.history, *h)
	return nil
}

func (m *mockVerdictRepo) ListHistory(_ context.Context, caseID uuid.UUID) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoryEntry
	for _, h := range m.history {
		if h.CaseID == caseID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *mockVerdictRepo) ListDue(_ context.Context, now time.Time, limit int) ([]Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Verdict
	for _, v := range m.verdicts {
		if !v.NextReviewDue.After(now) && len(out) < limit {
			out = append(out, v)
		}
	}
	return out, nil
}

type mockCaseStore struct {
	mu    sync.Mutex
	cases map[uuid.UUID]*casefile.Case
}

func newMockCaseStore() *mockCaseStore {
	return &mockCaseStore{cases: make(map[uuid.UUID]*casefile.Case)}
}

func (m *mockCaseStore) add(orgID uuid.UUID) *casefile.Case {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &casefile.Case{ID: uuid.New(), OrganizationID: orgID, CaseType: casefile.TypePreEmployment, Status: casefile.StatusNew}
	m.cases[c.ID] = c
	return c
}

func (m *mockCaseStore) GetForUpdate(_ context.Context, id uuid.UUID) (*casefile.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, casefile.ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCaseStore) UpdateStatus(_ context.Context, id uuid.UUID, status casefile.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return casefile.ErrCaseNotFound
	}
	c.Status = status
	return nil
}

type mockEvidence struct {
	mu    sync.Mutex
	items map[uuid.UUID][]evidence.Item
}

func newMockEvidence() *mockEvidence {
	return &mockEvidence{items: make(map[uuid.UUID][]evidence.Item)}
}

func (m *mockEvidence) add(it evidence.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.CaseID] = append(m.items[it.CaseID], it)
}

func (m *mockEvidence) ListUnassessed(_ context.Context, caseID uuid.UUID) ([]evidence.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []evidence.Item
	for _, it := range m.items[caseID] {
		if it.AssessedAt == nil {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockEvidence) MarkAssessed(_ context.Context, ids []uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	marked := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		marked[id] = true
	}
	for caseID, items := range m.items {
		for i := range items {
			if marked[items[i].ID] && items[i].AssessedAt == nil {
				t := at
				m.items[caseID][i].AssessedAt = &t
			}
		}
	}
	return nil
}

type mockPolicies struct {
	policies map[uuid.UUID]organization.Policy
	err      error
}

func (m *mockPolicies) Policy(_ context.Context, orgID uuid.UUID) (organization.Policy, error) {
	if m.err != nil {
		return organization.Policy{}, m.err
	}
	p, ok := m.policies[orgID]
	if !ok {
		return organization.Policy{}, errors.New("organization not found")
	}
	return p, nil
}

// passthroughTx runs fn directly; the fakes above hold their own locks.
type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
