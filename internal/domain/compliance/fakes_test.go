package compliance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gpnet/caseengine/internal/domain/casefile"
)

// -- Mock Repositories --

type mockRepo struct {
	mu            sync.Mutex
	steps         map[uuid.UUID]*Step
	audit         []AuditEntry
	participation []ParticipationEvent
	seq           int
}

func newMockRepo() *mockRepo {
	return &mockRepo{steps: make(map[uuid.UUID]*Step)}
}

func (m *mockRepo) CreateStep(_ context.Context, s *Step) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.steps {
		if existing.CaseID == s.CaseID && existing.Status == StepPending {
			return false, nil
		}
	}
	m.seq++
	s.ID = uuid.New()
	s.CreatedAt = time.Unix(int64(m.seq), 0)
	cp := *s
	m.steps[s.ID] = &cp
	return true, nil
}

func (m *mockRepo) GetStep(_ context.Context, id uuid.UUID) (*Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.steps[id]
	if !ok {
		return nil, ErrStepNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) GetPendingStep(_ context.Context, caseID uuid.UUID) (*Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.steps {
		if s.CaseID == caseID && s.Status == StepPending {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrStepNotFound
}

func (m *mockRepo) FindStep(_ context.Context, caseID uuid.UUID, stage StageID) (*Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Step
	for _, s := range m.steps {
		if s.CaseID == caseID && s.StageID == stage && (found == nil || s.CreatedAt.Before(found.CreatedAt)) {
			found = s
		}
	}
	if found == nil {
		return nil, ErrStepNotFound
	}
	cp := *found
	return &cp, nil
}

func (m *mockRepo) CompleteStep(_ context.Context, id uuid.UUID, outcome Outcome, actor string, notes *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.steps[id]
	if !ok || s.Status != StepPending {
		return ErrStepNotPending
	}
	s.Status = StepCompleted
	s.Outcome = &outcome
	s.CompletedAt = &at
	s.CompletedBy = &actor
	if notes != nil {
		s.Notes = notes
	}
	return nil
}

func (m *mockRepo) ListSteps(_ context.Context, caseID uuid.UUID) ([]Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Step
	for _, s := range m.steps {
		if s.CaseID == caseID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRepo) AppendAudit(_ context.Context, a *AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.audit {
		if existing.Checksum == a.Checksum {
			return false, nil
		}
	}
	a.ID = uuid.New()
	m.audit = append(m.audit, *a)
	return true, nil
}

func (m *mockRepo) ListAudit(_ context.Context, caseID uuid.UUID) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEntry
	for _, a := range m.audit {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepo) CreateParticipation(_ context.Context, p *ParticipationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	m.participation = append(m.participation, *p)
	return nil
}

func (m *mockRepo) ListParticipation(_ context.Context, caseID uuid.UUID) ([]ParticipationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ParticipationEvent
	for _, p := range m.participation {
		if p.CaseID == caseID {
			out = append(out, p)
		}
	}
	return out, nil
}

// auditActions lists the actions recorded for a case in write order.
func (m *mockRepo) auditActions(caseID uuid.UUID) []Action {
	entries, _ := m.ListAudit(context.Background(), caseID)
	out := make([]Action, 0, len(entries))
	for _, a := range entries {
		out = append(out, a.Action)
	}
	return out
}

type mockCaseStore struct {
	mu    sync.Mutex
	cases map[uuid.UUID]*casefile.Case
}

func newMockCaseStore() *mockCaseStore {
	return &mockCaseStore{cases: make(map[uuid.UUID]*casefile.Case)}
}

func (m *mockCaseStore) add(injury *time.Time, coordinator *uuid.UUID) *casefile.Case {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &casefile.Case{
		ID:                    uuid.New(),
		OrganizationID:        uuid.New(),
		CaseType:              casefile.TypeRTW,
		Status:                casefile.StatusNew,
		InjuryDate:            injury,
		AssignedCoordinatorID: coordinator,
	}
	m.cases[c.ID] = c
	return c
}

func (m *mockCaseStore) setType(id uuid.UUID, t casefile.CaseType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[id].CaseType = t
}

func (m *mockCaseStore) get(id uuid.UUID) casefile.Case {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.cases[id]
}

func (m *mockCaseStore) GetByID(_ context.Context, id uuid.UUID) (*casefile.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, casefile.ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCaseStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*casefile.Case, error) {
	return m.GetByID(ctx, id)
}

func (m *mockCaseStore) UpdateCompliance(_ context.Context, id uuid.UUID, comp casefile.Compliance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return casefile.ErrCaseNotFound
	}
	c.WorkflowStage = comp.WorkflowStage
	c.ComplianceStatus = comp.ComplianceStatus
	c.NextDeadlineDate = comp.NextDeadlineDate
	c.NextDeadlineType = comp.NextDeadlineType
	return nil
}

func (m *mockCaseStore) ListOpenRTW(_ context.Context) ([]*casefile.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*casefile.Case
	for _, c := range m.cases {
		if c.Archived || c.WorkflowStage == nil || *c.WorkflowStage == string(StageCompleted) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

type sentNotification struct {
	template  string
	data      map[string]string
	recipient string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Notify(_ context.Context, template string, data map[string]string, recipient string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{template: template, data: data, recipient: recipient})
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRecipients map[uuid.UUID]string

func (f fakeRecipients) CoordinatorEmail(_ context.Context, id uuid.UUID) (string, error) {
	email, ok := f[id]
	if !ok {
		return "", errors.New("coordinator not found")
	}
	return email, nil
}

// passthroughTx runs fn directly; the fakes above hold their own locks.
type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
