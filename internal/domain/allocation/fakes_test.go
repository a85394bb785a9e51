package allocation

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
	mu           sync.Mutex
	coordinators map[uuid.UUID]*Coordinator
	assignments  []*Assignment
	cases        *mockCaseStore
	seq          int
	failAdjust   error
}

func newMockRepo(cases *mockCaseStore) *mockRepo {
	return &mockRepo{coordinators: make(map[uuid.UUID]*Coordinator), cases: cases}
}

func (m *mockRepo) addCoordinator(name string, caseload int, availability Availability, specs ...string) *Coordinator {
	c := &Coordinator{
		ID:              uuid.New(),
		Name:            name,
		Email:           name + "@example.com",
		Specializations: specs,
		CurrentCaseload: caseload,
		Availability:    availability,
	}
	_ = m.CreateCoordinator(context.Background(), c)
	return c
}

func (m *mockRepo) caseload(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coordinators[id].CurrentCaseload
}

func (m *mockRepo) CreateCoordinator(_ context.Context, c *Coordinator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	m.coordinators[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetCoordinator(_ context.Context, id uuid.UUID) (*Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coordinators[id]
	if !ok {
		return nil, ErrCoordinatorNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) ListCoordinators(_ context.Context) ([]Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Coordinator, 0, len(m.coordinators))
	for _, c := range m.coordinators {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepo) UpdateAvailability(_ context.Context, id uuid.UUID, a Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coordinators[id]
	if !ok {
		return ErrCoordinatorNotFound
	}
	c.Availability = a
	return nil
}

func (m *mockRepo) AdjustCaseload(_ context.Context, id uuid.UUID, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdjust != nil {
		return 0, m.failAdjust
	}
	c, ok := m.coordinators[id]
	if !ok {
		return 0, ErrCoordinatorNotFound
	}
	c.CurrentCaseload += delta
	if c.CurrentCaseload < 0 {
		c.CurrentCaseload = 0
	}
	return c.CurrentCaseload, nil
}

func (m *mockRepo) CreateAssignment(_ context.Context, a *Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	a.ID = uuid.New()
	a.Active = true
	a.CreatedAt = time.Unix(int64(m.seq), 0)
	cp := *a
	m.assignments = append(m.assignments, &cp)
	return nil
}

func (m *mockRepo) GetActiveAssignment(_ context.Context, caseID uuid.UUID) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.CaseID == caseID && a.Active {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAssignmentNotFound
}

func (m *mockRepo) ListActiveAssignments(_ context.Context, coordinatorID uuid.UUID) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for i := len(m.assignments) - 1; i >= 0; i-- {
		if a := m.assignments[i]; a.CoordinatorID == coordinatorID && a.Active {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepo) EndAssignment(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.ID == id && a.Active {
			a.Active = false
			a.EndedAt = &at
			return nil
		}
	}
	return ErrAssignmentNotFound
}

func (m *mockRepo) OrganizationHistory(ctx context.Context, orgID uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	assignments := append([]*Assignment(nil), m.assignments...)
	m.mu.Unlock()
	out := make(map[uuid.UUID]bool)
	for _, a := range assignments {
		c, err := m.cases.GetByID(ctx, a.CaseID)
		if err == nil && c.OrganizationID == orgID {
			out[a.CoordinatorID] = true
		}
	}
	return out, nil
}

// activeCount counts active assignments held by a coordinator.
func (m *mockRepo) activeCount(id uuid.UUID) int {
	list, _ := m.ListActiveAssignments(context.Background(), id)
	return len(list)
}

type mockCaseStore struct {
	mu    sync.Mutex
	cases map[uuid.UUID]*casefile.Case
}

func newMockCaseStore() *mockCaseStore {
	return &mockCaseStore{cases: make(map[uuid.UUID]*casefile.Case)}
}

func (m *mockCaseStore) add(orgID uuid.UUID, priority casefile.Priority, specs ...string) *casefile.Case {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &casefile.Case{
		ID:                      uuid.New(),
		OrganizationID:          orgID,
		CaseType:                casefile.TypeInjury,
		Priority:                priority,
		Status:                  casefile.StatusNew,
		RequiredSpecializations: specs,
	}
	m.cases[c.ID] = c
	return c
}

func (m *mockCaseStore) coordinatorOf(id uuid.UUID) *uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cases[id].AssignedCoordinatorID
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

func (m *mockCaseStore) SetCoordinator(_ context.Context, id uuid.UUID, coordinatorID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return casefile.ErrCaseNotFound
	}
	c.AssignedCoordinatorID = coordinatorID
	return nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	recipients []string
}

func (f *fakeNotifier) Notify(_ context.Context, _ string, _ map[string]string, recipient string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipients = append(f.recipients, recipient)
	return nil
}

// passthroughTx runs fn directly; the fakes above hold their own locks.
type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var errAdjust = errors.New("caseload update failed")
