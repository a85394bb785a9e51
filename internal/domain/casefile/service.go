package casefile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type Service struct {
	repo     Repository
	onCreate func(ctx context.Context, c Case)
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// OnCreate registers a callback run after each case is stored.
func (s *Service) OnCreate(fn func(ctx context.Context, c Case)) { s.onCreate = fn }

func (s *Service) CreateCase(ctx context.Context, c *Case) error {
	if c.WorkerID == uuid.Nil {
		return fmt.Errorf("worker_id is required")
	}
	if c.OrganizationID == uuid.Nil {
		return fmt.Errorf("organization_id is required")
	}
	if !validCaseTypes[c.CaseType] {
		return fmt.Errorf("invalid case_type: %s", c.CaseType)
	}
	if c.Priority == "" {
		c.Priority = PriorityMedium
	}
	if !validPriorities[c.Priority] {
		return fmt.Errorf("invalid priority: %s", c.Priority)
	}
	if c.CaseType == TypeRTW && c.InjuryDate == nil {
		return fmt.Errorf("injury_date is required for rtw cases")
	}
	c.Status = StatusNew
	c.Archived = false
	if err := s.repo.Create(ctx, c); err != nil {
		return err
	}
	if s.onCreate != nil {
		s.onCreate(ctx, *c)
	}
	return nil
}

func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListCases(ctx context.Context, f ListFilter, limit, offset int) ([]*Case, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// Transition moves a case along the review lifecycle.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status) (*Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(c.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	c.Status = to
	return c, nil
}

func (s *Service) CreateWorker(ctx context.Context, w *Worker) error {
	if w.OrganizationID == uuid.Nil {
		return fmt.Errorf("organization_id is required")
	}
	if w.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.repo.CreateWorker(ctx, w)
}

func (s *Service) GetWorker(ctx context.Context, id uuid.UUID) (*Worker, error) {
	return s.repo.GetWorker(ctx, id)
}
