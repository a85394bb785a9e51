package organization

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, o *Organization) error {
	if o.Name == "" {
		return fmt.Errorf("name is required")
	}
	if o.ProbationDays != nil && *o.ProbationDays < 0 {
		return fmt.Errorf("probation_days must not be negative")
	}
	return s.repo.Create(ctx, o)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.repo.GetByID(ctx, id)
}

// Policy returns the probation configuration for an organization.
func (s *Service) Policy(ctx context.Context, orgID uuid.UUID) (Policy, error) {
	o, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy for organization %s: %w", orgID, err)
	}
	return o.Policy(), nil
}

func (s *Service) UpdatePolicy(ctx context.Context, p Policy) error {
	if p.ProbationDays != nil && *p.ProbationDays < 0 {
		return fmt.Errorf("probation_days must not be negative")
	}
	return s.repo.UpdatePolicy(ctx, p)
}
