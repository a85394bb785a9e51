package allocation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateCoordinator(ctx context.Context, c *Coordinator) error
	GetCoordinator(ctx context.Context, id uuid.UUID) (*Coordinator, error)
	ListCoordinators(ctx context.Context) ([]Coordinator, error)
	UpdateAvailability(ctx context.Context, id uuid.UUID, a Availability) error
	// AdjustCaseload adds delta to the coordinator's caseload in a single
	// statement and returns the new value. The caseload never drops below 0.
	AdjustCaseload(ctx context.Context, id uuid.UUID, delta int) (int, error)

	CreateAssignment(ctx context.Context, a *Assignment) error
	GetActiveAssignment(ctx context.Context, caseID uuid.UUID) (*Assignment, error)
	ListActiveAssignments(ctx context.Context, coordinatorID uuid.UUID) ([]Assignment, error)
	EndAssignment(ctx context.Context, id uuid.UUID, at time.Time) error
	// OrganizationHistory returns the coordinators that have ever been
	// assigned a case of the organization.
	OrganizationHistory(ctx context.Context, orgID uuid.UUID) (map[uuid.UUID]bool, error)
}
