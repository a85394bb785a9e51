package casefile

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	// GetForUpdate reads the case and locks its row until the enclosing
	// transaction ends. All per-case engine writes go through it.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Case, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Case, int, error)
	ListOpenRTW(ctx context.Context) ([]*Case, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	UpdateCompliance(ctx context.Context, id uuid.UUID, c Compliance) error
	SetCoordinator(ctx context.Context, id uuid.UUID, coordinatorID *uuid.UUID) error

	CreateWorker(ctx context.Context, w *Worker) error
	GetWorker(ctx context.Context, id uuid.UUID) (*Worker, error)
}
