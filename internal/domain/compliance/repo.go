package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateStep inserts a pending step. It reports false without error when
	// the case already has a pending step.
	CreateStep(ctx context.Context, s *Step) (bool, error)
	GetStep(ctx context.Context, id uuid.UUID) (*Step, error)
	GetPendingStep(ctx context.Context, caseID uuid.UUID) (*Step, error)
	// FindStep returns the earliest step of a stage for the case.
	FindStep(ctx context.Context, caseID uuid.UUID, stage StageID) (*Step, error)
	CompleteStep(ctx context.Context, id uuid.UUID, outcome Outcome, actor string, notes *string, at time.Time) error
	ListSteps(ctx context.Context, caseID uuid.UUID) ([]Step, error)

	// AppendAudit reports false when an entry with the same checksum exists.
	AppendAudit(ctx context.Context, a *AuditEntry) (bool, error)
	ListAudit(ctx context.Context, caseID uuid.UUID) ([]AuditEntry, error)

	CreateParticipation(ctx context.Context, p *ParticipationEvent) error
	ListParticipation(ctx context.Context, caseID uuid.UUID) ([]ParticipationEvent, error)
}
