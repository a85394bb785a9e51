package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gpnet/caseengine/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.From(ctx, r.pool)
}

const stepCols = `id, case_id, stage_id, status, outcome, start_date, deadline_date, legislative_refs,
	notes, created_by, completed_at, completed_by, created_at`

func scanStep(row pgx.Row) (*Step, error) {
	var s Step
	err := row.Scan(&s.ID, &s.CaseID, &s.StageID, &s.Status, &s.Outcome, &s.StartDate, &s.DeadlineDate,
		&s.LegislativeRefs, &s.Notes, &s.CreatedBy, &s.CompletedAt, &s.CompletedBy, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStepNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) CreateStep(ctx context.Context, s *Step) (bool, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO workflow_step (id, case_id, stage_id, status, start_date, deadline_date, legislative_refs, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (case_id) WHERE status = 'pending' DO NOTHING
		RETURNING created_at`,
		s.ID, s.CaseID, s.StageID, s.Status, s.StartDate, s.DeadlineDate, s.LegislativeRefs, s.Notes, s.CreatedBy).
		Scan(&s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert workflow step: %w", err)
	}
	return true, nil
}

func (r *repoPG) GetStep(ctx context.Context, id uuid.UUID) (*Step, error) {
	return scanStep(r.conn(ctx).QueryRow(ctx, `SELECT `+stepCols+` FROM workflow_step WHERE id = $1`, id))
}

func (r *repoPG) GetPendingStep(ctx context.Context, caseID uuid.UUID) (*Step, error) {
	return scanStep(r.conn(ctx).QueryRow(ctx,
		`SELECT `+stepCols+` FROM workflow_step WHERE case_id = $1 AND status = 'pending'`, caseID))
}

func (r *repoPG) FindStep(ctx context.Context, caseID uuid.UUID, stage StageID) (*Step, error) {
	return scanStep(r.conn(ctx).QueryRow(ctx, `
		SELECT `+stepCols+` FROM workflow_step
		WHERE case_id = $1 AND stage_id = $2
		ORDER BY created_at LIMIT 1`, caseID, stage))
}

func (r *repoPG) CompleteStep(ctx context.Context, id uuid.UUID, outcome Outcome, actor string, notes *string, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE workflow_step SET status = 'completed', outcome = $2, completed_by = $3,
			notes = COALESCE($4, notes), completed_at = $5
		WHERE id = $1 AND status = 'pending'`, id, outcome, actor, notes, at)
	if err != nil {
		return fmt.Errorf("complete workflow step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStepNotPending
	}
	return nil
}

func (r *repoPG) ListSteps(ctx context.Context, caseID uuid.UUID) ([]Step, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+stepCols+` FROM workflow_step WHERE case_id = $1 ORDER BY created_at`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *repoPG) AppendAudit(ctx context.Context, a *AuditEntry) (bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO compliance_audit (id, case_id, step_id, action, actor, checksum, legislative_refs, risk_level, result)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (checksum) DO NOTHING
		RETURNING created_at`,
		a.ID, a.CaseID, a.StepID, a.Action, a.Actor, a.Checksum, a.LegislativeRefs, a.RiskLevel, a.Result).
		Scan(&a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert compliance audit: %w", err)
	}
	return true, nil
}

func (r *repoPG) ListAudit(ctx context.Context, caseID uuid.UUID) ([]AuditEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, step_id, action, actor, checksum, legislative_refs, risk_level, result, created_at
		FROM compliance_audit WHERE case_id = $1 ORDER BY created_at`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var a AuditEntry
		if err := rows.Scan(&a.ID, &a.CaseID, &a.StepID, &a.Action, &a.Actor, &a.Checksum,
			&a.LegislativeRefs, &a.RiskLevel, &a.Result, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateParticipation(ctx context.Context, p *ParticipationEvent) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO participation_event (id, case_id, event_type, level, legislative_basis, notes, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		p.ID, p.CaseID, p.EventType, p.Level, p.LegislativeBasis, p.Notes, p.RecordedBy).Scan(&p.CreatedAt)
}

func (r *repoPG) ListParticipation(ctx context.Context, caseID uuid.UUID) ([]ParticipationEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, event_type, level, legislative_basis, notes, recorded_by, created_at
		FROM participation_event WHERE case_id = $1 ORDER BY created_at`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ParticipationEvent
	for rows.Next() {
		var p ParticipationEvent
		if err := rows.Scan(&p.ID, &p.CaseID, &p.EventType, &p.Level, &p.LegislativeBasis, &p.Notes,
			&p.RecordedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
