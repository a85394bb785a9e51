package casefile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gpnet/caseengine/internal/platform/db"
)

var (
	ErrCaseNotFound   = errors.New("case not found")
	ErrWorkerNotFound = errors.New("worker not found")
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.From(ctx, r.pool)
}

const caseCols = `id, worker_id, organization_id, case_type, claim_type, priority, status,
	assigned_coordinator_id, required_specializations, injury_date,
	workflow_stage, compliance_status, next_deadline_date, next_deadline_type,
	archived, created_at, updated_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.WorkerID, &c.OrganizationID, &c.CaseType, &c.ClaimType, &c.Priority, &c.Status,
		&c.AssignedCoordinatorID, &c.RequiredSpecializations, &c.InjuryDate,
		&c.WorkflowStage, &c.ComplianceStatus, &c.NextDeadlineDate, &c.NextDeadlineType,
		&c.Archived, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.RequiredSpecializations == nil {
		c.RequiredSpecializations = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO case_file (id, worker_id, organization_id, case_type, claim_type, priority, status,
			assigned_coordinator_id, required_specializations, injury_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		c.ID, c.WorkerID, c.OrganizationID, c.CaseType, c.ClaimType, c.Priority, c.Status,
		c.AssignedCoordinatorID, c.RequiredSpecializations, c.InjuryDate).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM case_file WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM case_file WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Case, int, error) {
	where := []string{"archived = FALSE"}
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.OrganizationID != nil {
		add("organization_id = $%d", *f.OrganizationID)
	}
	if f.CoordinatorID != nil {
		add("assigned_coordinator_id = $%d", *f.CoordinatorID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.CaseType != "" {
		add("case_type = $%d", f.CaseType)
	}
	if f.Unassigned {
		where = append(where, "assigned_coordinator_id IS NULL")
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM case_file`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+caseCols+` FROM case_file`+clause+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListOpenRTW(ctx context.Context) ([]*Case, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+caseCols+` FROM case_file
		WHERE archived = FALSE AND workflow_stage IS NOT NULL AND workflow_stage <> 'workflow_completed'
		ORDER BY next_deadline_date NULLS LAST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *repoPG) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	return r.exec(ctx, `UPDATE case_file SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
}

func (r *repoPG) UpdateCompliance(ctx context.Context, id uuid.UUID, c Compliance) error {
	return r.exec(ctx, `
		UPDATE case_file SET workflow_stage = $2, compliance_status = $3,
			next_deadline_date = $4, next_deadline_type = $5, updated_at = NOW()
		WHERE id = $1`,
		id, c.WorkflowStage, c.ComplianceStatus, c.NextDeadlineDate, c.NextDeadlineType)
}

func (r *repoPG) SetCoordinator(ctx context.Context, id uuid.UUID, coordinatorID *uuid.UUID) error {
	return r.exec(ctx, `UPDATE case_file SET assigned_coordinator_id = $2, updated_at = NOW() WHERE id = $1`, id, coordinatorID)
}

func (r *repoPG) CreateWorker(ctx context.Context, w *Worker) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO worker (id, organization_id, name, email) VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		w.ID, w.OrganizationID, w.Name, w.Email).Scan(&w.CreatedAt)
}

func (r *repoPG) GetWorker(ctx context.Context, id uuid.UUID) (*Worker, error) {
	var w Worker
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, organization_id, name, email, created_at FROM worker WHERE id = $1`, id).
		Scan(&w.ID, &w.OrganizationID, &w.Name, &w.Email, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWorkerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
