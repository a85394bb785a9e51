package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gpnet/caseengine/internal/platform/db"
)

var (
	ErrCoordinatorNotFound = errors.New("coordinator not found")
	ErrAssignmentNotFound  = errors.New("assignment not found")
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.From(ctx, r.pool)
}

const coordinatorCols = `id, name, email, specializations, current_caseload, availability,
	avg_completion_days, created_at, updated_at`

func scanCoordinator(row pgx.Row) (*Coordinator, error) {
	var c Coordinator
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Specializations, &c.CurrentCaseload, &c.Availability,
		&c.AvgCompletionDays, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCoordinatorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) CreateCoordinator(ctx context.Context, c *Coordinator) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Specializations == nil {
		c.Specializations = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO coordinator (id, name, email, specializations, current_caseload, availability, avg_completion_days)
		VALUES ($1,$2,$3,$4,0,$5,$6)
		RETURNING current_caseload, created_at, updated_at`,
		c.ID, c.Name, c.Email, c.Specializations, c.Availability, c.AvgCompletionDays,
	).Scan(&c.CurrentCaseload, &c.CreatedAt, &c.UpdatedAt)
}

func (r *repoPG) GetCoordinator(ctx context.Context, id uuid.UUID) (*Coordinator, error) {
	return scanCoordinator(r.conn(ctx).QueryRow(ctx, `SELECT `+coordinatorCols+` FROM coordinator WHERE id = $1`, id))
}

func (r *repoPG) ListCoordinators(ctx context.Context) ([]Coordinator, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+coordinatorCols+` FROM coordinator ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Coordinator
	for rows.Next() {
		c, err := scanCoordinator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *repoPG) UpdateAvailability(ctx context.Context, id uuid.UUID, a Availability) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE coordinator SET availability = $2, updated_at = NOW() WHERE id = $1`, id, a)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCoordinatorNotFound
	}
	return nil
}

func (r *repoPG) AdjustCaseload(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE coordinator SET current_caseload = GREATEST(current_caseload + $2, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING current_caseload`, id, delta).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrCoordinatorNotFound
	}
	return n, err
}

const assignmentCols = `id, case_id, coordinator_id, confidence, reason, workload_before, workload_after,
	estimated_completion, manual, active, created_at, ended_at`

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.CaseID, &a.CoordinatorID, &a.Confidence, &a.Reason, &a.WorkloadBefore, &a.WorkloadAfter,
		&a.EstimatedCompletion, &a.Manual, &a.Active, &a.CreatedAt, &a.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) CreateAssignment(ctx context.Context, a *Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Active = true
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO allocation_assignment (id, case_id, coordinator_id, confidence, reason,
			workload_before, workload_after, estimated_completion, manual, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE)
		RETURNING created_at`,
		a.ID, a.CaseID, a.CoordinatorID, a.Confidence, a.Reason,
		a.WorkloadBefore, a.WorkloadAfter, a.EstimatedCompletion, a.Manual,
	).Scan(&a.CreatedAt)
}

func (r *repoPG) GetActiveAssignment(ctx context.Context, caseID uuid.UUID) (*Assignment, error) {
	return scanAssignment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM allocation_assignment WHERE case_id = $1 AND active`, caseID))
}

func (r *repoPG) ListActiveAssignments(ctx context.Context, coordinatorID uuid.UUID) ([]Assignment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+assignmentCols+` FROM allocation_assignment
		WHERE coordinator_id = $1 AND active
		ORDER BY created_at DESC`, coordinatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *repoPG) EndAssignment(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE allocation_assignment SET active = FALSE, ended_at = $2 WHERE id = $1 AND active`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (r *repoPG) OrganizationHistory(ctx context.Context, orgID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT a.coordinator_id
		FROM allocation_assignment a
		JOIN case_file c ON c.id = a.case_id
		WHERE c.organization_id = $1`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
