package organization

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gpnet/caseengine/internal/platform/db"
)

var ErrOrganizationNotFound = errors.New("organization not found")

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.From(ctx, r.pool)
}

func (r *repoPG) Create(ctx context.Context, o *Organization) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO organization (id, name, probation_required, probation_days)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		o.ID, o.Name, o.ProbationRequired, o.ProbationDays).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	var o Organization
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, probation_required, probation_days, created_at, updated_at
		FROM organization WHERE id = $1`, id).
		Scan(&o.ID, &o.Name, &o.ProbationRequired, &o.ProbationDays, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repoPG) UpdatePolicy(ctx context.Context, p Policy) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE organization SET probation_required = $2, probation_days = $3, updated_at = NOW()
		WHERE id = $1`, p.OrganizationID, p.ProbationRequired, p.ProbationDays)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}
