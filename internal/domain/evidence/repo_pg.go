package evidence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gpnet/caseengine/internal/platform/db"
)

var ErrItemNotFound = errors.New("evidence item not found")

const foreignKeyViolation = "23503"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.From(ctx, r.pool)
}

const itemCols = `id, case_id, kind, source, received_at, payload, created_at, assessed_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	var payload []byte
	if err := row.Scan(&it.ID, &it.CaseID, &it.Kind, &it.Source, &it.ReceivedAt, &payload, &it.CreatedAt, &it.AssessedAt); err != nil {
		return nil, err
	}
	it.Payload = payload
	return &it, nil
}

func (r *repoPG) Create(ctx context.Context, it *Item) error {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO evidence_item (id, case_id, kind, source, received_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET id = evidence_item.id
		RETURNING created_at`,
		it.ID, it.CaseID, it.Kind, it.Source, it.ReceivedAt, []byte(it.Payload)).Scan(&it.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: unknown case %s", ErrInvalidItem, it.CaseID)
	}
	if err != nil {
		return fmt.Errorf("insert evidence item: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	it, err := scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM evidence_item WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	return it, err
}

func (r *repoPG) ListByCase(ctx context.Context, caseID uuid.UUID, since time.Time) ([]Item, error) {
	return r.list(ctx, `
		SELECT `+itemCols+` FROM evidence_item
		WHERE case_id = $1 AND created_at > $2
		ORDER BY received_at, created_at`, caseID, since)
}

// ListUnassessed is read under the case row lock held by the assessment, so
// an item committed after the read stays unassessed for the next run.
func (r *repoPG) ListUnassessed(ctx context.Context, caseID uuid.UUID) ([]Item, error) {
	return r.list(ctx, `
		SELECT `+itemCols+` FROM evidence_item
		WHERE case_id = $1 AND assessed_at IS NULL
		ORDER BY received_at, created_at`, caseID)
}

func (r *repoPG) MarkAssessed(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE evidence_item SET assessed_at = $2
		WHERE id = ANY($1) AND assessed_at IS NULL`, ids, at)
	if err != nil {
		return fmt.Errorf("mark evidence assessed: %w", err)
	}
	return nil
}

func (r *repoPG) list(ctx context.Context, sql string, args ...interface{}) ([]Item, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}
