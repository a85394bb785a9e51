package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gpnet/caseengine/internal/domain/rag"
	"github.com/gpnet/caseengine/internal/platform/db"
)

var ErrVerdictNotFound = errors.New("risk verdict not found")

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.From(ctx, r.pool)
}

const verdictCols = `case_id, rag_level, fitness, confidence, recommendations, risk_factors,
	trigger_reasons, last_assessed_at, next_review_due`

func scanVerdict(row pgx.Row) (*Verdict, error) {
	var v Verdict
	var level, fitness string
	err := row.Scan(&v.CaseID, &level, &fitness, &v.Confidence, &v.Recommendations, &v.RiskFactors,
		&v.TriggerReasons, &v.LastAssessedAt, &v.NextReviewDue)
	if err != nil {
		return nil, err
	}
	if v.RAG, err = rag.Parse(level); err != nil {
		return nil, fmt.Errorf("verdict %s: %w", v.CaseID, err)
	}
	v.Fitness = rag.Fitness(fitness)
	return &v, nil
}

func (r *repoPG) GetVerdict(ctx context.Context, caseID uuid.UUID) (*Verdict, error) {
	v, err := scanVerdict(r.conn(ctx).QueryRow(ctx, `SELECT `+verdictCols+` FROM risk_verdict WHERE case_id = $1`, caseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVerdictNotFound
	}
	return v, err
}

func (r *repoPG) UpsertVerdict(ctx context.Context, v *Verdict) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO risk_verdict (case_id, rag_level, fitness, confidence, recommendations, risk_factors,
			trigger_reasons, last_assessed_at, next_review_due)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (case_id) DO UPDATE SET
			rag_level = EXCLUDED.rag_level, fitness = EXCLUDED.fitness, confidence = EXCLUDED.confidence,
			recommendations = EXCLUDED.recommendations, risk_factors = EXCLUDED.risk_factors,
			trigger_reasons = EXCLUDED.trigger_reasons, last_assessed_at = EXCLUDED.last_assessed_at,
			next_review_due = EXCLUDED.next_review_due, updated_at = NOW()`,
		v.CaseID, v.RAG.String(), string(v.Fitness), v.Confidence, v.Recommendations, v.RiskFactors,
		v.TriggerReasons, v.LastAssessedAt, v.NextReviewDue)
	if err != nil {
		return fmt.Errorf("upsert verdict: %w", err)
	}
	return nil
}

func (r *repoPG) AppendHistory(ctx context.Context, h *HistoryEntry) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	var prev *string
	if h.PreviousRAG != nil {
		s := h.PreviousRAG.String()
		prev = &s
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO risk_history (id, case_id, previous_rag, new_rag, source, reason, confidence, risk_factors, triggered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		h.ID, h.CaseID, prev, h.NewRAG.String(), h.Source, h.Reason, h.Confidence, h.RiskFactors, h.TriggeredBy).
		Scan(&h.CreatedAt)
	if err != nil {
		return fmt.Errorf("append risk history: %w", err)
	}
	return nil
}

func (r *repoPG) ListHistory(ctx context.Context, caseID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, previous_rag, new_rag, source, reason, confidence, risk_factors, triggered_by, created_at
		FROM risk_history WHERE case_id = $1 ORDER BY created_at`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var prev *string
		var next string
		if err := rows.Scan(&h.ID, &h.CaseID, &prev, &next, &h.Source, &h.Reason, &h.Confidence,
			&h.RiskFactors, &h.TriggeredBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		if h.NewRAG, err = rag.Parse(next); err != nil {
			return nil, err
		}
		if prev != nil {
			l, err := rag.Parse(*prev)
			if err != nil {
				return nil, err
			}
			h.PreviousRAG = &l
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *repoPG) ListDue(ctx context.Context, now time.Time, limit int) ([]Verdict, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+verdictCols+` FROM risk_verdict
		WHERE next_review_due <= $1
		  AND case_id IN (SELECT id FROM case_file WHERE archived = FALSE AND status <> 'COMPLETE')
		ORDER BY next_review_due
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Verdict
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
