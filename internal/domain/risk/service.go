package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gpnet/caseengine/internal/domain/casefile"
	"github.com/gpnet/caseengine/internal/domain/evidence"
	"github.com/gpnet/caseengine/internal/platform/db"
	"github.com/gpnet/caseengine/internal/platform/sweep"
)

const reassessBatchLimit = 500

// CaseStore is the part of the case store the risk service writes through.
type CaseStore interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*casefile.Case, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status casefile.Status) error
}

// EvidenceSource hands out the evidence a case has not yet been assessed on
// and records which items a verdict consumed.
type EvidenceSource interface {
	ListUnassessed(ctx context.Context, caseID uuid.UUID) ([]evidence.Item, error)
	MarkAssessed(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Assessment is the result of one Assess call.
type Assessment struct {
	Verdict Verdict       `json:"verdict"`
	History *HistoryEntry `json:"history,omitempty"`
	Gated   bool          `json:"gated"`
}

// CaseResult is one entry of a batch report.
type CaseResult struct {
	CaseID uuid.UUID `json:"case_id"`
	RAG    string    `json:"rag,omitempty"`
	Error  string    `json:"error,omitempty"`
}

type Service struct {
	engine      *Engine
	verdicts    Repository
	cases       CaseStore
	items       EvidenceSource
	tx          db.TxManager
	logger      zerolog.Logger
	now         func() time.Time
	concurrency int
}

func NewService(engine *Engine, verdicts Repository, cases CaseStore, items EvidenceSource, tx db.TxManager, logger zerolog.Logger) *Service {
	return &Service{
		engine:      engine,
		verdicts:    verdicts,
		cases:       cases,
		items:       items,
		tx:          tx,
		logger:      logger,
		now:         time.Now,
		concurrency: 8,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetConcurrency bounds the reassessment sweep fan-out.
func (s *Service) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// Assess fuses the evidence stored since the last assessment onto the
// current verdict. The case row is locked for the duration so history and
// verdict writes for one case never interleave; the history entry is written
// before the verdict it describes.
func (s *Service) Assess(ctx context.Context, caseID uuid.UUID, actor string) (*Assessment, error) {
	var result *Assessment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.cases.GetForUpdate(ctx, caseID)
		if err != nil {
			return err
		}

		prior, err := s.verdicts.GetVerdict(ctx, caseID)
		if err != nil && !errors.Is(err, ErrVerdictNotFound) {
			return fmt.Errorf("read verdict: %w", err)
		}
		items, err := s.items.ListUnassessed(ctx, caseID)
		if err != nil {
			return fmt.Errorf("list evidence: %w", err)
		}

		now := s.now().UTC()
		out := s.engine.Fuse(ctx, Input{
			CaseID:         caseID,
			OrganizationID: c.OrganizationID,
			Items:          items,
			Prior:          prior,
			Now:            now,
		})
		result = &Assessment{Verdict: out.Verdict, Gated: out.Gated}

		if prior == nil || prior.RAG != out.Verdict.RAG {
			h := &HistoryEntry{
				CaseID:      caseID,
				NewRAG:      out.Verdict.RAG,
				Source:      out.Source,
				Reason:      out.Reason,
				Confidence:  out.Verdict.Confidence,
				RiskFactors: out.Verdict.RiskFactors,
				TriggeredBy: actor,
			}
			if prior != nil {
				prev := prior.RAG
				h.PreviousRAG = &prev
			}
			if err := s.verdicts.AppendHistory(ctx, h); err != nil {
				return err
			}
			result.History = h
		}
		if err := s.verdicts.UpsertVerdict(ctx, &result.Verdict); err != nil {
			return err
		}
		ids := make([]uuid.UUID, len(items))
		for i, it := range items {
			ids[i] = it.ID
		}
		if err := s.items.MarkAssessed(ctx, ids, now); err != nil {
			return err
		}

		if c.Status == casefile.StatusNew || c.Status == casefile.StatusAnalysing {
			if err := s.cases.UpdateStatus(ctx, caseID, casefile.StatusAwaitingReview); err != nil {
				return fmt.Errorf("move case to review: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := s.logger.Info()
	if result.History == nil {
		ev = s.logger.Debug()
	}
	ev.Str("case_id", caseID.String()).
		Str("rag", result.Verdict.RAG.String()).
		Int("confidence", result.Verdict.Confidence).
		Bool("gated", result.Gated).
		Msg("case assessed")
	return result, nil
}

// EvidenceArrived decides whether a newly stored item warrants an immediate
// assessment. Structured forms and overrides always do; other kinds defer to
// ShouldReassess. Failures are logged and left for the reassessment sweep.
func (s *Service) EvidenceArrived(ctx context.Context, it evidence.Item) {
	log := s.logger.With().Str("case_id", it.CaseID.String()).Str("item_id", it.ID.String()).Logger()

	prior, err := s.verdicts.GetVerdict(ctx, it.CaseID)
	if err != nil && !errors.Is(err, ErrVerdictNotFound) {
		log.Error().Err(err).Msg("read verdict for new evidence")
		return
	}
	if prior != nil && it.Kind != evidence.KindFormSubmission && it.Kind != evidence.KindManualOverride &&
		!ShouldReassess(prior.LastAssessedAt, []evidence.Item{it}, prior.RAG, s.now()) {
		log.Debug().Str("kind", string(it.Kind)).Msg("evidence deferred to next review")
		return
	}
	if _, err := s.Assess(ctx, it.CaseID, "evidence:"+string(it.Kind)); err != nil {
		log.Error().Err(err).Msg("assess on new evidence")
	}
}

func (s *Service) GetVerdict(ctx context.Context, caseID uuid.UUID) (*Verdict, error) {
	return s.verdicts.GetVerdict(ctx, caseID)
}

func (s *Service) History(ctx context.Context, caseID uuid.UUID) ([]HistoryEntry, error) {
	return s.verdicts.ListHistory(ctx, caseID)
}

// ReassessDue re-runs Assess for every verdict past its review date. Each
// case succeeds or fails on its own; cancellation stops after the in-flight
// sub-batch.
func (s *Service) ReassessDue(ctx context.Context) ([]CaseResult, error) {
	due, err := s.verdicts.ListDue(ctx, s.now().UTC(), reassessBatchLimit)
	if err != nil {
		return nil, fmt.Errorf("list due verdicts: %w", err)
	}

	results := make([]CaseResult, len(due))
	errs := sweep.Run(ctx, len(due), s.concurrency, func(ctx context.Context, i int) error {
		a, err := s.Assess(ctx, due[i].CaseID, "reassessment-sweep")
		if err != nil {
			return err
		}
		results[i].RAG = a.Verdict.RAG.String()
		return nil
	})

	failed := 0
	for i, v := range due {
		results[i].CaseID = v.CaseID
		if errs[i] != nil {
			failed++
			results[i].Error = errs[i].Error()
			s.logger.Warn().Err(errs[i]).Str("case_id", v.CaseID.String()).Msg("reassessment failed")
		}
	}
	s.logger.Info().Int("due", len(due)).Int("failed", failed).Msg("reassessment sweep finished")
	return results, nil
}
