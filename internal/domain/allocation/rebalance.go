package allocation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gpnet/caseengine/internal/domain/casefile"
)

// Rebalance moves cases from the most to the least loaded eligible
// coordinator while the spread between them exceeds the configured
// threshold. Each move narrows a gap of at least two, so the spread never
// grows. Moves already made stay in place when a later move fails.
func (s *Service) Rebalance(ctx context.Context) (*RebalanceReport, error) {
	coordinators, err := s.repo.ListCoordinators(ctx)
	if err != nil {
		return nil, fmt.Errorf("list coordinators: %w", err)
	}
	var pool []Coordinator
	for _, c := range coordinators {
		if s.matcher.Eligible(c) {
			pool = append(pool, c)
		}
	}

	report := &RebalanceReport{Moves: []Move{}}
	load := make(map[uuid.UUID]int, len(pool))
	for _, c := range pool {
		load[c.ID] = c.CurrentCaseload
	}
	report.SpreadBefore = spread(pool, load)
	report.SpreadAfter = report.SpreadBefore
	if len(pool) < 2 {
		return report, nil
	}

	w := s.matcher.w
	exhausted := make(map[uuid.UUID]bool)
	for len(report.Moves) < w.RebalanceMaxMoves {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if spread(pool, load) <= w.RebalanceSpread {
			break
		}
		src, dst, ok := extremes(pool, load, exhausted)
		if !ok || load[src.ID]-load[dst.ID] < 2 {
			break
		}
		a, err := s.moveOne(ctx, src, dst)
		if err != nil {
			s.logger.Error().Err(err).Str("coordinator_id", src.ID.String()).Int("moves", len(report.Moves)).Msg("rebalance stopped early")
			report.SpreadAfter = spread(pool, load)
			report.Improvement = report.SpreadBefore - report.SpreadAfter
			return report, fmt.Errorf("move case from %s: %w", src.ID, err)
		}
		if a == nil {
			exhausted[src.ID] = true
			continue
		}
		load[src.ID]--
		load[dst.ID]++
		report.Moves = append(report.Moves, Move{CaseID: a.CaseID, From: src.ID, To: dst.ID})
		s.notifyAssigned(ctx, dst, a)
	}

	report.SpreadAfter = spread(pool, load)
	report.Improvement = report.SpreadBefore - report.SpreadAfter
	s.logger.Info().Int("moves", len(report.Moves)).Int("spread_before", report.SpreadBefore).
		Int("spread_after", report.SpreadAfter).Msg("rebalance finished")
	return report, nil
}

// moveOne reassigns one of src's cases to dst, preferring a case whose
// required specializations dst holds. It returns nil when src has nothing
// left to move.
func (s *Service) moveOne(ctx context.Context, src, dst Coordinator) (*Assignment, error) {
	var moved *Assignment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		active, err := s.repo.ListActiveAssignments(ctx, src.ID)
		if err != nil {
			return err
		}
		var pick *casefile.Case
		for _, a := range active {
			c, err := s.cases.GetByID(ctx, a.CaseID)
			if err != nil {
				return err
			}
			if covers(dst.Specializations, c.RequiredSpecializations) {
				pick = c
				break
			}
			if pick == nil {
				pick = c
			}
		}
		if pick == nil {
			return nil
		}

		c, err := s.cases.GetForUpdate(ctx, pick.ID)
		if err != nil {
			return err
		}
		prior, err := s.repo.GetActiveAssignment(ctx, c.ID)
		if err != nil {
			return err
		}
		if prior.CoordinatorID != src.ID {
			return fmt.Errorf("case %s moved concurrently", c.ID)
		}

		history, err := s.repo.OrganizationHistory(ctx, c.OrganizationID)
		if err != nil {
			return err
		}
		score, _ := s.matcher.Score(requestFor(c), dst, history[dst.ID])
		moved = &Assignment{
			CaseID:              c.ID,
			CoordinatorID:       dst.ID,
			Confidence:          s.matcher.confidence(score),
			Reason:              fmt.Sprintf("rebalanced from %s", src.Name),
			EstimatedCompletion: s.estimate(dst),
		}
		return s.apply(ctx, c, prior, moved)
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// extremes returns the most loaded coordinator not in skip and the least
// loaded coordinator overall.
func extremes(pool []Coordinator, load map[uuid.UUID]int, skip map[uuid.UUID]bool) (src, dst Coordinator, ok bool) {
	srcSet, dstSet := false, false
	for _, c := range pool {
		if !skip[c.ID] && (!srcSet || load[c.ID] > load[src.ID]) {
			src, srcSet = c, true
		}
		if !dstSet || load[c.ID] < load[dst.ID] {
			dst, dstSet = c, true
		}
	}
	return src, dst, srcSet && dstSet && src.ID != dst.ID
}

func spread(pool []Coordinator, load map[uuid.UUID]int) int {
	if len(pool) == 0 {
		return 0
	}
	lo, hi := load[pool[0].ID], load[pool[0].ID]
	for _, c := range pool[1:] {
		if l := load[c.ID]; l < lo {
			lo = l
		} else if l > hi {
			hi = l
		}
	}
	return hi - lo
}
