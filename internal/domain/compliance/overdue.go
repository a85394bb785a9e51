package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gpnet/caseengine/internal/domain/casefile"
	"github.com/gpnet/caseengine/internal/platform/notification"
	"github.com/gpnet/caseengine/internal/platform/sweep"
)

const sweepActor = "system:overdue-sweep"

// SweepOverdue flags every open workflow whose pending step is past its
// deadline. Flagged cases become non-compliant and get one overdue audit
// entry per step per day; the stage itself is never advanced. Each case is
// handled independently.
func (s *Service) SweepOverdue(ctx context.Context) ([]OverdueResult, error) {
	cases, err := s.cases.ListOpenRTW(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open workflows: %w", err)
	}

	results := make([]OverdueResult, len(cases))
	errs := sweep.Run(ctx, len(cases), s.concurrency, func(ctx context.Context, i int) error {
		r, err := s.checkOverdue(ctx, cases[i])
		if r != nil {
			results[i] = *r
		}
		return err
	})

	flagged := 0
	for i, c := range cases {
		results[i].CaseID = c.ID
		if errs[i] != nil {
			results[i].Error = errs[i].Error()
			s.logger.Warn().Err(errs[i]).Str("case_id", c.ID.String()).Msg("overdue check failed")
		}
		if results[i].Overdue {
			flagged++
		}
	}
	s.logger.Info().Int("open", len(cases)).Int("overdue", flagged).Msg("overdue sweep finished")
	return results, nil
}

func (s *Service) checkOverdue(ctx context.Context, open *casefile.Case) (*OverdueResult, error) {
	today := s.today()
	var (
		result   = &OverdueResult{CaseID: open.ID}
		step     *Step
		c        *casefile.Case
		newEntry bool
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.cases.GetForUpdate(ctx, open.ID); err != nil {
			return err
		}
		step, err = s.repo.GetPendingStep(ctx, c.ID)
		if errors.Is(err, ErrStepNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		days := daysBetween(step.DeadlineDate, today)
		if days <= 0 {
			step = nil
			return nil
		}
		result.Overdue = true
		result.DaysOverdue = days

		status := casefile.ComplianceNonCompliant
		stage := string(step.StageID)
		deadline := step.DeadlineDate
		deadlineType := "overdue:" + stage
		if err := s.cases.UpdateCompliance(ctx, c.ID, casefile.Compliance{
			WorkflowStage:    &stage,
			ComplianceStatus: &status,
			NextDeadlineDate: &deadline,
			NextDeadlineType: &deadlineType,
		}); err != nil {
			return err
		}
		a := newAudit(c.ID, &step.ID, ActionOverdue, sweepActor, today.Format(time.DateOnly),
			fmt.Sprintf("%s overdue by %d days (deadline %s)", step.StageID, days, deadline.Format(time.DateOnly)),
			step.LegislativeRefs)
		newEntry, err = s.repo.AppendAudit(ctx, a)
		return err
	})
	if err != nil {
		return result, err
	}

	if newEntry {
		result.Notified = s.notify(ctx, c, notification.TemplateStepOverdue, map[string]string{
			"stage":      string(step.StageID),
			"case_id":    c.ID.String(),
			"deadline":   step.DeadlineDate.Format(time.DateOnly),
			"references": strings.Join(step.LegislativeRefs, "; "),
		})
	}
	return result, nil
}
