package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gpnet/caseengine/internal/domain/casefile"
	"github.com/gpnet/caseengine/internal/platform/auth"
	"github.com/gpnet/caseengine/internal/platform/db"
	"github.com/gpnet/caseengine/internal/platform/notification"
)

var (
	ErrStepNotFound   = errors.New("workflow step not found")
	ErrStepNotPending = errors.New("workflow step is not pending")
	ErrMissingAnchor  = errors.New("eligibility assessment step missing; cannot anchor deadlines")
	ErrInvalidStage   = errors.New("invalid workflow stage")
	ErrInvalidOutcome = errors.New("invalid step outcome")
	ErrWorkflowActive = errors.New("workflow already active")
	ErrStageConflict  = errors.New("another stage is already pending")
	ErrNoInjuryDate   = errors.New("injury date required")
	ErrInvalidLevel   = errors.New("invalid participation level")
	ErrNotRTWCase     = errors.New("workflow applies only to rtw and injury cases")
)

// Workflow reports whether a case of type t runs the return-to-work workflow.
func Workflow(t casefile.CaseType) bool {
	return t == casefile.TypeRTW || t == casefile.TypeInjury
}

// Evidence the case team must gather once a case is non-compliant.
var nonComplianceChecklist = []string{
	"Compile missed appointment log",
	"Document refused suitable duties",
	"Record communication delays",
}

// CaseStore is the part of the case store the workflow writes through.
type CaseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*casefile.Case, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*casefile.Case, error)
	UpdateCompliance(ctx context.Context, id uuid.UUID, c casefile.Compliance) error
	ListOpenRTW(ctx context.Context) ([]*casefile.Case, error)
}

// Recipients resolves where a case's notifications go.
type Recipients interface {
	CoordinatorEmail(ctx context.Context, coordinatorID uuid.UUID) (string, error)
}

type Service struct {
	repo        Repository
	cases       CaseStore
	tx          db.TxManager
	notifier    notification.Notifier
	recipients  Recipients
	logger      zerolog.Logger
	now         func() time.Time
	concurrency int
}

func NewService(repo Repository, cases CaseStore, tx db.TxManager, notifier notification.Notifier, recipients Recipients, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		cases:       cases,
		tx:          tx,
		notifier:    notifier,
		recipients:  recipients,
		logger:      logger,
		now:         time.Now,
		concurrency: 8,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetConcurrency bounds the overdue sweep fan-out.
func (s *Service) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

func (s *Service) today() time.Time { return dateOf(s.now()) }

// Initialize opens the workflow at the eligibility stage, anchored on the
// injury date. injuryDate overrides the case's recorded date when set.
// Initializing an already initialized case returns the existing first step.
func (s *Service) Initialize(ctx context.Context, caseID uuid.UUID, injuryDate *time.Time, actor string) (*Step, error) {
	var step *Step
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.cases.GetForUpdate(ctx, caseID)
		if err != nil {
			return err
		}
		if !Workflow(c.CaseType) {
			return fmt.Errorf("%w: case is %s", ErrNotRTWCase, c.CaseType)
		}
		if existing, err := s.repo.FindStep(ctx, caseID, StageEligibility); err == nil {
			s.logger.Debug().Str("case_id", caseID.String()).Msg("workflow already initialized")
			step = existing
			return nil
		} else if !errors.Is(err, ErrStepNotFound) {
			return err
		}
		if _, err := s.repo.GetPendingStep(ctx, caseID); err == nil {
			return ErrWorkflowActive
		} else if !errors.Is(err, ErrStepNotFound) {
			return err
		}

		anchor := c.InjuryDate
		if injuryDate != nil {
			anchor = injuryDate
		}
		if anchor == nil {
			return ErrNoInjuryDate
		}

		step, err = s.openStage(ctx, caseID, StageEligibility, *anchor, actor)
		if err != nil {
			return err
		}
		a := newAudit(caseID, &step.ID, ActionInitialized, actor, dateOf(*anchor).Format(time.DateOnly),
			fmt.Sprintf("workflow initialized from injury date %s; %s due %s",
				dateOf(*anchor).Format(time.DateOnly), step.StageID, step.DeadlineDate.Format(time.DateOnly)),
			step.LegislativeRefs)
		if _, err := s.repo.AppendAudit(ctx, a); err != nil {
			return err
		}
		return s.cases.UpdateCompliance(ctx, caseID, projection(step, casefile.ComplianceCompliant))
	})
	if err != nil {
		return nil, err
	}
	return step, nil
}

// CaseCreated opens the workflow for a new rtw or injury case that carries
// an injury date. Other cases are left for a manual Initialize; failures are
// logged.
func (s *Service) CaseCreated(ctx context.Context, c casefile.Case) {
	if !Workflow(c.CaseType) || c.InjuryDate == nil {
		return
	}
	actor := auth.UserIDFromContext(ctx)
	if actor == "" {
		actor = "system"
	}
	step, err := s.Initialize(ctx, c.ID, nil, actor)
	if err != nil {
		s.logger.Error().Err(err).Str("case_id", c.ID.String()).Msg("initialize workflow for new case")
		return
	}
	s.logger.Info().Str("case_id", c.ID.String()).Str("stage", string(step.StageID)).
		Str("deadline", step.DeadlineDate.Format(time.DateOnly)).Msg("workflow initialized for new case")
}

// openStage creates a pending step for stage. A pending step for the same
// stage already in place is returned as is.
func (s *Service) openStage(ctx context.Context, caseID uuid.UUID, stage StageID, anchor time.Time, actor string) (*Step, error) {
	def, ok := Stage(stage)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStage, stage)
	}
	start, deadline := def.Window(anchor)
	step := &Step{
		CaseID:          caseID,
		StageID:         stage,
		Status:          StepPending,
		StartDate:       start,
		DeadlineDate:    deadline,
		LegislativeRefs: def.References,
		CreatedBy:       actor,
	}
	created, err := s.repo.CreateStep(ctx, step)
	if err != nil {
		return nil, err
	}
	if created {
		return step, nil
	}

	pending, err := s.repo.GetPendingStep(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("read pending step: %w", err)
	}
	if pending.StageID != stage {
		return nil, fmt.Errorf("%w: %s", ErrStageConflict, pending.StageID)
	}
	s.logger.Debug().Str("case_id", caseID.String()).Str("stage", string(stage)).Msg("stage already pending")
	return pending, nil
}

// Complete closes a pending step and moves the workflow on. Completing an
// already completed step with the same outcome is a no-op.
func (s *Service) Complete(ctx context.Context, stepID uuid.UUID, outcome Outcome, actor string, notes *string) (*Transition, error) {
	if !validOutcomes[outcome] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOutcome, outcome)
	}

	var (
		result   *Transition
		escalate *casefile.Case
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		step, err := s.repo.GetStep(ctx, stepID)
		if err != nil {
			return err
		}
		c, err := s.cases.GetForUpdate(ctx, step.CaseID)
		if err != nil {
			return err
		}
		// Re-read under the case lock.
		if step, err = s.repo.GetStep(ctx, stepID); err != nil {
			return err
		}

		if step.Status == StepCompleted {
			if step.Outcome != nil && *step.Outcome == outcome {
				s.logger.Debug().Str("step_id", stepID.String()).Str("outcome", string(outcome)).Msg("step already completed")
				result = &Transition{Step: *step, Stage: stageOf(c), ComplianceStatus: deref(c.ComplianceStatus), NoOp: true}
				if next, err := s.repo.GetPendingStep(ctx, c.ID); err == nil {
					result.Next = next
				}
				return nil
			}
			return fmt.Errorf("%w: %s", ErrStepNotPending, step.StageID)
		}
		if outcome == OutcomeEscalated && step.StageID == StageEscalation {
			return fmt.Errorf("%w: step is already an escalation", ErrInvalidOutcome)
		}

		def, ok := Stage(step.StageID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrInvalidStage, step.StageID)
		}

		now := s.now().UTC()
		if err := s.repo.CompleteStep(ctx, step.ID, outcome, actor, notes, now); err != nil {
			return err
		}
		step.Status = StepCompleted
		step.Outcome = &outcome
		step.CompletedAt = &now
		step.CompletedBy = &actor
		if notes != nil {
			step.Notes = notes
		}
		done := newAudit(c.ID, &step.ID, ActionStepCompleted, actor, string(outcome),
			fmt.Sprintf("%s closed with outcome %s", step.StageID, outcome), step.LegislativeRefs)
		if _, err := s.repo.AppendAudit(ctx, done); err != nil {
			return err
		}

		result = &Transition{Step: *step}
		switch outcome {
		case OutcomeCompleted:
			if def.Next == StageCompleted {
				return s.closeWorkflow(ctx, c, step, actor, "all stages completed", result)
			}
			anchor, err := s.repo.FindStep(ctx, c.ID, StageEligibility)
			if errors.Is(err, ErrStepNotFound) {
				return ErrMissingAnchor
			}
			if err != nil {
				return err
			}
			next, err := s.openStage(ctx, c.ID, def.Next, anchor.StartDate, actor)
			if err != nil {
				return err
			}
			status, err := s.derivedStatus(ctx, c.ID)
			if err != nil {
				return err
			}
			a := newAudit(c.ID, &next.ID, ActionProgressed, actor, string(next.StageID),
				fmt.Sprintf("progressed from %s to %s; due %s", step.StageID, next.StageID, next.DeadlineDate.Format(time.DateOnly)),
				next.LegislativeRefs)
			if _, err := s.repo.AppendAudit(ctx, a); err != nil {
				return err
			}
			result.Next, result.Stage, result.ComplianceStatus = next, next.StageID, status
			return s.cases.UpdateCompliance(ctx, c.ID, projection(next, status))

		case OutcomeEscalated:
			next, err := s.openStage(ctx, c.ID, StageEscalation, now, actor)
			if err != nil {
				return err
			}
			a := newAudit(c.ID, &next.ID, ActionEscalated, actor, string(step.StageID),
				fmt.Sprintf("escalated from %s; response due %s", step.StageID, next.DeadlineDate.Format(time.DateOnly)),
				next.LegislativeRefs)
			if _, err := s.repo.AppendAudit(ctx, a); err != nil {
				return err
			}
			result.Next, result.Stage, result.ComplianceStatus = next, next.StageID, casefile.ComplianceNonCompliant
			escalate = c
			return s.cases.UpdateCompliance(ctx, c.ID, projection(next, casefile.ComplianceNonCompliant))

		default:
			return s.closeWorkflow(ctx, c, step, actor, "workflow "+string(outcome), result)
		}
	})

	if errors.Is(err, ErrMissingAnchor) {
		s.recordFailure(ctx, stepID, actor, err)
	}
	if err != nil {
		return nil, err
	}
	if escalate != nil {
		s.notify(ctx, escalate, notification.TemplateCaseEscalated, map[string]string{
			"case_id":  escalate.ID.String(),
			"deadline": result.Next.DeadlineDate.Format(time.DateOnly),
			"reason":   fmt.Sprintf("%s escalated by %s", result.Step.StageID, actor),
		})
	}
	return result, nil
}

// closeWorkflow ends the workflow without opening another stage.
func (s *Service) closeWorkflow(ctx context.Context, c *casefile.Case, step *Step, actor, reason string, result *Transition) error {
	status := deref(c.ComplianceStatus)
	if status == "" {
		status = casefile.ComplianceCompliant
	}
	a := newAudit(c.ID, &step.ID, ActionClosed, actor, reason, reason, step.LegislativeRefs)
	if _, err := s.repo.AppendAudit(ctx, a); err != nil {
		return err
	}
	stage := string(StageCompleted)
	result.Stage, result.ComplianceStatus = StageCompleted, status
	return s.cases.UpdateCompliance(ctx, c.ID, casefile.Compliance{WorkflowStage: &stage, ComplianceStatus: &status})
}

// recordFailure writes a failure audit outside the rolled-back transaction.
func (s *Service) recordFailure(ctx context.Context, stepID uuid.UUID, actor string, cause error) {
	step, err := s.repo.GetStep(ctx, stepID)
	if err != nil {
		s.logger.Error().Err(err).Str("step_id", stepID.String()).Msg("record workflow failure")
		return
	}
	a := newAudit(step.CaseID, &step.ID, ActionFailure, actor, cause.Error()+"|"+s.today().Format(time.DateOnly),
		fmt.Sprintf("progression halted after %s: %v", step.StageID, cause), step.LegislativeRefs)
	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		_, err := s.repo.AppendAudit(ctx, a)
		return err
	}); err != nil {
		s.logger.Error().Err(err).Str("case_id", step.CaseID.String()).Msg("record workflow failure")
		return
	}
	s.logger.Error().Err(cause).Str("case_id", step.CaseID.String()).Str("stage", string(step.StageID)).Msg("workflow progression halted")
}

// RecordParticipation stores a participation event and its audit entry. It
// never changes the workflow stage.
func (s *Service) RecordParticipation(ctx context.Context, p *ParticipationEvent) error {
	risk, ok := participationRisk[p.Level]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidLevel, p.Level)
	}
	if strings.TrimSpace(p.EventType) == "" {
		return fmt.Errorf("event_type is required")
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.cases.GetForUpdate(ctx, p.CaseID); err != nil {
			return err
		}
		if err := s.repo.CreateParticipation(ctx, p); err != nil {
			return err
		}
		var refs []string
		if p.LegislativeBasis != "" {
			refs = []string{p.LegislativeBasis}
		}
		a := newAudit(p.CaseID, nil, ActionParticipation, p.RecordedBy, p.ID.String(),
			fmt.Sprintf("%s participation: %s", p.EventType, p.Level), refs)
		a.RiskLevel = &risk
		_, err := s.repo.AppendAudit(ctx, a)
		return err
	})
}

// derivedStatus is compliant unless the worker has refused participation.
func (s *Service) derivedStatus(ctx context.Context, caseID uuid.UUID) (string, error) {
	events, err := s.repo.ListParticipation(ctx, caseID)
	if err != nil {
		return "", err
	}
	for _, e := range events {
		if e.Level == ParticipationRefused {
			return casefile.ComplianceNonCompliant, nil
		}
	}
	return casefile.ComplianceCompliant, nil
}

// Summary derives the compliance picture of a case. Any refused
// participation or an overdue pending step makes the case non-compliant.
func (s *Service) Summary(ctx context.Context, caseID uuid.UUID) (*Summary, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	steps, err := s.repo.ListSteps(ctx, caseID)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListParticipation(ctx, caseID)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		CaseID:           caseID,
		Stage:            stageOf(c),
		ComplianceStatus: deref(c.ComplianceStatus),
		Steps:            steps,
		Participation:    make(map[ParticipationLevel]int),
		NextDeadline:     c.NextDeadlineDate,
	}
	if sum.Steps == nil {
		sum.Steps = []Step{}
	}
	for _, e := range events {
		sum.Participation[e.Level]++
	}
	for i := range steps {
		if steps[i].Status == StepPending {
			sum.PendingStep = &steps[i]
			if days := daysBetween(steps[i].DeadlineDate, s.now()); days > 0 {
				sum.Overdue = true
				sum.DaysOverdue = days
			}
		}
	}
	if sum.Participation[ParticipationRefused] > 0 || sum.Overdue {
		sum.ComplianceStatus = casefile.ComplianceNonCompliant
	}
	if sum.ComplianceStatus == casefile.ComplianceNonCompliant {
		sum.Checklist = nonComplianceChecklist
	}
	return sum, nil
}

func (s *Service) ListAudit(ctx context.Context, caseID uuid.UUID) ([]AuditEntry, error) {
	return s.repo.ListAudit(ctx, caseID)
}

func (s *Service) notify(ctx context.Context, c *casefile.Case, template string, data map[string]string) bool {
	log := s.logger.With().Str("case_id", c.ID.String()).Str("template", template).Logger()
	if c.AssignedCoordinatorID == nil {
		log.Warn().Msg("case has no coordinator, notification skipped")
		return false
	}
	to, err := s.recipients.CoordinatorEmail(ctx, *c.AssignedCoordinatorID)
	if err != nil {
		log.Warn().Err(err).Msg("coordinator lookup failed, notification skipped")
		return false
	}
	if err := s.notifier.Notify(ctx, template, data, to); err != nil {
		log.Warn().Err(err).Msg("notification failed")
		return false
	}
	return true
}

// projection is the case-row view of a newly opened step.
func projection(step *Step, status string) casefile.Compliance {
	stage := string(step.StageID)
	deadline := step.DeadlineDate
	return casefile.Compliance{
		WorkflowStage:    &stage,
		ComplianceStatus: &status,
		NextDeadlineDate: &deadline,
		NextDeadlineType: &stage,
	}
}

func stageOf(c *casefile.Case) StageID {
	if c.WorkflowStage == nil {
		return ""
	}
	return StageID(*c.WorkflowStage)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
