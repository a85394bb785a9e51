package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gpnet/caseengine/internal/domain/casefile"
	"github.com/gpnet/caseengine/internal/platform/db"
	"github.com/gpnet/caseengine/internal/platform/notification"
	"github.com/gpnet/caseengine/internal/platform/sweep"
)

var (
	ErrNoCandidates        = errors.New("no eligible coordinator")
	ErrAlreadyAssigned     = errors.New("case already assigned")
	ErrInvalidAvailability = errors.New("invalid availability")
)

// CaseStore is the part of the case store allocation writes through.
type CaseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*casefile.Case, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*casefile.Case, error)
	SetCoordinator(ctx context.Context, id uuid.UUID, coordinatorID *uuid.UUID) error
}

type Service struct {
	repo        Repository
	cases       CaseStore
	tx          db.TxManager
	matcher     *Matcher
	notifier    notification.Notifier
	logger      zerolog.Logger
	now         func() time.Time
	concurrency int
}

func NewService(repo Repository, cases CaseStore, tx db.TxManager, weights Weights, notifier notification.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		cases:       cases,
		tx:          tx,
		matcher:     NewMatcher(weights),
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		concurrency: 8,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetConcurrency bounds bulk allocation fan-out.
func (s *Service) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// CreateCoordinator registers a coordinator with an empty caseload. Caseload
// only moves with assignments, so any caseload supplied by the caller is
// discarded.
func (s *Service) CreateCoordinator(ctx context.Context, c *Coordinator) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if c.Availability == "" {
		c.Availability = Available
	}
	if _, ok := availabilityScore[c.Availability]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidAvailability, c.Availability)
	}
	if c.AvgCompletionDays < 0 {
		return fmt.Errorf("completion days must not be negative")
	}
	c.CurrentCaseload = 0
	return s.repo.CreateCoordinator(ctx, c)
}

func (s *Service) GetCoordinator(ctx context.Context, id uuid.UUID) (*Coordinator, error) {
	return s.repo.GetCoordinator(ctx, id)
}

func (s *Service) ListCoordinators(ctx context.Context) ([]Coordinator, error) {
	return s.repo.ListCoordinators(ctx)
}

func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, a Availability) error {
	if _, ok := availabilityScore[a]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidAvailability, a)
	}
	return s.repo.UpdateAvailability(ctx, id, a)
}

// CoordinatorEmail resolves the notification address of a coordinator.
func (s *Service) CoordinatorEmail(ctx context.Context, id uuid.UUID) (string, error) {
	c, err := s.repo.GetCoordinator(ctx, id)
	if err != nil {
		return "", err
	}
	return c.Email, nil
}

// Workload reports every coordinator's caseload against the ceiling.
func (s *Service) Workload(ctx context.Context) ([]Workload, error) {
	coordinators, err := s.repo.ListCoordinators(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Workload, 0, len(coordinators))
	for _, c := range coordinators {
		out = append(out, Workload{
			CoordinatorID: c.ID,
			Name:          c.Name,
			Caseload:      c.CurrentCaseload,
			MaxCaseload:   s.matcher.w.MaxCaseload,
			Utilization:   float64(c.CurrentCaseload) / float64(s.matcher.w.MaxCaseload),
			Availability:  c.Availability,
		})
	}
	return out, nil
}

// DetectConflicts lists the reasons coordinatorID is a poor fit for the case.
func (s *Service) DetectConflicts(ctx context.Context, caseID, coordinatorID uuid.UUID) ([]Conflict, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	coord, err := s.repo.GetCoordinator(ctx, coordinatorID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.OrganizationHistory(ctx, c.OrganizationID)
	if err != nil {
		return nil, err
	}
	return s.matcher.Conflicts(requestFor(c), *coord, history[coord.ID]), nil
}

// Allocate picks the best eligible coordinator for an unassigned case. The
// assignment is written only when the winner has no high-severity conflict;
// otherwise the recommendation comes back with RecommendAssignment false.
func (s *Service) Allocate(ctx context.Context, caseID uuid.UUID) (*Result, error) {
	var (
		result *Result
		winner Coordinator
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.cases.GetForUpdate(ctx, caseID)
		if err != nil {
			return err
		}
		if c.AssignedCoordinatorID != nil {
			return fmt.Errorf("%w: %s", ErrAlreadyAssigned, c.AssignedCoordinatorID)
		}
		coordinators, err := s.repo.ListCoordinators(ctx)
		if err != nil {
			return err
		}
		history, err := s.repo.OrganizationHistory(ctx, c.OrganizationID)
		if err != nil {
			return err
		}

		req := requestFor(c)
		ranked := s.matcher.Rank(req, coordinators, history)
		if len(ranked) == 0 {
			return ErrNoCandidates
		}
		best := ranked[0]
		for _, coord := range coordinators {
			if coord.ID == best.CoordinatorID {
				winner = coord
			}
		}

		conflicts := s.matcher.Conflicts(req, winner, history[winner.ID])
		alternatives := ranked[1:]
		if len(alternatives) > 3 {
			alternatives = alternatives[:3]
		}
		result = &Result{
			CaseID:              c.ID,
			CoordinatorID:       winner.ID,
			Confidence:          best.Confidence,
			Reason:              strings.Join(best.Reasons, "; "),
			WorkloadBefore:      winner.CurrentCaseload,
			WorkloadAfter:       winner.CurrentCaseload + 1,
			EstimatedCompletion: s.estimate(winner),
			Conflicts:           conflicts,
			RecommendAssignment: !hasHigh(conflicts),
			Alternatives:        append([]Candidate{}, alternatives...),
		}
		if !result.RecommendAssignment {
			s.logger.Info().Str("case_id", c.ID.String()).Str("coordinator_id", winner.ID.String()).
				Msg("best candidate has a high-severity conflict, assignment not applied")
			return nil
		}

		a := &Assignment{
			CaseID:              c.ID,
			CoordinatorID:       winner.ID,
			Confidence:          result.Confidence,
			Reason:              result.Reason,
			EstimatedCompletion: result.EstimatedCompletion,
		}
		if err := s.apply(ctx, c, nil, a); err != nil {
			return err
		}
		result.WorkloadBefore, result.WorkloadAfter = a.WorkloadBefore, a.WorkloadAfter
		result.Assignment = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Assignment != nil {
		s.notifyAssigned(ctx, winner, result.Assignment)
	}
	return result, nil
}

// Assign places a case with a named coordinator regardless of conflicts,
// ending any earlier assignment. Assigning to the current coordinator
// returns the existing assignment.
func (s *Service) Assign(ctx context.Context, caseID, coordinatorID uuid.UUID, reason string) (*Assignment, error) {
	var (
		assigned *Assignment
		coord    *Coordinator
		created  bool
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.cases.GetForUpdate(ctx, caseID)
		if err != nil {
			return err
		}
		if coord, err = s.repo.GetCoordinator(ctx, coordinatorID); err != nil {
			return err
		}
		prior, err := s.repo.GetActiveAssignment(ctx, caseID)
		if err != nil && !errors.Is(err, ErrAssignmentNotFound) {
			return err
		}
		if prior != nil && prior.CoordinatorID == coordinatorID {
			assigned = prior
			return nil
		}

		history, err := s.repo.OrganizationHistory(ctx, c.OrganizationID)
		if err != nil {
			return err
		}
		req := requestFor(c)
		conflicts := s.matcher.Conflicts(req, *coord, history[coord.ID])
		if len(conflicts) > 0 {
			types := make([]string, 0, len(conflicts))
			for _, cf := range conflicts {
				types = append(types, cf.Type)
			}
			s.logger.Info().Str("case_id", c.ID.String()).Str("coordinator_id", coord.ID.String()).
				Strs("conflicts", types).Msg("manual assignment overrides conflicts")
		}
		score, _ := s.matcher.Score(req, *coord, history[coord.ID])
		if strings.TrimSpace(reason) == "" {
			reason = "manual assignment"
		}
		assigned = &Assignment{
			CaseID:              c.ID,
			CoordinatorID:       coord.ID,
			Confidence:          s.matcher.confidence(score),
			Reason:              reason,
			EstimatedCompletion: s.estimate(*coord),
			Manual:              true,
		}
		created = true
		return s.apply(ctx, c, prior, assigned)
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.notifyAssigned(ctx, *coord, assigned)
	}
	return assigned, nil
}

// Unassign ends the case's active assignment.
func (s *Service) Unassign(ctx context.Context, caseID uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.cases.GetForUpdate(ctx, caseID); err != nil {
			return err
		}
		prior, err := s.repo.GetActiveAssignment(ctx, caseID)
		if err != nil {
			return err
		}
		if err := s.repo.EndAssignment(ctx, prior.ID, s.now().UTC()); err != nil {
			return err
		}
		if _, err := s.repo.AdjustCaseload(ctx, prior.CoordinatorID, -1); err != nil {
			return err
		}
		return s.cases.SetCoordinator(ctx, caseID, nil)
	})
}

// apply ends prior (if any), moves one unit of caseload and records a. It
// must run inside the caller's transaction.
func (s *Service) apply(ctx context.Context, c *casefile.Case, prior *Assignment, a *Assignment) error {
	if prior != nil {
		if err := s.repo.EndAssignment(ctx, prior.ID, s.now().UTC()); err != nil {
			return err
		}
		if _, err := s.repo.AdjustCaseload(ctx, prior.CoordinatorID, -1); err != nil {
			return err
		}
	}
	after, err := s.repo.AdjustCaseload(ctx, a.CoordinatorID, 1)
	if err != nil {
		return err
	}
	a.WorkloadBefore, a.WorkloadAfter = after-1, after
	if err := s.repo.CreateAssignment(ctx, a); err != nil {
		return err
	}
	return s.cases.SetCoordinator(ctx, c.ID, &a.CoordinatorID)
}

// estimate projects completion from the coordinator's average turnaround,
// falling back to the response ceiling.
func (s *Service) estimate(c Coordinator) *time.Time {
	days := c.AvgCompletionDays
	if days <= 0 {
		days = s.matcher.w.ResponseCeilingDays
	}
	t := s.now().UTC().Add(time.Duration(days * 24 * float64(time.Hour)))
	return &t
}

func (s *Service) notifyAssigned(ctx context.Context, c Coordinator, a *Assignment) {
	err := s.notifier.Notify(ctx, notification.TemplateAssignmentCreated, map[string]string{
		"case_id": a.CaseID.String(),
		"reason":  a.Reason,
	}, c.Email)
	if err != nil {
		s.logger.Warn().Err(err).Str("case_id", a.CaseID.String()).Msg("assignment notification failed")
	}
}

// BulkAllocate allocates each case independently over a bounded pool. One
// case failing never affects another; cases not reached before ctx is
// cancelled report the cancellation.
func (s *Service) BulkAllocate(ctx context.Context, caseIDs []uuid.UUID) []BulkResult {
	results := make([]BulkResult, len(caseIDs))
	errs := sweep.Run(ctx, len(caseIDs), s.concurrency, func(ctx context.Context, i int) error {
		r, err := s.Allocate(ctx, caseIDs[i])
		results[i].Result = r
		return err
	})
	failed := 0
	for i, id := range caseIDs {
		results[i].CaseID = id
		if errs[i] != nil {
			results[i].Error = errs[i].Error()
			failed++
		}
	}
	s.logger.Info().Int("cases", len(caseIDs)).Int("failed", failed).Msg("bulk allocation finished")
	return results
}
