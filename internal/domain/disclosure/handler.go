package disclosure

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gpnet/caseengine/internal/domain/casefile"
	"github.com/gpnet/caseengine/internal/domain/evidence"
	"github.com/gpnet/caseengine/internal/domain/rag"
	"github.com/gpnet/caseengine/internal/domain/risk"
	"github.com/gpnet/caseengine/internal/platform/auth"
)

type VerdictReader interface {
	GetVerdict(ctx context.Context, caseID uuid.UUID) (*risk.Verdict, error)
}

type EvidenceLister interface {
	ListByCase(ctx context.Context, caseID uuid.UUID, since time.Time) ([]evidence.Item, error)
}

type CaseReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*casefile.Case, error)
}

type Handler struct {
	verdicts VerdictReader
	items    EvidenceLister
	cases    CaseReader
	logger   zerolog.Logger
}

func NewHandler(verdicts VerdictReader, items EvidenceLister, cases CaseReader, logger zerolog.Logger) *Handler {
	return &Handler{verdicts: verdicts, items: items, cases: cases, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleEmployer, auth.RoleCaseManager, auth.RoleCoordinator))
	g.GET("/cases/:id/disclosure", h.GetDisclosure)
}

// GetDisclosure answers with a valid disclosure; verdict lookup failures
// fall back to the default statement. Employer callers only see cases of
// their own organisation; any other case reads as not found.
func (h *Handler) GetDisclosure(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if !auth.HasRole(auth.RolesFromContext(ctx), auth.RoleCaseManager, auth.RoleCoordinator) {
		if err := h.checkOrganization(ctx, id); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, h.disclose(ctx, id))
}

func (h *Handler) checkOrganization(ctx context.Context, caseID uuid.UUID) error {
	cf, err := h.cases.GetByID(ctx, caseID)
	if errors.Is(err, casefile.ErrCaseNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "case not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "case lookup failed")
	}
	org := auth.OrganizationFromContext(ctx)
	if org == "" || cf.OrganizationID.String() != org {
		h.logger.Warn().Str("case_id", caseID.String()).Str("organization_id", org).Msg("disclosure outside caller organisation")
		return echo.NewHTTPError(http.StatusNotFound, "case not found")
	}
	return nil
}

func (h *Handler) disclose(ctx context.Context, caseID uuid.UUID) Disclosure {
	v, err := h.verdicts.GetVerdict(ctx, caseID)
	if err != nil {
		h.logger.Warn().Err(err).Str("case_id", caseID.String()).Msg("no verdict for disclosure, using default")
		return Default
	}
	var items []evidence.Item
	if v.RAG == rag.Red {
		items, err = h.items.ListByCase(ctx, caseID, time.Time{})
		if err != nil {
			h.logger.Warn().Err(err).Str("case_id", caseID.String()).Msg("evidence unavailable for disclosure context")
		}
	}
	return Disclose(v, items)
}
