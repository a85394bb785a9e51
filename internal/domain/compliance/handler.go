package compliance

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/gpnet/caseengine/internal/domain/casefile"
	"github.com/gpnet/caseengine/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleCaseManager, auth.RoleCoordinator))
	g.POST("/cases/:id/workflow", h.Initialize)
	g.GET("/cases/:id/workflow", h.GetSummary)
	g.GET("/cases/:id/workflow/audit", h.ListAudit)
	g.POST("/cases/:id/participation", h.RecordParticipation)
	g.POST("/workflow/steps/:id/complete", h.CompleteStep)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/workflow/sweep", h.SweepOverdue)
}

func (h *Handler) Initialize(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		InjuryDate string `json:"injury_date"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var injury *time.Time
	if body.InjuryDate != "" {
		d, err := time.Parse(time.DateOnly, body.InjuryDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "injury_date must be YYYY-MM-DD")
		}
		injury = &d
	}
	step, err := h.svc.Initialize(c.Request().Context(), id, injury, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return workflowError(err)
	}
	return c.JSON(http.StatusCreated, step)
}

func (h *Handler) CompleteStep(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Outcome Outcome `json:"outcome"`
		Notes   *string `json:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := h.svc.Complete(c.Request().Context(), id, body.Outcome, auth.UserIDFromContext(c.Request().Context()), body.Notes)
	if err != nil {
		return workflowError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) RecordParticipation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p ParticipationEvent
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = uuid.Nil
	p.CaseID = id
	p.RecordedBy = auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.RecordParticipation(c.Request().Context(), &p); err != nil {
		return workflowError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetSummary(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sum, err := h.svc.Summary(c.Request().Context(), id)
	if err != nil {
		return workflowError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) ListAudit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entries, err := h.svc.ListAudit(c.Request().Context(), id)
	if err != nil {
		return workflowError(err)
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) SweepOverdue(c echo.Context) error {
	results, err := h.svc.SweepOverdue(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, results)
}

func workflowError(err error) error {
	switch {
	case errors.Is(err, casefile.ErrCaseNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "case not found")
	case errors.Is(err, ErrStepNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "workflow step not found")
	case errors.Is(err, ErrInvalidOutcome), errors.Is(err, ErrInvalidLevel), errors.Is(err, ErrNoInjuryDate):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStepNotPending), errors.Is(err, ErrWorkflowActive), errors.Is(err, ErrStageConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrMissingAnchor), errors.Is(err, ErrInvalidStage), errors.Is(err, ErrNotRTWCase):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
