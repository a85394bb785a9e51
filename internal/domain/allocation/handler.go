package allocation

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/gpnet/caseengine/internal/domain/casefile"
	"github.com/gpnet/caseengine/internal/platform/auth"
)

// maxBulkCases caps one bulk allocation request.
const maxBulkCases = 500

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleCaseManager, auth.RoleCoordinator))
	read.GET("/coordinators", h.ListCoordinators)
	read.GET("/coordinators/:id", h.GetCoordinator)
	read.GET("/allocation/workload", h.GetWorkload)

	write := api.Group("", auth.RequireRole(auth.RoleCaseManager))
	write.POST("/cases/:id/allocate", h.Allocate)
	write.POST("/cases/:id/assign", h.Assign)
	write.DELETE("/cases/:id/assignment", h.Unassign)
	write.GET("/cases/:id/conflicts", h.DetectConflicts)
	write.POST("/allocation/bulk", h.BulkAllocate)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/coordinators", h.CreateCoordinator)
	admin.PUT("/coordinators/:id/availability", h.SetAvailability)
	admin.POST("/allocation/rebalance", h.Rebalance)
}

func (h *Handler) CreateCoordinator(c echo.Context) error {
	var coord Coordinator
	if err := c.Bind(&coord); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	coord.ID = uuid.Nil
	if err := h.svc.CreateCoordinator(c.Request().Context(), &coord); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, coord)
}

func (h *Handler) ListCoordinators(c echo.Context) error {
	items, err := h.svc.ListCoordinators(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []Coordinator{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetCoordinator(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	coord, err := h.svc.GetCoordinator(c.Request().Context(), id)
	if err != nil {
		return allocationError(err)
	}
	return c.JSON(http.StatusOK, coord)
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Availability Availability `json:"availability"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetAvailability(c.Request().Context(), id, body.Availability); err != nil {
		return allocationError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetWorkload(c echo.Context) error {
	w, err := h.svc.Workload(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) Allocate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	result, err := h.svc.Allocate(c.Request().Context(), id)
	if err != nil {
		return allocationError(err)
	}
	if result.Assignment != nil {
		return c.JSON(http.StatusCreated, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		CoordinatorID uuid.UUID `json:"coordinator_id"`
		Reason        string    `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.CoordinatorID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "coordinator_id is required")
	}
	a, err := h.svc.Assign(c.Request().Context(), id, body.CoordinatorID, body.Reason)
	if err != nil {
		return allocationError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Unassign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Unassign(c.Request().Context(), id); err != nil {
		return allocationError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DetectConflicts(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	coordID, err := uuid.Parse(c.QueryParam("coordinator_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid coordinator_id")
	}
	conflicts, err := h.svc.DetectConflicts(c.Request().Context(), id, coordID)
	if err != nil {
		return allocationError(err)
	}
	return c.JSON(http.StatusOK, conflicts)
}

func (h *Handler) BulkAllocate(c echo.Context) error {
	var body struct {
		CaseIDs []uuid.UUID `json:"case_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(body.CaseIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "case_ids is required")
	}
	if len(body.CaseIDs) > maxBulkCases {
		return echo.NewHTTPError(http.StatusBadRequest, "too many case_ids")
	}
	return c.JSON(http.StatusOK, h.svc.BulkAllocate(c.Request().Context(), body.CaseIDs))
}

func (h *Handler) Rebalance(c echo.Context) error {
	// A partial report is still returned when a later move fails.
	report, err := h.svc.Rebalance(c.Request().Context())
	if report == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func allocationError(err error) error {
	switch {
	case errors.Is(err, casefile.ErrCaseNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "case not found")
	case errors.Is(err, ErrCoordinatorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "coordinator not found")
	case errors.Is(err, ErrAssignmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "assignment not found")
	case errors.Is(err, ErrAlreadyAssigned):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoCandidates):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidAvailability):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
