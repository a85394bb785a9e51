package risk

import (
	"errors"
	"net/http"

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

// Verdicts and history carry risk factors; they stay with the case team.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleCaseManager, auth.RoleCoordinator))
	read.GET("/cases/:id/verdict", h.GetVerdict)
	read.GET("/cases/:id/risk-history", h.ListHistory)

	write := api.Group("", auth.RequireRole(auth.RoleCaseManager))
	write.POST("/cases/:id/assess", h.Assess)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/risk/reassess", h.ReassessDue)
}

func (h *Handler) Assess(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.Assess(c.Request().Context(), id, actor)
	if errors.Is(err, casefile.ErrCaseNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "case not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetVerdict(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.GetVerdict(c.Request().Context(), id)
	if errors.Is(err, ErrVerdictNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "verdict not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entries, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ReassessDue(c echo.Context) error {
	results, err := h.svc.ReassessDue(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, results)
}
