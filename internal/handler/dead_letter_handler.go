package handler

import (
	"net/http"
	"strconv"

	"catalog/internal/middleware"
	"catalog/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /admin/dead-letters（ADMINのみ）
type DeadLetterHandler struct {
	uc *usecase.DeadLetterUsecase
}

func NewDeadLetterHandler(uc *usecase.DeadLetterUsecase) *DeadLetterHandler {
	return &DeadLetterHandler{uc: uc}
}

// admin は AuthJWT と AdminRoleGuard 済みのグループ
func (h *DeadLetterHandler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/dead-letters", h.list)
	admin.POST("/dead-letters/:id/requeue", h.requeue)
	admin.GET("/audit-logs", h.auditLogs)
}

// page（default 1）と limit（default 50）
func parsePageLimit(c echo.Context) (int, int, error) {
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, paramError("invalid page")
		}
		page = p
	}

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, paramError("invalid limit")
		}
		limit = l
	}
	return page, limit, nil
}

func (h *DeadLetterHandler) list(c echo.Context) error {
	page, limit, err := parsePageLimit(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	out, err := h.uc.List(c.Request().Context(), usecase.ListDeadLettersInput{
		TenantID:  c.QueryParam("tenant_id"),
		Status:    c.QueryParam("status"),
		EventType: c.QueryParam("event_type"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DeadLetterHandler) requeue(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	actorID, ok := middleware.ActorID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	dl, err := h.uc.Requeue(c.Request().Context(), actorID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dl)
}

func (h *DeadLetterHandler) auditLogs(c echo.Context) error {
	page, limit, err := parsePageLimit(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	out, err := h.uc.ListAuditLogs(c.Request().Context(), usecase.ListAuditLogsInput{
		ResourceID: c.QueryParam("dead_letter_id"),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
