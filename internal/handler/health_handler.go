package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// outbox の未配送件数
type OutboxCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

type HealthResponse struct {
	Status              string `json:"status"`
	OutboxPending       int64  `json:"outbox_pending"`
	DispatchOutstanding int64  `json:"dispatch_outstanding"`
}

type HealthHandler struct {
	outbox      OutboxCounter
	outstanding func() int64
}

func NewHealthHandler(outbox OutboxCounter, outstanding func() int64) *HealthHandler {
	return &HealthHandler{outbox: outbox, outstanding: outstanding}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.healthz)
}

func (h *HealthHandler) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	pending, err := h.outbox.CountPending(ctx)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
	}

	var outstanding int64
	if h.outstanding != nil {
		outstanding = h.outstanding()
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:              "ok",
		OutboxPending:       pending,
		DispatchOutstanding: outstanding,
	})
}
