package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// GetRun retrieves a run.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return err
	}
	if run == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, run)
}

// GetRunEvents retrieves events for a run.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if raw := c.QueryParam("types"); raw != "" {
		for _, typ := range strings.Split(raw, ",") {
			if typ = strings.TrimSpace(typ); typ != "" {
				types = append(types, typ)
			}
		}
	}

	ctx := c.Request().Context()
	run, err := h.service.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}

	events, err := h.service.GetRunEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return err
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, domain.ListEventsResponse{Events: events})
}

// DeleteThread forgets a thread's history and call counters.
// DELETE /v1/threads/:thread_id
func (h *Handler) DeleteThread(c echo.Context) error {
	threadID := c.Param("thread_id")
	deleted := h.service.ResetThread(threadID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"thread_id": threadID,
		"deleted":   deleted,
	})
}
