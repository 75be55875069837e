package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dojo-schedule/internal/service"
)

// ScheduleHandler serves the franchise timetable with live availability.
type ScheduleHandler struct {
	Schedule *service.Schedule
	Logger   *slog.Logger
}

// NewScheduleHandler returns a ScheduleHandler backed by schedule.
func NewScheduleHandler(schedule *service.Schedule, logger *slog.Logger) *ScheduleHandler {
	if schedule == nil || logger == nil {
		panic("nil dependency passed to NewScheduleHandler")
	}
	return &ScheduleHandler{Schedule: schedule, Logger: logger}
}

// Franchise handles GET /classes/franchise/:tenantId?date=&view=day|week.
func (h *ScheduleHandler) Franchise(c echo.Context) error {
	view, err := h.Schedule.Read(c.Request().Context(), service.ScheduleInput{
		TenantID: c.Param("tenantId"),
		RawDate:  c.QueryParam("date"),
		View:     c.QueryParam("view"),
	})
	if err != nil {
		return respond(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, view)
}
