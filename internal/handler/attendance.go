package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dojo-schedule/internal/middleware"
	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/service"
)

// AttendanceHandler serves the teacher endpoints: check-in, revoke and the
// class roster.
type AttendanceHandler struct {
	CheckIns *service.CheckInCoordinator
	Logger   *slog.Logger
}

// NewAttendanceHandler returns an AttendanceHandler backed by checkIns.
func NewAttendanceHandler(checkIns *service.CheckInCoordinator, logger *slog.Logger) *AttendanceHandler {
	if checkIns == nil || logger == nil {
		panic("nil dependency passed to NewAttendanceHandler")
	}
	return &AttendanceHandler{CheckIns: checkIns, Logger: logger}
}

type checkInRequest struct {
	StudentID       string `json:"studentId" validate:"required"`
	ClassTemplateID string `json:"classTemplateId" validate:"required"`
	TenantID        string `json:"tenantId" validate:"required"`
	Method          string `json:"method" validate:"omitempty,oneof=teacher qr_code kiosk admin"`
}

// CheckIn handles POST /teachers/attendance.  The caller is recorded as
// the actor.
func (h *AttendanceHandler) CheckIn(c echo.Context) error {
	var req checkInRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	res, err := h.CheckIns.CheckIn(c.Request().Context(), service.CheckInInput{
		StudentID:  req.StudentID,
		TemplateID: req.ClassTemplateID,
		ActorID:    middleware.UserID(c),
		TenantID:   req.TenantID,
		Method:     model.CheckInMethod(req.Method),
	})
	if err != nil {
		return respond(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, res)
}

type revokeRequest struct {
	StudentID       string `json:"studentId" validate:"required"`
	ClassTemplateID string `json:"classTemplateId" validate:"required"`
	TenantID        string `json:"tenantId" validate:"required"`
	Date            string `json:"date"`
}

// Revoke handles DELETE /teachers/attendance.
func (h *AttendanceHandler) Revoke(c echo.Context) error {
	var req revokeRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	res, err := h.CheckIns.RevokeCheckIn(c.Request().Context(), service.RevokeInput{
		StudentID:  req.StudentID,
		TemplateID: req.ClassTemplateID,
		TenantID:   req.TenantID,
		RawDate:    req.Date,
	})
	if err != nil {
		return respond(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Roster handles GET /teachers/classes/:classId/attendance?date=.
func (h *AttendanceHandler) Roster(c echo.Context) error {
	roster, err := h.CheckIns.Roster(c.Request().Context(), c.Param("classId"), c.QueryParam("date"))
	if err != nil {
		return respond(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, roster)
}
