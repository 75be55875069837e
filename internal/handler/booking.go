package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dojo-schedule/internal/middleware"
	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/service"
)

// BookingHandler serves /bookings.  Students may only act for themselves;
// staff may act for anyone.
type BookingHandler struct {
	Bookings *service.BookingLedger
	Logger   *slog.Logger
}

// NewBookingHandler returns a BookingHandler backed by bookings.
func NewBookingHandler(bookings *service.BookingLedger, logger *slog.Logger) *BookingHandler {
	if bookings == nil || logger == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings, Logger: logger}
}

type createBookingRequest struct {
	StudentID       string `json:"studentId" validate:"required"`
	ClassTemplateID string `json:"classTemplateId" validate:"required"`
	TenantID        string `json:"tenantId" validate:"required"`
	Date            string `json:"date"`
}

// Create handles POST /bookings.  201 for a new booking, 200 when a
// cancelled booking was reactivated.
func (h *BookingHandler) Create(c echo.Context) error {
	var req createBookingRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	if !actingForSelfOrStaff(c, req.StudentID) {
		return forbidden(c)
	}
	res, err := h.Bookings.CreateBooking(c.Request().Context(), service.CreateBookingInput{
		StudentID:  req.StudentID,
		TemplateID: req.ClassTemplateID,
		TenantID:   req.TenantID,
		RawDate:    req.Date,
	})
	if err != nil {
		return respond(c, h.Logger, err)
	}
	status := http.StatusCreated
	if res.Reactivated {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// Cancel handles DELETE /bookings/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if middleware.Role(c) == middleware.RoleStudent {
		b, err := h.Bookings.Get(c.Request().Context(), id)
		if err != nil {
			return respond(c, h.Logger, err)
		}
		if b.StudentID != middleware.UserID(c) {
			return forbidden(c)
		}
	}
	b, err := h.Bookings.CancelBooking(c.Request().Context(), id)
	if err != nil {
		return respond(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, b)
}

// List handles GET /bookings/list?classId=&date=&status=.  status is a
// comma separated list and defaults to the active statuses.
func (h *BookingHandler) List(c echo.Context) error {
	classID := strings.TrimSpace(c.QueryParam("classId"))
	if classID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "classId is required"})
	}
	var statuses []model.BookingStatus
	for _, s := range strings.Split(c.QueryParam("status"), ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		st := model.BookingStatus(s)
		if !st.Valid() {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status " + s})
		}
		statuses = append(statuses, st)
	}
	list, err := h.Bookings.ListBookings(c.Request().Context(), service.ListBookingsInput{
		TemplateID: classID,
		RawDate:    c.QueryParam("date"),
		Statuses:   statuses,
	})
	if err != nil {
		return respond(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list, "count": len(list)})
}

// ForStudent handles GET /bookings/student/:studentId?tenantId=.  The
// tenant defaults to the caller's tenant claim.
func (h *BookingHandler) ForStudent(c echo.Context) error {
	studentID := c.Param("studentId")
	if !actingForSelfOrStaff(c, studentID) {
		return forbidden(c)
	}
	tenantID := c.QueryParam("tenantId")
	if tenantID == "" {
		tenantID = middleware.TenantID(c)
	}
	list, err := h.Bookings.ListStudentBookings(c.Request().Context(), studentID, tenantID)
	if err != nil {
		return respond(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list, "count": len(list)})
}

// actingForSelfOrStaff lets staff through and students only for their own
// id.
func actingForSelfOrStaff(c echo.Context, studentID string) bool {
	if middleware.Role(c) != middleware.RoleStudent {
		return true
	}
	return studentID != "" && studentID == middleware.UserID(c)
}
