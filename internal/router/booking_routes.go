package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dojo-schedule/internal/handler"
	"github.com/iliyamo/dojo-schedule/internal/middleware"
)

// RegisterBookings registers /bookings.  Every role may book and cancel
// (students only their own); listing a class is staff-only.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, opt Options) {
	g := e.Group("/bookings", authenticated(opt, middleware.Everyone...)...)
	limited := optional(opt.RateLimit)

	g.POST("", h.Create, limited...)
	g.DELETE("/:id", h.Cancel, limited...)
	g.GET("/student/:studentId", h.ForStudent)
	g.GET("/list", h.List, middleware.RequireRole(middleware.Staff...))
}

// RegisterSchedule registers the franchise timetable.  Availability is read
// per request, so the response cache is not mounted here.
func RegisterSchedule(e *echo.Echo, h *handler.ScheduleHandler, opt Options) {
	g := e.Group("/classes", authenticated(opt, middleware.Everyone...)...)
	g.GET("/franchise/:tenantId", h.Franchise)
}
