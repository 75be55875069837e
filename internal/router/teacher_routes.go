package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dojo-schedule/internal/handler"
	"github.com/iliyamo/dojo-schedule/internal/middleware"
)

// RegisterTeacher registers the staff-only attendance endpoints.
func RegisterTeacher(e *echo.Echo, h *handler.AttendanceHandler, opt Options) {
	g := e.Group("/teachers", authenticated(opt, middleware.Staff...)...)
	limited := optional(opt.RateLimit)

	g.POST("/attendance", h.CheckIn, limited...)
	g.DELETE("/attendance", h.Revoke, limited...)
	g.GET("/classes/:classId/attendance", h.Roster)
}

// RegisterGraduation registers eligibility and promotion.  Anyone may read
// a single student's eligibility (students only their own); the tenant
// listing and promotions are staff-only.
func RegisterGraduation(e *echo.Echo, h *handler.GraduationHandler, opt Options) {
	g := e.Group("/graduation", authenticated(opt, middleware.Everyone...)...)
	staff := middleware.RequireRole(middleware.Staff...)

	g.GET("/eligibility/:studentId", h.Check)
	g.POST("/promote", h.Promote, append([]echo.MiddlewareFunc{staff}, optional(opt.RateLimit)...)...)
	g.GET("/eligible/:tenantId", h.Eligible, append([]echo.MiddlewareFunc{staff}, optional(opt.Cache)...)...)
}
