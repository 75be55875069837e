// Package router registers the HTTP routes and their middleware chains.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dojo-schedule/internal/handler"
	"github.com/iliyamo/dojo-schedule/internal/middleware"
)

// Handlers bundles every route handler.
type Handlers struct {
	Bookings   *handler.BookingHandler
	Schedule   *handler.ScheduleHandler
	Attendance *handler.AttendanceHandler
	Graduation *handler.GraduationHandler
	Ready      echo.HandlerFunc
}

// Options carries the cross-cutting middleware.  RateLimit guards writes
// and Cache fronts the eligible listing; either may be nil.
type Options struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// Register mounts every route on e.
func Register(e *echo.Echo, h Handlers, opt Options) {
	RegisterRoutes(e, h.Ready)
	RegisterBookings(e, h.Bookings, opt)
	RegisterSchedule(e, h.Schedule, opt)
	RegisterTeacher(e, h.Attendance, opt)
	RegisterGraduation(e, h.Graduation, opt)
}

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
}

func authenticated(opt Options, roles ...string) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{middleware.JWTAuth(opt.JWTSecret), middleware.RequireRole(roles...)}
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}
