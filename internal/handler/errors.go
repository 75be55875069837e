package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dojo-schedule/internal/service"
)

// statusFor maps a business error kind to its HTTP status.  Anything else
// is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrFinancialBlock):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrCapacityExceeded),
		errors.Is(err, service.ErrDuplicateBooking),
		errors.Is(err, service.ErrDuplicateCheckIn),
		errors.Is(err, service.ErrScheduleConflict),
		errors.Is(err, service.ErrAlreadyCancelled),
		errors.Is(err, service.ErrStateTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrTimeWindowClosed), errors.Is(err, service.ErrNotEligible):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respond writes err as {"error": message}.  Business failures are expected
// outcomes and are not logged; everything else is.
func respond(c echo.Context, logger *slog.Logger, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
			slog.Any("error", err))
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": service.Message(err)})
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
}
