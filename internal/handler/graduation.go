package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dojo-schedule/internal/middleware"
	"github.com/iliyamo/dojo-schedule/internal/service"
)

// GraduationHandler serves eligibility checks and promotions.
type GraduationHandler struct {
	Eligibility *service.EligibilityEvaluator
	Logger      *slog.Logger
}

// NewGraduationHandler returns a GraduationHandler backed by eligibility.
func NewGraduationHandler(eligibility *service.EligibilityEvaluator, logger *slog.Logger) *GraduationHandler {
	if eligibility == nil || logger == nil {
		panic("nil dependency passed to NewGraduationHandler")
	}
	return &GraduationHandler{Eligibility: eligibility, Logger: logger}
}

type eligibilityResponse struct {
	service.Eligibility
	Missing []string `json:"missing"`
}

func withMissing(el service.Eligibility) eligibilityResponse {
	missing := el.Missing()
	if missing == nil {
		missing = []string{}
	}
	return eligibilityResponse{Eligibility: el, Missing: missing}
}

// Check handles GET /graduation/eligibility/:studentId.
func (h *GraduationHandler) Check(c echo.Context) error {
	studentID := c.Param("studentId")
	if !actingForSelfOrStaff(c, studentID) {
		return forbidden(c)
	}
	el, err := h.Eligibility.CheckEligibility(c.Request().Context(), studentID)
	if err != nil {
		return respond(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, withMissing(el))
}

type promoteRequest struct {
	StudentID string `json:"studentId" validate:"required"`
}

// Promote handles POST /graduation/promote.  The caller is the approver.
func (h *GraduationHandler) Promote(c echo.Context) error {
	var req promoteRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	res, err := h.Eligibility.Promote(c.Request().Context(), req.StudentID, middleware.UserID(c))
	if err != nil {
		return respond(c, h.Logger, err)
	}
	h.Logger.Info("student promoted",
		slog.String("student_id", res.StudentID),
		slog.String("from", res.Before.String()),
		slog.String("to", res.After.String()),
		slog.String("approver_id", res.ApproverID))
	return c.JSON(http.StatusOK, res)
}

// Eligible handles GET /graduation/eligible/:tenantId.
func (h *GraduationHandler) Eligible(c echo.Context) error {
	list, err := h.Eligibility.ListEligible(c.Request().Context(), c.Param("tenantId"))
	if err != nil {
		return respond(c, h.Logger, err)
	}
	out := make([]eligibilityResponse, 0, len(list))
	for _, el := range list {
		out = append(out, withMissing(el))
	}
	return c.JSON(http.StatusOK, echo.Map{"students": out, "count": len(out)})
}
