package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dojo-schedule/internal/handler"
	"github.com/iliyamo/dojo-schedule/internal/middleware"
	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository/memory"
	"github.com/iliyamo/dojo-schedule/internal/router"
	"github.com/iliyamo/dojo-schedule/internal/service"
)

const secret = "router-test"

// 2025-03-10 is a Monday; 21:05 UTC is 18:05 in Sao Paulo.
var now = time.Date(2025, 3, 10, 21, 5, 0, 0, time.UTC)

type app struct {
	t     *testing.T
	e     *echo.Echo
	store *memory.Store
}

func newApp(t *testing.T, opts ...router.Options) *app {
	t.Helper()
	store := memory.New()
	store.PutTenant(model.Tenant{ID: "dojo-sp", Name: "Dojo SP", Timezone: "America/Sao_Paulo"})
	store.PutTemplate(model.ClassTemplate{ID: "evening", TenantID: "dojo-sp", Name: "Adult Jiu-Jitsu", Weekday: time.Monday,
		StartTime: "18:00", EndTime: "19:00", Capacity: 10, TeacherName: "Sensei Rocha", Active: true})
	joined := time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)
	store.PutStudent(model.Student{ID: "ana", TenantID: "dojo-sp", Name: "Ana", FinancialStatus: model.FinancialOK,
		JoinedAt: joined, RankState: model.RankState{Rank: model.Rank{Belt: "white"}}})
	store.PutStudent(model.Student{ID: "bruno", TenantID: "dojo-sp", Name: "Bruno", FinancialStatus: model.FinancialOverdue,
		JoinedAt: joined, RankState: model.RankState{Rank: model.Rank{Belt: "white"}}})
	store.PutRule(model.GraduationRule{ID: "w0", From: model.Rank{Belt: "white"}, To: model.Rank{Belt: "white", Degree: 1},
		ClassesRequired: 30, MinDaysRequired: 30})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(service.Deps{
		Templates: store, Sessions: store, Bookings: store, Attendance: store, Students: store,
		Ranks: store, Tenants: store, Rules: store, Outbox: store, Logger: logger,
	}, service.Config{Now: func() time.Time { return now }})

	var opt router.Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	opt.JWTSecret = secret

	e := echo.New()
	e.Validator = handler.NewValidator()
	router.Register(e, router.Handlers{
		Bookings:   handler.NewBookingHandler(svc.Bookings, logger),
		Schedule:   handler.NewScheduleHandler(svc.Schedule, logger),
		Attendance: handler.NewAttendanceHandler(svc.CheckIns, logger),
		Graduation: handler.NewGraduationHandler(svc.Eligibility, logger),
		Ready:      handler.Ready(nil),
	}, opt)
	return &app{t: t, e: e, store: store}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Role: role, TenantID: "dojo-sp",
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (a *app) do(method, path, tok string, body any) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(bs)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestProbes(t *testing.T) {
	a := newApp(t)
	rec, _ := a.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, body := a.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "memory", body["storage"])
}

func TestBookingRequiresToken(t *testing.T) {
	a := newApp(t)
	rec, _ := a.do(http.MethodPost, "/bookings", "", map[string]string{"studentId": "ana"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStudentBooksOnlyForSelf(t *testing.T) {
	a := newApp(t)
	ana := token(t, "ana", middleware.RoleStudent)
	req := map[string]string{"studentId": "ana", "classTemplateId": "evening", "tenantId": "dojo-sp"}

	rec, body := a.do(http.MethodPost, "/bookings", ana, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := body["booking"].(map[string]any)
	assert.Equal(t, "reserved", booking["status"])

	req["studentId"] = "bruno"
	rec, _ = a.do(http.MethodPost, "/bookings", ana, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = a.do(http.MethodGet, "/bookings/list?classId=evening", ana, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = a.do(http.MethodGet, "/bookings/list?classId=evening", token(t, "t-1", middleware.RoleTeacher), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = a.do(http.MethodGet, "/bookings/student/ana", ana, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
}

func TestCancelTwiceConflicts(t *testing.T) {
	a := newApp(t)
	ana := token(t, "ana", middleware.RoleStudent)
	_, body := a.do(http.MethodPost, "/bookings", ana, map[string]string{"studentId": "ana", "classTemplateId": "evening", "tenantId": "dojo-sp"})
	id := body["booking"].(map[string]any)["id"].(string)

	rec, _ := a.do(http.MethodDelete, "/bookings/"+id, token(t, "bruno", middleware.RoleStudent), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = a.do(http.MethodDelete, "/bookings/"+id, ana, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, body = a.do(http.MethodDelete, "/bookings/"+id, ana, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["error"], "already cancelled")
}

func TestCheckInFlow(t *testing.T) {
	a := newApp(t)
	teacher := token(t, "t-1", middleware.RoleTeacher)
	req := map[string]string{"studentId": "ana", "classTemplateId": "evening", "tenantId": "dojo-sp"}

	rec, _ := a.do(http.MethodPost, "/teachers/attendance", token(t, "ana", middleware.RoleStudent), req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := a.do(http.MethodPost, "/teachers/attendance", teacher, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["walk_in"])
	record := body["record"].(map[string]any)
	assert.Equal(t, "t-1", record["recorded_by"])
	assert.Equal(t, "teacher", record["method"])

	rec, _ = a.do(http.MethodPost, "/teachers/attendance", teacher, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = a.do(http.MethodGet, "/teachers/classes/evening/attendance", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["entries"], 1)

	rec, _ = a.do(http.MethodDelete, "/teachers/attendance", teacher, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = a.do(http.MethodDelete, "/teachers/attendance", teacher, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckInFinancialBlock(t *testing.T) {
	a := newApp(t)
	rec, body := a.do(http.MethodPost, "/teachers/attendance", token(t, "t-1", middleware.RoleAdmin),
		map[string]string{"studentId": "bruno", "classTemplateId": "evening", "tenantId": "dojo-sp"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestCheckInValidation(t *testing.T) {
	a := newApp(t)
	teacher := token(t, "t-1", middleware.RoleTeacher)

	rec, body := a.do(http.MethodPost, "/teachers/attendance", teacher, map[string]string{"classTemplateId": "evening", "tenantId": "dojo-sp"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "studentId is required", body["error"])

	rec, body = a.do(http.MethodPost, "/teachers/attendance", teacher,
		map[string]string{"studentId": "ana", "classTemplateId": "evening", "tenantId": "dojo-sp", "method": "telepathy"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "method must be one of")
}

func TestSchedule(t *testing.T) {
	a := newApp(t)
	rec, body := a.do(http.MethodGet, "/classes/franchise/dojo-sp?view=week", token(t, "ana", middleware.RoleStudent), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, body["slots"], 1)

	rec, _ = a.do(http.MethodGet, "/classes/franchise/dojo-sp?view=month", token(t, "ana", middleware.RoleStudent), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleAvailabilityIsLive(t *testing.T) {
	// frozen answers every request it fronts from a stale copy.
	frozen := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return c.JSON(http.StatusOK, map[string]any{"stale": true})
		}
	}
	a := newApp(t, router.Options{Cache: frozen})
	ana := token(t, "ana", middleware.RoleStudent)
	path := "/classes/franchise/dojo-sp?view=day&date=2025-03-10"

	available := func() float64 {
		t.Helper()
		rec, body := a.do(http.MethodGet, path, ana, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotContains(t, body, "stale")
		slots := body["slots"].([]any)
		require.Len(t, slots, 1)
		return slots[0].(map[string]any)["available"].(float64)
	}

	assert.EqualValues(t, 10, available())
	rec, body := a.do(http.MethodPost, "/bookings", ana, map[string]string{"studentId": "ana", "classTemplateId": "evening", "tenantId": "dojo-sp"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 9, available())

	id := body["booking"].(map[string]any)["id"].(string)
	rec, _ = a.do(http.MethodDelete, "/bookings/"+id, ana, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 10, available())

	// The tenant-wide eligible listing keeps its response cache.
	_, body = a.do(http.MethodGet, "/graduation/eligible/dojo-sp", token(t, "admin-1", middleware.RoleAdmin), nil)
	assert.Equal(t, true, body["stale"])
}

func TestGraduation(t *testing.T) {
	a := newApp(t)
	ana := token(t, "ana", middleware.RoleStudent)
	admin := token(t, "admin-1", middleware.RoleAdmin)

	rec, body := a.do(http.MethodGet, "/graduation/eligibility/ana", ana, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["is_eligible"])
	assert.Contains(t, body["missing"], "30 more classes")

	rec, _ = a.do(http.MethodGet, "/graduation/eligibility/bruno", ana, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = a.do(http.MethodPost, "/graduation/promote", ana, map[string]string{"studentId": "ana"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = a.do(http.MethodPost, "/graduation/promote", admin, map[string]string{"studentId": "ana"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body["error"], "not eligible")

	rec, body = a.do(http.MethodGet, "/graduation/eligible/dojo-sp", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["count"])
}
