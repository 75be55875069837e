package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dojo-schedule/internal/calendar"
	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository/memory"
	"github.com/iliyamo/dojo-schedule/internal/service"
)

const (
	tenantID = "dojo-sp"
	monday   = "2025-03-10"
)

// fixture is a Sao Paulo dojo with four Monday classes:
//
//	evening  18:00-19:00  capacity 10
//	nogi     18:30-19:30  capacity 10
//	late     19:00-20:00  capacity 10
//	private  20:00-21:00  capacity 1
type fixture struct {
	t     *testing.T
	store *memory.Store
	svc   *service.Services
	cal   calendar.Calendar

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cal, err := calendar.Load("America/Sao_Paulo")
	require.NoError(t, err)

	store := memory.New()
	store.PutTenant(model.Tenant{ID: tenantID, Name: "Dojo Sao Paulo", Timezone: "America/Sao_Paulo"})
	for _, tmpl := range []struct {
		ID, Name, StartTime, EndTime string
		Capacity                     int
		Inactive                     bool
	}{
		{ID: "evening", Name: "Adult Jiu-Jitsu", StartTime: "18:00", EndTime: "19:00", Capacity: 10},
		{ID: "nogi", Name: "No-Gi", StartTime: "18:30", EndTime: "19:30", Capacity: 10},
		{ID: "late", Name: "Competition", StartTime: "19:00", EndTime: "20:00", Capacity: 10},
		{ID: "private", Name: "Private Lesson", StartTime: "20:00", EndTime: "21:00", Capacity: 1},
		{ID: "morning", Name: "Sunrise", StartTime: "07:00", EndTime: "08:00", Capacity: 10, Inactive: true},
	} {
		store.PutTemplate(model.ClassTemplate{
			ID:          tmpl.ID,
			TenantID:    tenantID,
			Name:        tmpl.Name,
			Weekday:     time.Monday,
			StartTime:   tmpl.StartTime,
			EndTime:     tmpl.EndTime,
			Capacity:    tmpl.Capacity,
			TeacherName: "Sensei Rocha",
			Active:      !tmpl.Inactive,
		})
	}
	joined := time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)
	store.PutStudent(model.Student{ID: "ana", TenantID: tenantID, Name: "Ana", FinancialStatus: model.FinancialOK, JoinedAt: joined,
		RankState: model.RankState{Rank: model.Rank{Belt: "white"}}})
	store.PutStudent(model.Student{ID: "bruno", TenantID: tenantID, Name: "Bruno", FinancialStatus: model.FinancialOverdue, JoinedAt: joined,
		RankState: model.RankState{Rank: model.Rank{Belt: "white"}}})
	store.PutStudent(model.Student{ID: "carla", TenantID: tenantID, Name: "Carla", FinancialStatus: model.FinancialOK, JoinedAt: joined,
		RankState: model.RankState{Rank: model.Rank{Belt: "white"}}})

	f := &fixture{t: t, store: store, cal: cal}
	f.setClock(monday + " 12:00")
	f.svc = service.New(service.Deps{
		Templates:  store,
		Sessions:   store,
		Bookings:   store,
		Attendance: store,
		Students:   store,
		Ranks:      store,
		Tenants:    store,
		Rules:      store,
		Outbox:     store,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, service.Config{Now: f.clock})
	return f
}

// setClock sets the current time from a local "2006-01-02 15:04" value.
func (f *fixture) setClock(local string) {
	f.t.Helper()
	at, err := time.ParseInLocation("2006-01-02 15:04", local, f.cal.Location())
	require.NoError(f.t, err)
	f.mu.Lock()
	f.now = at
	f.mu.Unlock()
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) day(raw string) time.Time {
	f.t.Helper()
	d, err := f.cal.ParseDay(raw, f.clock())
	require.NoError(f.t, err)
	return d
}

func (f *fixture) session(templateID, raw string) model.ClassSession {
	f.t.Helper()
	s, err := f.store.FindSession(context.Background(), templateID, f.day(raw))
	require.NoError(f.t, err)
	return s
}

func (f *fixture) book(studentID, templateID string) service.BookingResult {
	f.t.Helper()
	res, err := f.svc.Bookings.CreateBooking(context.Background(), service.CreateBookingInput{
		StudentID:  studentID,
		TemplateID: templateID,
		TenantID:   tenantID,
		RawDate:    monday,
	})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) checkIn(studentID, templateID string) (service.CheckInResult, error) {
	return f.svc.CheckIns.CheckIn(context.Background(), service.CheckInInput{
		StudentID:  studentID,
		TemplateID: templateID,
		ActorID:    "sensei",
		TenantID:   tenantID,
	})
}

func (f *fixture) bucket(studentID string) model.AttendanceBucket {
	b, _ := f.store.Bucket(studentID, "2025-03")
	return b
}
