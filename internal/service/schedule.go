package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/model"
)

// Schedule projects the weekly templates of a tenant onto concrete days and
// joins the live session counters.
type Schedule struct {
	catalog  *Catalog
	sessions SessionStore
	cals     *Calendars
	now      func() time.Time
}

// NewSchedule wires a schedule reader.
func NewSchedule(catalog *Catalog, sessions SessionStore, cals *Calendars, now func() time.Time) *Schedule {
	if now == nil {
		now = time.Now
	}
	return &Schedule{catalog: catalog, sessions: sessions, cals: cals, now: now}
}

// Schedule views.
const (
	ViewDay  = "day"
	ViewWeek = "week"
)

// ScheduleInput selects a tenant and a day or the week containing it.
type ScheduleInput struct {
	TenantID string
	RawDate  string
	View     string
}

// ScheduleSlot is one class on one day.  Sessions that were never
// materialized report the template capacity and zero counters.
type ScheduleSlot struct {
	TemplateID  string `json:"class_template_id"`
	SessionID   string `json:"session_id,omitempty"`
	Name        string `json:"name"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Audience    string `json:"audience,omitempty"`
	TeacherName string `json:"teacher_name,omitempty"`
	Capacity    int    `json:"capacity"`
	Booked      int    `json:"booked"`
	CheckedIn   int    `json:"checked_in"`
	Available   int    `json:"available"`
}

// ScheduleView is the result of Read.
type ScheduleView struct {
	TenantID string         `json:"tenant_id"`
	View     string         `json:"view"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Slots    []ScheduleSlot `json:"slots"`
}

// Read returns the tenant's classes for the requested day or week, ordered
// by date and start time.
func (s *Schedule) Read(ctx context.Context, in ScheduleInput) (ScheduleView, error) {
	const op = "schedule.Read"
	if strings.TrimSpace(in.TenantID) == "" {
		return ScheduleView{}, newError(op, ErrInvalidInput, "tenant id is required")
	}
	view := strings.ToLower(strings.TrimSpace(in.View))
	if view == "" {
		view = ViewDay
	}
	if view != ViewDay && view != ViewWeek {
		return ScheduleView{}, newError(op, ErrInvalidInput, "unknown view %q", in.View)
	}
	cal, err := s.cals.For(ctx, in.TenantID)
	if err != nil {
		return ScheduleView{}, err
	}
	day, err := cal.ParseDay(in.RawDate, s.now())
	if err != nil {
		return ScheduleView{}, wrapError(op, ErrInvalidInput, err, "invalid date %q", in.RawDate)
	}
	from, to := day, day
	if view == ViewWeek {
		from = cal.StartOfWeek(day)
		to = cal.AddDays(from, 6)
	}

	templates, err := s.catalog.ForTenant(ctx, in.TenantID)
	if err != nil {
		return ScheduleView{}, err
	}
	out := ScheduleView{
		TenantID: in.TenantID,
		View:     view,
		From:     cal.Format(from),
		To:       cal.Format(to),
		Slots:    []ScheduleSlot{},
	}
	if len(templates) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(templates))
	for _, t := range templates {
		ids = append(ids, t.ID)
	}
	sessions, err := s.sessions.ListSessions(ctx, ids, from, to)
	if err != nil {
		return ScheduleView{}, err
	}
	byKey := make(map[string]model.ClassSession, len(sessions))
	for _, ss := range sessions {
		byKey[ss.TemplateID+"|"+cal.Format(ss.Date)] = ss
	}

	for d := from; !d.After(to); d = cal.AddDays(d, 1) {
		wd := cal.Weekday(d)
		date := cal.Format(d)
		for _, t := range templates {
			if t.Weekday != wd {
				continue
			}
			slot := ScheduleSlot{
				TemplateID:  t.ID,
				Name:        t.Name,
				Date:        date,
				StartTime:   t.StartTime,
				EndTime:     t.EndTime,
				Audience:    t.Audience,
				TeacherName: t.TeacherName,
				Capacity:    t.Capacity,
			}
			if ss, ok := byKey[t.ID+"|"+date]; ok {
				slot.SessionID = ss.ID
				slot.Capacity = ss.Capacity
				slot.StartTime, slot.EndTime = ss.StartTime, ss.EndTime
				slot.Booked = ss.BookedCount
				slot.CheckedIn = ss.CheckedInCount
			}
			slot.Available = max(slot.Capacity-slot.Booked, 0)
			out.Slots = append(out.Slots, slot)
		}
	}
	sort.SliceStable(out.Slots, func(i, j int) bool {
		a, b := out.Slots[i], out.Slots[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.StartTime < b.StartTime
	})
	return out, nil
}
