package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository"
)

// RosterEntry is one student in a class roster.
type RosterEntry struct {
	StudentID     string              `json:"student_id"`
	StudentName   string              `json:"student_name,omitempty"`
	BookingID     string              `json:"booking_id,omitempty"`
	BookingStatus model.BookingStatus `json:"booking_status,omitempty"`
	CheckedIn     bool                `json:"checked_in"`
	Method        model.CheckInMethod `json:"method,omitempty"`
	RecordedAt    *time.Time          `json:"recorded_at,omitempty"`
}

// Roster is the merged attendance view of one session.
type Roster struct {
	TemplateID string        `json:"class_template_id"`
	ClassName  string        `json:"class_name"`
	Date       string        `json:"date"`
	Entries    []RosterEntry `json:"entries"`
}

// Roster merges the check-ins and the active reservations of a session into
// one list with a single entry per student.  Checked-in students come first.
func (c *CheckInCoordinator) Roster(ctx context.Context, templateID, rawDate string) (Roster, error) {
	tmpl, err := c.catalog.Template(ctx, templateID)
	if err != nil {
		return Roster{}, err
	}
	cal, err := c.cals.For(ctx, tmpl.TenantID)
	if err != nil {
		return Roster{}, err
	}
	day, err := cal.ParseDay(rawDate, c.cfg.Now())
	if err != nil {
		return Roster{}, wrapError("checkin.Roster", ErrInvalidInput, err, "invalid date %q", rawDate)
	}
	present, err := c.attendance.ListForSession(ctx, cal, tmpl.ID, day)
	if err != nil {
		return Roster{}, err
	}
	booked, err := c.bookings.ListSessionBookings(ctx, tmpl.ID, day,
		[]model.BookingStatus{model.BookingReserved, model.BookingConfirmed})
	if err != nil {
		return Roster{}, err
	}

	byStudent := map[string]*RosterEntry{}
	var order []string
	entry := func(id string) *RosterEntry {
		if e, ok := byStudent[id]; ok {
			return e
		}
		e := &RosterEntry{StudentID: id}
		byStudent[id] = e
		order = append(order, id)
		return e
	}
	for _, p := range present {
		e := entry(p.StudentID)
		e.CheckedIn = true
		e.Method = p.Record.Method
		at := p.Record.RecordedAt
		e.RecordedAt = &at
	}
	for _, b := range booked {
		e := entry(b.StudentID)
		e.BookingID = b.ID
		e.BookingStatus = b.Status
	}

	out := Roster{TemplateID: tmpl.ID, ClassName: tmpl.Name, Date: cal.Format(day), Entries: make([]RosterEntry, 0, len(order))}
	for _, id := range order {
		e := byStudent[id]
		s, err := c.students.GetStudent(ctx, id)
		switch {
		case err == nil:
			e.StudentName = s.Name
		case errors.Is(err, repository.ErrNotFound):
		default:
			return Roster{}, err
		}
		out.Entries = append(out.Entries, *e)
	}
	sort.SliceStable(out.Entries, func(i, j int) bool {
		if out.Entries[i].CheckedIn != out.Entries[j].CheckedIn {
			return out.Entries[i].CheckedIn
		}
		return out.Entries[i].StudentName < out.Entries[j].StudentName
	})
	return out, nil
}
