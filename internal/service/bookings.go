package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/calendar"
	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository"
)

// BookingLedger manages seat reservations.
type BookingLedger struct {
	store    BookingStore
	catalog  *Catalog
	sessions *SessionRegistry
	cals     *Calendars
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// NewBookingLedger wires a ledger.
func NewBookingLedger(store BookingStore, catalog *Catalog, sessions *SessionRegistry, cals *Calendars, cfg Config, logger *slog.Logger) *BookingLedger {
	cfg = cfg.withDefaults()
	return &BookingLedger{
		store:    store,
		catalog:  catalog,
		sessions: sessions,
		cals:     cals,
		now:      cfg.Now,
		newID:    cfg.NewID,
		logger:   logger,
	}
}

// CreateBookingInput is a reservation request.  RawDate may be empty
// (today), a "YYYY-MM-DD" local date or an RFC 3339 timestamp.
type CreateBookingInput struct {
	StudentID  string
	TemplateID string
	TenantID   string
	RawDate    string
}

// BookingResult reports the stored booking and whether a cancelled row was
// reactivated instead of inserted.
type BookingResult struct {
	Booking     model.Booking `json:"booking"`
	Reactivated bool          `json:"reactivated"`
}

// CreateBooking reserves a seat for the student.  The seat is taken first;
// if the booking row cannot be written afterwards the seat is released
// before the error is returned.
func (l *BookingLedger) CreateBooking(ctx context.Context, in CreateBookingInput) (BookingResult, error) {
	const op = "booking.Create"
	if strings.TrimSpace(in.StudentID) == "" {
		return BookingResult{}, newError(op, ErrInvalidInput, "student id is required")
	}
	tmpl, err := l.catalog.Template(ctx, in.TemplateID)
	if err != nil {
		return BookingResult{}, err
	}
	if !tmpl.Active {
		return BookingResult{}, newError(op, ErrInvalidInput, "class %s is no longer offered", tmpl.Name)
	}
	if in.TenantID != "" && in.TenantID != tmpl.TenantID {
		return BookingResult{}, newError(op, ErrInvalidInput, "class %s does not belong to tenant %s", tmpl.ID, in.TenantID)
	}
	cal, err := l.cals.For(ctx, tmpl.TenantID)
	if err != nil {
		return BookingResult{}, err
	}
	now := l.now()
	day, err := cal.ParseDay(in.RawDate, now)
	if err != nil {
		return BookingResult{}, wrapError(op, ErrInvalidInput, err, "invalid date %q", in.RawDate)
	}
	if day.Before(cal.Day(now)) {
		return BookingResult{}, newError(op, ErrInvalidInput, "cannot book a class on a past date (%s)", cal.Format(day))
	}
	if cal.Weekday(day) != tmpl.Weekday {
		return BookingResult{}, newError(op, ErrInvalidInput, "%s does not run on %s", tmpl.Name, cal.Format(day))
	}
	iv, err := l.catalog.Interval(tmpl)
	if err != nil {
		return BookingResult{}, err
	}

	existing, found, err := l.find(ctx, in.StudentID, tmpl.ID, day)
	if err != nil {
		return BookingResult{}, err
	}
	if found && existing.Status.Active() {
		return BookingResult{}, newError(op, ErrDuplicateBooking, "student already has a seat in %s on %s", tmpl.Name, cal.Format(day))
	}
	if err := l.checkConflicts(ctx, in.StudentID, tmpl.ID, day, iv, cal); err != nil {
		return BookingResult{}, err
	}

	var (
		session model.ClassSession
		result  BookingResult
	)
	saga := NewSaga("create-booking", l.logger).
		Step("ensure-session", func(ctx context.Context) error {
			session, err = l.sessions.EnsureSession(ctx, tmpl, day)
			return err
		}, nil).
		Step("reserve-seat", func(ctx context.Context) error {
			return l.sessions.ReserveSeat(ctx, session.ID)
		}, func(ctx context.Context) error {
			return l.sessions.ReleaseSeat(ctx, session.ID)
		}).
		Step("persist-booking", func(ctx context.Context) error {
			if found {
				b, err := l.reactivate(ctx, existing, model.BookingReserved)
				result = BookingResult{Booking: b, Reactivated: true}
				return err
			}
			b := model.Booking{
				ID:         l.newID(),
				StudentID:  in.StudentID,
				TenantID:   tmpl.TenantID,
				TemplateID: tmpl.ID,
				SessionID:  session.ID,
				Date:       day,
				Status:     model.BookingReserved,
				StartTime:  tmpl.StartTime,
				EndTime:    tmpl.EndTime,
				CreatedAt:  now.UTC(),
				UpdatedAt:  now.UTC(),
			}
			if err := l.store.InsertBooking(ctx, b); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return newError(op, ErrDuplicateBooking, "student already has a seat in %s on %s", tmpl.Name, cal.Format(day))
				}
				return err
			}
			result = BookingResult{Booking: b}
			return nil
		}, nil)
	if err := saga.Run(ctx); err != nil {
		return BookingResult{}, err
	}
	return result, nil
}

// reactivate moves a cancelled booking to status.  Losing the
// compare-and-swap means a concurrent request already reactivated it.
func (l *BookingLedger) reactivate(ctx context.Context, b model.Booking, status model.BookingStatus) (model.Booking, error) {
	if err := l.store.TransitionBooking(ctx, b.ID, model.BookingCancelled, status); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return model.Booking{}, newError("booking.Reactivate", ErrDuplicateBooking, "booking %s was reactivated concurrently", b.ID)
		}
		return model.Booking{}, err
	}
	b.Status = status
	b.UpdatedAt = l.now().UTC()
	return b, nil
}

func (l *BookingLedger) find(ctx context.Context, studentID, templateID string, day time.Time) (model.Booking, bool, error) {
	b, err := l.store.FindBooking(ctx, studentID, templateID, day)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Booking{}, false, nil
	}
	if err != nil {
		return model.Booking{}, false, err
	}
	return b, true, nil
}

// checkConflicts rejects the reservation when another active booking of the
// student on the same day overlaps iv.
func (l *BookingLedger) checkConflicts(ctx context.Context, studentID, templateID string, day time.Time, iv calendar.Interval, cal calendar.Calendar) error {
	others, err := l.store.ListStudentBookingsOnDay(ctx, studentID, day)
	if err != nil {
		return err
	}
	for _, b := range others {
		if b.TemplateID == templateID || !b.Status.Active() {
			continue
		}
		other, err := calendar.ParseInterval(b.StartTime, b.EndTime)
		if err != nil {
			l.logger.Warn("booking has an invalid time range", slog.String("booking_id", b.ID), slog.Any("error", err))
			continue
		}
		if iv.Overlaps(other) {
			return newError("booking.Create", ErrScheduleConflict,
				"%s overlaps another booking at %s on %s", iv, other, cal.Format(day))
		}
	}
	return nil
}

// Get loads a booking by id.
func (l *BookingLedger) Get(ctx context.Context, id string) (model.Booking, error) {
	if strings.TrimSpace(id) == "" {
		return model.Booking{}, newError("booking.Get", ErrInvalidInput, "booking id is required")
	}
	b, err := l.store.GetBooking(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Booking{}, newError("booking.Get", ErrNotFound, "booking %s not found", id)
	}
	return b, err
}

// CancelBooking releases a reservation.  Cancelling twice returns
// ErrAlreadyCancelled and leaves the counters alone.
func (l *BookingLedger) CancelBooking(ctx context.Context, id string) (model.Booking, error) {
	const op = "booking.Cancel"
	b, err := l.store.GetBooking(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Booking{}, newError(op, ErrNotFound, "booking %s not found", id)
	}
	if err != nil {
		return model.Booking{}, err
	}
	switch b.Status {
	case model.BookingCancelled:
		return b, newError(op, ErrAlreadyCancelled, "booking %s is already cancelled", id)
	case model.BookingConfirmed:
		return b, newError(op, ErrStateTransition, "booking %s is checked in; revoke the check-in first", id)
	}

	saga := NewSaga("cancel-booking", l.logger).
		Step("flip-status", func(ctx context.Context) error {
			err := l.store.TransitionBooking(ctx, id, model.BookingReserved, model.BookingCancelled)
			if errors.Is(err, repository.ErrStaleState) {
				return l.staleCancel(ctx, id)
			}
			return err
		}, func(ctx context.Context) error {
			return l.store.TransitionBooking(ctx, id, model.BookingCancelled, model.BookingReserved)
		}).
		Step("release-seat", func(ctx context.Context) error {
			return l.sessions.ReleaseSeat(ctx, b.SessionID)
		}, nil)
	if err := saga.Run(ctx); err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingCancelled
	b.UpdatedAt = l.now().UTC()
	return b, nil
}

// staleCancel explains why a cancel lost its compare-and-swap.
func (l *BookingLedger) staleCancel(ctx context.Context, id string) error {
	const op = "booking.Cancel"
	cur, err := l.store.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == model.BookingCancelled {
		return newError(op, ErrAlreadyCancelled, "booking %s is already cancelled", id)
	}
	return newError(op, ErrStateTransition, "booking %s changed to %s concurrently", id, cur.Status)
}

// ListBookingsInput selects the bookings of one session.
type ListBookingsInput struct {
	TemplateID string
	RawDate    string
	Statuses   []model.BookingStatus
}

// ListBookings lists a session's bookings.  When the template has none, the
// bookings of equivalent templates (same slot, regenerated id) are returned
// instead.
func (l *BookingLedger) ListBookings(ctx context.Context, in ListBookingsInput) ([]model.Booking, error) {
	tmpl, err := l.catalog.Template(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}
	cal, err := l.cals.For(ctx, tmpl.TenantID)
	if err != nil {
		return nil, err
	}
	day, err := cal.ParseDay(in.RawDate, l.now())
	if err != nil {
		return nil, wrapError("booking.List", ErrInvalidInput, err, "invalid date %q", in.RawDate)
	}
	statuses := in.Statuses
	if len(statuses) == 0 {
		statuses = []model.BookingStatus{model.BookingReserved, model.BookingConfirmed}
	}
	list, err := l.store.ListSessionBookings(ctx, tmpl.ID, day, statuses)
	if err != nil || len(list) > 0 {
		return list, err
	}
	equivalents, err := l.catalog.Equivalent(ctx, tmpl)
	if err != nil {
		return nil, err
	}
	for _, eq := range equivalents {
		more, err := l.store.ListSessionBookings(ctx, eq.ID, day, statuses)
		if err != nil {
			return nil, err
		}
		list = append(list, more...)
	}
	if list == nil {
		list = []model.Booking{}
	}
	return list, nil
}

// ListStudentBookings returns the student's active bookings from today on.
func (l *BookingLedger) ListStudentBookings(ctx context.Context, studentID, tenantID string) ([]model.Booking, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, newError("booking.ListStudent", ErrInvalidInput, "student id is required")
	}
	cal, err := l.cals.For(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	all, err := l.store.ListStudentBookingsFrom(ctx, studentID, cal.Day(l.now()))
	if err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(all))
	for _, b := range all {
		if b.Status.Active() {
			out = append(out, b)
		}
	}
	return out, nil
}
