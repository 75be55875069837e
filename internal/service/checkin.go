package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/calendar"
	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository"
)

// CheckInCoordinator records attendance and keeps the booking and the
// session counters in agreement with it.
type CheckInCoordinator struct {
	students   StudentDirectory
	bookings   BookingStore
	outbox     OutboxStore
	catalog    *Catalog
	sessions   *SessionRegistry
	attendance *AttendanceLedger
	cals       *Calendars
	cfg        Config
	blocked    map[string]bool
	logger     *slog.Logger
}

// NewCheckInCoordinator wires a coordinator.
func NewCheckInCoordinator(deps Deps, catalog *Catalog, sessions *SessionRegistry, attendance *AttendanceLedger, cals *Calendars, cfg Config, logger *slog.Logger) *CheckInCoordinator {
	cfg = cfg.withDefaults()
	blocked := make(map[string]bool, len(cfg.BlockedStatuses))
	for _, s := range cfg.BlockedStatuses {
		blocked[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return &CheckInCoordinator{
		students:   deps.Students,
		bookings:   deps.Bookings,
		outbox:     deps.Outbox,
		catalog:    catalog,
		sessions:   sessions,
		attendance: attendance,
		cals:       cals,
		cfg:        cfg,
		blocked:    blocked,
		logger:     logger,
	}
}

// CheckInInput identifies who checks in to which class and who records it.
type CheckInInput struct {
	StudentID  string
	TemplateID string
	ActorID    string
	TenantID   string
	Method     model.CheckInMethod
}

// CheckInResult is the state written by a successful check-in.
type CheckInResult struct {
	Record  model.AttendanceRecord `json:"record"`
	Booking model.Booking          `json:"booking"`
	Session model.ClassSession     `json:"session"`
	WalkIn  bool                   `json:"walk_in"`
}

// CheckIn records today's attendance of a student.  Financial standing and
// the check-in window are validated before anything is written; the ledger
// append, booking confirmation and counter update then run as a saga.
// Eligibility is queued afterwards and can never fail the check-in.
func (c *CheckInCoordinator) CheckIn(ctx context.Context, in CheckInInput) (CheckInResult, error) {
	const op = "checkin.CheckIn"
	if strings.TrimSpace(in.StudentID) == "" {
		return CheckInResult{}, newError(op, ErrInvalidInput, "student id is required")
	}
	student, err := c.student(ctx, in.StudentID)
	if err != nil {
		return CheckInResult{}, err
	}
	if c.blocked[strings.ToLower(student.FinancialStatus)] {
		return CheckInResult{}, newError(op, ErrFinancialBlock,
			"account of %s is %s; check-in is blocked until it is settled", student.Name, student.FinancialStatus)
	}
	tmpl, err := c.catalog.Template(ctx, in.TemplateID)
	if err != nil {
		return CheckInResult{}, err
	}
	if in.TenantID != "" && in.TenantID != tmpl.TenantID {
		return CheckInResult{}, newError(op, ErrInvalidInput, "class %s does not belong to tenant %s", tmpl.ID, in.TenantID)
	}
	iv, err := c.catalog.Interval(tmpl)
	if err != nil {
		return CheckInResult{}, err
	}
	cal, err := c.cals.For(ctx, tmpl.TenantID)
	if err != nil {
		return CheckInResult{}, err
	}
	now := c.cfg.Now()
	today := cal.Day(now)
	if err := c.checkWindow(cal, today, iv, now); err != nil {
		return CheckInResult{}, err
	}
	method := in.Method
	if method == "" {
		method = model.MethodTeacher
	}
	if !method.Valid() {
		return CheckInResult{}, newError(op, ErrInvalidInput, "unknown check-in method %q", method)
	}

	rec := model.AttendanceRecord{
		Date:       today,
		TemplateID: tmpl.ID,
		Status:     model.AttendancePresent,
		Method:     method,
		Snapshot: model.ClassSnapshot{
			ClassName:   tmpl.Name,
			TeacherName: tmpl.TeacherName,
			StartTime:   tmpl.StartTime,
			EndTime:     tmpl.EndTime,
		},
		RecordedAt: now.UTC(),
	}
	if in.ActorID != "" {
		actor := in.ActorID
		rec.RecordedBy = &actor
	}

	var (
		res         = CheckInResult{}
		ref         model.RecordRef
		undoBooking func(context.Context) error
	)
	saga := NewSaga("check-in", c.logger).
		Step("ensure-session", func(ctx context.Context) error {
			res.Session, err = c.sessions.EnsureSession(ctx, tmpl, today)
			return err
		}, nil).
		Step("append-attendance", func(ctx context.Context) error {
			ref, err = c.attendance.Append(ctx, cal, student.ID, tmpl.TenantID, rec)
			return err
		}, func(ctx context.Context) error {
			return c.attendance.Pull(ctx, ref)
		}).
		Step("confirm-booking", func(ctx context.Context) error {
			res.Booking, res.WalkIn, undoBooking, err = c.confirmBooking(ctx, res.Session, tmpl, student.ID, today, now)
			return err
		}, func(ctx context.Context) error {
			if undoBooking == nil {
				return nil
			}
			return undoBooking(ctx)
		}).
		Step("mark-checked-in", func(ctx context.Context) error {
			return c.sessions.MarkCheckedIn(ctx, res.Session.ID)
		}, nil)
	if err := saga.Run(ctx); err != nil {
		return CheckInResult{}, err
	}
	rec.ID = ref.RecordID
	res.Record = rec
	res.Session.CheckedInCount++

	c.enqueueEligibility(ctx, student.ID, tmpl.TenantID, now)
	return res, nil
}

// checkWindow enforces the window opening OpensBefore the class start and
// closing ClosesAfter its end, on the tenant's local clock.
func (c *CheckInCoordinator) checkWindow(cal calendar.Calendar, today time.Time, iv calendar.Interval, now time.Time) error {
	opens := cal.At(today, iv.Start).Add(-c.cfg.OpensBefore)
	closes := cal.At(today, iv.End).Add(c.cfg.ClosesAfter)
	loc := cal.Location()
	if now.Before(opens) {
		wait := int(math.Ceil(opens.Sub(now).Minutes()))
		return newError("checkin.Window", ErrTimeWindowClosed,
			"check-in opens at %s, %s from now", opens.In(loc).Format("15:04"), pluralize(wait, "minute", "minutes"))
	}
	if now.After(closes) {
		late := int(math.Floor(now.Sub(closes).Minutes()))
		return newError("checkin.Window", ErrTimeWindowClosed,
			"check-in closed at %s, %s ago", closes.In(loc).Format("15:04"), pluralize(late, "minute", "minutes"))
	}
	return nil
}

// confirmBooking moves the student's booking for the session to confirmed,
// taking a seat when the student had none (walk-in or cancelled booking).
// The returned undo restores the previous booking state.
func (c *CheckInCoordinator) confirmBooking(ctx context.Context, session model.ClassSession, tmpl model.ClassTemplate, studentID string, day, now time.Time) (model.Booking, bool, func(context.Context) error, error) {
	const op = "checkin.ConfirmBooking"
	b, err := c.bookings.FindBooking(ctx, studentID, tmpl.ID, day)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return model.Booking{}, false, nil, err
	}
	if err == nil {
		switch b.Status {
		case model.BookingConfirmed:
			return b, false, nil, nil
		case model.BookingReserved:
			if err := c.transition(ctx, b.ID, model.BookingReserved, model.BookingConfirmed); err != nil {
				return model.Booking{}, false, nil, err
			}
			b.Status = model.BookingConfirmed
			b.UpdatedAt = now.UTC()
			return b, false, func(ctx context.Context) error {
				return c.bookings.TransitionBooking(ctx, b.ID, model.BookingConfirmed, model.BookingReserved)
			}, nil
		}
		// Cancelled: take a seat again and confirm the same row.
		if err := c.sessions.ReserveSeat(ctx, session.ID); err != nil {
			return model.Booking{}, false, nil, err
		}
		if err := c.transition(ctx, b.ID, model.BookingCancelled, model.BookingConfirmed); err != nil {
			c.releaseSeat(ctx, session.ID)
			return model.Booking{}, false, nil, err
		}
		b.Status = model.BookingConfirmed
		b.UpdatedAt = now.UTC()
		return b, true, c.undoWalkIn(b.ID, session.ID), nil
	}

	if err := c.sessions.ReserveSeat(ctx, session.ID); err != nil {
		return model.Booking{}, false, nil, err
	}
	b = model.Booking{
		ID:         c.cfg.NewID(),
		StudentID:  studentID,
		TenantID:   tmpl.TenantID,
		TemplateID: tmpl.ID,
		SessionID:  session.ID,
		Date:       day,
		Status:     model.BookingConfirmed,
		StartTime:  tmpl.StartTime,
		EndTime:    tmpl.EndTime,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	if err := c.bookings.InsertBooking(ctx, b); err != nil {
		c.releaseSeat(ctx, session.ID)
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Booking{}, false, nil, newError(op, ErrDuplicateBooking, "a booking for this class was created concurrently")
		}
		return model.Booking{}, false, nil, err
	}
	return b, true, c.undoWalkIn(b.ID, session.ID), nil
}

// undoWalkIn cancels a booking confirmed by a walk-in and gives its seat back.
func (c *CheckInCoordinator) undoWalkIn(bookingID, sessionID string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := c.bookings.TransitionBooking(ctx, bookingID, model.BookingConfirmed, model.BookingCancelled); err != nil {
			return err
		}
		return c.sessions.ReleaseSeat(ctx, sessionID)
	}
}

func (c *CheckInCoordinator) transition(ctx context.Context, id string, from, to model.BookingStatus) error {
	err := c.bookings.TransitionBooking(ctx, id, from, to)
	if errors.Is(err, repository.ErrStaleState) {
		return newError("checkin.Transition", ErrStateTransition, "booking %s is no longer %s", id, from)
	}
	return err
}

func (c *CheckInCoordinator) releaseSeat(ctx context.Context, sessionID string) {
	if err := c.sessions.ReleaseSeat(context.WithoutCancel(ctx), sessionID); err != nil {
		c.logger.Error("release seat after failed booking write", slog.String("session_id", sessionID), slog.Any("error", err))
	}
}

func (c *CheckInCoordinator) student(ctx context.Context, id string) (model.Student, error) {
	s, err := c.students.GetStudent(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Student{}, newError("checkin.Student", ErrNotFound, "student %s not found", id)
	}
	return s, err
}

// enqueueEligibility queues an eligibility evaluation for the relay worker.
// Failures are logged only.
func (c *CheckInCoordinator) enqueueEligibility(ctx context.Context, studentID, tenantID string, now time.Time) {
	if c.outbox == nil {
		return
	}
	task := model.OutboxTask{
		ID:            c.cfg.NewID(),
		Kind:          model.TaskEvaluateEligibility,
		StudentID:     studentID,
		TenantID:      tenantID,
		DedupeKey:     model.TaskEvaluateEligibility + ":" + studentID,
		Status:        model.OutboxPending,
		NextAttemptAt: now.UTC(),
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
	if err := c.outbox.EnqueueTask(context.WithoutCancel(ctx), task); err != nil {
		c.logger.Warn("enqueue eligibility evaluation", slog.String("student_id", studentID), slog.Any("error", err))
	}
}

// RevokeInput identifies the check-in to undo.  RawDate defaults to today.
type RevokeInput struct {
	StudentID  string
	TemplateID string
	TenantID   string
	RawDate    string
}

// RevokeResult describes what a revoke changed.
type RevokeResult struct {
	RecordID  string `json:"record_id"`
	Date      string `json:"date"`
	BookingID string `json:"booking_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// RevokeCheckIn reverses a check-in: the booking goes back to reserved, the
// session loses an attendee and the record is pulled from its bucket.  The
// record is located before anything changes so a missing record fails fast.
func (c *CheckInCoordinator) RevokeCheckIn(ctx context.Context, in RevokeInput) (RevokeResult, error) {
	const op = "checkin.Revoke"
	if strings.TrimSpace(in.StudentID) == "" {
		return RevokeResult{}, newError(op, ErrInvalidInput, "student id is required")
	}
	tmpl, err := c.catalog.Template(ctx, in.TemplateID)
	if err != nil {
		return RevokeResult{}, err
	}
	cal, err := c.cals.For(ctx, tmpl.TenantID)
	if err != nil {
		return RevokeResult{}, err
	}
	day, err := cal.ParseDay(in.RawDate, c.cfg.Now())
	if err != nil {
		return RevokeResult{}, wrapError(op, ErrInvalidInput, err, "invalid date %q", in.RawDate)
	}
	ref, err := c.attendance.Locate(ctx, cal, in.StudentID, tmpl.ID, day)
	if err != nil {
		return RevokeResult{}, err
	}
	// The located record may be newer than day; everything else follows
	// the record so the ledger and the booking stay in step.
	day = ref.Date
	res := RevokeResult{RecordID: ref.RecordID, Date: cal.Format(day)}

	booking, err := c.bookings.FindBooking(ctx, in.StudentID, tmpl.ID, day)
	hasBooking := err == nil && booking.Status == model.BookingConfirmed
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return RevokeResult{}, err
	}
	session, hasSession, err := c.sessions.Find(ctx, tmpl.ID, day)
	if err != nil {
		return RevokeResult{}, err
	}

	saga := NewSaga("revoke-check-in", c.logger).
		Step("unconfirm-booking", func(ctx context.Context) error {
			if !hasBooking {
				return nil
			}
			res.BookingID = booking.ID
			return c.transition(ctx, booking.ID, model.BookingConfirmed, model.BookingReserved)
		}, func(ctx context.Context) error {
			if !hasBooking {
				return nil
			}
			return c.bookings.TransitionBooking(ctx, booking.ID, model.BookingReserved, model.BookingConfirmed)
		}).
		Step("unmark-checked-in", func(ctx context.Context) error {
			if !hasSession {
				return nil
			}
			res.SessionID = session.ID
			return c.sessions.UnmarkCheckedIn(ctx, session.ID)
		}, func(ctx context.Context) error {
			if !hasSession {
				return nil
			}
			return c.sessions.MarkCheckedIn(ctx, session.ID)
		}).
		Step("pull-record", func(ctx context.Context) error {
			return c.attendance.Pull(ctx, ref)
		}, nil)
	if err := saga.Run(ctx); err != nil {
		return RevokeResult{}, err
	}
	return res, nil
}
