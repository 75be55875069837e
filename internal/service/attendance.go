package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/calendar"
	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository"
)

// AttendanceLedger appends check-ins to monthly per-student buckets.
type AttendanceLedger struct {
	store   AttendanceStore
	catalog *Catalog
	newID   func() string
}

// NewAttendanceLedger wires a ledger.
func NewAttendanceLedger(store AttendanceStore, catalog *Catalog, newID func() string) *AttendanceLedger {
	return &AttendanceLedger{store: store, catalog: catalog, newID: newID}
}

// Append stores rec in the bucket of its month.  A second check-in for the
// same class on the same day is rejected, as is a check-in whose time range
// overlaps another class the student already attended that day.  The
// returned reference addresses exactly the stored record.
func (l *AttendanceLedger) Append(ctx context.Context, cal calendar.Calendar, studentID, tenantID string, rec model.AttendanceRecord) (model.RecordRef, error) {
	const op = "attendance.Append"
	if strings.TrimSpace(studentID) == "" || strings.TrimSpace(rec.TemplateID) == "" {
		return model.RecordRef{}, newError(op, ErrInvalidInput, "student id and class template id are required")
	}
	iv, err := calendar.ParseInterval(rec.Snapshot.StartTime, rec.Snapshot.EndTime)
	if err != nil {
		return model.RecordRef{}, wrapError(op, ErrInvalidInput, err, "check-in has an invalid time range")
	}
	day := cal.Day(rec.Date)
	rec.Date = day
	if rec.Status == "" {
		rec.Status = model.AttendancePresent
	}

	bucket, err := l.store.EnsureBucket(ctx, studentID, tenantID, cal.Month(day))
	if err != nil {
		return model.RecordRef{}, err
	}
	for _, r := range bucket.Records {
		if !cal.Day(r.Date).Equal(day) {
			continue
		}
		if r.TemplateID == rec.TemplateID {
			return model.RecordRef{}, newError(op, ErrDuplicateCheckIn,
				"student is already checked in to %s on %s", rec.Snapshot.ClassName, cal.Format(day))
		}
		other, ok := l.recordInterval(ctx, r)
		if ok && iv.Overlaps(other) {
			return model.RecordRef{}, newError(op, ErrScheduleConflict,
				"%s overlaps %s (%s) attended on %s", iv, r.Snapshot.ClassName, other, cal.Format(day))
		}
	}

	if rec.ID == "" {
		rec.ID = l.newID()
	}
	if err := l.store.AppendRecord(ctx, bucket.ID, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.RecordRef{}, newError(op, ErrDuplicateCheckIn,
				"student is already checked in to %s on %s", rec.Snapshot.ClassName, cal.Format(day))
		}
		return model.RecordRef{}, err
	}
	return model.RecordRef{BucketID: bucket.ID, RecordID: rec.ID, Status: rec.Status, Date: day}, nil
}

// recordInterval returns the time range of a stored record.  Old records
// may lack an end time in their snapshot; the live template fills the gap.
func (l *AttendanceLedger) recordInterval(ctx context.Context, r model.AttendanceRecord) (calendar.Interval, bool) {
	end := r.Snapshot.EndTime
	if end == "" {
		tmpl, err := l.catalog.Template(ctx, r.TemplateID)
		if err != nil {
			return calendar.Interval{}, false
		}
		end = tmpl.EndTime
	}
	iv, err := calendar.ParseInterval(r.Snapshot.StartTime, end)
	if err != nil {
		return calendar.Interval{}, false
	}
	return iv, true
}

// Locate finds the student's record for the template dated on or after
// since without changing anything.
func (l *AttendanceLedger) Locate(ctx context.Context, cal calendar.Calendar, studentID, templateID string, since time.Time) (model.RecordRef, error) {
	since = cal.Day(since)
	ref, err := l.store.LocateRecord(ctx, studentID, templateID, cal.Month(since), since)
	if errors.Is(err, repository.ErrNotFound) {
		return model.RecordRef{}, newError("attendance.Locate", ErrRecordNotFound,
			"no check-in found for class %s since %s", templateID, cal.Format(since))
	}
	return ref, err
}

// Revoke removes the student's record for the template dated on or after
// since.  The record is located with a read-only query first and then
// pulled by id.
func (l *AttendanceLedger) Revoke(ctx context.Context, cal calendar.Calendar, studentID, templateID string, since time.Time) (model.RecordRef, error) {
	ref, err := l.Locate(ctx, cal, studentID, templateID, since)
	if err != nil {
		return model.RecordRef{}, err
	}
	if err := l.Pull(ctx, ref); err != nil {
		return model.RecordRef{}, err
	}
	return ref, nil
}

// Pull removes exactly the referenced record.
func (l *AttendanceLedger) Pull(ctx context.Context, ref model.RecordRef) error {
	err := l.store.PullRecord(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return newError("attendance.Pull", ErrRecordNotFound, "check-in %s no longer exists", ref.RecordID)
	}
	return err
}

// CountSince counts present records dated on or after since.
func (l *AttendanceLedger) CountSince(ctx context.Context, cal calendar.Calendar, studentID string, since time.Time) (int, error) {
	since = cal.Day(since)
	return l.store.CountPresentSince(ctx, studentID, cal.Month(since), since)
}

// ListForSession lists the check-ins recorded for template on day.
func (l *AttendanceLedger) ListForSession(ctx context.Context, cal calendar.Calendar, templateID string, day time.Time) ([]model.SessionAttendance, error) {
	day = cal.Day(day)
	return l.store.ListSessionAttendance(ctx, templateID, cal.Month(day), day)
}
