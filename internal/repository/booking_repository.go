package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/model"
)

// BookingRepo persists bookings.  (student_id, template_id, booking_date) is
// unique, so a booking row is reused across cancel and re-reserve.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, student_id, tenant_id, template_id, session_id, booking_date, status, start_time, end_time, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	err := row.Scan(&b.ID, &b.StudentID, &b.TenantID, &b.TemplateID, &b.SessionID, &b.Date, &status,
		&b.StartTime, &b.EndTime, &b.CreatedAt, &b.UpdatedAt)
	b.Status = model.BookingStatus(status)
	return b, err
}

// InsertBooking stores a new booking.  A collision on the unique key
// returns ErrDuplicate.
func (r *BookingRepo) InsertBooking(ctx context.Context, b model.Booking) error {
	const q = `INSERT INTO bookings
		(id, student_id, tenant_id, template_id, session_id, booking_date, status, start_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, b.ID, b.StudentID, b.TenantID, b.TemplateID, b.SessionID, b.Date.UTC(),
		string(b.Status), b.StartTime, b.EndTime, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetBooking loads a booking by id.
func (r *BookingRepo) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	return b, notFound(err)
}

// FindBooking loads the booking of a student for a template on a day, in
// any status.
func (r *BookingRepo) FindBooking(ctx context.Context, studentID, templateID string, day time.Time) (model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE student_id = ? AND template_id = ? AND booking_date = ?`, studentID, templateID, day.UTC()))
	return b, notFound(err)
}

// TransitionBooking is a compare-and-swap on status.
func (r *BookingRepo) TransitionBooking(ctx context.Context, id string, from, to model.BookingStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err := affected(res, err); !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := r.GetBooking(ctx, id); err != nil {
		return err
	}
	return ErrStaleState
}

// ListStudentBookingsOnDay lists every booking of the student on day.
func (r *BookingRepo) ListStudentBookingsOnDay(ctx context.Context, studentID string, day time.Time) ([]model.Booking, error) {
	return r.query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE student_id = ? AND booking_date = ? ORDER BY start_time`, studentID, day.UTC())
}

// ListStudentBookingsFrom lists the student's bookings dated on or after from.
func (r *BookingRepo) ListStudentBookingsFrom(ctx context.Context, studentID string, from time.Time) ([]model.Booking, error) {
	return r.query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE student_id = ? AND booking_date >= ? ORDER BY booking_date, start_time`, studentID, from.UTC())
}

// ListSessionBookings lists the bookings of a template on a day whose status
// is one of statuses.
func (r *BookingRepo) ListSessionBookings(ctx context.Context, templateID string, day time.Time, statuses []model.BookingStatus) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE template_id = ? AND booking_date = ?`
	args := []any{templateID, day.UTC()}
	if len(statuses) > 0 {
		q += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	return r.query(ctx, q+` ORDER BY created_at`, args...)
}

func (r *BookingRepo) query(ctx context.Context, q string, args ...any) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
