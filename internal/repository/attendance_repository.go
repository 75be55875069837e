package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dojo-schedule/internal/model"
)

// AttendanceRepo stores the monthly ledger as attendance_buckets plus their
// attendance_records.  total_present is changed in the same transaction as
// the record it counts.
type AttendanceRepo struct {
	db *sql.DB
}

// NewAttendanceRepo returns an AttendanceRepo bound to db.
func NewAttendanceRepo(db *sql.DB) *AttendanceRepo { return &AttendanceRepo{db: db} }

const recordColumns = `r.id, r.record_date, r.template_id, r.status, r.method, r.class_name, r.teacher_name,
	r.start_time, r.end_time, r.recorded_by, r.recorded_at`

func scanRecord(row interface{ Scan(...any) error }, extra ...any) (model.AttendanceRecord, error) {
	var (
		rec        model.AttendanceRecord
		status     string
		method     string
		endTime    sql.NullString
		recordedBy sql.NullString
	)
	dest := []any{&rec.ID, &rec.Date, &rec.TemplateID, &status, &method, &rec.Snapshot.ClassName,
		&rec.Snapshot.TeacherName, &rec.Snapshot.StartTime, &endTime, &recordedBy, &rec.RecordedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.AttendanceRecord{}, err
	}
	rec.Status = model.AttendanceStatus(status)
	rec.Method = model.CheckInMethod(method)
	rec.Snapshot.EndTime = endTime.String
	if recordedBy.Valid {
		by := recordedBy.String
		rec.RecordedBy = &by
	}
	return rec, nil
}

// EnsureBucket returns the student's bucket for month, creating it on first
// use.  Concurrent creators collide on uq_bucket_student_month and read the
// winner back.
func (r *AttendanceRepo) EnsureBucket(ctx context.Context, studentID, tenantID, month string) (model.AttendanceBucket, error) {
	const ins = `INSERT INTO attendance_buckets (id, student_id, tenant_id, month, total_present)
		VALUES (?, ?, ?, ?, 0) ON DUPLICATE KEY UPDATE id = id`
	if _, err := r.db.ExecContext(ctx, ins, uuid.NewString(), studentID, tenantID, month); err != nil {
		return model.AttendanceBucket{}, err
	}
	var b model.AttendanceBucket
	err := r.db.QueryRowContext(ctx, `SELECT id, student_id, tenant_id, month, total_present
		FROM attendance_buckets WHERE student_id = ? AND month = ?`, studentID, month).
		Scan(&b.ID, &b.StudentID, &b.TenantID, &b.Month, &b.TotalPresent)
	if err != nil {
		return model.AttendanceBucket{}, notFound(err)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM attendance_records r
		WHERE r.bucket_id = ? ORDER BY r.recorded_at, r.id`, b.ID)
	if err != nil {
		return model.AttendanceBucket{}, err
	}
	defer rows.Close()
	b.Records = []model.AttendanceRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return model.AttendanceBucket{}, err
		}
		b.Records = append(b.Records, rec)
	}
	return b, rows.Err()
}

// AppendRecord inserts rec into the bucket and bumps total_present for
// present records.  uq_record_bucket_template_day rejects a second record
// for the same class and day.
func (r *AttendanceRepo) AppendRecord(ctx context.Context, bucketID string, rec model.AttendanceRecord) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var recordedBy sql.NullString
		if rec.RecordedBy != nil {
			recordedBy = nullString(*rec.RecordedBy)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO attendance_records
			(id, bucket_id, record_date, template_id, status, method, class_name, teacher_name, start_time, end_time, recorded_by, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, bucketID, rec.Date.UTC(), rec.TemplateID, string(rec.Status), string(rec.Method),
			rec.Snapshot.ClassName, rec.Snapshot.TeacherName, rec.Snapshot.StartTime, nullString(rec.Snapshot.EndTime),
			recordedBy, rec.RecordedAt.UTC())
		if isDuplicate(err) {
			return ErrDuplicate
		}
		if err != nil {
			return err
		}
		if rec.Status != model.AttendancePresent {
			return nil
		}
		return affected(tx.ExecContext(ctx,
			`UPDATE attendance_buckets SET total_present = total_present + 1 WHERE id = ?`, bucketID))
	})
}

// LocateRecord finds the newest record of the student for the template dated
// on or after since.  It only reads.
func (r *AttendanceRepo) LocateRecord(ctx context.Context, studentID, templateID, sinceMonth string, since time.Time) (model.RecordRef, error) {
	var (
		ref    model.RecordRef
		status string
	)
	err := r.db.QueryRowContext(ctx, `SELECT r.bucket_id, r.id, r.status, r.record_date
		FROM attendance_records r JOIN attendance_buckets b ON b.id = r.bucket_id
		WHERE b.student_id = ? AND b.month >= ? AND r.template_id = ? AND r.record_date >= ?
		ORDER BY r.record_date DESC LIMIT 1`, studentID, sinceMonth, templateID, since.UTC()).
		Scan(&ref.BucketID, &ref.RecordID, &status, &ref.Date)
	if err != nil {
		return model.RecordRef{}, notFound(err)
	}
	ref.Status = model.AttendanceStatus(status)
	return ref, nil
}

// PullRecord deletes exactly the referenced record and keeps total_present
// in step.
func (r *AttendanceRepo) PullRecord(ctx context.Context, ref model.RecordRef) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM attendance_records WHERE id = ? AND bucket_id = ? FOR UPDATE`,
			ref.RecordID, ref.BucketID).Scan(&status)
		if err != nil {
			return notFound(err)
		}
		if err := affected(tx.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = ?`, ref.RecordID)); err != nil {
			return err
		}
		if model.AttendanceStatus(status) != model.AttendancePresent {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE attendance_buckets SET total_present = GREATEST(CAST(total_present AS SIGNED) - 1, 0) WHERE id = ?`, ref.BucketID)
		return err
	})
}

// CountPresentSince counts present records in buckets from sinceMonth on
// dated on or after since.
func (r *AttendanceRepo) CountPresentSince(ctx context.Context, studentID, sinceMonth string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)
		FROM attendance_records r JOIN attendance_buckets b ON b.id = r.bucket_id
		WHERE b.student_id = ? AND b.month >= ? AND r.status = ? AND r.record_date >= ?`,
		studentID, sinceMonth, string(model.AttendancePresent), since.UTC()).Scan(&n)
	return n, err
}

// ListSessionAttendance lists the records of a template on a day together
// with their students.
func (r *AttendanceRepo) ListSessionAttendance(ctx context.Context, templateID, month string, day time.Time) ([]model.SessionAttendance, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+`, b.student_id
		FROM attendance_records r JOIN attendance_buckets b ON b.id = r.bucket_id
		WHERE b.month = ? AND r.template_id = ? AND r.record_date = ?
		ORDER BY r.recorded_at`, month, templateID, day.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SessionAttendance{}
	for rows.Next() {
		var studentID string
		rec, err := scanRecord(rows, &studentID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.SessionAttendance{StudentID: studentID, Record: rec})
	}
	return out, rows.Err()
}
