package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/model"
)

// SessionRepo persists class_sessions.  The unique key
// uq_session_template_day and the conditional counter updates are what keep
// concurrent requests consistent; there is no application lock.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to db.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `id, template_id, tenant_id, session_date, capacity, start_time, end_time, booked_count, checked_in_count, created_at`

func scanSession(row interface{ Scan(...any) error }) (model.ClassSession, error) {
	var s model.ClassSession
	err := row.Scan(&s.ID, &s.TemplateID, &s.TenantID, &s.Date, &s.Capacity, &s.StartTime, &s.EndTime,
		&s.BookedCount, &s.CheckedInCount, &s.CreatedAt)
	return s, err
}

// InsertSessionIfAbsent inserts s and ignores a collision on
// (template_id, session_date), then reads back whichever row won.
func (r *SessionRepo) InsertSessionIfAbsent(ctx context.Context, s model.ClassSession) (model.ClassSession, error) {
	const q = `INSERT INTO class_sessions
		(id, template_id, tenant_id, session_date, capacity, start_time, end_time, booked_count, checked_in_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0)
		ON DUPLICATE KEY UPDATE id = id`
	if _, err := r.db.ExecContext(ctx, q, s.ID, s.TemplateID, s.TenantID, s.Date.UTC(),
		s.Capacity, s.StartTime, s.EndTime); err != nil {
		return model.ClassSession{}, err
	}
	return r.FindSession(ctx, s.TemplateID, s.Date)
}

// GetSession loads a session by id.
func (r *SessionRepo) GetSession(ctx context.Context, id string) (model.ClassSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM class_sessions WHERE id = ?`, id))
	return s, notFound(err)
}

// FindSession loads the session of a template on a day.
func (r *SessionRepo) FindSession(ctx context.Context, templateID string, day time.Time) (model.ClassSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM class_sessions WHERE template_id = ? AND session_date = ?`,
		templateID, day.UTC()))
	return s, notFound(err)
}

// ListSessions lists the sessions of the given templates between from and
// to inclusive.
func (r *SessionRepo) ListSessions(ctx context.Context, templateIDs []string, from, to time.Time) ([]model.ClassSession, error) {
	if len(templateIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(templateIDs)+2)
	for _, id := range templateIDs {
		args = append(args, id)
	}
	args = append(args, from.UTC(), to.UTC())
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM class_sessions
		WHERE template_id IN (`+placeholders(len(templateIDs))+`) AND session_date BETWEEN ? AND ?
		ORDER BY session_date, start_time`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ClassSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// IncrementBooked takes a seat only while booked_count < capacity.  When no
// row changes it tells a full session apart from a missing one.
func (r *SessionRepo) IncrementBooked(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE class_sessions SET booked_count = booked_count + 1 WHERE id = ? AND booked_count < capacity`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := r.GetSession(ctx, id); err != nil {
		return err
	}
	return ErrSoldOut
}

// DecrementBooked gives a seat back, never below zero.
func (r *SessionRepo) DecrementBooked(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE class_sessions SET booked_count = GREATEST(CAST(booked_count AS SIGNED) - 1, 0) WHERE id = ?`, id); err != nil {
		return err
	}
	_, err := r.GetSession(ctx, id)
	return err
}

// AdjustCheckedIn moves checked_in_count by delta, never below zero.
func (r *SessionRepo) AdjustCheckedIn(ctx context.Context, id string, delta int) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE class_sessions SET checked_in_count = GREATEST(CAST(checked_in_count AS SIGNED) + ?, 0) WHERE id = ?`,
		delta, id); err != nil {
		return err
	}
	_, err := r.GetSession(ctx, id)
	return err
}
