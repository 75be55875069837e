package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/iliyamo/dojo-schedule/internal/model"
)

// StudentRepo reads the student catalog and writes rank changes.  Everything
// else on the students table belongs to the enrollment system.
type StudentRepo struct {
	db *sql.DB
}

// NewStudentRepo returns a StudentRepo bound to db.
func NewStudentRepo(db *sql.DB) *StudentRepo { return &StudentRepo{db: db} }

const studentColumns = `id, tenant_id, name, birth_date, financial_status, joined_at, belt, degree, last_promotion_at`

func scanStudent(row interface{ Scan(...any) error }) (model.Student, error) {
	var (
		s     model.Student
		birth sql.NullTime
		last  sql.NullTime
	)
	err := row.Scan(&s.ID, &s.TenantID, &s.Name, &birth, &s.FinancialStatus, &s.JoinedAt,
		&s.RankState.Rank.Belt, &s.RankState.Rank.Degree, &last)
	if err != nil {
		return model.Student{}, err
	}
	if birth.Valid {
		b := birth.Time
		s.BirthDate = &b
	}
	if last.Valid {
		l := last.Time
		s.RankState.LastPromotionDate = &l
	}
	return s, nil
}

// GetStudent loads a student together with the promotion history.
func (r *StudentRepo) GetStudent(ctx context.Context, id string) (model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id))
	if err != nil {
		return model.Student{}, notFound(err)
	}
	s.RankState.History, err = r.history(ctx, id)
	return s, err
}

// ListStudents lists a tenant's students by name, history included.
func (r *StudentRepo) ListStudents(ctx context.Context, tenantID string) ([]model.Student, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students WHERE tenant_id = ? ORDER BY name, id`, tenantID)
	if err != nil {
		return nil, err
	}
	out := []model.Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].RankState.History, err = r.history(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *StudentRepo) history(ctx context.Context, studentID string) ([]model.PromotionEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT from_belt, from_degree, to_belt, to_degree, promoted_at, approver_id
		FROM promotion_history WHERE student_id = ? ORDER BY promoted_at, id`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PromotionEntry{}
	for rows.Next() {
		var e model.PromotionEntry
		if err := rows.Scan(&e.From.Belt, &e.From.Degree, &e.To.Belt, &e.To.Degree, &e.PromotedAt, &e.ApproverID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ApplyPromotion moves the student from entry.From to entry.To and appends
// the history line in one transaction.  A student no longer holding
// entry.From yields ErrStaleState.
func (r *StudentRepo) ApplyPromotion(ctx context.Context, studentID string, entry model.PromotionEntry) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE students SET belt = ?, degree = ?, last_promotion_at = ?
			WHERE id = ? AND belt = ? AND degree = ?`,
			entry.To.Belt, entry.To.Degree, entry.PromotedAt.UTC(), studentID, entry.From.Belt, entry.From.Degree)
		if err := affected(res, err); err != nil {
			var one int
			if err := tx.QueryRowContext(ctx, `SELECT 1 FROM students WHERE id = ?`, studentID).Scan(&one); err != nil {
				return notFound(err)
			}
			return ErrStaleState
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO promotion_history
			(id, student_id, from_belt, from_degree, to_belt, to_degree, promoted_at, approver_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), studentID, entry.From.Belt, entry.From.Degree, entry.To.Belt, entry.To.Degree,
			entry.PromotedAt.UTC(), entry.ApproverID)
		return err
	})
}

// TenantRepo reads franchise locations.
type TenantRepo struct {
	db *sql.DB
}

// NewTenantRepo returns a TenantRepo bound to db.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

// GetTenant loads a tenant by id.
func (r *TenantRepo) GetTenant(ctx context.Context, id string) (model.Tenant, error) {
	var t model.Tenant
	err := r.db.QueryRowContext(ctx, `SELECT id, name, timezone FROM tenants WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Timezone)
	return t, notFound(err)
}
