package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/model"
)

// TemplateRepo reads the class_templates table.  Templates are administered
// by the catalog service; this service never writes them.
type TemplateRepo struct {
	db *sql.DB
}

// NewTemplateRepo returns a TemplateRepo bound to db.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `id, tenant_id, name, weekday, start_time, end_time, capacity, audience, teacher_id, teacher_name, active`

func scanTemplate(row interface{ Scan(...any) error }) (model.ClassTemplate, error) {
	var (
		t       model.ClassTemplate
		weekday int
		teacher sql.NullString
	)
	err := row.Scan(&t.ID, &t.TenantID, &t.Name, &weekday, &t.StartTime, &t.EndTime,
		&t.Capacity, &t.Audience, &teacher, &t.TeacherName, &t.Active)
	if err != nil {
		return model.ClassTemplate{}, err
	}
	t.Weekday = time.Weekday(weekday)
	t.TeacherID = teacher.String
	return t, nil
}

// GetTemplate loads a template by id.
func (r *TemplateRepo) GetTemplate(ctx context.Context, id string) (model.ClassTemplate, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM class_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	return t, notFound(err)
}

// ListTemplates lists every template of a tenant ordered by weekday and
// start time.
func (r *TemplateRepo) ListTemplates(ctx context.Context, tenantID string) ([]model.ClassTemplate, error) {
	return r.query(ctx, `SELECT `+templateColumns+` FROM class_templates
		WHERE tenant_id = ? ORDER BY weekday, start_time, id`, tenantID)
}

// FindEquivalentTemplates finds templates describing the same slot as tmpl
// under a different id, as left behind when a template is regenerated.
func (r *TemplateRepo) FindEquivalentTemplates(ctx context.Context, tmpl model.ClassTemplate) ([]model.ClassTemplate, error) {
	return r.query(ctx, `SELECT `+templateColumns+` FROM class_templates
		WHERE tenant_id = ? AND name = ? AND weekday = ? AND start_time = ? AND id <> ?
		ORDER BY id`, tmpl.TenantID, tmpl.Name, int(tmpl.Weekday), tmpl.StartTime, tmpl.ID)
}

func (r *TemplateRepo) query(ctx context.Context, q string, args ...any) ([]model.ClassTemplate, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ClassTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
