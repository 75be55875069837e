package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/dojo-schedule/internal/model"
)

// RuleRepo reads graduation_rules and belt_policies.
type RuleRepo struct {
	db *sql.DB
}

// NewRuleRepo returns a RuleRepo bound to db.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

// RuleFrom loads the rule that starts at from.
func (r *RuleRepo) RuleFrom(ctx context.Context, from model.Rank) (model.GraduationRule, error) {
	var g model.GraduationRule
	err := r.db.QueryRowContext(ctx, `SELECT id, from_belt, from_degree, to_belt, to_degree,
			classes_required, min_days_required, min_age
		FROM graduation_rules WHERE from_belt = ? AND from_degree = ?`, from.Belt, from.Degree).
		Scan(&g.ID, &g.From.Belt, &g.From.Degree, &g.To.Belt, &g.To.Degree,
			&g.ClassesRequired, &g.MinDaysRequired, &g.MinAge)
	return g, notFound(err)
}

// BeltPolicy loads the tenure policy of a belt.
func (r *RuleRepo) BeltPolicy(ctx context.Context, belt string) (model.BeltPolicy, error) {
	var p model.BeltPolicy
	err := r.db.QueryRowContext(ctx, `SELECT belt, min_tenure_days FROM belt_policies WHERE belt = ?`, belt).
		Scan(&p.Belt, &p.MinTenureDays)
	return p, notFound(err)
}
