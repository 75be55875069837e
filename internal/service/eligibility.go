package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository"
)

// EligibilityEvaluator decides whether a student may be promoted.
type EligibilityEvaluator struct {
	students   StudentDirectory
	ranks      RankStore
	rules      RuleCatalog
	attendance *AttendanceLedger
	cals       *Calendars
	now        func() time.Time
}

// NewEligibilityEvaluator wires an evaluator.
func NewEligibilityEvaluator(students StudentDirectory, ranks RankStore, rules RuleCatalog, attendance *AttendanceLedger, cals *Calendars, now func() time.Time) *EligibilityEvaluator {
	if now == nil {
		now = time.Now
	}
	return &EligibilityEvaluator{
		students:   students,
		ranks:      ranks,
		rules:      rules,
		attendance: attendance,
		cals:       cals,
		now:        now,
	}
}

// Eligibility is the outcome of an evaluation.  NextRank is nil when the
// student already holds the highest configured rank.
type Eligibility struct {
	StudentID    string      `json:"student_id"`
	StudentName  string      `json:"student_name"`
	CurrentRank  model.Rank  `json:"current_rank"`
	NextRank     *model.Rank `json:"next_rank,omitempty"`
	IsEligible   bool        `json:"is_eligible"`
	CountSoFar   int         `json:"count_so_far"`
	Required     int         `json:"required"`
	DaysPassed   int         `json:"days_passed"`
	RequiredDays int         `json:"required_days"`
	AgeOK        bool        `json:"age_ok"`
	MinAge       int         `json:"min_age,omitempty"`
}

// Missing lists the unmet requirements in readable form.
func (e Eligibility) Missing() []string {
	var out []string
	if e.NextRank == nil {
		return []string{"no promotion is configured from " + e.CurrentRank.String()}
	}
	if e.CountSoFar < e.Required {
		out = append(out, pluralize(e.Required-e.CountSoFar, "more class", "more classes"))
	}
	if e.DaysPassed < e.RequiredDays {
		out = append(out, pluralize(e.RequiredDays-e.DaysPassed, "more day", "more days"))
	}
	if !e.AgeOK {
		out = append(out, "minimum age "+strconv.Itoa(e.MinAge))
	}
	return out
}

// CheckEligibility evaluates the student against the rule for their current
// rank.  Classes are counted since the last promotion (or enrollment).  A
// promotion within a belt waits the rule's MinDaysRequired since the last
// promotion; a promotion to a new belt waits the belt's MinTenureDays since
// the student first reached the current belt.
func (e *EligibilityEvaluator) CheckEligibility(ctx context.Context, studentID string) (Eligibility, error) {
	const op = "eligibility.Check"
	if strings.TrimSpace(studentID) == "" {
		return Eligibility{}, newError(op, ErrInvalidInput, "student id is required")
	}
	student, err := e.students.GetStudent(ctx, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		return Eligibility{}, newError(op, ErrNotFound, "student %s not found", studentID)
	}
	if err != nil {
		return Eligibility{}, err
	}
	state := student.RankState
	out := Eligibility{
		StudentID:   student.ID,
		StudentName: student.Name,
		CurrentRank: state.Rank,
		AgeOK:       true,
	}

	rule, err := e.rules.RuleFrom(ctx, state.Rank)
	if errors.Is(err, repository.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return Eligibility{}, err
	}
	next := rule.To
	out.NextRank = &next
	out.Required = rule.ClassesRequired
	out.MinAge = rule.MinAge

	cal, err := e.cals.For(ctx, student.TenantID)
	if err != nil {
		return Eligibility{}, err
	}
	now := e.now()
	today := cal.Day(now)

	since := student.JoinedAt
	if state.LastPromotionDate != nil {
		since = *state.LastPromotionDate
	}
	out.CountSoFar, err = e.attendance.CountSince(ctx, cal, student.ID, since)
	if err != nil {
		return Eligibility{}, err
	}

	anchor := since
	out.RequiredDays = rule.MinDaysRequired
	if !rule.To.SameBelt(rule.From) {
		// A student who never changed belts has held it since enrollment.
		if reached, ok := state.BeltReachedAt(); ok {
			anchor = reached
		} else if !student.JoinedAt.IsZero() {
			anchor = student.JoinedAt
		}
		policy, err := e.rules.BeltPolicy(ctx, state.Rank.Belt)
		switch {
		case err == nil:
			out.RequiredDays = policy.MinTenureDays
		case errors.Is(err, repository.ErrNotFound):
		default:
			return Eligibility{}, err
		}
	}
	if !anchor.IsZero() {
		out.DaysPassed = cal.DaysBetween(anchor, today)
	}

	if rule.MinAge > 0 {
		age := student.AgeOn(now)
		out.AgeOK = age >= rule.MinAge
	}
	out.IsEligible = out.CountSoFar >= out.Required && out.DaysPassed >= out.RequiredDays && out.AgeOK
	return out, nil
}

// PromotionResult reports a promotion.
type PromotionResult struct {
	StudentID  string     `json:"student_id"`
	Before     model.Rank `json:"before"`
	After      model.Rank `json:"after"`
	PromotedAt time.Time  `json:"promoted_at"`
	ApproverID string     `json:"approver_id"`
}

// Promote advances the student one rank.  Eligibility is re-checked first
// and the write only succeeds while the student still holds the evaluated
// rank, so two approvers cannot promote twice.
func (e *EligibilityEvaluator) Promote(ctx context.Context, studentID, approverID string) (PromotionResult, error) {
	const op = "eligibility.Promote"
	if strings.TrimSpace(approverID) == "" {
		return PromotionResult{}, newError(op, ErrInvalidInput, "approver id is required")
	}
	el, err := e.CheckEligibility(ctx, studentID)
	if err != nil {
		return PromotionResult{}, err
	}
	if !el.IsEligible {
		return PromotionResult{}, newError(op, ErrNotEligible, "student is not eligible: %s", strings.Join(el.Missing(), ", "))
	}
	entry := model.PromotionEntry{
		From:       el.CurrentRank,
		To:         *el.NextRank,
		PromotedAt: e.now().UTC(),
		ApproverID: approverID,
	}
	err = e.ranks.ApplyPromotion(ctx, studentID, entry)
	switch {
	case errors.Is(err, repository.ErrStaleState):
		return PromotionResult{}, newError(op, ErrStateTransition, "rank of student %s changed concurrently", studentID)
	case errors.Is(err, repository.ErrNotFound):
		return PromotionResult{}, newError(op, ErrNotFound, "student %s not found", studentID)
	case err != nil:
		return PromotionResult{}, err
	}
	return PromotionResult{
		StudentID:  studentID,
		Before:     entry.From,
		After:      entry.To,
		PromotedAt: entry.PromotedAt,
		ApproverID: approverID,
	}, nil
}

// ListEligible evaluates every student of a tenant and returns the ones
// ready for promotion.
func (e *EligibilityEvaluator) ListEligible(ctx context.Context, tenantID string) ([]Eligibility, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, newError("eligibility.List", ErrInvalidInput, "tenant id is required")
	}
	students, err := e.students.ListStudents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := []Eligibility{}
	for _, s := range students {
		el, err := e.CheckEligibility(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if el.IsEligible {
			out = append(out, el)
		}
	}
	return out, nil
}

// Evaluate checks a student and, when eligible, tells the notifier.  It is
// the entry point of asynchronous evaluations queued after check-ins.
func (e *EligibilityEvaluator) Evaluate(ctx context.Context, studentID string, notifier Notifier) (Eligibility, error) {
	el, err := e.CheckEligibility(ctx, studentID)
	if err != nil {
		return Eligibility{}, err
	}
	if el.IsEligible && notifier != nil {
		if err := notifier.NotifyEligibility(ctx, studentID, *el.NextRank); err != nil {
			return el, err
		}
	}
	return el, nil
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}
