package model

import "time"

// Financial statuses reported by the billing system.
const (
	FinancialOK         = "ok"
	FinancialOverdue    = "overdue"
	FinancialDelinquent = "delinquent"
)

// Student is read from the external student catalog.  Only RankState is
// written by this service.
//
// Fields:
//  ID              – primary key identifier.
//  TenantID        – home franchise location.
//  Name            – display name.
//  BirthDate       – optional, needed for minimum-age rules.
//  FinancialStatus – billing standing (ok, overdue, delinquent, ...).
//  JoinedAt        – enrollment date; elapsed-time fallback before any promotion.
//  RankState       – current rank and history.
type Student struct {
	ID              string     `json:"id"`                   // students.id
	TenantID        string     `json:"tenant_id"`            // students.tenant_id
	Name            string     `json:"name"`                 // students.name
	BirthDate       *time.Time `json:"birth_date,omitempty"` // students.birth_date (nullable)
	FinancialStatus string     `json:"financial_status"`     // students.financial_status
	JoinedAt        time.Time  `json:"joined_at"`            // students.joined_at
	RankState       RankState  `json:"rank_state"`           // students.belt, degree, last_promotion_at + promotion_history
}

// AgeOn returns the student's age in whole years on t, or -1 when the birth
// date is unknown.
func (s Student) AgeOn(t time.Time) int {
	if s.BirthDate == nil {
		return -1
	}
	b := s.BirthDate.UTC()
	t = t.UTC()
	age := t.Year() - b.Year()
	if t.Month() < b.Month() || (t.Month() == b.Month() && t.Day() < b.Day()) {
		age--
	}
	return age
}

// Tenant is one franchise location.
type Tenant struct {
	ID       string `json:"id"`       // tenants.id
	Name     string `json:"name"`     // tenants.name
	Timezone string `json:"timezone"` // tenants.timezone (IANA name)
}
