package model

import (
	"fmt"
	"time"
)

// Rank is a belt plus a degree (stripe) within the belt.
type Rank struct {
	Belt   string `json:"belt"`
	Degree int    `json:"degree"`
}

// String renders the rank as "belt/degree".
func (r Rank) String() string { return fmt.Sprintf("%s/%d", r.Belt, r.Degree) }

// SameBelt reports whether both ranks share the top-level belt.
func (r Rank) SameBelt(o Rank) bool { return r.Belt == o.Belt }

// GraduationRule is the requirement to promote from one rank to the next.
// There is at most one rule per From rank.
//
// Fields:
//  ID              – primary key identifier.
//  From            – rank the rule applies to.
//  To              – rank granted on promotion.
//  ClassesRequired – present check-ins needed since the last promotion.
//  MinDaysRequired – days since the last promotion (within-belt promotions).
//  MinAge          – minimum age in years; zero means no limit.
type GraduationRule struct {
	ID              string `json:"id"`                // graduation_rules.id
	From            Rank   `json:"from"`              // graduation_rules.from_belt, from_degree
	To              Rank   `json:"to"`                // graduation_rules.to_belt, to_degree
	ClassesRequired int    `json:"classes_required"`  // graduation_rules.classes_required
	MinDaysRequired int    `json:"min_days_required"` // graduation_rules.min_days_required
	MinAge          int    `json:"min_age"`           // graduation_rules.min_age
}

// BeltPolicy carries the rank-wide minimum tenure on a belt, applied when a
// promotion leaves the belt.
type BeltPolicy struct {
	Belt          string `json:"belt"`            // belt_policies.belt
	MinTenureDays int    `json:"min_tenure_days"` // belt_policies.min_tenure_days
}

// PromotionEntry is one append-only line of promotion history.
type PromotionEntry struct {
	From       Rank      `json:"from"`
	To         Rank      `json:"to"`
	PromotedAt time.Time `json:"promoted_at"`
	ApproverID string    `json:"approver_id"`
}

// RankState is a student's current rank and promotion history.
type RankState struct {
	Rank              Rank             `json:"rank"`
	LastPromotionDate *time.Time       `json:"last_promotion_date,omitempty"`
	History           []PromotionEntry `json:"history"`
}

// BeltReachedAt scans the history for the first time the student reached
// the belt of the current rank.  It returns false when the history has no
// such entry (the student started on this belt).
func (s RankState) BeltReachedAt() (time.Time, bool) {
	var (
		first time.Time
		found bool
	)
	for _, h := range s.History {
		if h.To.Belt != s.Rank.Belt || h.From.Belt == s.Rank.Belt {
			continue
		}
		if !found || h.PromotedAt.Before(first) {
			first, found = h.PromotedAt, true
		}
	}
	return first, found
}
