// Package queue carries eligibility work over RabbitMQ: the outbox relay
// publishes EligibilityRequested, the consumer evaluates the student and
// publishes StudentEligible for the notification side.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Queue names.  Both are durable.
const (
	EligibilityQueue = "attendance.eligibility"
	EligibleQueue    = "graduation.eligible"
)

// EligibilityRequested asks the consumer to re-evaluate a student after a
// check-in.  Delivery is at least once; evaluation is idempotent.
type EligibilityRequested struct {
	TaskID      string `json:"task_id"`
	StudentID   string `json:"student_id"`
	TenantID    string `json:"tenant_id"`
	RequestedAt string `json:"requested_at"`
}

// StudentEligible tells downstream notifiers that a student may be promoted.
type StudentEligible struct {
	StudentID  string `json:"student_id"`
	NextBelt   string `json:"next_belt"`
	NextDegree int    `json:"next_degree"`
	NotifiedAt string `json:"notified_at"`
}

func timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// decodeRequest parses and validates an EligibilityRequested body.
func decodeRequest(body []byte) (EligibilityRequested, error) {
	var ev EligibilityRequested
	if err := json.Unmarshal(body, &ev); err != nil {
		return EligibilityRequested{}, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.StudentID == "" {
		return EligibilityRequested{}, fmt.Errorf("event %q has no student_id", ev.TaskID)
	}
	return ev, nil
}
