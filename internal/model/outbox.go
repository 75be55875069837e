package model

import "time"

// OutboxStatus is the delivery state of an outbox task.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxLeased    OutboxStatus = "leased"
	OutboxSucceeded OutboxStatus = "succeeded"
	OutboxDead      OutboxStatus = "dead"
)

// Outbox task kinds.
const (
	TaskEvaluateEligibility = "eligibility.evaluate"
)

// OutboxTask is a unit of deferred work enqueued by a request and delivered
// at least once by the relay worker.
type OutboxTask struct {
	ID             string       `json:"id"`
	Kind           string       `json:"kind"`
	StudentID      string       `json:"student_id"`
	TenantID       string       `json:"tenant_id"`
	DedupeKey      string       `json:"dedupe_key"`
	Status         OutboxStatus `json:"status"`
	Attempts       int          `json:"attempts"`
	NextAttemptAt  time.Time    `json:"next_attempt_at"`
	LeaseOwner     string       `json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time   `json:"lease_expires_at,omitempty"`
	LastError      string       `json:"last_error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
