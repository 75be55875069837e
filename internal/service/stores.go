package service

import (
	"context"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/model"
)

// TemplateStore reads the externally administered class catalog.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (model.ClassTemplate, error)
	ListTemplates(ctx context.Context, tenantID string) ([]model.ClassTemplate, error)
	// FindEquivalentTemplates returns templates with the same tenant, name,
	// weekday and start time as tmpl but a different id.
	FindEquivalentTemplates(ctx context.Context, tmpl model.ClassTemplate) ([]model.ClassTemplate, error)
}

// SessionStore owns the session counters.  InsertSessionIfAbsent and
// IncrementBooked must be atomic in the backing store.
type SessionStore interface {
	// InsertSessionIfAbsent stores s unless a session already exists for
	// (s.TemplateID, s.Date), and returns whichever row is stored.
	InsertSessionIfAbsent(ctx context.Context, s model.ClassSession) (model.ClassSession, error)
	GetSession(ctx context.Context, id string) (model.ClassSession, error)
	FindSession(ctx context.Context, templateID string, day time.Time) (model.ClassSession, error)
	ListSessions(ctx context.Context, templateIDs []string, from, to time.Time) ([]model.ClassSession, error)
	// IncrementBooked adds one seat only while booked_count < capacity and
	// returns repository.ErrSoldOut otherwise.
	IncrementBooked(ctx context.Context, id string) error
	DecrementBooked(ctx context.Context, id string) error
	AdjustCheckedIn(ctx context.Context, id string, delta int) error
}

// BookingStore persists reservations.  (student, template, day) is unique.
type BookingStore interface {
	InsertBooking(ctx context.Context, b model.Booking) error
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	FindBooking(ctx context.Context, studentID, templateID string, day time.Time) (model.Booking, error)
	// TransitionBooking flips the status only when it currently equals from.
	TransitionBooking(ctx context.Context, id string, from, to model.BookingStatus) error
	ListStudentBookingsOnDay(ctx context.Context, studentID string, day time.Time) ([]model.Booking, error)
	ListStudentBookingsFrom(ctx context.Context, studentID string, from time.Time) ([]model.Booking, error)
	ListSessionBookings(ctx context.Context, templateID string, day time.Time, statuses []model.BookingStatus) ([]model.Booking, error)
}

// AttendanceStore persists monthly buckets.  (student, month) is unique, as
// is (bucket, template, day) across records.
type AttendanceStore interface {
	EnsureBucket(ctx context.Context, studentID, tenantID, month string) (model.AttendanceBucket, error)
	// AppendRecord adds rec to the bucket and bumps total_present when the
	// record is present.
	AppendRecord(ctx context.Context, bucketID string, rec model.AttendanceRecord) error
	// LocateRecord is a read-only lookup of the newest record for the
	// student and template dated on or after since.
	LocateRecord(ctx context.Context, studentID, templateID, sinceMonth string, since time.Time) (model.RecordRef, error)
	// PullRecord removes exactly the referenced record and adjusts
	// total_present.
	PullRecord(ctx context.Context, ref model.RecordRef) error
	CountPresentSince(ctx context.Context, studentID, sinceMonth string, since time.Time) (int, error)
	ListSessionAttendance(ctx context.Context, templateID, month string, day time.Time) ([]model.SessionAttendance, error)
}

// StudentDirectory reads the external student catalog.
type StudentDirectory interface {
	GetStudent(ctx context.Context, id string) (model.Student, error)
	ListStudents(ctx context.Context, tenantID string) ([]model.Student, error)
}

// RankStore writes promotions.  ApplyPromotion must only succeed while the
// student still holds entry.From.
type RankStore interface {
	ApplyPromotion(ctx context.Context, studentID string, entry model.PromotionEntry) error
}

// TenantDirectory reads franchise locations.
type TenantDirectory interface {
	GetTenant(ctx context.Context, id string) (model.Tenant, error)
}

// RuleCatalog reads graduation rules.
type RuleCatalog interface {
	RuleFrom(ctx context.Context, from model.Rank) (model.GraduationRule, error)
	BeltPolicy(ctx context.Context, belt string) (model.BeltPolicy, error)
}

// OutboxStore queues deferred work with at-least-once delivery.
type OutboxStore interface {
	// EnqueueTask stores task; a pending task with the same dedupe key
	// makes this a no-op.
	EnqueueTask(ctx context.Context, task model.OutboxTask) error
	LeaseTasks(ctx context.Context, owner string, limit int, now time.Time, ttl time.Duration) ([]model.OutboxTask, error)
	CompleteTask(ctx context.Context, id, owner string, now time.Time) error
	RetryTask(ctx context.Context, id, owner, lastErr string, next time.Time, dead bool) error
}

// Notifier is the external notification sink.
type Notifier interface {
	NotifyEligibility(ctx context.Context, studentID string, nextRank model.Rank) error
}
