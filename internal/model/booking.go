package model

import "time"

// BookingStatus is the lifecycle state of a reservation.
type BookingStatus string

const (
	BookingReserved  BookingStatus = "reserved"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Active reports whether the booking still holds a seat.
func (s BookingStatus) Active() bool {
	return s == BookingReserved || s == BookingConfirmed
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	return s == BookingReserved || s == BookingConfirmed || s == BookingCancelled
}

// Booking is a student's claim on a seat in a session.  Cancellation flips
// the status; rows are never deleted, so (StudentID, TemplateID, Date) stays
// unique and a later reservation reactivates the same row.
//
// Fields:
//  ID         – primary key identifier.
//  StudentID  – student holding the seat.
//  TenantID   – franchise location.
//  TemplateID – class template booked.
//  SessionID  – materialized session the seat was taken from.
//  Date       – session day, tenant-local midnight in UTC.
//  Status     – reserved, confirmed or cancelled.
//  StartTime  – class start snapshot used for overlap checks.
//  EndTime    – class end snapshot used for overlap checks.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last status change.
type Booking struct {
	ID         string        `json:"id"`          // bookings.id
	StudentID  string        `json:"student_id"`  // bookings.student_id
	TenantID   string        `json:"tenant_id"`   // bookings.tenant_id
	TemplateID string        `json:"template_id"` // bookings.template_id
	SessionID  string        `json:"session_id"`  // bookings.session_id
	Date       time.Time     `json:"date"`        // bookings.booking_date
	Status     BookingStatus `json:"status"`      // bookings.status
	StartTime  string        `json:"start_time"`  // bookings.start_time
	EndTime    string        `json:"end_time"`    // bookings.end_time
	CreatedAt  time.Time     `json:"created_at"`  // bookings.created_at
	UpdatedAt  time.Time     `json:"updated_at"`  // bookings.updated_at
}
