package model

import "time"

// AttendanceStatus is the outcome stored on a check-in record.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceExcused AttendanceStatus = "excused"
)

// CheckInMethod records how a check-in was captured.
type CheckInMethod string

const (
	MethodTeacher CheckInMethod = "teacher"
	MethodQRCode  CheckInMethod = "qr_code"
	MethodKiosk   CheckInMethod = "kiosk"
	MethodAdmin   CheckInMethod = "admin"
)

// Valid reports whether m is a known method.
func (m CheckInMethod) Valid() bool {
	switch m {
	case MethodTeacher, MethodQRCode, MethodKiosk, MethodAdmin:
		return true
	}
	return false
}

// ClassSnapshot copies the template fields a record needs to stay readable
// after the template changes or disappears.  EndTime may be empty on rows
// written before snapshots carried it.
type ClassSnapshot struct {
	ClassName   string `json:"class_name"`
	TeacherName string `json:"teacher_name"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time,omitempty"`
}

// AttendanceRecord is one check-in event.  Records are append-only and are
// only ever removed by an explicit revoke.
//
// Fields:
//  ID         – primary key identifier.
//  Date       – session day, tenant-local midnight in UTC.
//  TemplateID – class template attended.
//  Status     – present or excused; only present counts toward promotion.
//  Method     – capture method.
//  Snapshot   – class name, teacher and times at check-in.
//  RecordedBy – actor who recorded the check-in (optional).
//  RecordedAt – wall-clock time of the check-in.
type AttendanceRecord struct {
	ID         string           `json:"id"`                    // attendance_records.id
	Date       time.Time        `json:"date"`                  // attendance_records.record_date
	TemplateID string           `json:"template_id"`           // attendance_records.template_id
	Status     AttendanceStatus `json:"status"`                // attendance_records.status
	Method     CheckInMethod    `json:"method"`                // attendance_records.method
	Snapshot   ClassSnapshot    `json:"snapshot"`              // attendance_records.class_name, teacher_name, start_time, end_time
	RecordedBy *string          `json:"recorded_by,omitempty"` // attendance_records.recorded_by (nullable)
	RecordedAt time.Time        `json:"recorded_at"`           // attendance_records.recorded_at
}

// AttendanceBucket holds one student's check-ins for one calendar month.
// TotalPresent always equals the number of Present records.
//
// Fields:
//  ID           – primary key identifier.
//  StudentID    – owner of the bucket.
//  TenantID     – franchise location.
//  Month        – "YYYY-MM" in the tenant's calendar.
//  Records      – check-ins of the month in append order.
//  TotalPresent – cached count of present records.
type AttendanceBucket struct {
	ID           string             `json:"id"`            // attendance_buckets.id
	StudentID    string             `json:"student_id"`    // attendance_buckets.student_id
	TenantID     string             `json:"tenant_id"`     // attendance_buckets.tenant_id
	Month        string             `json:"month"`         // attendance_buckets.month
	Records      []AttendanceRecord `json:"records"`       // attendance_records.bucket_id
	TotalPresent int                `json:"total_present"` // attendance_buckets.total_present
}

// CountPresent recomputes the present count from the records.
func (b AttendanceBucket) CountPresent() int {
	n := 0
	for _, r := range b.Records {
		if r.Status == AttendancePresent {
			n++
		}
	}
	return n
}

// RecordRef pinpoints one record inside one bucket.
type RecordRef struct {
	BucketID string
	RecordID string
	Status   AttendanceStatus
	Date     time.Time // local midnight of the class day, in UTC
}

// SessionAttendance is a record paired with the student it belongs to, used
// when listing who attended a given session.
type SessionAttendance struct {
	StudentID string           `json:"student_id"`
	Record    AttendanceRecord `json:"record"`
}
