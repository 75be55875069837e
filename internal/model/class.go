package model

import "time"

// ClassTemplate is a recurring weekly class slot administered outside this
// service.  Templates are read-only here; a session snapshots the fields it
// needs so later catalog edits do not rewrite history.
//
// Fields:
//  ID          – primary key identifier.
//  TenantID    – franchise location that runs the class.
//  Name        – display name (e.g. "Kids Fundamentals").
//  Weekday     – day of the week the class runs on.
//  StartTime   – local start time, "HH:MM".
//  EndTime     – local end time, "HH:MM" (must be after StartTime).
//  Capacity    – seats per session, always positive.
//  Audience    – audience tag (kids, adults, women, competition).
//  TeacherID   – instructor in charge.
//  TeacherName – instructor display name.
//  Active      – inactive templates are hidden from the schedule.
type ClassTemplate struct {
	ID          string       `json:"id"`           // class_templates.id
	TenantID    string       `json:"tenant_id"`    // class_templates.tenant_id
	Name        string       `json:"name"`         // class_templates.name
	Weekday     time.Weekday `json:"weekday"`      // class_templates.weekday (0=Sunday)
	StartTime   string       `json:"start_time"`   // class_templates.start_time
	EndTime     string       `json:"end_time"`     // class_templates.end_time
	Capacity    int          `json:"capacity"`     // class_templates.capacity
	Audience    string       `json:"audience"`     // class_templates.audience
	TeacherID   string       `json:"teacher_id"`   // class_templates.teacher_id
	TeacherName string       `json:"teacher_name"` // class_templates.teacher_name
	Active      bool         `json:"active"`       // class_templates.active
}

// ClassSession is one dated occurrence of a template and the unit of seat
// accounting.  Exactly one row exists per (TemplateID, Date).
//
// Fields:
//  ID             – primary key identifier.
//  TemplateID     – template this session materializes.
//  TenantID       – copied from the template.
//  Date           – tenant-local midnight expressed in UTC.
//  Capacity       – capacity snapshot taken when the session was created.
//  StartTime      – start time snapshot, "HH:MM".
//  EndTime        – end time snapshot, "HH:MM".
//  BookedCount    – seats currently reserved or confirmed (0..Capacity).
//  CheckedInCount – students checked in, independent of BookedCount.
//  CreatedAt      – creation timestamp.
type ClassSession struct {
	ID             string    `json:"id"`               // class_sessions.id
	TemplateID     string    `json:"template_id"`      // class_sessions.template_id
	TenantID       string    `json:"tenant_id"`        // class_sessions.tenant_id
	Date           time.Time `json:"date"`             // class_sessions.session_date
	Capacity       int       `json:"capacity"`         // class_sessions.capacity
	StartTime      string    `json:"start_time"`       // class_sessions.start_time
	EndTime        string    `json:"end_time"`         // class_sessions.end_time
	BookedCount    int       `json:"booked_count"`     // class_sessions.booked_count
	CheckedInCount int       `json:"checked_in_count"` // class_sessions.checked_in_count
	CreatedAt      time.Time `json:"created_at"`       // class_sessions.created_at
}

// Available returns the number of free seats.
func (s ClassSession) Available() int {
	if n := s.Capacity - s.BookedCount; n > 0 {
		return n
	}
	return 0
}
