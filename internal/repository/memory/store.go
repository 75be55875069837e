// Package memory is an in-process storage driver.  It enforces the same
// unique keys, conditional counter updates and compare-and-swap transitions
// as the MySQL stores, which makes it suitable for tests and for running
// the server without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository"
)

// Store holds every table behind one mutex.
type Store struct {
	mu sync.Mutex

	templates map[string]model.ClassTemplate
	tenants   map[string]model.Tenant
	students  map[string]model.Student
	rules     []model.GraduationRule
	policies  map[string]model.BeltPolicy

	sessions   map[string]model.ClassSession
	sessionKey map[string]string

	bookings   map[string]model.Booking
	bookingKey map[string]string

	buckets   map[string]*model.AttendanceBucket
	bucketKey map[string]string

	outbox []*model.OutboxTask
}

// New returns an empty store.
func New() *Store {
	return &Store{
		templates:  map[string]model.ClassTemplate{},
		tenants:    map[string]model.Tenant{},
		students:   map[string]model.Student{},
		policies:   map[string]model.BeltPolicy{},
		sessions:   map[string]model.ClassSession{},
		sessionKey: map[string]string{},
		bookings:   map[string]model.Booking{},
		bookingKey: map[string]string{},
		buckets:    map[string]*model.AttendanceBucket{},
		bucketKey:  map[string]string{},
	}
}

func dayKey(day time.Time) string { return day.UTC().Format(time.RFC3339) }

// PutTemplate adds or replaces a class template.
func (s *Store) PutTemplate(t model.ClassTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
}

// PutTenant adds or replaces a tenant.
func (s *Store) PutTenant(t model.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

// PutStudent adds or replaces a student.
func (s *Store) PutStudent(st model.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = copyStudent(st)
}

// PutRule adds a graduation rule, replacing the rule with the same From.
func (s *Store) PutRule(r model.GraduationRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].From == r.From {
			s.rules[i] = r
			return
		}
	}
	s.rules = append(s.rules, r)
}

// PutBeltPolicy adds or replaces a belt policy.
func (s *Store) PutBeltPolicy(p model.BeltPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.Belt] = p
}

// Templates

// GetTemplate loads a template by id.
func (s *Store) GetTemplate(_ context.Context, id string) (model.ClassTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return model.ClassTemplate{}, repository.ErrNotFound
	}
	return t, nil
}

// ListTemplates lists the templates of a tenant by weekday and start.
func (s *Store) ListTemplates(_ context.Context, tenantID string) ([]model.ClassTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.ClassTemplate{}
	for _, t := range s.templates {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FindEquivalentTemplates lists the tenant's other templates with the same
// name, weekday and start.
func (s *Store) FindEquivalentTemplates(_ context.Context, tmpl model.ClassTemplate) ([]model.ClassTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ClassTemplate
	for _, t := range s.templates {
		if t.ID != tmpl.ID && t.TenantID == tmpl.TenantID && t.Name == tmpl.Name &&
			t.Weekday == tmpl.Weekday && t.StartTime == tmpl.StartTime {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Sessions

// InsertSessionIfAbsent stores in unless its (template, day) exists and
// returns the stored session either way.
func (s *Store) InsertSessionIfAbsent(_ context.Context, in model.ClassSession) (model.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := in.TemplateID + "|" + dayKey(in.Date)
	if id, ok := s.sessionKey[key]; ok {
		return s.sessions[id], nil
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	in.Date = in.Date.UTC()
	s.sessions[in.ID] = in
	s.sessionKey[key] = in.ID
	return in, nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(_ context.Context, id string) (model.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[id]
	if !ok {
		return model.ClassSession{}, repository.ErrNotFound
	}
	return ss, nil
}

// FindSession loads the session of a template on a day.
func (s *Store) FindSession(_ context.Context, templateID string, day time.Time) (model.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.sessionKey[templateID+"|"+dayKey(day)]
	if !ok {
		return model.ClassSession{}, repository.ErrNotFound
	}
	return s.sessions[id], nil
}

// ListSessions lists sessions of the templates between from and to.
func (s *Store) ListSessions(_ context.Context, templateIDs []string, from, to time.Time) ([]model.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(templateIDs))
	for _, id := range templateIDs {
		want[id] = true
	}
	var out []model.ClassSession
	for _, ss := range s.sessions {
		if want[ss.TemplateID] && !ss.Date.Before(from) && !ss.Date.After(to) {
			out = append(out, ss)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// IncrementBooked takes a seat unless the session is full.
func (s *Store) IncrementBooked(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	if ss.BookedCount >= ss.Capacity {
		return repository.ErrSoldOut
	}
	ss.BookedCount++
	s.sessions[id] = ss
	return nil
}

// DecrementBooked frees a seat, never going below zero.
func (s *Store) DecrementBooked(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	if ss.BookedCount > 0 {
		ss.BookedCount--
	}
	s.sessions[id] = ss
	return nil
}

// AdjustCheckedIn moves the checked-in counter by delta.
func (s *Store) AdjustCheckedIn(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	ss.CheckedInCount = max(ss.CheckedInCount+delta, 0)
	s.sessions[id] = ss
	return nil
}

// Bookings

func bookingKey(studentID, templateID string, day time.Time) string {
	return studentID + "|" + templateID + "|" + dayKey(day)
}

// InsertBooking stores b, rejecting a second booking for the same class and day.
func (s *Store) InsertBooking(_ context.Context, b model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bookingKey(b.StudentID, b.TemplateID, b.Date)
	if _, ok := s.bookingKey[key]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := s.bookings[b.ID]; ok {
		return repository.ErrDuplicate
	}
	b.Date = b.Date.UTC()
	s.bookings[b.ID] = b
	s.bookingKey[key] = b.ID
	return nil
}

// GetBooking loads a booking by id.
func (s *Store) GetBooking(_ context.Context, id string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, repository.ErrNotFound
	}
	return b, nil
}

// FindBooking loads the student's booking for a class and day.
func (s *Store) FindBooking(_ context.Context, studentID, templateID string, day time.Time) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bookingKey[bookingKey(studentID, templateID, day)]
	if !ok {
		return model.Booking{}, repository.ErrNotFound
	}
	return s.bookings[id], nil
}

// TransitionBooking moves a booking from one status to another.
func (s *Store) TransitionBooking(_ context.Context, id string, from, to model.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	if b.Status != from {
		return repository.ErrStaleState
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	s.bookings[id] = b
	return nil
}

// ListStudentBookingsOnDay lists the student's bookings on day.
func (s *Store) ListStudentBookingsOnDay(_ context.Context, studentID string, day time.Time) ([]model.Booking, error) {
	return s.filterBookings(func(b model.Booking) bool {
		return b.StudentID == studentID && b.Date.Equal(day)
	}), nil
}

// ListStudentBookingsFrom lists the student's bookings from a day on.
func (s *Store) ListStudentBookingsFrom(_ context.Context, studentID string, from time.Time) ([]model.Booking, error) {
	return s.filterBookings(func(b model.Booking) bool {
		return b.StudentID == studentID && !b.Date.Before(from)
	}), nil
}

// ListSessionBookings lists a session's bookings in the given statuses.
func (s *Store) ListSessionBookings(_ context.Context, templateID string, day time.Time, statuses []model.BookingStatus) ([]model.Booking, error) {
	want := map[model.BookingStatus]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	return s.filterBookings(func(b model.Booking) bool {
		return b.TemplateID == templateID && b.Date.Equal(day) && (len(want) == 0 || want[b.Status])
	}), nil
}

func (s *Store) filterBookings(keep func(model.Booking) bool) []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Booking{}
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Students, ranks, tenants and rules

func copyStudent(st model.Student) model.Student {
	st.RankState.History = append([]model.PromotionEntry(nil), st.RankState.History...)
	if st.RankState.LastPromotionDate != nil {
		d := *st.RankState.LastPromotionDate
		st.RankState.LastPromotionDate = &d
	}
	return st
}

// GetStudent loads a student by id.
func (s *Store) GetStudent(_ context.Context, id string) (model.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return model.Student{}, repository.ErrNotFound
	}
	return copyStudent(st), nil
}

// ListStudents lists a tenant's students by name.
func (s *Store) ListStudents(_ context.Context, tenantID string) ([]model.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Student{}
	for _, st := range s.students {
		if st.TenantID == tenantID {
			out = append(out, copyStudent(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ApplyPromotion moves the student from entry.From to entry.To.
func (s *Store) ApplyPromotion(_ context.Context, studentID string, entry model.PromotionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return repository.ErrNotFound
	}
	if st.RankState.Rank != entry.From {
		return repository.ErrStaleState
	}
	at := entry.PromotedAt
	st.RankState.Rank = entry.To
	st.RankState.LastPromotionDate = &at
	st.RankState.History = append(st.RankState.History, entry)
	s.students[studentID] = st
	return nil
}

// GetTenant loads a tenant by id.
func (s *Store) GetTenant(_ context.Context, id string) (model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return model.Tenant{}, repository.ErrNotFound
	}
	return t, nil
}

// RuleFrom loads the rule that starts at from.
func (s *Store) RuleFrom(_ context.Context, from model.Rank) (model.GraduationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.From == from {
			return r, nil
		}
	}
	return model.GraduationRule{}, repository.ErrNotFound
}

// BeltPolicy loads the tenure policy of a belt.
func (s *Store) BeltPolicy(_ context.Context, belt string) (model.BeltPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[belt]
	if !ok {
		return model.BeltPolicy{}, repository.ErrNotFound
	}
	return p, nil
}
