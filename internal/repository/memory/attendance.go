package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository"
)

// EnsureBucket returns the student's bucket for month, creating it on first use.
func (s *Store) EnsureBucket(_ context.Context, studentID, tenantID, month string) (model.AttendanceBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := studentID + "|" + month
	if id, ok := s.bucketKey[key]; ok {
		return copyBucket(s.buckets[id]), nil
	}
	b := &model.AttendanceBucket{
		ID:        uuid.NewString(),
		StudentID: studentID,
		TenantID:  tenantID,
		Month:     month,
		Records:   []model.AttendanceRecord{},
	}
	s.buckets[b.ID] = b
	s.bucketKey[key] = b.ID
	return copyBucket(b), nil
}

func copyBucket(b *model.AttendanceBucket) model.AttendanceBucket {
	out := *b
	out.Records = append([]model.AttendanceRecord(nil), b.Records...)
	return out
}

// AppendRecord adds rec to the bucket and counts it when present.
func (s *Store) AppendRecord(_ context.Context, bucketID string, rec model.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, r := range b.Records {
		if r.ID == rec.ID || (r.TemplateID == rec.TemplateID && r.Date.Equal(rec.Date)) {
			return repository.ErrDuplicate
		}
	}
	rec.Date = rec.Date.UTC()
	b.Records = append(b.Records, rec)
	if rec.Status == model.AttendancePresent {
		b.TotalPresent++
	}
	return nil
}

// studentBuckets returns the student's buckets from sinceMonth on.  Month
// keys sort lexically.  Callers hold the lock.
func (s *Store) studentBuckets(studentID, sinceMonth string) []*model.AttendanceBucket {
	var out []*model.AttendanceBucket
	for _, b := range s.buckets {
		if b.StudentID == studentID && b.Month >= sinceMonth {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// LocateRecord finds the newest record of the template dated on or after since.
func (s *Store) LocateRecord(_ context.Context, studentID, templateID, sinceMonth string, since time.Time) (model.RecordRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		ref    model.RecordRef
		newest time.Time
		found  bool
	)
	for _, b := range s.studentBuckets(studentID, sinceMonth) {
		for _, r := range b.Records {
			if r.TemplateID != templateID || r.Date.Before(since) {
				continue
			}
			if !found || r.Date.After(newest) {
				ref = model.RecordRef{BucketID: b.ID, RecordID: r.ID, Status: r.Status, Date: r.Date}
				newest, found = r.Date, true
			}
		}
	}
	if !found {
		return model.RecordRef{}, repository.ErrNotFound
	}
	return ref, nil
}

// PullRecord removes exactly the referenced record.
func (s *Store) PullRecord(_ context.Context, ref model.RecordRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[ref.BucketID]
	if !ok {
		return repository.ErrNotFound
	}
	for i, r := range b.Records {
		if r.ID != ref.RecordID {
			continue
		}
		b.Records = append(b.Records[:i], b.Records[i+1:]...)
		if r.Status == model.AttendancePresent && b.TotalPresent > 0 {
			b.TotalPresent--
		}
		return nil
	}
	return repository.ErrNotFound
}

// CountPresentSince counts present records dated on or after since.
func (s *Store) CountPresentSince(_ context.Context, studentID, sinceMonth string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.studentBuckets(studentID, sinceMonth) {
		for _, r := range b.Records {
			if r.Status == model.AttendancePresent && !r.Date.Before(since) {
				n++
			}
		}
	}
	return n, nil
}

// ListSessionAttendance lists the records of a template on a day.
func (s *Store) ListSessionAttendance(_ context.Context, templateID, month string, day time.Time) ([]model.SessionAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.SessionAttendance{}
	for _, b := range s.buckets {
		if b.Month != month {
			continue
		}
		for _, r := range b.Records {
			if r.TemplateID == templateID && r.Date.Equal(day) {
				out = append(out, model.SessionAttendance{StudentID: b.StudentID, Record: r})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.RecordedAt.Before(out[j].Record.RecordedAt) })
	return out, nil
}

// Bucket returns a copy of the student's bucket for month.
func (s *Store) Bucket(studentID, month string) (model.AttendanceBucket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bucketKey[studentID+"|"+month]
	if !ok {
		return model.AttendanceBucket{}, false
	}
	return copyBucket(s.buckets[id]), true
}
