package memory

import (
	"context"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository"
)

// EnqueueTask stores task unless a pending task shares its dedupe key.
func (s *Store) EnqueueTask(_ context.Context, task model.OutboxTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.outbox {
		if t.DedupeKey != "" && t.DedupeKey == task.DedupeKey && t.Status == model.OutboxPending {
			return nil
		}
	}
	if task.Status == "" {
		task.Status = model.OutboxPending
	}
	t := task
	s.outbox = append(s.outbox, &t)
	return nil
}

// LeaseTasks claims due pending tasks and tasks whose lease expired, oldest
// first.
func (s *Store) LeaseTasks(_ context.Context, owner string, limit int, now time.Time, ttl time.Duration) ([]model.OutboxTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OutboxTask
	for _, t := range s.outbox {
		if len(out) >= limit {
			break
		}
		due := t.Status == model.OutboxPending && !t.NextAttemptAt.After(now)
		expired := t.Status == model.OutboxLeased && t.LeaseExpiresAt != nil && !t.LeaseExpiresAt.After(now)
		if !due && !expired {
			continue
		}
		exp := now.Add(ttl)
		t.Status = model.OutboxLeased
		t.LeaseOwner = owner
		t.LeaseExpiresAt = &exp
		t.Attempts++
		t.UpdatedAt = now
		out = append(out, *t)
	}
	return out, nil
}

func (s *Store) leased(id, owner string) (*model.OutboxTask, error) {
	for _, t := range s.outbox {
		if t.ID != id {
			continue
		}
		if t.Status != model.OutboxLeased || t.LeaseOwner != owner {
			return nil, repository.ErrStaleState
		}
		return t, nil
	}
	return nil, repository.ErrNotFound
}

// CompleteTask marks a task leased by owner as succeeded.
func (s *Store) CompleteTask(_ context.Context, id, owner string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.leased(id, owner)
	if err != nil {
		return err
	}
	t.Status = model.OutboxSucceeded
	t.LeaseOwner = ""
	t.LeaseExpiresAt = nil
	t.LastError = ""
	t.UpdatedAt = now
	return nil
}

// RetryTask returns a task leased by owner to the queue, or buries it.
func (s *Store) RetryTask(_ context.Context, id, owner, lastErr string, next time.Time, dead bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.leased(id, owner)
	if err != nil {
		return err
	}
	t.Status = model.OutboxPending
	if dead {
		t.Status = model.OutboxDead
	}
	t.LeaseOwner = ""
	t.LeaseExpiresAt = nil
	t.LastError = lastErr
	t.NextAttemptAt = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Tasks returns a snapshot of the outbox.
func (s *Store) Tasks() []model.OutboxTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OutboxTask, 0, len(s.outbox))
	for _, t := range s.outbox {
		out = append(out, *t)
	}
	return out
}
