package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository"
)

// SessionRegistry materializes sessions on demand and is the only component
// that touches their counters.
type SessionRegistry struct {
	store SessionStore
	newID func() string
}

// NewSessionRegistry returns a registry over store.
func NewSessionRegistry(store SessionStore, newID func() string) *SessionRegistry {
	return &SessionRegistry{store: store, newID: newID}
}

// EnsureSession finds or creates the session of tmpl on day.  Concurrent
// first callers race on the store's unique key and all get the same row.
func (r *SessionRegistry) EnsureSession(ctx context.Context, tmpl model.ClassTemplate, day time.Time) (model.ClassSession, error) {
	s, err := r.store.InsertSessionIfAbsent(ctx, model.ClassSession{
		ID:         r.newID(),
		TemplateID: tmpl.ID,
		TenantID:   tmpl.TenantID,
		Date:       day.UTC(),
		Capacity:   tmpl.Capacity,
		StartTime:  tmpl.StartTime,
		EndTime:    tmpl.EndTime,
	})
	if err != nil {
		return model.ClassSession{}, err
	}
	return s, nil
}

// Find returns the session of template on day, if it was materialized.
func (r *SessionRegistry) Find(ctx context.Context, templateID string, day time.Time) (model.ClassSession, bool, error) {
	s, err := r.store.FindSession(ctx, templateID, day)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ClassSession{}, false, nil
	}
	if err != nil {
		return model.ClassSession{}, false, err
	}
	return s, true, nil
}

// Get loads a session by id.
func (r *SessionRegistry) Get(ctx context.Context, id string) (model.ClassSession, error) {
	s, err := r.store.GetSession(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ClassSession{}, newError("session.Get", ErrNotFound, "session %s not found", id)
	}
	return s, err
}

// ReserveSeat takes one seat if the session is not full.
func (r *SessionRegistry) ReserveSeat(ctx context.Context, sessionID string) error {
	const op = "session.ReserveSeat"
	err := r.store.IncrementBooked(ctx, sessionID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrSoldOut):
		return newError(op, ErrCapacityExceeded, "class is full")
	case errors.Is(err, repository.ErrNotFound):
		return newError(op, ErrNotFound, "session %s not found", sessionID)
	}
	return err
}

// ReleaseSeat gives one seat back.  The counter never drops below zero.
func (r *SessionRegistry) ReleaseSeat(ctx context.Context, sessionID string) error {
	err := r.store.DecrementBooked(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return newError("session.ReleaseSeat", ErrNotFound, "session %s not found", sessionID)
	}
	return err
}

// MarkCheckedIn counts one more attendee.
func (r *SessionRegistry) MarkCheckedIn(ctx context.Context, sessionID string) error {
	return r.adjustCheckedIn(ctx, sessionID, 1)
}

// UnmarkCheckedIn removes one attendee.
func (r *SessionRegistry) UnmarkCheckedIn(ctx context.Context, sessionID string) error {
	return r.adjustCheckedIn(ctx, sessionID, -1)
}

func (r *SessionRegistry) adjustCheckedIn(ctx context.Context, sessionID string, delta int) error {
	err := r.store.AdjustCheckedIn(ctx, sessionID, delta)
	if errors.Is(err, repository.ErrNotFound) {
		return newError("session.AdjustCheckedIn", ErrNotFound, "session %s not found", sessionID)
	}
	return err
}
