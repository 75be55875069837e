package service

import (
	"context"
	"fmt"
	"log/slog"
)

// Step is one forward action of a saga and the action that undoes it.
// Undo may be nil for steps with nothing to compensate.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Saga runs an ordered list of steps.  When a step fails, the undo actions
// of every step that already completed run in reverse order before Run
// returns, so no reservation is left pending.
type Saga struct {
	name   string
	steps  []Step
	logger *slog.Logger
}

// NewSaga starts an empty saga.
func NewSaga(name string, logger *slog.Logger) *Saga {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saga{name: name, logger: logger}
}

// Step appends a step and returns the saga for chaining.
func (s *Saga) Step(name string, do, undo func(ctx context.Context) error) *Saga {
	s.steps = append(s.steps, Step{Name: name, Do: do, Undo: undo})
	return s
}

// Run executes the steps in order.  The returned error wraps the failing
// step's error so errors.Is and errors.As still see the original kind.
func (s *Saga) Run(ctx context.Context) error {
	for i, st := range s.steps {
		if err := st.Do(ctx); err != nil {
			s.compensate(ctx, i)
			return fmt.Errorf("%s/%s: %w", s.name, st.Name, err)
		}
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, failed int) {
	// Compensation must run even if the request was aborted.
	ctx = context.WithoutCancel(ctx)
	for i := failed - 1; i >= 0; i-- {
		st := s.steps[i]
		if st.Undo == nil {
			continue
		}
		if err := st.Undo(ctx); err != nil {
			s.logger.Error("saga compensation failed",
				slog.String("saga", s.name),
				slog.String("step", st.Name),
				slog.Any("error", err))
		}
	}
}
