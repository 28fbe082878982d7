// Package saga runs a fixed sequence of steps and undoes the completed ones,
// newest first, when a later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Step is one forward action with its compensation. Compensate may be nil for
// steps that leave nothing behind.
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga is built once and run once.
type Saga struct {
	name  string
	steps []Step
	log   *zap.Logger
}

func New(name string, log *zap.Logger) *Saga {
	if log == nil {
		log = zap.NewNop()
	}
	return &Saga{name: name, log: log.With(zap.String("saga", name))}
}

// Add appends a step and returns the saga for chaining.
func (s *Saga) Add(name string, action, compensate func(ctx context.Context) error) *Saga {
	s.steps = append(s.steps, Step{Name: name, Action: action, Compensate: compensate})
	return s
}

// Error reports which step failed and what happened during rollback.
type Error struct {
	Saga         string
	Step         string
	Err          error
	RollbackErrs []error
}

func (e *Error) Error() string {
	if len(e.RollbackErrs) == 0 {
		return fmt.Sprintf("%s: step %q failed: %v", e.Saga, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: step %q failed: %v (rollback incomplete: %v)",
		e.Saga, e.Step, e.Err, errors.Join(e.RollbackErrs...))
}

func (e *Error) Unwrap() error { return e.Err }

// RolledBack is true when every compensation succeeded.
func (e *Error) RolledBack() bool { return len(e.RollbackErrs) == 0 }

// Run executes the steps in order. On the first failure it compensates the
// steps that already succeeded in reverse order and returns an *Error.
// Compensations run even if ctx has been cancelled.
func (s *Saga) Run(ctx context.Context) error {
	done := make([]Step, 0, len(s.steps))
	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return s.rollback(ctx, done, step.Name, err)
		}
		if err := step.Action(ctx); err != nil {
			return s.rollback(ctx, done, step.Name, err)
		}
		s.log.Debug("step done", zap.String("step", step.Name))
		done = append(done, step)
	}
	return nil
}

func (s *Saga) rollback(ctx context.Context, done []Step, failed string, cause error) error {
	s.log.Warn("step failed, rolling back",
		zap.String("step", failed),
		zap.Int("completed", len(done)),
		zap.Error(cause),
	)

	rctx := context.WithoutCancel(ctx)
	out := &Error{Saga: s.name, Step: failed, Err: cause}
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(rctx); err != nil {
			s.log.Error("compensation failed", zap.String("step", step.Name), zap.Error(err))
			out.RollbackErrs = append(out.RollbackErrs, fmt.Errorf("undo %s: %w", step.Name, err))
		}
	}
	return out
}
