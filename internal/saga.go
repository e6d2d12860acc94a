package internal

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SagaState is the progress of a schema saga. Metadata and physical schema
// live in different transactions, so each saga records which side has been
// written and how to undo it.
type SagaState string

const (
	SagaPending         SagaState = "PENDING"
	SagaMetadataWritten SagaState = "METADATA_WRITTEN"
	SagaDDLApplied      SagaState = "DDL_APPLIED"
	SagaCommitted       SagaState = "COMMITTED"
	SagaCompensated     SagaState = "COMPENSATED"
)

type compensation struct {
	desc string
	fn   func(ctx context.Context) error
}

// saga runs forward steps in order and, on the first failure, runs the
// compensations of completed steps in reverse.
type saga struct {
	name          string
	state         SagaState
	compensations []compensation
	history       []SagaState
}

func newSaga(name string) *saga {
	return &saga{name: name, state: SagaPending, history: []SagaState{SagaPending}}
}

// State returns the current state.
func (s *saga) State() SagaState { return s.state }

// History returns every state the saga passed through.
func (s *saga) History() []SagaState {
	out := make([]SagaState, len(s.history))
	copy(out, s.history)
	return out
}

func (s *saga) transition(next SagaState) {
	s.state = next
	s.history = append(s.history, next)
}

// Step runs action. On success the saga moves to next and remembers
// compensate (nil when nothing needs undoing). On failure every earlier
// compensation runs and action's error is returned unchanged.
func (s *saga) Step(ctx context.Context, next SagaState, desc string, action, compensate func(ctx context.Context) error) error {
	if s.state == SagaCommitted || s.state == SagaCompensated {
		return fmt.Errorf("saga %s: step %q after %s", s.name, desc, s.state)
	}
	if err := action(ctx); err != nil {
		zap.S().Warnw("saga step failed, compensating", "saga", s.name, "step", desc, "state", s.state, "error", err)
		s.compensate(ctx)
		return err
	}
	if next != s.state {
		s.transition(next)
	}
	if compensate != nil {
		s.compensations = append(s.compensations, compensation{desc: desc, fn: compensate})
	}
	return nil
}

// Commit marks the saga finished; compensations are discarded.
func (s *saga) Commit(ctx context.Context) {
	s.compensations = nil
	s.transition(SagaCommitted)
	EmitSagaOutcome(ctx, s.name, SagaCommitted)
}

func (s *saga) compensate(ctx context.Context) {
	// undo must still run when the caller's context is already cancelled
	ctx = context.WithoutCancel(ctx)
	for i := len(s.compensations) - 1; i >= 0; i-- {
		c := s.compensations[i]
		if err := c.fn(ctx); err != nil {
			zap.S().Errorw("saga compensation failed", "saga", s.name, "step", c.desc, "error", err)
			continue
		}
		zap.S().Infow("saga step compensated", "saga", s.name, "step", c.desc)
	}
	s.compensations = nil
	s.transition(SagaCompensated)
	EmitSagaOutcome(ctx, s.name, SagaCompensated)
}
