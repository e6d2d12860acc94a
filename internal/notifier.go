package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/lychee-technology/dynaform"
	"go.uber.org/zap"
)

// ErrNotifierOpen is returned while the notifier circuit breaker is open.
var ErrNotifierOpen = errors.New("notifier circuit breaker is open")

// notify delivers an event and never lets a failure reach the caller.
func notify(ctx context.Context, n dynaform.Notifier, kind dynaform.EventKind, payload map[string]any) {
	if n == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorw("notifier panicked", "kind", kind, "panic", r)
		}
	}()
	if err := n.Notify(ctx, dynaform.ActorFromContext(ctx), kind, payload); err != nil {
		zap.S().Warnw("notification failed", "kind", kind, "error", err)
	}
}

// LogNotifier writes every event to the global zap logger.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, userID string, kind dynaform.EventKind, payload map[string]any) error {
	zap.S().Infow("event", "kind", kind, "user", userID, "payload", payload)
	return nil
}

// MultiNotifier fans an event out to every notifier and joins their errors.
type MultiNotifier []dynaform.Notifier

func (m MultiNotifier) Notify(ctx context.Context, userID string, kind dynaform.EventKind, payload map[string]any) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, userID, kind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GuardedNotifier wraps a notifier with a circuit breaker. Once the breaker
// opens, events are dropped until it closes again; panics are recovered.
type GuardedNotifier struct {
	next    dynaform.Notifier
	breaker *CircuitBreaker
}

func NewGuardedNotifier(next dynaform.Notifier, breaker *CircuitBreaker) *GuardedNotifier {
	return &GuardedNotifier{next: next, breaker: breaker}
}

func (g *GuardedNotifier) Notify(ctx context.Context, userID string, kind dynaform.EventKind, payload map[string]any) (err error) {
	if g == nil || g.next == nil {
		return nil
	}
	if g.breaker.IsOpen() {
		zap.S().Debugw("dropping event while notifier breaker is open", "kind", kind)
		return ErrNotifierOpen
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
		if err != nil {
			g.breaker.RecordFailure()
			return
		}
		g.breaker.RecordSuccess()
	}()

	return g.next.Notify(ctx, userID, kind, payload)
}
