package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback to looplab/fsm, which reports
// callback failures through Event.Err.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// IsNoTransition reports whether err only signals that the machine stayed in place.
func IsNoTransition(err error) bool {
	var nt fsm.NoTransitionError
	return errors.As(err, &nt)
}
