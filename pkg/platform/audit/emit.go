package audit

import (
	"context"
	"fmt"
	"time"
)

// DefaultEmitTimeout bounds best-effort emission from request paths.
const DefaultEmitTimeout = 2 * time.Second

// EmitBounded emits event on a context detached from ctx's cancellation but
// limited to timeout. It returns once timeout elapses even if the publisher
// ignores its context; a non-positive timeout uses DefaultEmitTimeout.
func EmitBounded(ctx context.Context, p Publisher, event Event, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultEmitTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- p.Emit(ctx, event)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("emit audit event: %w", ctx.Err())
	}
}
