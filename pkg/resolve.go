package pkg

import (
	"context"
	"fmt"
	"time"
)

// DefaultResolveTimeout applies when MaxTimeToResolve gets no timeout.
const DefaultResolveTimeout = time.Minute

// MaxTimeToResolve runs fn and waits at most timeout for it. On expiry it
// returns an error wrapping ErrTimedOut; fn keeps running in the
// background with a cancelled context.
func MaxTimeToResolve[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(tctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w waiting %s", ErrTimedOut, timeout)
	}
}
