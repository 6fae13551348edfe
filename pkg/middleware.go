package pkg

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// DispatchFunc is the signature of a whole dispatch, from action to result.
type DispatchFunc func(ctx context.Context, action Action) (*RequestContext, error)

// Middleware wraps a dispatch with additional behavior
type Middleware func(next DispatchFunc) DispatchFunc

// WithMiddlewares wraps fn so that middlewares[0] sees the dispatch first
// and the result last.
func WithMiddlewares(fn DispatchFunc, middlewares ...Middleware) DispatchFunc {
	for _, mw := range slices.Backward(middlewares) {
		fn = mw(fn)
	}
	return fn
}

// ChainMiddleware folds middlewares into one, keeping their order.
func ChainMiddleware(middlewares ...Middleware) Middleware {
	mws := slices.Clone(middlewares)
	return func(next DispatchFunc) DispatchFunc {
		return WithMiddlewares(next, mws...)
	}
}

// LoggingMiddleware logs the start and outcome of every dispatch.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, action Action) (*RequestContext, error) {
			start := time.Now()
			logger.DebugContext(ctx, "dispatch started",
				"action", action.Type, "actionId", action.ID)

			rc, err := next(ctx, action)

			duration := time.Since(start)
			if err != nil {
				logger.ErrorContext(ctx, "dispatch failed",
					"action", action.Type, "actionId", action.ID,
					"duration", duration, "error", err)
			} else {
				logger.DebugContext(ctx, "dispatch completed",
					"action", action.Type, "actionId", action.ID,
					"duration", duration)
			}

			return rc, err
		}
	}
}

// MetricsMiddleware feeds the outcome of every dispatch to metrics.
func MetricsMiddleware(metrics *Metrics) Middleware {
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, action Action) (rc *RequestContext, err error) {
			defer func(start time.Time) {
				metrics.Observe(ctx, time.Since(start), err)
			}(time.Now())
			return next(ctx, action)
		}
	}
}
