package pkg

import "log/slog"

// DefaultName is used when a System is created without WithName.
const DefaultName = "Unknown System"

type options struct {
	name             string
	usePattern       bool
	manualValidation bool
	logger           *slog.Logger
	middlewares      []Middleware
}

// Option configures a System.
type Option func(o *options)

func defaultOptions() *options {
	return &options{
		name:   DefaultName,
		logger: slog.Default(),
	}
}

// WithName sets the display name reported by Info.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithPatterns switches lookup from exact keys to path-style patterns.
func WithPatterns(enabled bool) Option {
	return func(o *options) {
		o.usePattern = enabled
	}
}

// WithManualValidation makes every chain without a validator log a warning
// each time it runs.
func WithManualValidation(enabled bool) Option {
	return func(o *options) {
		o.manualValidation = enabled
	}
}

// WithLogger sets the logger used by the System and its chains.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMiddleware adds dispatch middleware. See System.Use.
func WithMiddleware(mws ...Middleware) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, mws...)
	}
}
