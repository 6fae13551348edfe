// Package pkg implements the action-dispatch pipeline: a System maps action
// identifiers to ordered chains of validators, guards and handlers, runs
// them against a per-dispatch RequestContext and hands that context back.
package pkg

import (
	"context"
	"sync"
)

type entry struct {
	identifier string
	pattern    *pattern
	chains     []*Chain
}

type match struct {
	action Action
	chains []*Chain
}

// System is the registry and dispatcher. Register everything (When,
// BeforeAll, AfterAll, Register, Use) during setup; Handle may then be
// called from any number of goroutines.
type System struct {
	mu   sync.RWMutex
	opts *options

	entries map[string]*entry
	order   []*entry // insertion order, scanned in pattern mode

	preware  []*Chain
	postware []*Chain

	modules map[string]any
}

// New creates a System configured by opts
func New(opts ...Option) *System {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &System{
		opts:    o,
		entries: make(map[string]*entry),
		modules: make(map[string]any),
	}
}

// Name returns the display name of the system.
func (s *System) Name() string { return s.opts.name }

// UsesPatterns reports whether identifiers are matched as patterns.
func (s *System) UsesPatterns() bool { return s.opts.usePattern }

// When registers a new chain for identifier and returns it for
// configuration. Calling When again with the same identifier adds another,
// independent chain that runs after the first.
func (s *System) When(identifier string) *Chain {
	c := newChain(s.opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[identifier]
	if !ok {
		e = &entry{identifier: identifier}
		if s.opts.usePattern {
			e.pattern = compilePattern(identifier)
		}
		s.entries[identifier] = e
		s.order = append(s.order, e)
	}
	e.chains = append(e.chains, c)

	s.opts.logger.Debug("registered chain",
		"system", s.opts.name, "action", identifier, "chains", len(e.chains))
	return c
}

// BeforeAll registers a chain that runs before the matched chains of every
// dispatch.
func (s *System) BeforeAll() *Chain {
	c := newChain(s.opts)

	s.mu.Lock()
	s.preware = append(s.preware, c)
	s.mu.Unlock()

	return c
}

// AfterAll registers a chain that runs after the matched chains of every
// dispatch.
func (s *System) AfterAll() *Chain {
	c := newChain(s.opts)

	s.mu.Lock()
	s.postware = append(s.postware, c)
	s.mu.Unlock()

	return c
}

// Use adds dispatch middleware. The first middleware added is the
// outermost.
func (s *System) Use(mws ...Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.middlewares = append(s.opts.middlewares, mws...)
}

// --- Module registry ---

// Register stores module under name. A later registration under the same
// name wins.
func (s *System) Register(name string, module any) *System {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[name] = module
	return s
}

// Module returns what was last registered under name.
func (s *System) Module(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modules[name]
	return m, ok
}

// ModuleAs returns the module registered under name if it has type T.
func ModuleAs[T any](s *System, name string) (T, bool) {
	var zero T
	m, ok := s.Module(name)
	if !ok {
		return zero, false
	}
	t, ok := m.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// --- Dispatch ---

// Handle dispatches an action of the given type. It runs every BeforeAll
// chain, the chains matching identifier and every AfterAll chain, in
// registration order, and returns the shared context. The first failure
// stops the dispatch and is returned as a *DispatchError.
func (s *System) Handle(ctx context.Context, identifier string, payload any) (*RequestContext, error) {
	s.mu.RLock()
	mws := make([]Middleware, len(s.opts.middlewares))
	copy(mws, s.opts.middlewares)
	s.mu.RUnlock()

	handler := WithMiddlewares(s.dispatch, mws...)
	return handler(ctx, NewAction(identifier, payload))
}

func (s *System) dispatch(ctx context.Context, action Action) (*RequestContext, error) {
	rc := NewRequestContext()

	s.mu.RLock()
	pre, post := s.preware, s.postware
	s.mu.RUnlock()

	fail := func(stage Stage, err error) error {
		return &DispatchError{
			Reason:     ReasonInternalError,
			ActionID:   action.ID,
			ActionType: action.Type,
			Stage:      stage,
			Err:        err,
		}
	}

	for _, c := range pre {
		if err := c.exec(ctx, rc, action); err != nil {
			return nil, fail(StagePre, err)
		}
	}

	for _, m := range s.resolve(action) {
		for _, c := range m.chains {
			if err := c.exec(ctx, rc, m.action); err != nil {
				return nil, fail(StageMatching, err)
			}
		}
	}

	for _, c := range post {
		if err := c.exec(ctx, rc, action); err != nil {
			return nil, fail(StagePost, err)
		}
	}

	return rc, nil
}

// resolve returns the chains to run for action. In exact mode that is at
// most one entry; in pattern mode every matching entry, each with its own
// params.
func (s *System) resolve(action Action) []match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.opts.usePattern {
		e, ok := s.entries[action.Type]
		if !ok {
			return nil
		}
		return []match{{action: action, chains: e.chains}}
	}

	var matches []match
	for _, e := range s.order {
		params, ok := e.pattern.match(action.Type)
		if !ok {
			continue
		}
		matches = append(matches, match{
			action: action.withParams(params),
			chains: e.chains,
		})
	}
	return matches
}
