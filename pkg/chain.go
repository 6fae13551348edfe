package pkg

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"runtime"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// HandlerFunc performs the work of a chain. It is expected to mutate rc;
// anything it returns other than an error is ignored.
type HandlerFunc func(ctx context.Context, rc *RequestContext, action Action) error

// PredicateFunc is a guard. Returning false skips the rest of the chain
// without an error.
type PredicateFunc func(ctx context.Context, action Action) (bool, error)

// ValidatorFunc decides whether a chain applies to an action. Returning
// false skips the chain, the same way a failing guard does.
type ValidatorFunc func(ctx context.Context, rc *RequestContext, action Action) (bool, error)

type gate int

const (
	gateContinue gate = iota
	gateSkip
)

type namedHandler struct {
	name string
	fn   HandlerFunc
}

// Chain is an ordered pipeline of an optional validator, guards and
// handlers. Chains are created by System.When, BeforeAll and AfterAll and
// configured fluently. A chain must not be modified once the System it
// belongs to has started handling actions.
type Chain struct {
	validator ValidatorFunc
	guards    []PredicateFunc
	handlers  []namedHandler

	logger           *slog.Logger
	requireValidator bool
}

func newChain(o *options) *Chain {
	return &Chain{
		logger:           o.logger,
		requireValidator: o.manualValidation,
	}
}

// Validate sets the chain's validator, replacing any previous one.
func (c *Chain) Validate(fn ValidatorFunc) *Chain {
	c.validator = fn
	return c
}

// Where appends guard predicates, evaluated in order.
func (c *Chain) Where(predicates ...PredicateFunc) *Chain {
	c.guards = append(c.guards, predicates...)
	return c
}

// Do appends handlers, executed in order.
func (c *Chain) Do(handlers ...HandlerFunc) *Chain {
	for _, h := range handlers {
		c.handlers = append(c.handlers, namedHandler{
			name: handlerName(h, len(c.handlers)+1),
			fn:   h,
		})
	}
	return c
}

// DoNamed appends a single handler under an explicit name used by Info.
func (c *Chain) DoNamed(name string, fn HandlerFunc) *Chain {
	c.handlers = append(c.handlers, namedHandler{name: name, fn: fn})
	return c
}

// exec runs validator, guards and handlers. Every failure, including a
// panic, leaves as a single *HandlerExecutionError.
func (c *Chain) exec(ctx context.Context, rc *RequestContext, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerExecutionError{
				Reason: ReasonHandlerFailed,
				Err:    pkgerrors.WithStack(fmt.Errorf("%w: %v", ErrHandlerPanic, r)),
			}
		}
	}()

	g, err := c.admit(ctx, rc, action)
	if err != nil {
		return &HandlerExecutionError{Reason: ReasonHandlerFailed, Err: err}
	}
	if g == gateSkip {
		return nil
	}

	for _, h := range c.handlers {
		if err := h.fn(ctx, rc, action); err != nil {
			return &HandlerExecutionError{Reason: ReasonHandlerFailed, Err: err}
		}
	}
	return nil
}

// admit evaluates the validator and then the guards.
func (c *Chain) admit(ctx context.Context, rc *RequestContext, action Action) (gate, error) {
	if c.validator != nil {
		ok, err := c.validator(ctx, rc, action)
		if err != nil {
			return gateSkip, err
		}
		if !ok {
			return gateSkip, nil
		}
	} else if c.requireValidator {
		c.logger.Warn("chain has no validator",
			"action", action.Type, "actionId", action.ID)
	}

	for _, pred := range c.guards {
		ok, err := pred(ctx, action)
		if err != nil {
			return gateSkip, err
		}
		if !ok {
			return gateSkip, nil
		}
	}
	return gateContinue, nil
}

func (c *Chain) info() ChainInfo {
	names := make([]string, len(c.handlers))
	for i, h := range c.handlers {
		names[i] = h.name
	}
	return ChainInfo{
		Validated: c.validator != nil,
		Guards:    len(c.guards),
		Handlers:  names,
	}
}

var anonymousFunc = regexp.MustCompile(`\.func\d+(\.\d+)*$`)

// handlerName derives a readable name from the function symbol. Closures
// get a positional placeholder. Instantiated generics report "[...]" in
// their symbol, which is dropped.
func handlerName(fn HandlerFunc, pos int) string {
	var name string
	if fn != nil {
		if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
			name = strings.ReplaceAll(f.Name(), "[...]", "")
		}
	}
	if name == "" || anonymousFunc.MatchString(name) {
		return fmt.Sprintf("handler#%d", pos)
	}
	name = strings.TrimSuffix(name, "-fm")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
