package pkg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBody(v any) HandlerFunc {
	return func(ctx context.Context, rc *RequestContext, action Action) error {
		rc.Set(BodyKey, v)
		return nil
	}
}

func record(trace *[]string, step string) HandlerFunc {
	return func(ctx context.Context, rc *RequestContext, action Action) error {
		*trace = append(*trace, step)
		return nil
	}
}

func TestHandleRunsHandlersInOrder(t *testing.T) {
	sys := New()

	sys.When("HEALTHCHECK").Do(
		func(ctx context.Context, rc *RequestContext, action Action) error {
			assert.Nil(t, rc.Body(), "there is no old body")
			rc.Set(BodyKey, map[string]any{"healthy": false})
			return nil
		},
		func(ctx context.Context, rc *RequestContext, action Action) error {
			assert.NotNil(t, rc.Body(), "there is an old body")
			rc.Set(BodyKey, map[string]any{"healthy": true})
			return nil
		},
	)

	rc, err := sys.Handle(context.Background(), "HEALTHCHECK", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"healthy": true}, rc.Body())
}

func TestHandleMultipleWhenForSameIdentifier(t *testing.T) {
	sys := New()
	var trace []string

	sys.When("HEALTHCHECK").Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		assert.Nil(t, rc.Body())
		rc.Set(BodyKey, true)
		trace = append(trace, "first")
		return nil
	})
	sys.When("HEALTHCHECK").Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		assert.Equal(t, true, rc.Body())
		trace = append(trace, "second")
		return nil
	})

	_, err := sys.Handle(context.Background(), "HEALTHCHECK", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, trace)
}

func TestHandleBeforeAllRunsFirst(t *testing.T) {
	sys := New()

	sys.When("HEALTHCHECK").Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		assert.Equal(t, 1, rc.Body(), "body is set by preware")
		return nil
	})
	sys.BeforeAll().Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		_, ok := rc.Lookup(BodyKey)
		assert.False(t, ok, "body is not set yet")
		rc.Set(BodyKey, 1)
		return nil
	})

	_, err := sys.Handle(context.Background(), "HEALTHCHECK", nil)
	require.NoError(t, err)
}

func TestHandleAfterAllSeesResult(t *testing.T) {
	sys := New()
	var seen any

	sys.AfterAll().Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		seen = rc.Body()
		assert.Equal(t, "trace", rc.Get("aux"))
		return nil
	})
	sys.When("HEALTHCHECK").Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		assert.NotEqual(t, 1, rc.Body())
		rc.Set(BodyKey, 1)
		rc.Set("aux", "trace")
		return nil
	})

	_, err := sys.Handle(context.Background(), "HEALTHCHECK", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

func TestHandleUnknownIdentifierIsNotAnError(t *testing.T) {
	sys := New()
	var trace []string
	sys.BeforeAll().Do(record(&trace, "pre"))
	sys.AfterAll().Do(record(&trace, "post"))

	rc, err := sys.Handle(context.Background(), "NOPE", nil)
	require.NoError(t, err)
	assert.Nil(t, rc.Body())
	assert.Equal(t, []string{"pre", "post"}, trace)
}

func TestHandleActionMetadata(t *testing.T) {
	sys := New()
	var got []Action
	sys.When("PING").Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		got = append(got, action)
		return nil
	})

	_, err := sys.Handle(context.Background(), "PING", "payload")
	require.NoError(t, err)
	_, err = sys.Handle(context.Background(), "PING", nil)
	require.NoError(t, err)

	require.Len(t, got, 2)
	first := got[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "PING", first.Type)
	assert.Equal(t, "payload", first.Payload)
	assert.False(t, first.Meta.ReceivedAt.IsZero())
	assert.Nil(t, first.Meta.Params)

	assert.NotEmpty(t, got[1].ID)
	assert.NotEqual(t, first.ID, got[1].ID, "every dispatch gets a fresh id")
}

func TestGuardSkipsOnlyItsOwnChain(t *testing.T) {
	sys := New()
	var trace []string

	sys.When("ORDER").
		Where(
			func(ctx context.Context, action Action) (bool, error) {
				trace = append(trace, "guard-1")
				return false, nil
			},
			func(ctx context.Context, action Action) (bool, error) {
				trace = append(trace, "guard-2")
				return true, nil
			},
		).
		Do(record(&trace, "skipped-handler"))
	sys.When("ORDER").Do(record(&trace, "sibling-handler"))

	_, err := sys.Handle(context.Background(), "ORDER", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"guard-1", "sibling-handler"}, trace)
}

func TestGuardSeesPayload(t *testing.T) {
	sys := New()
	sys.When("ORDER").
		Where(func(ctx context.Context, action Action) (bool, error) {
			p, _ := action.Payload.(map[string]any)
			return p["method"] == "get", nil
		}).
		Do(setBody("matched"))

	rc, err := sys.Handle(context.Background(), "ORDER", map[string]any{"method": "post"})
	require.NoError(t, err)
	assert.Nil(t, rc.Body())

	rc, err = sys.Handle(context.Background(), "ORDER", map[string]any{"method": "get"})
	require.NoError(t, err)
	assert.Equal(t, "matched", rc.Body())
}

func TestHandlerErrorIsWrappedTwice(t *testing.T) {
	sys := New()
	boom := errors.New("boom")
	var trace []string

	sys.BeforeAll().Do(record(&trace, "pre"))
	sys.When("FAIL").Do(
		func(ctx context.Context, rc *RequestContext, action Action) error {
			rc.Set(BodyKey, "partial")
			return boom
		},
		record(&trace, "after-failure"),
	)
	sys.When("FAIL").Do(record(&trace, "second-chain"))
	sys.AfterAll().Do(record(&trace, "post"))

	rc, err := sys.Handle(context.Background(), "FAIL", nil)
	require.Error(t, err)
	assert.Nil(t, rc)
	assert.Equal(t, []string{"pre"}, trace)

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, ReasonInternalError, dispatchErr.Reason)
	assert.Equal(t, "FAIL", dispatchErr.ActionType)
	assert.Equal(t, StageMatching, dispatchErr.Stage)
	assert.NotEmpty(t, dispatchErr.ActionID)

	var handlerErr *HandlerExecutionError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, ReasonHandlerFailed, handlerErr.Reason)
	assert.Same(t, boom, handlerErr.Err)
	assert.ErrorIs(t, err, boom)
}

func TestFailureStages(t *testing.T) {
	boom := errors.New("boom")
	fail := func(ctx context.Context, rc *RequestContext, action Action) error { return boom }

	tests := []struct {
		name  string
		setup func(sys *System, trace *[]string)
		stage Stage
		trace []string
	}{
		{
			name: "pre chain failure stops later pre chains",
			setup: func(sys *System, trace *[]string) {
				sys.BeforeAll().Do(fail)
				sys.BeforeAll().Do(record(trace, "pre-2"))
				sys.When("X").Do(record(trace, "x"))
				sys.AfterAll().Do(record(trace, "post"))
			},
			stage: StagePre,
			trace: nil,
		},
		{
			name: "post chain failure stops later post chains",
			setup: func(sys *System, trace *[]string) {
				sys.When("X").Do(record(trace, "x"))
				sys.AfterAll().Do(fail)
				sys.AfterAll().Do(record(trace, "post-2"))
			},
			stage: StagePost,
			trace: []string{"x"},
		},
		{
			name: "guard error fails the chain",
			setup: func(sys *System, trace *[]string) {
				sys.When("X").
					Where(func(ctx context.Context, action Action) (bool, error) { return false, boom }).
					Do(record(trace, "x"))
			},
			stage: StageMatching,
			trace: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := New()
			var trace []string
			tt.setup(sys, &trace)

			_, err := sys.Handle(context.Background(), "X", nil)

			var dispatchErr *DispatchError
			require.ErrorAs(t, err, &dispatchErr)
			assert.Equal(t, tt.stage, dispatchErr.Stage)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.trace, trace)
		})
	}
}

func TestPatternModeRunsEveryMatch(t *testing.T) {
	sys := New(WithPatterns(true))
	var seen []map[string]string

	capture := func(ctx context.Context, rc *RequestContext, action Action) error {
		seen = append(seen, action.Meta.Params)
		return nil
	}
	sys.When("/:foo").Do(capture)
	sys.When("/adam").Do(capture)
	sys.When("/:first/:second").Do(capture)

	_, err := sys.Handle(context.Background(), "/adam", map[string]any{})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, map[string]string{"foo": "adam"}, seen[0])
	assert.Equal(t, map[string]string{}, seen[1])
}

func TestPatternParamsVisibleInHandler(t *testing.T) {
	sys := New(WithPatterns(true))
	sys.When("/:foo").Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		rc.Set(BodyKey, action.Param("foo"))
		return nil
	})

	rc, err := sys.Handle(context.Background(), "/adam", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "adam", rc.Body())
}

func TestPatternModePrePostSeeUnscopedAction(t *testing.T) {
	sys := New(WithPatterns(true))
	var pre, post Action
	sys.BeforeAll().Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		pre = action
		return nil
	})
	sys.AfterAll().Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		post = action
		return nil
	})
	sys.When("/users/:id").Do(setBody("ok"))

	_, err := sys.Handle(context.Background(), "/users/42", nil)
	require.NoError(t, err)
	assert.Nil(t, pre.Meta.Params)
	assert.Nil(t, post.Meta.Params)
	assert.Equal(t, pre.ID, post.ID)
}

func TestExactModeDoesNotInterpretPatterns(t *testing.T) {
	sys := New()
	sys.When("/:foo").Do(setBody("pattern"))

	rc, err := sys.Handle(context.Background(), "/adam", nil)
	require.NoError(t, err)
	assert.Nil(t, rc.Body())

	rc, err = sys.Handle(context.Background(), "/:foo", nil)
	require.NoError(t, err)
	assert.Equal(t, "pattern", rc.Body())
}

func TestModuleRegistry(t *testing.T) {
	sys := New()

	_, ok := sys.Module("db")
	assert.False(t, ok)

	sys.Register("db", "first").Register("db", "second")
	m, ok := sys.Module("db")
	require.True(t, ok)
	assert.Equal(t, "second", m)

	s, ok := ModuleAs[string](sys, "db")
	require.True(t, ok)
	assert.Equal(t, "second", s)

	_, ok = ModuleAs[int](sys, "db")
	assert.False(t, ok)
}

func TestModuleReachableFromHandlerClosure(t *testing.T) {
	sys := New()
	sys.Register("greeting", "hello")
	sys.When("GREET").Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		g, _ := ModuleAs[string](sys, "greeting")
		rc.Set(BodyKey, g)
		return nil
	})

	rc, err := sys.Handle(context.Background(), "GREET", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", rc.Body())
}

func TestConcurrentHandleOwnsContext(t *testing.T) {
	sys := New(WithPatterns(true))
	sys.When("/echo/:value").Do(func(ctx context.Context, rc *RequestContext, action Action) error {
		rc.Set(BodyKey, action.Param("value"))
		return nil
	})

	const n = 50
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			want := string(rune('a' + i%26))
			rc, err := sys.Handle(context.Background(), "/echo/"+want, nil)
			if err == nil && rc.Body() != want {
				err = errors.New("context leaked between dispatches")
			}
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestInfo(t *testing.T) {
	sys := New(WithName("Named System"), WithPatterns(true))
	sys.When("/:foo").Do(namedTestHandler)
	sys.When("/:foo").
		Validate(func(ctx context.Context, rc *RequestContext, action Action) (bool, error) { return true, nil }).
		Where(func(ctx context.Context, action Action) (bool, error) { return true, nil }).
		Do(setBody(1)).
		DoNamed("explicit", setBody(2))
	sys.When("HEALTHCHECK")
	sys.BeforeAll().Do(namedTestHandler)

	info := sys.Info()
	assert.Equal(t, "Named System", info.Name)
	assert.True(t, info.UsesPatterns)
	require.Len(t, info.Actions, 2)

	assert.Equal(t, "/:foo", info.Actions[0].Name)
	require.Len(t, info.Actions[0].Chains, 2)
	assert.Equal(t, ChainInfo{Handlers: []string{"namedTestHandler"}}, info.Actions[0].Chains[0])
	assert.Equal(t, ChainInfo{
		Validated: true,
		Guards:    1,
		Handlers:  []string{"handler#1", "explicit"},
	}, info.Actions[0].Chains[1])

	assert.Equal(t, "HEALTHCHECK", info.Actions[1].Name)
	require.Len(t, info.BeforeAll, 1)
	assert.Empty(t, info.AfterAll)
}

func TestDefaultName(t *testing.T) {
	sys := New()
	assert.Equal(t, "Unknown System", sys.Name())
	assert.False(t, sys.UsesPatterns())
}

func namedTestHandler(ctx context.Context, rc *RequestContext, action Action) error {
	return nil
}
