package main

import (
	"context"
	"log/slog"

	"archie/api"
	"archie/pkg"
)

// Actions
const (
	ActionHealthcheck = "HEALTHCHECK"
)

const greetingSchema = `{
	"type": "object",
	"required": ["method", "body"],
	"properties": {
		"method": {"const": "post"},
		"body": {
			"type": "object",
			"required": ["name"],
			"properties": {
				"name": {"type": "string", "minLength": 1}
			}
		}
	}
}`

// newSystem wires the demo actions. Every HTTP path is dispatched as its
// own identifier, so the pattern chains below double as routes.
func newSystem(logger *slog.Logger, metrics *pkg.Metrics, opts ...pkg.Option) *pkg.System {
	opts = append(opts, pkg.WithMiddleware(
		pkg.LoggingMiddleware(logger),
		pkg.MetricsMiddleware(metrics),
	))
	sys := pkg.New(opts...)

	sys.When(ActionHealthcheck).Do(healthcheck)

	sys.BeforeAll().Do(func(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) error {
		logger.DebugContext(ctx, "request trace", "action", action.Type, "id", action.ID)
		return nil
	})

	sys.AfterAll().Do(func(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) error {
		logger.DebugContext(ctx, "request body", "action", action.Type, "id", action.ID, "body", rc.Body())
		return nil
	})

	sys.When("/:foo").
		Where(isMethod("get")).
		Do(func(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) error {
			rc.Set(pkg.BodyKey, map[string]any{"hello": action.Param("foo")})
			return nil
		})

	sys.When("/adam").Do(func(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) error {
		rc.Set(pkg.BodyKey, map[string]any{"hello": "adam", "special": true})
		return nil
	})

	sys.When("/healthcheck").Do(healthcheck)

	sys.When("/metrics").Do(func(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) error {
		rc.Set(pkg.BodyKey, metrics.Stats())
		return nil
	})

	sys.When("/greetings").
		Validate(pkg.MustValidateJSONSchema(greetingSchema)).
		Do(greet)

	return sys
}

func isMethod(method string) pkg.PredicateFunc {
	return func(ctx context.Context, action pkg.Action) (bool, error) {
		p, ok := api.PayloadFrom(action)
		return ok && p.Method == method, nil
	}
}

func healthcheck(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) error {
	rc.Set(pkg.BodyKey, map[string]any{"healthy": true})
	return nil
}

func greet(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) error {
	p, _ := api.PayloadFrom(action)
	body, _ := p.Body.(map[string]any)
	rc.Set(pkg.BodyKey, map[string]any{"greeting": "hello " + body["name"].(string)})
	return nil
}
