// Package api provides the HTTP adapter that turns requests into actions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"archie/doc"
	"archie/pkg"
)

// Defaults
const (
	DefaultTimeout             = 5 * time.Second
	DefaultIntrospectionPrefix = "/_system"
	DefaultMaxBodyBytes        = 10 << 20
)

// Errors surfaced by the adapter itself
var (
	ErrBadRequest   = errors.New("invalid request body")
	ErrBodyTooLarge = errors.New("request body too large")
)

// Payload is what every dispatched action carries
type Payload struct {
	Method  string            `json:"method"`
	Headers http.Header       `json:"headers"`
	Query   url.Values        `json:"query"`
	Params  map[string]string `json:"params"`
	Body    any               `json:"body"`
}

// PayloadFrom returns the Payload of an action created by the adapter.
func PayloadFrom(action pkg.Action) (Payload, bool) {
	p, ok := action.Payload.(Payload)
	return p, ok
}

type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// --- Options ---

// Option configures an Adapter
type Option func(a *Adapter)

// WithTimeout bounds each dispatch. Zero or less keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger for failed dispatches
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMaxBodyBytes limits the request body read into the payload. Zero or
// less keeps the default.
func WithMaxBodyBytes(n int64) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithIntrospectionPrefix moves the introspection endpoints. An empty
// prefix disables them.
func WithIntrospectionPrefix(prefix string) Option {
	return func(a *Adapter) {
		a.prefix = strings.TrimSuffix(prefix, "/")
	}
}

// --- Adapter ---

// Adapter routes every HTTP request not claimed by another route to a
// System, using the request path as the action identifier.
type Adapter struct {
	sys     *pkg.System
	router  chi.Router
	timeout time.Duration
	logger  *slog.Logger
	prefix  string
	maxBody int64
}

// New creates a new adapter for sys
func New(sys *pkg.System, opts ...Option) *Adapter {
	a := &Adapter{
		sys:     sys,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		prefix:  DefaultIntrospectionPrefix,
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(a)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)

	if a.prefix != "" {
		a.registerIntrospection(r)
	}
	r.HandleFunc("/*", a.dispatch)

	a.router = r
	return a
}

// Router exposes the underlying router so other handlers can be mounted
// next to the catch-all action route.
func (a *Adapter) Router() chi.Router { return a.router }

// Handler returns the adapter as an http.Handler
func (a *Adapter) Handler() http.Handler { return a.router }

func (a *Adapter) dispatch(w http.ResponseWriter, r *http.Request) {
	payload, err := payloadFromRequest(w, r, a.maxBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, envelope{Error: err.Error()})
		return
	}

	identifier := a.identifier(r)
	rc, err := pkg.MaxTimeToResolve(r.Context(), a.timeout, func(ctx context.Context) (*pkg.RequestContext, error) {
		return a.sys.Handle(ctx, identifier, payload)
	})
	if err != nil {
		a.logger.ErrorContext(r.Context(), "request failed",
			"system", a.sys.Name(),
			"method", r.Method,
			"path", r.URL.Path,
			"requestId", middleware.GetReqID(r.Context()),
			"error", fmt.Sprintf("%+v", err))

		status, msg := StatusFor(err)
		writeJSON(w, status, envelope{Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: rc.Body()})
}

// identifier returns the action identifier for r. Pattern systems decode
// their own captures, so they get the escaped path and an encoded "/"
// stays inside its segment. Exact systems get the decoded path.
func (a *Adapter) identifier(r *http.Request) string {
	if a.sys.UsesPatterns() {
		return r.URL.EscapedPath()
	}
	return r.URL.Path
}

// StatusFor maps a dispatch error to an HTTP status and a message that is
// safe to show to clients.
func StatusFor(err error) (int, string) {
	var dispatchErr *pkg.DispatchError
	switch {
	case errors.Is(err, pkg.ErrTimedOut):
		return http.StatusGatewayTimeout, pkg.ErrTimedOut.Error()
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	case errors.Is(err, pkg.ErrValidation):
		return http.StatusBadRequest, pkg.ErrValidation.Error()
	case errors.As(err, &dispatchErr):
		return http.StatusInternalServerError, dispatchErr.Reason
	default:
		return http.StatusInternalServerError, pkg.ReasonInternalError
	}
}

func payloadFromRequest(w http.ResponseWriter, r *http.Request, limit int64) (Payload, error) {
	p := Payload{
		Method:  strings.ToLower(r.Method),
		Headers: r.Header.Clone(),
		Query:   r.URL.Query(),
		Params:  map[string]string{},
	}

	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			// the catch-all wildcard repeats the path
			if key == "*" {
				continue
			}
			p.Params[key] = rctx.URLParams.Values[i]
		}
	}

	if r.Body == nil {
		return p, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return p, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, tooLarge.Limit)
		}
		return p, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if len(data) == 0 {
		return p, nil
	}

	if isJSON(r.Header.Get("Content-Type")) {
		var body any
		if err := json.Unmarshal(data, &body); err != nil {
			return p, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		p.Body = body
		return p, nil
	}

	p.Body = string(data)
	return p, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- Introspection ---

type ResponseInfo struct {
	Body pkg.SystemInfo
}

type ResponseDoc struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

func (a *Adapter) registerIntrospection(r chi.Router) {
	cfg := huma.DefaultConfig(a.sys.Name(), "1.0.0")
	cfg.OpenAPIPath = a.prefix + "/openapi"
	cfg.DocsPath = a.prefix + "/docs"
	cfg.SchemasPath = a.prefix + "/schemas"
	api := humachi.New(r, cfg)

	huma.Register(api, huma.Operation{
		OperationID: "system-info",
		Summary:     "Describe the system",
		Description: "Lists every registered action and its chains",
		Method:      http.MethodGet,
		Path:        a.prefix + "/info",
		Tags:        []string{"System"},
	}, a.info)

	huma.Register(api, huma.Operation{
		OperationID: "system-doc",
		Summary:     "Render the system report",
		Description: "Returns the generated text documentation",
		Method:      http.MethodGet,
		Path:        a.prefix + "/doc",
		Tags:        []string{"System"},
	}, a.doc)
}

// info handles GET {prefix}/info
func (a *Adapter) info(ctx context.Context, _ *struct{}) (*ResponseInfo, error) {
	return &ResponseInfo{Body: a.sys.Info()}, nil
}

// doc handles GET {prefix}/doc
func (a *Adapter) doc(ctx context.Context, _ *struct{}) (*ResponseDoc, error) {
	text, err := doc.New(a.sys).Generate()
	if err != nil {
		return nil, huma.Error500InternalServerError("could not render doc", err)
	}
	return &ResponseDoc{ContentType: "text/markdown; charset=utf-8", Body: []byte(text)}, nil
}
