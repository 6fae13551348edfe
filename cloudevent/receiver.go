// Package cloudevent dispatches CloudEvents as actions and answers with a
// CloudEvent carrying the resulting body.
package cloudevent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/protocol"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/google/uuid"

	"archie/pkg"
)

const (
	DefaultTimeout = 5 * time.Second
	// ResultSuffix is appended to the incoming type to form the reply type.
	ResultSuffix = ".result"
	// EventKey holds the CloudEvent attributes inside the action payload.
	EventKey = "event"
	// DataKey holds non-object data, or an object that uses EventKey, inside
	// the action payload.
	DataKey = "data"
)

// Receiver turns each received CloudEvent into one Handle call.
type Receiver struct {
	sys     *pkg.System
	source  string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Receiver
type Option func(r *Receiver)

// WithSource sets the source attribute of reply events.
func WithSource(source string) Option {
	return func(r *Receiver) {
		if source != "" {
			r.source = source
		}
	}
}

// WithTimeout bounds each dispatch. Zero or less keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(r *Receiver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger for failed dispatches
func WithLogger(logger *slog.Logger) Option {
	return func(r *Receiver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReceiver creates a receiver for sys. Replies use "archie/<name>" as
// their source unless WithSource says otherwise.
func NewReceiver(sys *pkg.System, opts ...Option) *Receiver {
	r := &Receiver{
		sys:     sys,
		source:  "archie/" + strings.ReplaceAll(strings.ToLower(sys.Name()), " ", "-"),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Source returns the source attribute used for replies.
func (r *Receiver) Source() string { return r.source }

// Receive dispatches event using its type as the action identifier. The
// signature matches what client.StartReceiver accepts.
func (r *Receiver) Receive(ctx context.Context, event cloudevents.Event) (*cloudevents.Event, protocol.Result) {
	payload, err := PayloadFromEvent(event)
	if err != nil {
		r.logger.WarnContext(ctx, "event rejected", "type", event.Type(), "id", event.ID(), "error", err)
		return nil, protocol.NewReceipt(false, "%v", err)
	}

	rc, err := pkg.MaxTimeToResolve(ctx, r.timeout, func(ctx context.Context) (*pkg.RequestContext, error) {
		return r.sys.Handle(ctx, event.Type(), payload)
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "event failed",
			"system", r.sys.Name(),
			"type", event.Type(),
			"id", event.ID(),
			"error", fmt.Sprintf("%+v", err))
		return nil, protocol.NewReceipt(false, "%s", publicMessage(err))
	}

	reply, err := r.reply(event, rc.Body())
	if err != nil {
		r.logger.ErrorContext(ctx, "reply failed", "type", event.Type(), "id", event.ID(), "error", err)
		return nil, protocol.NewReceipt(false, "%v", err)
	}
	return reply, protocol.ResultACK
}

func (r *Receiver) reply(in cloudevents.Event, body any) (*cloudevents.Event, error) {
	out := cloudevents.NewEvent()
	out.SetID(uuid.NewString())
	out.SetType(in.Type() + ResultSuffix)
	out.SetSource(r.source)
	out.SetTime(time.Now().UTC())
	if in.Subject() != "" {
		out.SetSubject(in.Subject())
	}
	if body != nil {
		if err := out.SetData(cloudevents.ApplicationJSON, body); err != nil {
			return nil, fmt.Errorf("encode reply data: %w", err)
		}
	}
	return &out, nil
}

// PayloadFromEvent builds the action payload for event. JSON object data
// is used as the payload itself; any other data is stored under DataKey.
// The event id, source and subject are added under EventKey. An object
// that already has an EventKey field is stored under DataKey whole, so
// the event metadata never replaces user data.
func PayloadFromEvent(event cloudevents.Event) (map[string]any, error) {
	payload := map[string]any{}

	if data := event.Data(); len(data) > 0 {
		if isJSON(event.DataMediaType()) {
			var decoded any
			if err := json.Unmarshal(data, &decoded); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
			if obj, ok := decoded.(map[string]any); ok && !hasKey(obj, EventKey) {
				payload = obj
			} else {
				payload[DataKey] = decoded
			}
		} else {
			payload[DataKey] = data
		}
	}

	payload[EventKey] = map[string]any{
		"id":      event.ID(),
		"source":  event.Source(),
		"subject": event.Subject(),
	}
	return payload, nil
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func isJSON(mediaType string) bool {
	return mediaType == "" || mediaType == cloudevents.ApplicationJSON || strings.HasSuffix(mediaType, "+json")
}

func publicMessage(err error) string {
	if errors.Is(err, pkg.ErrTimedOut) {
		return pkg.ErrTimedOut.Error()
	}
	return pkg.ReasonInternalError
}

// NewHTTPHandler serves receiver over the CloudEvents HTTP binding.
func NewHTTPHandler(ctx context.Context, receiver *Receiver) (http.Handler, error) {
	p, err := cehttp.New()
	if err != nil {
		return nil, fmt.Errorf("create http protocol: %w", err)
	}
	h, err := cloudevents.NewHTTPReceiveHandler(ctx, p, receiver.Receive)
	if err != nil {
		return nil, fmt.Errorf("create receive handler: %w", err)
	}
	return h, nil
}
