package pkg

import (
	"time"

	"github.com/google/uuid"
)

// Meta carries the metadata attached to an action when it is created.
type Meta struct {
	ReceivedAt time.Time         `json:"receivedAt"`
	Params     map[string]string `json:"params,omitempty"`
}

// Action is one dispatch request. Handlers receive it by value and must
// treat it as read-only.
type Action struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	Meta    Meta   `json:"meta"`
}

// NewAction creates a new action with a fresh correlation id
func NewAction(actionType string, payload any) Action {
	return Action{
		ID:      uuid.New().String(),
		Type:    actionType,
		Payload: payload,
		Meta: Meta{
			ReceivedAt: time.Now().UTC(),
		},
	}
}

// Param returns the pattern variable captured under name, or "".
func (a Action) Param(name string) string {
	return a.Meta.Params[name]
}

// withParams returns a copy of the action scoped to one matching pattern.
func (a Action) withParams(params map[string]string) Action {
	a.Meta.Params = params
	return a
}
