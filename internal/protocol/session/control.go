package session

import (
	"errors"
	"fmt"
	"strings"
)

// RegistrationAction is the directive verb carried by binding registrations.
type RegistrationAction string

const (
	ActionAdd     RegistrationAction = "ADD"
	ActionReplace RegistrationAction = "REPLACE"
	ActionRemove  RegistrationAction = "REMOVE"
)

var (
	ErrInvalidRegistration         = errors.New("session: invalid registration")
	ErrInvalidRegistrationResponse = errors.New("session: invalid registration response")
)

// Registration asks the board service to route a set of bindings to a dedicated socket.
type Registration struct {
	Bindings []string `json:"bindings"`
}

func (r Registration) Validate() error {
	if len(r.Bindings) == 0 {
		return fmt.Errorf("%w: missing bindings", ErrInvalidRegistration)
	}
	for i, b := range r.Bindings {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("%w: bindings[%d] empty", ErrInvalidRegistration, i)
		}
	}
	return nil
}

// RegistrationResponse is the dedicated-socket registration result.
type RegistrationResponse struct {
	WebSocketURL string   `json:"webSocketUrl"`
	Bindings     []string `json:"bindings,omitempty"`
}

func (r RegistrationResponse) Validate() error {
	if strings.TrimSpace(r.WebSocketURL) == "" {
		return fmt.Errorf("%w: missing webSocketUrl", ErrInvalidRegistrationResponse)
	}
	return nil
}

// SharedRegistration asks the board service to add or remove a binding on an existing
// (possibly shared) realtime connection.
type SharedRegistration struct {
	ClusterURL   string             `json:"mercuryConnectionServiceClusterUrl,omitempty"`
	WebSocketURL string             `json:"webSocketUrl,omitempty"`
	Binding      string             `json:"binding,omitempty"`
	Bindings     []string           `json:"bindings,omitempty"`
	Action       RegistrationAction `json:"action"`
}

func (r SharedRegistration) Validate() error {
	switch r.Action {
	case ActionReplace:
		if len(r.Bindings) == 0 && strings.TrimSpace(r.Binding) == "" {
			return fmt.Errorf("%w: missing binding", ErrInvalidRegistration)
		}
	case ActionRemove:
		if strings.TrimSpace(r.Binding) == "" {
			return fmt.Errorf("%w: missing binding", ErrInvalidRegistration)
		}
	default:
		return fmt.Errorf("%w: unsupported action %q", ErrInvalidRegistration, r.Action)
	}
	return nil
}

// BindingDirective is the board service's answer to a shared registration.
type BindingDirective struct {
	ClusterURL      string             `json:"mercuryConnectionServiceClusterUrl,omitempty"`
	Binding         string             `json:"binding"`
	WebSocketURL    string             `json:"webSocketUrl"`
	SharedWebSocket bool               `json:"sharedWebSocket"`
	Action          RegistrationAction `json:"action"`
}

func (d BindingDirective) Validate() error {
	if strings.TrimSpace(d.Binding) == "" {
		return fmt.Errorf("%w: missing binding", ErrInvalidRegistrationResponse)
	}
	if d.Action == ActionReplace && !d.SharedWebSocket && strings.TrimSpace(d.WebSocketURL) == "" {
		return fmt.Errorf("%w: dedicated socket requires webSocketUrl", ErrInvalidRegistrationResponse)
	}
	return nil
}
