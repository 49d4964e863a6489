package persistence

import (
	"context"
	"net/http"

	"github.com/danmuck/boardsync/internal/protocol/session"
)

// PingResponse is the service health payload.
type PingResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (c *Client) Ping(ctx context.Context) (PingResponse, error) {
	var out PingResponse
	_, err := c.do(ctx, request{method: http.MethodGet, target: "/ping"}, &out)
	return out, err
}

// Register requests a dedicated realtime socket for the bindings.
func (c *Client) Register(ctx context.Context, reg session.Registration) (session.RegistrationResponse, error) {
	if err := reg.Validate(); err != nil {
		return session.RegistrationResponse{}, err
	}
	var out session.RegistrationResponse
	if _, err := c.do(ctx, request{method: http.MethodPost, target: "/registrations", body: reg}, &out); err != nil {
		return session.RegistrationResponse{}, err
	}
	if err := out.Validate(); err != nil {
		return session.RegistrationResponse{}, err
	}
	return out, nil
}

// RegisterShared asks the service to route the binding onto an existing connection.
func (c *Client) RegisterShared(ctx context.Context, reg session.SharedRegistration) (session.BindingDirective, error) {
	reg.Action = session.ActionReplace
	return c.sharedRegistration(ctx, reg)
}

// UnregisterShared removes the binding from the connection it was routed to.
func (c *Client) UnregisterShared(ctx context.Context, reg session.SharedRegistration) (session.BindingDirective, error) {
	reg.Action = session.ActionRemove
	return c.sharedRegistration(ctx, reg)
}

func (c *Client) sharedRegistration(ctx context.Context, reg session.SharedRegistration) (session.BindingDirective, error) {
	if err := reg.Validate(); err != nil {
		return session.BindingDirective{}, err
	}
	var out session.BindingDirective
	if _, err := c.do(ctx, request{method: http.MethodPost, target: "/registrations", body: reg}, &out); err != nil {
		return session.BindingDirective{}, err
	}
	if reg.Action == session.ActionRemove {
		return out, nil
	}
	if err := out.Validate(); err != nil {
		return session.BindingDirective{}, err
	}
	return out, nil
}
