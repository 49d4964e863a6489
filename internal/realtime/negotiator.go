package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var ErrNoPrimary = errors.New("realtime: no primary transport to share")

// Registrar is the board service registration API.
type Registrar interface {
	Register(ctx context.Context, reg session.Registration) (session.RegistrationResponse, error)
	RegisterShared(ctx context.Context, reg session.SharedRegistration) (session.BindingDirective, error)
	UnregisterShared(ctx context.Context, reg session.SharedRegistration) (session.BindingDirective, error)
}

// Negotiator asks the service whether a board's binding can ride the primary
// connection and sets up the manager accordingly.
type Negotiator struct {
	reg     Registrar
	m       *Manager
	primary SharedTransport

	mu        sync.Mutex
	sharing   bool
	dedicated bool
	binding   string
}

func NewNegotiator(reg Registrar, m *Manager, primary SharedTransport) *Negotiator {
	return &Negotiator{reg: reg, m: m, primary: primary}
}

// IsSharing reports whether the board currently rides the primary connection.
func (n *Negotiator) IsSharing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sharing
}

// ConnectToShared registers the channel binding against the primary connection. A shared
// directive attaches the primary transport; otherwise a dedicated transport is opened
// at the directive's URL.
func (n *Negotiator) ConnectToShared(ctx context.Context, channel board.Channel) (session.BindingDirective, error) {
	if n.primary == nil {
		return session.BindingDirective{}, ErrNoPrimary
	}
	binding := channel.Binding()
	directive, err := n.reg.RegisterShared(ctx, session.SharedRegistration{
		ClusterURL:   n.primary.ClusterURL(),
		WebSocketURL: n.primary.URL(),
		Binding:      binding,
		Action:       session.ActionReplace,
	})
	if err != nil {
		return session.BindingDirective{}, err
	}
	if strings.TrimSpace(directive.Binding) != "" {
		binding = directive.Binding
	}
	n.m.SetBindings([]string{binding})

	if directive.SharedWebSocket {
		n.m.AttachShared(n.primary)
		n.set(binding, true, false)
		log.Info().Str("binding", binding).Msg("board riding shared connection")
		return directive, nil
	}

	n.m.SetURL(directive.WebSocketURL)
	n.set(binding, false, true)
	if err := n.m.Connect(ctx); err != nil {
		return directive, err
	}
	log.Info().Str("binding", binding).Str("url", directive.WebSocketURL).Msg("board using dedicated connection")
	return directive, nil
}

// DisconnectFromShared removes the binding. A dedicated transport is disconnected; the
// shared transport is only detached. Teardown happens even when the removal fails.
func (n *Negotiator) DisconnectFromShared(ctx context.Context) (session.BindingDirective, error) {
	n.mu.Lock()
	binding, dedicated := n.binding, n.dedicated
	n.mu.Unlock()
	if binding == "" {
		if bindings := n.m.Bindings(); len(bindings) > 0 {
			binding = bindings[0]
		}
	}

	reg := session.SharedRegistration{Binding: binding, Action: session.ActionRemove}
	if n.primary != nil {
		reg.ClusterURL = n.primary.ClusterURL()
		reg.WebSocketURL = n.primary.URL()
	}
	directive, err := n.reg.UnregisterShared(ctx, reg)

	if dedicated {
		if cerr := n.m.Disconnect(); cerr != nil && err == nil {
			err = cerr
		}
	} else {
		n.m.DetachShared()
	}
	n.set("", false, false)
	return directive, err
}

// ConnectDedicated registers the channel binding for its own socket and connects it.
func (n *Negotiator) ConnectDedicated(ctx context.Context, channel board.Channel) (session.RegistrationResponse, error) {
	binding := channel.Binding()
	resp, err := n.reg.Register(ctx, session.Registration{Bindings: []string{binding}})
	if err != nil {
		return session.RegistrationResponse{}, err
	}
	bindings := resp.Bindings
	if len(bindings) == 0 {
		bindings = []string{binding}
	}
	n.m.SetURL(resp.WebSocketURL)
	n.m.SetBindings(bindings)
	n.set(bindings[0], false, true)
	if err := n.m.Connect(ctx); err != nil {
		return resp, err
	}
	return resp, nil
}

func (n *Negotiator) set(binding string, sharing, dedicated bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.binding = binding
	n.sharing = sharing
	n.dedicated = dedicated
}
