package realtime

import "context"

// Primary exposes a connected Manager as a SharedTransport so boards can ride it.
type Primary struct {
	m          *Manager
	clusterURL string
}

func NewPrimary(m *Manager, clusterURL string) *Primary {
	return &Primary{m: m, clusterURL: clusterURL}
}

func (p *Primary) Send(ctx context.Context, v any) error { return p.m.Send(ctx, v) }

func (p *Primary) Subscribe(fn func(raw []byte)) (cancel func()) { return p.m.Tap(fn) }

func (p *Primary) URL() string { return p.m.URL() }

func (p *Primary) ClusterURL() string { return p.clusterURL }
