package realtime

import (
	"context"
	"time"
)

// OpenOptions carries per-connection settings into Transport.Open.
type OpenOptions struct {
	Token           string
	PingInterval    time.Duration
	PongTimeout     time.Duration
	ForceCloseDelay time.Duration
	// OnMessage receives every inbound frame on the transport's read goroutine.
	OnMessage func(raw []byte)
	// OnClose is called once when an open transport ends for any reason other than Close.
	OnClose func(err error)
}

// Transport is one realtime socket. Open returns once the socket is usable; failures
// wrapping board.ErrAuthorization are never retried.
type Transport interface {
	Open(ctx context.Context, url string, opts OpenOptions) error
	Send(ctx context.Context, v any) error
	Close() error
}

type TransportFactory func() Transport

// SharedTransport is an already-open connection owned by someone else that a board
// may ride instead of opening its own.
type SharedTransport interface {
	Send(ctx context.Context, v any) error
	Subscribe(fn func(raw []byte)) (cancel func())
	URL() string
	ClusterURL() string
}
