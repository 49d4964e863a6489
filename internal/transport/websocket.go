package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/protocol"
	"github.com/danmuck/boardsync/internal/protocol/session"
	"github.com/danmuck/boardsync/internal/realtime"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// CloseUnauthorized and CloseForbidden are the application close codes the service
	// uses to reject a socket's credentials.
	CloseUnauthorized = 4401
	CloseForbidden    = 4403
)

var ErrClosed = errors.New("transport: closed")

// WebSocket is one realtime socket.
type WebSocket struct {
	cfg session.Config

	mu         sync.Mutex
	conn       *websocket.Conn
	closing    bool
	forceClose time.Duration

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func NewWebSocket(cfg session.Config) *WebSocket {
	return &WebSocket{cfg: cfg.WithDefaults(), done: make(chan struct{})}
}

// Factory returns a TransportFactory producing sockets with cfg.
func Factory(cfg session.Config) realtime.TransportFactory {
	return func() realtime.Transport { return NewWebSocket(cfg) }
}

// Open dials socketURL with the bearer token, sends the authorization frame and starts
// the read and keepalive loops.
func (w *WebSocket) Open(ctx context.Context, socketURL string, opts realtime.OpenOptions) error {
	if err := w.cfg.ValidateClientTransport(socketURL); err != nil {
		return err
	}
	u, err := url.Parse(socketURL)
	if err != nil {
		return err
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: w.cfg.ConnectTimeout,
	}
	if u.Scheme == "wss" {
		tlsCfg, err := w.cfg.ClientTLSConfig(u.Hostname())
		if err != nil {
			return err
		}
		dialer.TLSClientConfig = tlsCfg
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+opts.Token)
	header.Set("TrackingID", "boardsync_"+uuid.NewString())

	conn, resp, err := dialer.DialContext(ctx, socketURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: handshake %s", board.ErrAuthorization, resp.Status)
		}
		return fmt.Errorf("%w: dial %s: %v", board.ErrTransport, socketURL, err)
	}
	conn.SetReadLimit(protocol.MaxFrameBytes)

	w.mu.Lock()
	w.conn = conn
	w.forceClose = opts.ForceCloseDelay
	if w.forceClose <= 0 {
		w.forceClose = w.cfg.ForceCloseDelay
	}
	w.mu.Unlock()

	if err := w.write(ctx, protocol.NewAuthorizationFrame(uuid.NewString(), opts.Token)); err != nil {
		w.abandon(conn)
		return fmt.Errorf("%w: authorization frame: %v", board.ErrTransport, err)
	}

	pingInterval, pongTimeout := opts.PingInterval, opts.PongTimeout
	if pingInterval <= 0 {
		pingInterval = w.cfg.PingInterval
	}
	if pongTimeout <= 0 {
		pongTimeout = w.cfg.PongTimeout
	}
	readWindow := pingInterval + pongTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	go w.readLoop(conn, readWindow, opts)
	go w.pingLoop(conn, pingInterval)
	log.Debug().Str("url", socketURL).Msg("websocket open")
	return nil
}

func (w *WebSocket) readLoop(conn *websocket.Conn, readWindow time.Duration, opts realtime.OpenOptions) {
	defer w.finish()
	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			closing := w.closing
			w.mu.Unlock()
			if !closing && opts.OnClose != nil {
				opts.OnClose(classifyClose(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWindow))
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if opts.OnMessage != nil {
			opts.OnMessage(raw)
		}
	}
}

func (w *WebSocket) pingLoop(conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.cfg.WriteTimeout))
			w.writeMu.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		}
	}
}

// abandon drops a connection whose read loop never started, so Close has nothing to wait for.
func (w *WebSocket) abandon(conn *websocket.Conn) {
	w.mu.Lock()
	w.conn = nil
	w.closing = true
	w.mu.Unlock()
	w.finish()
	_ = conn.Close()
}

func (w *WebSocket) finish() {
	w.closeOnce.Do(func() { close(w.done) })
}

func classifyClose(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == CloseUnauthorized || ce.Code == CloseForbidden) {
		return fmt.Errorf("%w: socket closed %d %s", board.ErrAuthorization, ce.Code, ce.Text)
	}
	return fmt.Errorf("%w: %v", board.ErrTransport, err)
}

// Send writes v as one JSON text frame.
func (w *WebSocket) Send(ctx context.Context, v any) error {
	w.mu.Lock()
	closing := w.closing || w.conn == nil
	w.mu.Unlock()
	if closing {
		return ErrClosed
	}
	return w.write(ctx, v)
}

func (w *WebSocket) write(ctx context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	deadline := time.Now().Add(w.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	return conn.WriteMessage(websocket.TextMessage, raw)
}

// Close sends a normal close frame, waits up to the force-close delay for the peer to
// finish, then drops the connection. It is safe to call more than once.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return nil
	}
	w.closing = true
	conn, delay := w.conn, w.forceClose
	w.mu.Unlock()
	if conn == nil {
		w.finish()
		return nil
	}

	w.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(w.cfg.WriteTimeout))
	w.writeMu.Unlock()

	select {
	case <-w.done:
	case <-time.After(delay):
		log.Debug().Dur("delay", delay).Msg("websocket force close")
	}
	w.finish()
	return conn.Close()
}
