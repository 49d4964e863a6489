package realtime

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/boardsync/internal/auth"
	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/codec"
	"github.com/danmuck/boardsync/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// connectAttempt is one in-flight Connect; concurrent callers wait on done.
type connectAttempt struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Manager owns one board realtime connection: either a dedicated transport it opened
// itself or a shared transport it has attached to.
type Manager struct {
	cfg          session.Config
	authz        auth.Authorizer
	newTransport TransportFactory
	metrics      Metrics
	bus          *Bus
	router       *Router
	pending      *session.PendingRequests
	rng          *rand.Rand

	mu          sync.Mutex
	state       State
	url         string
	bindings    []string
	gen         uint64
	attempt     *connectAttempt
	transport   Transport
	bufferSeen  bool
	onlineCh    chan struct{}
	shared      SharedTransport
	unsubscribe func()

	tapMu  sync.RWMutex
	taps   map[int]func(raw []byte)
	nextID int
}

type Option func(*Manager)

func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

func WithURL(url string) Option {
	return func(m *Manager) {
		m.url = strings.TrimSpace(url)
	}
}

func WithBindings(bindings ...string) Option {
	return func(m *Manager) {
		m.bindings = append([]string(nil), bindings...)
	}
}

// NewManager builds a disconnected manager. The codec decrypts routed board events.
func NewManager(cfg session.Config, authz auth.Authorizer, factory TransportFactory, cd *codec.Codec, opts ...Option) *Manager {
	m := &Manager{
		cfg:          cfg.WithDefaults(),
		authz:        authz,
		newTransport: factory,
		metrics:      nopMetrics{},
		bus:          NewBus(),
		pending:      session.NewPendingRequests(),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		onlineCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.router = NewRouter(m.bus, cd, m.pending, m.observeBufferState)
	m.router.metrics = m.metrics
	return m
}

func (m *Manager) Bus() *Bus                           { return m.bus }
func (m *Manager) Router() *Router                     { return m.router }
func (m *Manager) Pending() *session.PendingRequests   { return m.pending }
func (m *Manager) On(topic string, fn Listener) func() { return m.bus.On(topic, fn) }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

func (m *Manager) SetURL(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url = strings.TrimSpace(url)
}

func (m *Manager) Bindings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bindings...)
}

func (m *Manager) SetBindings(bindings []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings = append([]string(nil), bindings...)
}

// Connect opens a dedicated transport at the configured URL. It returns once the
// transport is open; the online event follows the first buffer-state frame. Calls made
// while an attempt is in flight join that attempt.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if a := m.attempt; a != nil {
		m.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.transport != nil {
		m.mu.Unlock()
		return nil
	}
	url := m.url
	if url == "" {
		m.mu.Unlock()
		return ErrMissingURL
	}
	if err := m.cfg.ValidateClientTransport(url); err != nil {
		m.mu.Unlock()
		return err
	}
	actx, cancel := context.WithCancel(ctx)
	m.gen++
	a := &connectAttempt{gen: m.gen, cancel: cancel, done: make(chan struct{})}
	m.attempt = a
	m.state = StateConnecting
	m.bufferSeen = false
	m.onlineCh = make(chan struct{})
	m.mu.Unlock()

	err := m.run(actx, a, url)
	cancel()

	m.mu.Lock()
	if m.attempt == a {
		m.attempt = nil
	}
	if err != nil && m.gen == a.gen {
		m.state = StateDisconnected
	}
	a.err = err
	m.mu.Unlock()
	close(a.done)

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, board.ErrAuthorization):
		result = "unauthorized"
	case errors.Is(err, ErrDisconnected):
		result = "aborted"
	default:
		result = "failed"
	}
	m.metrics.Connect(result)
	return err
}

func (m *Manager) run(ctx context.Context, a *connectAttempt, url string) error {
	for attempt := 1; ; attempt++ {
		err := m.open(ctx, a.gen, url)
		if err == nil {
			return nil
		}
		if !m.current(a.gen) {
			return ErrDisconnected
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, board.ErrAuthorization) {
			log.Error().Str("url", url).Int("attempt", attempt).Err(err).Msg("realtime authorization rejected")
			return err
		}
		m.metrics.ConnectionFailure("transport")
		log.Warn().Str("url", url).Int("attempt", attempt).Err(err).Msg("realtime connect attempt failed")
		if !m.shouldRetry(attempt) {
			return fmt.Errorf("realtime: connect failed after %d attempts: %w", attempt, err)
		}
		m.setState(a.gen, StateConnecting)
		if err := session.SleepBackoff(ctx, m.cfg.Backoff, attempt, m.rng); err != nil {
			if !m.current(a.gen) {
				return ErrDisconnected
			}
			return err
		}
	}
}

func (m *Manager) shouldRetry(attempt int) bool {
	if m.cfg.MaxRetries <= 0 {
		return true
	}
	return attempt < m.cfg.MaxRetries
}

// open performs one connection attempt: token acquisition, then transport open.
func (m *Manager) open(ctx context.Context, gen uint64, url string) error {
	token, err := m.authorize(ctx)
	if err != nil {
		return err
	}
	t := m.newTransport()
	m.setState(gen, StateAwaitingAuth)
	err = t.Open(ctx, url, OpenOptions{
		Token:           token,
		PingInterval:    m.cfg.PingInterval,
		PongTimeout:     m.cfg.PongTimeout,
		ForceCloseDelay: m.cfg.ForceCloseDelay,
		OnMessage:       func(raw []byte) { m.onMessage(gen, raw) },
		OnClose:         func(err error) { m.onClose(gen, t, err) },
	})
	if err != nil {
		_ = t.Close()
		if errors.Is(err, board.ErrAuthorization) || errors.Is(err, board.ErrTransport) {
			return err
		}
		return fmt.Errorf("%w: %v", board.ErrTransport, err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		_ = t.Close()
		return ErrDisconnected
	}
	m.transport = t
	m.state = StateBuffering
	online := m.bufferSeen && m.goOnlineLocked()
	m.mu.Unlock()

	log.Info().Str("url", url).Strs("bindings", m.Bindings()).Msg("realtime transport open")
	if online {
		m.bus.Emit(TopicOnline, Event{Type: TopicOnline})
	} else {
		m.watchBufferState(gen)
	}
	return nil
}

func (m *Manager) authorize(ctx context.Context) (string, error) {
	if m.authz == nil {
		return "", auth.ErrUnauthorized
	}
	token, err := m.authz.Authorization(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, board.ErrAuthorization) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", board.ErrAuthorization, err)
	}
	return token, nil
}

func (m *Manager) watchBufferState(gen uint64) {
	time.AfterFunc(m.cfg.BufferStateTimeout, func() {
		m.mu.Lock()
		stalled := m.gen == gen && m.state == StateBuffering
		m.mu.Unlock()
		if stalled {
			log.Warn().Dur("timeout", m.cfg.BufferStateTimeout).Msg("realtime buffer state not observed")
		}
	})
}

// observeBufferState moves Buffering to Online on the first buffer-state frame of a
// connection. A frame seen before the transport finished opening is remembered.
func (m *Manager) observeBufferState() {
	m.mu.Lock()
	online := false
	switch m.state {
	case StateConnecting, StateAwaitingAuth:
		m.bufferSeen = true
	case StateBuffering:
		if !m.bufferSeen {
			m.bufferSeen = true
			online = m.goOnlineLocked()
		}
	}
	m.mu.Unlock()
	if online {
		m.bus.Emit(TopicOnline, Event{Type: TopicOnline})
	}
}

func (m *Manager) goOnlineLocked() bool {
	if m.state == StateOnline {
		return false
	}
	m.state = StateOnline
	select {
	case <-m.onlineCh:
	default:
		close(m.onlineCh)
	}
	return true
}

func (m *Manager) onMessage(gen uint64, raw []byte) {
	if !m.current(gen) {
		return
	}
	m.tapMu.RLock()
	taps := make([]func([]byte), 0, len(m.taps))
	for _, fn := range m.taps {
		taps = append(taps, fn)
	}
	m.tapMu.RUnlock()
	for _, fn := range taps {
		fn(raw)
	}
	m.router.Route(context.Background(), raw)
}

// Tap receives every raw frame read on the dedicated transport before it is routed.
func (m *Manager) Tap(fn func(raw []byte)) (cancel func()) {
	m.tapMu.Lock()
	if m.taps == nil {
		m.taps = make(map[int]func([]byte))
	}
	id := m.nextID
	m.nextID++
	m.taps[id] = fn
	m.tapMu.Unlock()
	return func() {
		m.tapMu.Lock()
		delete(m.taps, id)
		m.tapMu.Unlock()
	}
}

func (m *Manager) onClose(gen uint64, t Transport, err error) {
	m.mu.Lock()
	if m.gen != gen || m.transport != t {
		m.mu.Unlock()
		return
	}
	m.transport = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	m.pending.FailAll(ErrDisconnected)
	log.Warn().Err(err).Msg("realtime transport closed")
	m.bus.Emit(TopicOffline, Event{Type: TopicOffline, Err: err})
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

func (m *Manager) setState(gen uint64, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen {
		m.state = state
	}
}

// Disconnect closes the dedicated transport, detaches any shared transport and aborts
// any in-flight attempt. It is idempotent and keeps the configured URL and bindings.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.gen++
	a := m.attempt
	t := m.transport
	m.transport = nil
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.shared = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if a != nil {
		a.cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	var err error
	if t != nil {
		err = t.Close()
		log.Info().Msg("realtime transport closed by client")
	}
	m.pending.FailAll(ErrDisconnected)
	return err
}

// WaitOnline blocks until the current connection goes online.
func (m *Manager) WaitOnline(ctx context.Context) error {
	m.mu.Lock()
	ch := m.onlineCh
	idle := m.state == StateDisconnected && m.attempt == nil
	m.mu.Unlock()
	if idle {
		return ErrNotConnected
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AttachShared routes a shared transport's frames through this manager and sends on it.
// No transport is opened; the shared connection is assumed live.
func (m *Manager) AttachShared(st SharedTransport) {
	m.mu.Lock()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.shared = st
	if m.transport == nil && m.attempt == nil {
		m.state = StateOnline
		ready := make(chan struct{})
		close(ready)
		m.onlineCh = ready
	}
	m.mu.Unlock()

	unsubscribe := st.Subscribe(func(raw []byte) {
		m.mu.Lock()
		attached := m.shared == st
		m.mu.Unlock()
		if attached {
			m.router.Route(context.Background(), raw)
		}
	})
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
}

// DetachShared stops using the shared transport without touching it. Requests still
// waiting on the shared transport fail with ErrDisconnected.
func (m *Manager) DetachShared() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	attached := m.shared != nil
	m.unsubscribe = nil
	m.shared = nil
	if m.transport == nil && m.attempt == nil {
		m.state = StateDisconnected
	}
	m.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	if attached {
		m.pending.FailAll(ErrDisconnected)
	}
}

// Send writes v on the dedicated transport, or on the shared one when attached.
func (m *Manager) Send(ctx context.Context, v any) error {
	m.mu.Lock()
	t := m.transport
	st := m.shared
	m.mu.Unlock()
	switch {
	case t != nil:
		return t.Send(ctx, v)
	case st != nil:
		return st.Send(ctx, v)
	default:
		return ErrNotConnected
	}
}
