package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/boardsync/internal/auth"
	"github.com/danmuck/boardsync/internal/codec"
	"github.com/danmuck/boardsync/internal/protocol"
	"github.com/danmuck/boardsync/internal/protocol/session"
	"github.com/danmuck/boardsync/internal/testutil/fakecrypto"
)

const testURL = "ws://board.test/socket"

type fakeTransport struct {
	net  *fakeNet
	url  string
	opts OpenOptions

	mu     sync.Mutex
	sent   []any
	closed int
}

func (t *fakeTransport) Open(ctx context.Context, url string, opts OpenOptions) error {
	t.url = url
	t.opts = opts
	return t.net.open(ctx, t)
}

func (t *fakeTransport) Send(ctx context.Context, v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, v)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *fakeTransport) deliver(frame string) {
	t.opts.OnMessage([]byte(frame))
}

func (t *fakeTransport) frames() []protocol.OutboundFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.OutboundFrame, 0, len(t.sent))
	for _, v := range t.sent {
		if f, ok := v.(protocol.OutboundFrame); ok {
			out = append(out, f)
		}
	}
	return out
}

func (t *fakeTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// fakeNet hands out fakeTransports and scripts their Open behaviour.
type fakeNet struct {
	mu         sync.Mutex
	transports []*fakeTransport
	openErr    error
	block      chan struct{}
	onOpen     func(t *fakeTransport)
	opened     chan struct{}
}

func newFakeNet() *fakeNet {
	return &fakeNet{opened: make(chan struct{}, 16)}
}

func (n *fakeNet) factory() Transport {
	t := &fakeTransport{net: n}
	return t
}

func (n *fakeNet) open(ctx context.Context, t *fakeTransport) error {
	n.mu.Lock()
	n.transports = append(n.transports, t)
	block, openErr, onOpen := n.block, n.openErr, n.onOpen
	n.mu.Unlock()
	select {
	case n.opened <- struct{}{}:
	default:
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if openErr != nil {
		return openErr
	}
	if onOpen != nil {
		onOpen(t)
	}
	return nil
}

func (n *fakeNet) opens() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.transports)
}

func (n *fakeNet) last() *fakeTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.transports) == 0 {
		return nil
	}
	return n.transports[len(n.transports)-1]
}

type fakeMetrics struct {
	mu       sync.Mutex
	failures int
	connects []string
	events   map[string]int
	publish  map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{events: make(map[string]int), publish: make(map[string]int)}
}

func (f *fakeMetrics) ConnectionFailure(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
}

func (f *fakeMetrics) Connect(result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, result)
}

func (f *fakeMetrics) Event(eventType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[eventType]++
}

func (f *fakeMetrics) Publish(contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publish[contentType]++
}

func (f *fakeMetrics) failureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures
}

type counter struct {
	mu     sync.Mutex
	n      int
	events []Event
}

func (c *counter) listener(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	c.events = append(c.events, ev)
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type harness struct {
	net     *fakeNet
	metrics *fakeMetrics
	crypto  *fakecrypto.Encrypter
	codec   *codec.Codec
	m       *Manager
}

func testConfig(maxRetries int) session.Config {
	cfg := session.DefaultConfig()
	cfg.MaxRetries = maxRetries
	cfg.Backoff = session.BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
	return cfg
}

func newHarness(t *testing.T, cfg session.Config, authz auth.Authorizer) *harness {
	t.Helper()
	if authz == nil {
		authz = auth.StaticToken{Token: "token"}
	}
	h := &harness{net: newFakeNet(), metrics: newFakeMetrics(), crypto: fakecrypto.New()}
	h.codec = codec.New(h.crypto, "TEST")
	h.m = NewManager(cfg, authz, h.net.factory, h.codec,
		WithMetrics(h.metrics),
		WithURL(testURL),
		WithBindings("board.session"),
	)
	t.Cleanup(func() { _ = h.m.Disconnect() })
	return h
}

func frameJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":         "evt-1",
		"data":       data,
		"timestamp":  1459194454040,
		"trackingId": "suffix_1",
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return string(raw)
}

func bufferStateFrame(t *testing.T) string {
	return frameJSON(t, map[string]any{"eventType": protocol.EventTypeBufferState})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type fakePrimary struct {
	mu          sync.Mutex
	sent        []any
	subscribers map[int]func([]byte)
	nextID      int
}

func newFakePrimary() *fakePrimary {
	return &fakePrimary{subscribers: make(map[int]func([]byte))}
}

func (p *fakePrimary) Send(ctx context.Context, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, v)
	return nil
}

func (p *fakePrimary) Subscribe(fn func([]byte)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.subscribers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

func (p *fakePrimary) URL() string        { return "wss://primary.test/socket" }
func (p *fakePrimary) ClusterURL() string { return "https://cluster.test/v1" }

func (p *fakePrimary) deliver(raw string) {
	p.mu.Lock()
	subs := make([]func([]byte), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn([]byte(raw))
	}
}

func (p *fakePrimary) subscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

type fakeRegistrar struct {
	mu        sync.Mutex
	shared    bool
	url       string
	shareReqs []session.SharedRegistration
	regs      []session.Registration
}

func (r *fakeRegistrar) Register(ctx context.Context, reg session.Registration) (session.RegistrationResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs = append(r.regs, reg)
	return session.RegistrationResponse{WebSocketURL: r.url, Bindings: reg.Bindings}, nil
}

func (r *fakeRegistrar) RegisterShared(ctx context.Context, reg session.SharedRegistration) (session.BindingDirective, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shareReqs = append(r.shareReqs, reg)
	return session.BindingDirective{
		ClusterURL:      reg.ClusterURL,
		Binding:         reg.Binding,
		WebSocketURL:    r.url,
		SharedWebSocket: r.shared,
		Action:          session.ActionReplace,
	}, nil
}

func (r *fakeRegistrar) UnregisterShared(ctx context.Context, reg session.SharedRegistration) (session.BindingDirective, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shareReqs = append(r.shareReqs, reg)
	return session.BindingDirective{Binding: reg.Binding, WebSocketURL: r.url, Action: session.ActionRemove}, nil
}

func (r *fakeRegistrar) actions() []session.RegistrationAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.RegistrationAction, 0, len(r.shareReqs))
	for _, req := range r.shareReqs {
		out = append(out, req.Action)
	}
	return out
}

func (p *fakePrimary) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}
