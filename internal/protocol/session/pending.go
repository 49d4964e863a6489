package session

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/boardsync/internal/protocol"
)

var ErrDuplicateRequest = errors.New("session: duplicate request id")

// PendingRequest tracks one outbound request awaiting its correlated response event.
type PendingRequest struct {
	RequestID  string
	Binding    string
	QueuedAt   time.Time
	DeadlineAt time.Time
}

// RequestResult is delivered exactly once per pending request.
type RequestResult struct {
	Frame protocol.InboundFrame
	Err   error
}

type pendingEntry struct {
	meta PendingRequest
	done chan RequestResult
}

// PendingRequests maps locally generated request ids to waiting callers.
type PendingRequests struct {
	mu    sync.Mutex
	items map[string]*pendingEntry
}

func NewPendingRequests() *PendingRequests {
	return &PendingRequests{
		items: make(map[string]*pendingEntry),
	}
}

// Add registers a request and returns the channel its result is delivered on.
func (p *PendingRequests) Add(req PendingRequest) (<-chan RequestResult, error) {
	key := strings.TrimSpace(req.RequestID)
	if key == "" {
		return nil, errors.New("session: missing request id")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[key]; ok {
		return nil, ErrDuplicateRequest
	}
	entry := &pendingEntry{meta: req, done: make(chan RequestResult, 1)}
	p.items[key] = entry
	return entry.done, nil
}

// Resolve completes the request with a response frame. It reports false when no
// request with that id is pending.
func (p *PendingRequests) Resolve(requestID string, frame protocol.InboundFrame) bool {
	entry, ok := p.take(requestID)
	if !ok {
		return false
	}
	entry.done <- RequestResult{Frame: frame}
	return true
}

// Fail completes one request with err.
func (p *PendingRequests) Fail(requestID string, err error) bool {
	entry, ok := p.take(requestID)
	if !ok {
		return false
	}
	entry.done <- RequestResult{Err: err}
	return true
}

// FailAll completes every pending request with err and returns how many were failed.
func (p *PendingRequests) FailAll(err error) int {
	p.mu.Lock()
	entries := p.items
	p.items = make(map[string]*pendingEntry)
	p.mu.Unlock()
	for _, entry := range entries {
		entry.done <- RequestResult{Err: err}
	}
	return len(entries)
}

// Remove drops a request without delivering a result.
func (p *PendingRequests) Remove(requestID string) {
	_, _ = p.take(requestID)
}

func (p *PendingRequests) Get(requestID string) (PendingRequest, bool) {
	key := strings.TrimSpace(requestID)
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.items[key]
	if !ok {
		return PendingRequest{}, false
	}
	return entry.meta, true
}

func (p *PendingRequests) List() []PendingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingRequest, 0, len(p.items))
	for _, entry := range p.items {
		out = append(out, entry.meta)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestID < out[j].RequestID
	})
	return out
}

func (p *PendingRequests) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *PendingRequests) take(requestID string) (*pendingEntry, bool) {
	key := strings.TrimSpace(requestID)
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.items[key]
	if ok {
		delete(p.items, key)
	}
	return entry, ok
}
