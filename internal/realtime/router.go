package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/codec"
	"github.com/danmuck/boardsync/internal/protocol"
	"github.com/danmuck/boardsync/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Router classifies inbound frames and emits them on the bus. Frames that cannot be
// decoded are logged and dropped; event types with no handler are dropped silently.
type Router struct {
	bus     *Bus
	codec   *codec.Codec
	pending *session.PendingRequests
	metrics Metrics

	onBufferState func()

	mu       sync.RWMutex
	handlers map[string]struct{}
}

// NewRouter routes board.activity by default. onBufferState is invoked for every
// buffer-state frame before its event is emitted.
func NewRouter(bus *Bus, cd *codec.Codec, pending *session.PendingRequests, onBufferState func()) *Router {
	r := &Router{
		bus:           bus,
		codec:         cd,
		pending:       pending,
		metrics:       nopMetrics{},
		onBufferState: onBufferState,
		handlers:      make(map[string]struct{}),
	}
	r.Handle(protocol.EventTypeBoardActivity)
	return r
}

// Handle registers an additional board event type to decrypt and emit.
func (r *Router) Handle(eventType string) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = struct{}{}
}

func (r *Router) Handles(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[eventType]
	return ok
}

// Route decodes one raw frame and dispatches it.
func (r *Router) Route(ctx context.Context, raw []byte) {
	frame, err := protocol.DecodeInbound(raw)
	if err != nil {
		log.Warn().
			Err(fmt.Errorf("%w: %v", board.ErrMalformedEvent, err)).
			Int("bytes", len(raw)).
			Msg("dropping malformed realtime frame")
		return
	}
	r.Dispatch(ctx, frame)
}

// Dispatch emits a decoded frame on the topics its event type maps to.
func (r *Router) Dispatch(ctx context.Context, frame protocol.InboundFrame) {
	eventType := frame.Data.EventType
	ev := Event{Type: eventType, Frame: frame}
	switch eventType {
	case protocol.EventTypeBufferState:
		if r.onBufferState != nil {
			r.onBufferState()
		}
		r.bus.Emit(EventTopic(eventType), ev)
	case protocol.EventTypeRequest:
		r.bus.Emit(TopicRequest, ev)
		if id := strings.TrimSpace(frame.Data.RequestID); id != "" {
			r.pending.Resolve(id, frame)
			r.bus.Emit(RequestTopic(id), ev)
		}
	default:
		if !r.Handles(eventType) {
			log.Debug().Str("event_type", eventType).Msg("no handler for realtime event")
			return
		}
		ev.Item, ev.Err = r.decrypt(ctx, frame.Data)
		if ev.Err != nil {
			log.Warn().Str("event_type", eventType).Err(ev.Err).Msg("realtime event payload not decrypted")
		}
		r.bus.Emit(EventTopic(eventType), ev)
	}
	r.metrics.Event(eventType)
}

// decrypt returns nil, nil for events without an encrypted payload.
func (r *Router) decrypt(ctx context.Context, data protocol.EventData) (*board.Item, error) {
	if data.Envelope == nil || len(data.Payload) == 0 {
		return nil, nil
	}
	if r.codec == nil {
		return nil, errors.New("realtime: no codec configured")
	}
	contentType := board.ContentType(data.ContentType)
	if contentType == "" {
		contentType = board.ContentTypeString
	}
	item, err := r.codec.DecryptItem(ctx, board.Content{
		Type:             contentType,
		Payload:          data.PayloadString(),
		EncryptionKeyURL: data.Envelope.EncryptionKeyURL,
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}
