package realtime

import (
	"sync"

	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/protocol"
)

const (
	TopicOnline  = "online"
	TopicOffline = "offline"
	TopicRequest = "request"
)

// EventTopic is the bus topic for a routed inbound event type.
func EventTopic(eventType string) string {
	return "event:" + eventType
}

// RequestTopic is the bus topic for the response correlated with requestID.
func RequestTopic(requestID string) string {
	return TopicRequest + ":" + requestID
}

// Event is what listeners receive.
type Event struct {
	Type  string
	Frame protocol.InboundFrame
	// Item is the decrypted content of a board event that carried an encrypted payload.
	Item *board.Item
	Err  error
}

type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// Bus is a synchronous topic emitter. Listeners run on the emitting goroutine in
// registration order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	topics map[string][]subscription
}

func NewBus() *Bus {
	return &Bus{topics: make(map[string][]subscription)}
}

// On registers fn for topic and returns a function removing it.
func (b *Bus) On(topic string, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.addLocked(topic, fn)
	return func() { b.off(topic, id) }
}

// Once registers fn for the next emission on topic only.
func (b *Bus) Once(topic string, fn Listener) func() {
	var (
		once sync.Once
		id   int
	)
	off := func() { b.off(topic, id) }
	b.mu.Lock()
	defer b.mu.Unlock()
	id = b.addLocked(topic, func(ev Event) {
		once.Do(func() {
			off()
			fn(ev)
		})
	})
	return off
}

func (b *Bus) addLocked(topic string, fn Listener) int {
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscription{id: id, fn: fn})
	return id
}

func (b *Bus) off(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[topic]
	for i, sub := range subs {
		if sub.id == id {
			b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
}

func (b *Bus) Emit(topic string, ev Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.topics[topic]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.fn(ev)
	}
}

func (b *Bus) Listeners(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
