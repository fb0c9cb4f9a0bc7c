package engine

import (
	"sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 16

// Event is a status change of an invocation.
type Event struct {
	InvocationID  string    `json:"invocation_id"`
	Status        string    `json:"status"`
	Time          time.Time `json:"time"`
	SubOperations *int      `json:"sub_operations,omitempty"`
	DurationMS    *int      `json:"duration_ms,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// EventBroker fans invocation events out to subscribers.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after an invocation finishes) receive a closed channel instead
// of blocking forever.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewEventBroker creates a new event broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
	}
}

// Subscribe returns a channel that receives events for the given invocation
// and an unsubscribe function. If the invocation has already finished (Close
// was called), the returned channel is immediately closed.
func (b *EventBroker) Subscribe(invocationID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[invocationID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[invocationID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends ev to all subscribers of its invocation.
// Events are dropped for subscribers whose buffers are full.
func (b *EventBroker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.InvocationID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Never block the invocation on a slow subscriber.
		}
	}
}

// Close signals that no more events will be published for the given
// invocation. All subscriber channels are closed and future Subscribe calls
// return a closed channel.
func (b *EventBroker) Close(invocationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[invocationID]
	if !ok {
		b.topics[invocationID] = &eventTopic{subs: make(map[int]chan Event), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
