// Package bus provides the in-process fan-out of task events to connected
// listeners. Publish never blocks: each subscription owns a buffered queue,
// and a subscriber that cannot keep up is dropped rather than allowed to
// stall the mutation path or its peers.
package bus

import (
	"sync"

	"github.com/google/uuid"

	"taskpulse/pkg/events"
	"taskpulse/pkg/logger"
)

const subscriptionBuffer = 64

// Subscription is one listener's tap on the event stream. Events arrive on
// Events() in publish order; the channel is closed when the subscription is
// removed from the bus.
type Subscription struct {
	id  string
	ch  chan events.TaskEvent
	bus *EventBus

	closeOnce sync.Once
}

// ID returns the unique session id of this subscription.
func (s *Subscription) ID() string { return s.id }

// Events returns the receive side of the subscription queue.
func (s *Subscription) Events() <-chan events.TaskEvent { return s.ch }

// Close unsubscribes from the bus. Safe to call more than once.
func (s *Subscription) Close() { s.bus.Unsubscribe(s) }

// EventBus owns the subscriber registry. All access is synchronized; fan-out
// iterates the registry under a read lock so concurrent subscribe/unsubscribe
// cannot corrupt it.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

// New creates an empty event bus.
func New() *EventBus {
	return &EventBus{subs: make(map[string]*Subscription)}
}

// Subscribe registers a new listener session and returns its subscription.
func (b *EventBus) Subscribe() *Subscription {
	sub := &Subscription{
		id: uuid.NewString(),
		ch: make(chan events.TaskEvent, subscriptionBuffer),
	}
	sub.bus = b

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closeOnce.Do(func() { close(sub.ch) })
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its queue. Idempotent:
// duplicate calls are no-ops.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
	}
	b.mu.Unlock()

	// Close outside the registry check so a subscription created after
	// bus shutdown can still release its channel exactly once.
	sub.closeOnce.Do(func() { close(sub.ch) })
}

// Publish enqueues the event onto every registered subscription and returns
// without waiting for consumption. A subscription with a full queue has the
// event dropped and is marked dead; publication to the others proceeds.
func (b *EventBus) Publish(ev events.TaskEvent) {
	var dead []*Subscription

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			dead = append(dead, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range dead {
		logger.WarnCF("bus", "Dropping slow subscriber", map[string]interface{}{
			"session": sub.id,
			"event":   string(ev.Kind),
			"task_id": ev.TaskID,
		})
		b.Unsubscribe(sub)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close tears down every subscription and rejects further publishes.
func (b *EventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.closeOnce.Do(func() { close(sub.ch) })
	}
}
