package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskpulse/pkg/events"
	"taskpulse/pkg/store"
)

func sampleTask(id int64) *store.Task {
	return &store.Task{ID: id, Title: fmt.Sprintf("task %d", id)}
}

func recvOne(t *testing.T, sub *Subscription) events.TaskEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return events.TaskEvent{}
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()

	for i := int64(1); i <= 5; i++ {
		b.Publish(events.NewCreated(sampleTask(i)))
	}

	for i := int64(1); i <= 5; i++ {
		ev := recvOne(t, sub)
		if ev.TaskID != i {
			t.Fatalf("expected task_id %d, got %d", i, ev.TaskID)
		}
		if ev.Kind != events.TaskCreated {
			t.Fatalf("expected created event, got %s", ev.Kind)
		}
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	b := New()
	defer b.Close()

	b.Publish(events.NewCreated(sampleTask(1)))

	sub := b.Subscribe()
	b.Publish(events.NewDeleted(1))

	ev := recvOne(t, sub)
	if ev.Kind != events.TaskDeleted || ev.TaskID != 1 {
		t.Fatalf("expected deleted event for task 1, got %s for %d", ev.Kind, ev.TaskID)
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected extra event: %+v", ev)
	default:
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // no-op
	sub.Close()        // still a no-op

	if got := b.SubscriberCount(); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}

	// Channel is closed: no event can arrive after unsubscription.
	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed subscription channel")
	}

	b.Publish(events.NewCreated(sampleTask(1)))
}

func TestSlowSubscriberIsDroppedNotBlocking(t *testing.T) {
	b := New()
	defer b.Close()

	slow := b.Subscribe()
	healthy := b.Subscribe()

	// The healthy subscriber drains continuously; the slow one never reads.
	var received atomic.Int64
	go func() {
		for range healthy.Events() {
			received.Add(1)
		}
	}()

	// Overflow the slow subscriber's queue by one.
	total := subscriptionBuffer + 1
	for i := range total {
		b.Publish(events.NewCreated(sampleTask(int64(i + 1))))
	}

	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("expected slow subscriber to be dropped, count = %d", got)
	}

	// The slow subscriber's channel was closed on drop; any buffered events
	// drain and then the channel reports closed.
	for {
		if _, ok := <-slow.Events(); !ok {
			break
		}
	}

	// The healthy subscriber saw every event.
	deadline := time.Now().Add(2 * time.Second)
	for received.Load() < int64(total) {
		if time.Now().After(deadline) {
			t.Fatalf("healthy subscriber received %d of %d events", received.Load(), total)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCloseTearsDownSubscriptions(t *testing.T) {
	b := New()
	sub := b.Subscribe()

	b.Close()
	b.Close() // idempotent

	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected subscription closed after bus close")
	}

	// Publish after close is a silent no-op.
	b.Publish(events.NewCreated(sampleTask(1)))

	// Subscribing after close yields an immediately closed subscription.
	late := b.Subscribe()
	if _, ok := <-late.Events(); ok {
		t.Fatal("expected closed subscription from closed bus")
	}
}

func TestConcurrentPublishSubscribeUnsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				sub := b.Subscribe()
				b.Publish(events.NewCreated(sampleTask(int64(i))))
				b.Unsubscribe(sub)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 200 {
			b.Publish(events.NewUpdated(sampleTask(int64(i))))
		}
	}()

	wg.Wait()

	if got := b.SubscriberCount(); got != 0 {
		t.Fatalf("expected all subscribers gone, count = %d", got)
	}
}
