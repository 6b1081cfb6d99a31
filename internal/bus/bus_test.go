package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBus starts the dispatcher and returns a stop function that waits for
// it to drain.
func runBus(t *testing.T, b *Bus) func() {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(context.Background())
	}()
	return func() {
		b.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("bus did not drain")
		}
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var got []Event
	b.Subscribe(TopicFieldValueSet, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	stop := runBus(t, b)
	require.True(t, b.Publish(Event{
		Topic:   TopicFieldValueSet,
		Payload: FieldValueSet{Field: "A.x", Value: 1.0},
	}))
	stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	payload, ok := got[0].Payload.(FieldValueSet)
	require.True(t, ok)
	assert.Equal(t, "A.x", payload.Field)
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New()

	var mu sync.Mutex
	counts := map[Topic]int{}
	for _, topic := range []Topic{TopicAtomCreated, TopicAtomUpdated} {
		topic := topic
		b.Subscribe(topic, func(Event) {
			mu.Lock()
			counts[topic]++
			mu.Unlock()
		})
	}

	stop := runBus(t, b)
	b.Publish(Event{Topic: TopicAtomCreated, Payload: AtomCreated{AtomID: "a1"}})
	b.Publish(Event{Topic: TopicAtomCreated, Payload: AtomCreated{AtomID: "a2"}})
	stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, counts[TopicAtomCreated])
	assert.Equal(t, 0, counts[TopicAtomUpdated])
}

func TestUnsubscribe(t *testing.T) {
	b := New()

	var mu sync.Mutex
	calls := 0
	cancel := b.Subscribe(TopicSchemaChanged, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	cancel()

	stop := runBus(t, b)
	b.Publish(Event{Topic: TopicSchemaChanged, Payload: SchemaChanged{Schema: "A"}})
	stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestHandlerMayPublish(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var secondDelivered bool
	b.Subscribe(TopicTransformTriggered, func(Event) {
		b.Publish(Event{Topic: TopicTransformExecuted, Payload: TransformExecuted{TransformID: "t"}})
	})
	b.Subscribe(TopicTransformExecuted, func(Event) {
		mu.Lock()
		secondDelivered = true
		mu.Unlock()
	})

	stop := runBus(t, b)
	b.Publish(Event{Topic: TopicTransformTriggered, Payload: TransformTriggered{TransformID: "t"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return secondDelivered
	}, 5*time.Second, 10*time.Millisecond)
	stop()
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := New()
	stop := runBus(t, b)
	stop()
	assert.False(t, b.Publish(Event{Topic: TopicSchemaChanged}))
}
