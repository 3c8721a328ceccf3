package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := StreamEvent{
		RunID:      "run-1",
		WorkflowID: "wf-1",
		NodeID:     "node-1",
		EventType:  EventNodeCompleted,
		Payload:    map[string]any{"output": "ok"},
	}

	err = hub.Publish(ctx, event)
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, event.RunID, got.RunID)
		assert.Equal(t, event.NodeID, got.NodeID)
		assert.Equal(t, event.EventType, got.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFilterByRunID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{RunID: "run-1"})
	require.NoError(t, err)
	defer cancel()

	// Should be received (matching run)
	err = hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: EventNodeStarted})
	require.NoError(t, err)

	// Should be dropped (different run)
	err = hub.Publish(ctx, StreamEvent{RunID: "run-2", EventType: EventNodeStarted})
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, "run-1", got.RunID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	// Channel should be empty -- the run-2 event was filtered out.
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestFilterByWorkflowID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{WorkflowID: "wf-1"})
	require.NoError(t, err)
	defer cancel()

	err = hub.Publish(ctx, StreamEvent{RunID: "run-1", WorkflowID: "wf-1", EventType: EventRunStarted})
	require.NoError(t, err)

	err = hub.Publish(ctx, StreamEvent{RunID: "run-2", WorkflowID: "wf-2", EventType: EventRunStarted})
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, "wf-1", got.WorkflowID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestFilterByEventType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		EventTypes: []string{EventNodeCompleted, EventRunFailed},
	})
	require.NoError(t, err)
	defer cancel()

	// Should be received
	err = hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: EventNodeCompleted})
	require.NoError(t, err)

	// Should be dropped
	err = hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: EventNodeStarted})
	require.NoError(t, err)

	// Should be received
	err = hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: EventRunFailed})
	require.NoError(t, err)

	var received []string
	for i := 0; i < 2; i++ {
		select {
		case got := <-ch:
			received = append(received, got.EventType)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []string{EventNodeCompleted, EventRunFailed}, received)

	// No more events
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel1()

	ch2, cancel2, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel2()

	event := StreamEvent{RunID: "run-1", EventType: EventNodeCompleted}
	err = hub.Publish(ctx, event)
	require.NoError(t, err)

	for _, ch := range []<-chan StreamEvent{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "run-1", got.RunID)
			assert.Equal(t, EventNodeCompleted, got.EventType)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestCancelSubscription(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)

	// Cancel removes the subscriber
	cancel()

	err = hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: EventNodeCompleted})
	require.NoError(t, err)

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event after cancel: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected: subscriber was removed
	}

	// Verify subscriber map is empty
	hub.mu.RLock()
	assert.Empty(t, hub.subs)
	hub.mu.RUnlock()
}

func TestBackpressure(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	// Fill the channel buffer (64) then publish some more.
	// None of these should block.
	for i := 0; i < subscriberBuffer+10; i++ {
		err = hub.Publish(ctx, StreamEvent{
			RunID:     "run-1",
			EventType: EventNodeStarted,
		})
		require.NoError(t, err)
	}

	// We should be able to drain exactly subscriberBuffer events.
	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			goto done
		}
	}
done:
	assert.Equal(t, subscriberBuffer, drained)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	const goroutines = 20
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup

	// Start subscribers
	channels := make([]<-chan StreamEvent, goroutines)
	cancels := make([]func(), goroutines)
	for i := 0; i < goroutines; i++ {
		ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
		require.NoError(t, err)
		channels[i] = ch
		cancels[i] = cancel
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	// Concurrent publishers
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				_ = hub.Publish(ctx, StreamEvent{
					RunID:     "run-concurrent",
					EventType: EventNodeStarted,
				})
			}
		}()
	}

	// Concurrent subscribers being added/removed
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
			if err != nil {
				return
			}
			// drain a few then cancel
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}

	wg.Wait()
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: EventNodeStarted})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscribeCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscriberCountAndRepeatCancel(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	_, cancel1, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	_, cancel2, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, hub.SubscriberCount())

	cancel1()
	cancel1() // repeated cancel is a no-op
	assert.Equal(t, 1, hub.SubscriberCount())

	cancel2()
	assert.Equal(t, 0, hub.SubscriberCount())
}
