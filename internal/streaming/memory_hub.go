package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// Buffered enough to absorb a full run's events for a briefly stalled reader.
const subscriberBuffer = 64

// subscription is one registered listener with its filter.
type subscription struct {
	ch     chan StreamEvent
	filter EventFilter
}

func (s *subscription) wants(e StreamEvent) bool {
	f := s.filter
	if f.RunID != "" && f.RunID != e.RunID {
		return false
	}
	if f.WorkflowID != "" && f.WorkflowID != e.WorkflowID {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType) {
		return false
	}
	return true
}

// MemoryHub is a channel-based in-process EventHub.
type MemoryHub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID atomic.Uint64
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[uint64]*subscription)}
}

// Publish fans the event out to every matching subscription. The send is
// non-blocking: a subscriber that has fallen subscriberBuffer events behind
// loses this one rather than stalling the run.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a listener. The returned cancel function removes the
// subscription and is safe to call more than once; the channel is never
// closed, so a receive after cancel simply blocks.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &subscription{
		ch:     make(chan StreamEvent, subscriberBuffer),
		filter: filter,
	}

	id := h.nextID.Add(1)
	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}

	return sub.ch, cancel, nil
}

// SubscriberCount reports the number of live subscriptions.
func (h *MemoryHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
