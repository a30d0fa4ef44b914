package websocket

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mainamwangi/soko_chat/models"
)

type EventType string

const (
	// EventInserted carries a newly appended message.
	EventInserted EventType = "inserted"
	// EventUpdated carries a message whose read state changed.
	EventUpdated EventType = "updated"
	// EventResync tells the consumer its buffer overflowed and it must
	// refetch the conversation; Message is nil.
	EventResync EventType = "resync"
)

type Event struct {
	Type    EventType       `json:"type"`
	Message *models.Message `json:"message,omitempty"`
}

const defaultBufferSize = 64

// Hub fans events out to every live subscription of a conversation.
// Delivery is at-least-once: a subscriber that stops draining gets a
// single Resync event once it catches up, and consumers reconcile by
// message id.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]map[int64]*Subscription
	nextID  int64
	bufSize int
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[uuid.UUID]map[int64]*Subscription),
		bufSize: defaultBufferSize,
	}
}

// Subscription is one viewer session attached to one conversation.
// Events are consumed from Events(); the channel is closed by
// Unsubscribe and never delivers afterwards.
type Subscription struct {
	hub            *Hub
	id             int64
	conversationID uuid.UUID

	buf     chan Event
	out     chan Event
	done    chan struct{}
	stopped chan struct{}

	gapped      int32
	gappedSince int64
	closeOnce   sync.Once
}

func (h *Hub) Subscribe(conversationID uuid.UUID) *Subscription {
	s := &Subscription{
		hub:            h,
		id:             atomic.AddInt64(&h.nextID, 1),
		conversationID: conversationID,
		buf:            make(chan Event, h.bufSize),
		out:            make(chan Event),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}

	h.mu.Lock()
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[int64]*Subscription)
	}
	h.subs[conversationID][s.id] = s
	h.mu.Unlock()

	go s.pump()
	return s
}

// Publish delivers an event to every subscription of the conversation,
// in the order publishers call it. A full subscriber buffer marks the
// subscription gapped instead of blocking the publisher.
func (h *Hub) Publish(conversationID uuid.UUID, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs[conversationID] {
		s.deliver(event)
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conv, ok := h.subs[s.conversationID]
	if !ok {
		return
	}
	delete(conv, s.id)
	if len(conv) == 0 {
		delete(h.subs, s.conversationID)
	}
}

// Stats returns the number of conversations with at least one live
// subscription and the total subscription count.
func (h *Hub) Stats() (conversations, sessions int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conv := range h.subs {
		conversations++
		sessions += len(conv)
	}
	return
}

// Sweep force-closes subscriptions that have been gapped for longer
// than maxStall, i.e. whose consumer stopped draining. Returns how many
// were closed.
func (h *Hub) Sweep(maxStall time.Duration) int {
	cutoff := time.Now().Add(-maxStall).UnixNano()

	h.mu.RLock()
	var stale []*Subscription
	for _, conv := range h.subs {
		for _, s := range conv {
			since := atomic.LoadInt64(&s.gappedSince)
			if since != 0 && since <= cutoff {
				stale = append(stale, s)
			}
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		log.Printf("Closing stalled subscription %d on conversation %s", s.id, s.conversationID)
		s.Unsubscribe()
	}
	return len(stale)
}

func (s *Subscription) ConversationID() uuid.UUID {
	return s.conversationID
}

// Events is the subscription's delivery channel. It is closed once
// Unsubscribe returns; an EventResync value means the consumer must
// refetch the conversation from the log.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Unsubscribe detaches from the hub and waits for in-flight delivery to
// finish. No event is delivered after it returns. Safe to call more
// than once.
func (s *Subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
	<-s.stopped
}

func (s *Subscription) deliver(event Event) {
	select {
	case <-s.done:
	case s.buf <- event:
	default:
		if atomic.CompareAndSwapInt32(&s.gapped, 0, 1) {
			atomic.StoreInt64(&s.gappedSince, time.Now().UnixNano())
		}
	}
}

func (s *Subscription) pump() {
	defer close(s.stopped)
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case event := <-s.buf:
			if !s.forward(event) {
				return
			}
			if atomic.CompareAndSwapInt32(&s.gapped, 1, 0) {
				atomic.StoreInt64(&s.gappedSince, 0)
				if !s.forward(Event{Type: EventResync}) {
					return
				}
			}
		}
	}
}

func (s *Subscription) forward(event Event) bool {
	select {
	case s.out <- event:
		return true
	case <-s.done:
		return false
	}
}
