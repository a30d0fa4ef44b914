package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mainamwangi/soko_chat/models"
	"github.com/mainamwangi/soko_chat/websocket"
)

// fakeStore is an in-memory MessageStore with the same ordering and
// mark-read semantics as the Postgres implementation.
type fakeStore struct {
	mu   sync.Mutex
	msgs []models.Message
	seq  int
}

var fakeEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) Append(ctx context.Context, msg *models.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = uuid.New()
	msg.CreatedAt = fakeEpoch.Add(time.Duration(s.seq) * time.Second)
	s.seq++
	msg.IsRead = false
	msg.ReadAt = nil
	s.msgs = append(s.msgs, *msg)
	return nil
}

// insertAt bypasses the clock so tests can force created_at ties.
func (s *fakeStore) insertAt(msg models.Message, at time.Time) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.CreatedAt = at
	s.msgs = append(s.msgs, msg)
	return msg
}

func sortCommitOrder(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID.String() < msgs[j].ID.String()
	})
}

func (s *fakeStore) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sortCommitOrder(out)
	return out, nil
}

func (s *fakeStore) ListByParticipant(ctx context.Context, userID uuid.UUID, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.msgs {
		if m.Involves(userID) {
			out = append(out, m)
		}
	}
	sortCommitOrder(out)
	// Newest first, like the SQL query.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) ListUnread(ctx context.Context, conversationID, readerID uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.msgs {
		if m.ConversationID == conversationID && m.ReceiverID == readerID && !m.IsRead {
			out = append(out, m)
		}
	}
	sortCommitOrder(out)
	return out, nil
}

func (s *fakeStore) FindConversation(ctx context.Context, senderID, receiverID uuid.UUID, listingID *uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.SenderID != senderID || m.ReceiverID != receiverID {
			continue
		}
		if !listingMatch(m.ListingID, listingID) {
			continue
		}
		return m.ConversationID, true, nil
	}
	return uuid.Nil, false, nil
}

func listingMatch(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *fakeStore) MarkRead(ctx context.Context, ids []uuid.UUID, readerID uuid.UUID, readAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var affected int64
	for i := range s.msgs {
		m := &s.msgs[i]
		if _, ok := wanted[m.ID]; !ok {
			continue
		}
		if m.ReceiverID != readerID || m.IsRead {
			continue
		}
		m.IsRead = true
		at := readAt
		m.ReadAt = &at
		affected++
	}
	return affected, nil
}

type publishedEvent struct {
	conversationID uuid.UUID
	event          websocket.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(conversationID uuid.UUID, event websocket.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{conversationID: conversationID, event: event})
}

func (p *fakePublisher) byType(t websocket.EventType) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.event.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeIdentity struct {
	mu         sync.Mutex
	identities map[uuid.UUID]DisplayIdentity
	calls      int
	lastIDs    []uuid.UUID
}

func (f *fakeIdentity) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]DisplayIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastIDs = append([]uuid.UUID(nil), ids...)
	out := make(map[uuid.UUID]DisplayIdentity, len(ids))
	for _, id := range ids {
		if identity, ok := f.identities[id]; ok {
			out[id] = identity
		}
	}
	return out, nil
}

type fakeCatalog struct {
	mu    sync.Mutex
	cards map[uuid.UUID]ListingCard
	calls int
}

func (f *fakeCatalog) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ListingCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make(map[uuid.UUID]ListingCard, len(ids))
	for _, id := range ids {
		if card, ok := f.cards[id]; ok {
			out[id] = card
		}
	}
	return out, nil
}

type fakeRoles struct {
	merchants map[uuid.UUID]bool
	err       error
}

func (f *fakeRoles) IsMerchant(ctx context.Context, userID uuid.UUID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.merchants[userID], nil
}

func newTestService(store *fakeStore, pub *fakePublisher, identity *fakeIdentity, catalog *fakeCatalog, roles *fakeRoles) *MessagingService {
	if identity == nil {
		identity = &fakeIdentity{identities: map[uuid.UUID]DisplayIdentity{}}
	}
	if catalog == nil {
		catalog = &fakeCatalog{cards: map[uuid.UUID]ListingCard{}}
	}
	if roles == nil {
		roles = &fakeRoles{merchants: map[uuid.UUID]bool{}}
	}
	resolver := NewConversationResolver(store)
	aggregator := NewThreadAggregator(store, identity, catalog)
	reconciler := NewReadReconciler(store, pub)
	return NewMessagingService(store, resolver, aggregator, reconciler, roles, pub)
}
