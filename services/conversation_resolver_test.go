package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mainamwangi/soko_chat/models"
)

func mustAppend(t *testing.T, store *fakeStore, msg models.Message) models.Message {
	t.Helper()
	if err := store.Append(context.Background(), &msg); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	return msg
}

func TestResolveAllocatesOncePerTriple(t *testing.T) {
	store := newFakeStore()
	resolver := NewConversationResolver(store)
	buyer, seller := uuid.New(), uuid.New()
	listing := uuid.New()

	id1, created, err := resolver.Resolve(context.Background(), buyer, seller, &listing)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !created {
		t.Error("Expected a fresh conversation id on first resolve")
	}
	if id1 == uuid.Nil {
		t.Error("Expected a non-nil conversation id")
	}

	mustAppend(t, store, models.Message{
		ConversationID: id1, SenderID: buyer, ReceiverID: seller, ListingID: &listing, Body: "Is this still available?",
	})

	id2, created, err := resolver.Resolve(context.Background(), buyer, seller, &listing)
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}
	if created {
		t.Error("Expected the existing conversation to be reused")
	}
	if id2 != id1 {
		t.Errorf("Expected conversation %s, got %s", id1, id2)
	}
}

func TestResolveThreadStabilityAcrossDirections(t *testing.T) {
	// The counterparty replying, or opening the thread from their side,
	// must land in the same conversation.
	buyer, seller := uuid.New(), uuid.New()
	listing := uuid.New()

	tests := []struct {
		name      string
		listingID *uuid.UUID
	}{
		{name: "with listing context", listingID: &listing},
		{name: "without listing context", listingID: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			resolver := NewConversationResolver(store)

			id1, _, err := resolver.Resolve(context.Background(), buyer, seller, tt.listingID)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			mustAppend(t, store, models.Message{
				ConversationID: id1, SenderID: buyer, ReceiverID: seller, ListingID: tt.listingID, Body: "hello",
			})

			id2, created, err := resolver.Resolve(context.Background(), seller, buyer, tt.listingID)
			if err != nil {
				t.Fatalf("Reverse resolve failed: %v", err)
			}
			if created {
				t.Error("Reverse resolve must not allocate a second thread")
			}
			if id2 != id1 {
				t.Errorf("Thread split: got %s and %s for the same pair", id1, id2)
			}
		})
	}
}

func TestResolveDistinctListingsGetDistinctThreads(t *testing.T) {
	store := newFakeStore()
	resolver := NewConversationResolver(store)
	buyer, seller := uuid.New(), uuid.New()
	p1, p2 := uuid.New(), uuid.New()

	id1, _, err := resolver.Resolve(context.Background(), buyer, seller, &p1)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	mustAppend(t, store, models.Message{
		ConversationID: id1, SenderID: buyer, ReceiverID: seller, ListingID: &p1, Body: "about p1",
	})

	id2, created, err := resolver.Resolve(context.Background(), buyer, seller, &p2)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !created {
		t.Error("A different listing must start its own thread")
	}
	if id2 == id1 {
		t.Error("Conversations about different listings must not merge")
	}

	// A no-listing thread is distinct from both.
	id3, created, err := resolver.Resolve(context.Background(), buyer, seller, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !created || id3 == id1 || id3 == id2 {
		t.Error("The listing-free thread must be its own conversation")
	}
}

func TestResolveValidation(t *testing.T) {
	store := newFakeStore()
	resolver := NewConversationResolver(store)
	user := uuid.New()

	tests := []struct {
		name         string
		initiator    uuid.UUID
		counterparty uuid.UUID
	}{
		{name: "missing initiator", initiator: uuid.Nil, counterparty: user},
		{name: "missing counterparty", initiator: user, counterparty: uuid.Nil},
		{name: "self conversation", initiator: user, counterparty: user},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := resolver.Resolve(context.Background(), tt.initiator, tt.counterparty, nil)
			if !IsValidation(err) {
				t.Errorf("Expected a validation error, got %v", err)
			}
		})
	}
}
