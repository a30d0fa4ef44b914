package services

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/mainamwangi/soko_chat/models"
	"github.com/mainamwangi/soko_chat/websocket"
)

// MessagingService composes the resolver, the log, the reconciler and
// the fan-out hub behind the operations the transport layer exposes.
type MessagingService struct {
	store      MessageStore
	resolver   *ConversationResolver
	aggregator *ThreadAggregator
	reconciler *ReadReconciler
	roles      RoleLookup
	hub        EventPublisher
}

func NewMessagingService(
	store MessageStore,
	resolver *ConversationResolver,
	aggregator *ThreadAggregator,
	reconciler *ReadReconciler,
	roles RoleLookup,
	hub EventPublisher,
) *MessagingService {
	return &MessagingService{
		store:      store,
		resolver:   resolver,
		aggregator: aggregator,
		reconciler: reconciler,
		roles:      roles,
		hub:        hub,
	}
}

// SendMessage resolves the conversation for the pair and listing,
// appends the message and fans it out to live viewers. A resolver id
// with no surviving append is harmless: it never appears in any
// summary.
func (s *MessagingService) SendMessage(ctx context.Context, senderID, receiverID uuid.UUID, listingID *uuid.UUID, body string) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, NewValidationError("body", "must not be empty")
	}

	conversationID, _, err := s.resolver.Resolve(ctx, senderID, receiverID, listingID)
	if err != nil {
		return nil, err
	}

	isMerchant, err := s.roles.IsMerchant(ctx, senderID)
	if err != nil {
		// Display-only stamp; a role service blip must not block a send.
		log.Printf("Role lookup failed for sender %s, stamping non-merchant: %v", senderID, err)
		isMerchant = false
	}

	msg := &models.Message{
		ConversationID:   conversationID,
		SenderID:         senderID,
		ReceiverID:       receiverID,
		ListingID:        listingID,
		Body:             body,
		IsSenderMerchant: isMerchant,
	}
	if err := s.store.Append(ctx, msg); err != nil {
		return nil, err
	}

	s.hub.Publish(conversationID, websocket.Event{Type: websocket.EventInserted, Message: msg})
	return msg, nil
}

// ResolveConversation exposes the resolver to the transport layer so a
// client can obtain a thread id before the first message is composed.
func (s *MessagingService) ResolveConversation(ctx context.Context, initiatorID, counterpartyID uuid.UUID, listingID *uuid.UUID) (uuid.UUID, bool, error) {
	return s.resolver.Resolve(ctx, initiatorID, counterpartyID, listingID)
}

// OpenConversation returns the full thread for a viewer and reconciles
// their read state. A conversation with no messages, or one the viewer
// is not a party to, is reported as not found.
func (s *MessagingService) OpenConversation(ctx context.Context, conversationID, viewerID uuid.UUID) ([]models.Message, error) {
	messages, err := s.store.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrConversationNotFound
	}
	if !messages[0].Involves(viewerID) {
		return nil, ErrNotParticipant
	}

	flipped, err := s.reconciler.Reconcile(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	if flipped > 0 {
		// Re-read so the response reflects the reconciled state.
		messages, err = s.store.ListByConversation(ctx, conversationID)
		if err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// MarkConversationRead reconciles without fetching the thread; the
// explicit read endpoint and the websocket auto-read policy both land
// here.
func (s *MessagingService) MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) (int, error) {
	return s.reconciler.Reconcile(ctx, conversationID, readerID)
}

// ListThreads is the thread aggregator entry point.
func (s *MessagingService) ListThreads(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	return s.aggregator.Summarize(ctx, userID)
}
