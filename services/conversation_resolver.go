package services

import (
	"context"

	"github.com/google/uuid"
)

// ConversationResolver maps an (initiator, counterparty, listing)
// triple to its conversation id. The lookup is over the unordered
// participant pair: whichever party messaged first, both sides resolve
// to the same thread. Resolving never writes anything; the id of a
// fresh thread only becomes real once its first message is appended.
type ConversationResolver struct {
	store MessageStore
}

func NewConversationResolver(store MessageStore) *ConversationResolver {
	return &ConversationResolver{store: store}
}

// Resolve returns the conversation id for the triple and whether it was
// freshly allocated.
func (r *ConversationResolver) Resolve(ctx context.Context, initiatorID, counterpartyID uuid.UUID, listingID *uuid.UUID) (uuid.UUID, bool, error) {
	if initiatorID == uuid.Nil {
		return uuid.Nil, false, NewValidationError("initiator_id", "must not be empty")
	}
	if counterpartyID == uuid.Nil {
		return uuid.Nil, false, NewValidationError("counterparty_id", "must not be empty")
	}
	if initiatorID == counterpartyID {
		return uuid.Nil, false, NewValidationError("counterparty_id", "cannot open a conversation with yourself")
	}

	id, found, err := r.store.FindConversation(ctx, initiatorID, counterpartyID, listingID)
	if err != nil {
		return uuid.Nil, false, err
	}
	if found {
		return id, false, nil
	}

	// The counterparty may have written first; without this second
	// lookup one logical thread would split into two.
	id, found, err = r.store.FindConversation(ctx, counterpartyID, initiatorID, listingID)
	if err != nil {
		return uuid.Nil, false, err
	}
	if found {
		return id, false, nil
	}

	return uuid.New(), true, nil
}
