package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/mainamwangi/soko_chat/models"
)

// ConversationSummary is one row of a user's conversation list. Always
// recomputed from the message log, never persisted; there is no running
// unread counter anywhere to drift.
type ConversationSummary struct {
	ConversationID uuid.UUID       `json:"conversation_id"`
	Counterparty   DisplayIdentity `json:"counterparty"`
	LastMessage    models.Message  `json:"last_message"`
	UnreadCount    int             `json:"unread_count"`
	Listing        *ListingCard    `json:"listing,omitempty"`
}

const defaultScanLimit = 2000

// ThreadAggregator derives a user's conversation list by grouping their
// slice of the message log by conversation id.
type ThreadAggregator struct {
	store     MessageStore
	identity  IdentityDirectory
	listings  ListingCatalog
	scanLimit int
}

func NewThreadAggregator(store MessageStore, identity IdentityDirectory, listings ListingCatalog) *ThreadAggregator {
	return &ThreadAggregator{
		store:     store,
		identity:  identity,
		listings:  listings,
		scanLimit: defaultScanLimit,
	}
}

type threadGroup struct {
	last           models.Message
	counterpartyID uuid.UUID
	unread         int
	listingID      *uuid.UUID
}

// Summarize returns the user's conversations ordered by last activity,
// newest first. A user with no messages gets an empty slice.
// Identity and listing display data are each fetched in a single
// batched lookup over the deduplicated id sets, keeping the collaborator
// cost O(conversations) rather than O(messages).
func (a *ThreadAggregator) Summarize(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	if userID == uuid.Nil {
		return nil, NewValidationError("user_id", "must not be empty")
	}

	messages, err := a.store.ListByParticipant(ctx, userID, a.scanLimit)
	if err != nil {
		return nil, err
	}

	// Messages arrive newest first, so the first message seen for a
	// group is its last message and the final non-nil listing id seen is
	// the oldest, i.e. the one that opened the thread.
	groups := make(map[uuid.UUID]*threadGroup)
	for _, msg := range messages {
		g, ok := groups[msg.ConversationID]
		if !ok {
			g = &threadGroup{
				last:           msg,
				counterpartyID: msg.Counterparty(userID),
			}
			groups[msg.ConversationID] = g
		}
		if msg.ReceiverID == userID && !msg.IsRead {
			g.unread++
		}
		if msg.ListingID != nil {
			g.listingID = msg.ListingID
		}
	}
	if len(groups) == 0 {
		return []ConversationSummary{}, nil
	}

	identities, err := a.identity.Lookup(ctx, dedupeCounterparties(groups))
	if err != nil {
		return nil, err
	}
	cards, err := a.listings.Lookup(ctx, dedupeListings(groups))
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(groups))
	for conversationID, g := range groups {
		identity, ok := identities[g.counterpartyID]
		if !ok {
			// Best available: the id alone still renders a thread.
			identity = DisplayIdentity{ID: g.counterpartyID}
		}
		summary := ConversationSummary{
			ConversationID: conversationID,
			Counterparty:   identity,
			LastMessage:    g.last,
			UnreadCount:    g.unread,
		}
		if g.listingID != nil {
			if card, ok := cards[*g.listingID]; ok {
				summary.Listing = &card
			}
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		mi, mj := summaries[i].LastMessage, summaries[j].LastMessage
		if !mi.CreatedAt.Equal(mj.CreatedAt) {
			return mi.CreatedAt.After(mj.CreatedAt)
		}
		return mi.ID.String() > mj.ID.String()
	})
	return summaries, nil
}

func dedupeCounterparties(groups map[uuid.UUID]*threadGroup) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(groups))
	ids := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		if _, ok := seen[g.counterpartyID]; ok {
			continue
		}
		seen[g.counterpartyID] = struct{}{}
		ids = append(ids, g.counterpartyID)
	}
	return ids
}

func dedupeListings(groups map[uuid.UUID]*threadGroup) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, g := range groups {
		if g.listingID == nil {
			continue
		}
		if _, ok := seen[*g.listingID]; ok {
			continue
		}
		seen[*g.listingID] = struct{}{}
		ids = append(ids, *g.listingID)
	}
	return ids
}
