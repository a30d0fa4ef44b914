package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mainamwangi/soko_chat/websocket"
)

// EventPublisher is the fan-out side the reconciler and the send path
// push into. Satisfied by *websocket.Hub.
type EventPublisher interface {
	Publish(conversationID uuid.UUID, event websocket.Event)
}

// ReadReconciler marks a viewer's unread messages in a conversation as
// read. Idempotent and safe under concurrent sessions of the same
// reader: the store update is guarded by is_read = false, so the losing
// session affects zero rows and publishes nothing.
type ReadReconciler struct {
	store MessageStore
	hub   EventPublisher
	now   func() time.Time
}

func NewReadReconciler(store MessageStore, hub EventPublisher) *ReadReconciler {
	return &ReadReconciler{store: store, hub: hub, now: time.Now}
}

// Reconcile returns how many messages were flipped to read.
func (r *ReadReconciler) Reconcile(ctx context.Context, conversationID, readerID uuid.UUID) (int, error) {
	if conversationID == uuid.Nil {
		return 0, NewValidationError("conversation_id", "must not be empty")
	}
	if readerID == uuid.Nil {
		return 0, NewValidationError("reader_id", "must not be empty")
	}

	unread, err := r.store.ListUnread(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	if len(unread) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, len(unread))
	for i, msg := range unread {
		ids[i] = msg.ID
	}
	readAt := r.now().UTC()

	affected, err := r.store.MarkRead(ctx, ids, readerID, readAt)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		// Another session of the same reader got there first.
		return 0, nil
	}

	// Publish Updated for the whole batch; delivery is at-least-once and
	// consumers reconcile by id, so a duplicate for a message the other
	// session flipped is harmless.
	for i := range unread {
		msg := unread[i]
		msg.IsRead = true
		msg.ReadAt = &readAt
		r.hub.Publish(conversationID, websocket.Event{Type: websocket.EventUpdated, Message: &msg})
	}
	return int(affected), nil
}
