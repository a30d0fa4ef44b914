package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mainamwangi/soko_chat/models"
	"gorm.io/gorm"
)

// MessageStore is the slice of the message log the messaging services
// depend on. MessageLog is the Postgres implementation; tests use an
// in-memory fake.
type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit int) ([]models.Message, error)
	ListUnread(ctx context.Context, conversationID, readerID uuid.UUID) ([]models.Message, error)
	// FindConversation looks up the conversation id of any prior message
	// sent from senderID to receiverID in the given listing context. A
	// nil listing matches only messages without one.
	FindConversation(ctx context.Context, senderID, receiverID uuid.UUID, listingID *uuid.UUID) (uuid.UUID, bool, error)
	// MarkRead flips unread messages addressed to readerID. Messages not
	// addressed to the reader, or already read, are skipped silently.
	// Returns the number of rows actually updated.
	MarkRead(ctx context.Context, ids []uuid.UUID, readerID uuid.UUID, readAt time.Time) (int64, error)
}

const appendRetryBackoff = 200 * time.Millisecond

// MessageLog is the append-only message store. Rows are inserted once,
// mutated only by MarkRead, and never deleted.
type MessageLog struct {
	db *gorm.DB
}

func NewMessageLog(db *gorm.DB) *MessageLog {
	return &MessageLog{db: db}
}

func validateMessage(msg *models.Message) error {
	if msg.ConversationID == uuid.Nil {
		return NewValidationError("conversation_id", "must not be empty")
	}
	if msg.SenderID == uuid.Nil {
		return NewValidationError("sender_id", "must not be empty")
	}
	if msg.ReceiverID == uuid.Nil {
		return NewValidationError("receiver_id", "must not be empty")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return NewValidationError("body", "must not be empty")
	}
	return nil
}

// Append validates and inserts the message, assigning id and creation
// time. A transient store failure is retried once after a short
// backoff; a failed append leaves no row behind (single INSERT).
func (l *MessageLog) Append(ctx context.Context, msg *models.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	msg.ID = uuid.New()
	msg.CreatedAt = time.Now().UTC()
	msg.IsRead = false
	msg.ReadAt = nil

	err := l.db.WithContext(ctx).Create(msg).Error
	if err == nil {
		return nil
	}

	if err := sleepBackoff(ctx, appendRetryBackoff); err != nil {
		return err
	}
	if err := l.db.WithContext(ctx).Create(msg).Error; err != nil {
		return &TransientError{Op: "append message", Err: err}
	}
	return nil
}

// sleepBackoff waits out the retry delay but gives up as soon as the
// caller's context does.
func sleepBackoff(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ListByConversation returns the conversation in commit order:
// ascending created_at, ties broken by id. Unknown conversations yield
// an empty slice, not an error.
func (l *MessageLog) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := l.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at asc, id asc").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list conversation %s: %w", conversationID, err)
	}
	return messages, nil
}

// ListByParticipant returns the newest messages the user is a party to,
// bounded by limit. Feeds the thread aggregator only.
func (l *MessageLog) ListByParticipant(ctx context.Context, userID uuid.UUID, limit int) ([]models.Message, error) {
	var messages []models.Message
	q := l.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages for user %s: %w", userID, err)
	}
	return messages, nil
}

func (l *MessageLog) ListUnread(ctx context.Context, conversationID, readerID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := l.db.WithContext(ctx).
		Where("conversation_id = ? AND receiver_id = ? AND is_read = false", conversationID, readerID).
		Order("created_at asc, id asc").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list unread for reader %s: %w", readerID, err)
	}
	return messages, nil
}

func (l *MessageLog) FindConversation(ctx context.Context, senderID, receiverID uuid.UUID, listingID *uuid.UUID) (uuid.UUID, bool, error) {
	q := l.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("conversation_id").
		Where("sender_id = ? AND receiver_id = ?", senderID, receiverID)
	if listingID == nil {
		q = q.Where("listing_id IS NULL")
	} else {
		q = q.Where("listing_id = ?", *listingID)
	}

	var row struct {
		ConversationID uuid.UUID
	}
	err := q.Order("created_at asc, id asc").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find conversation %s->%s: %w", senderID, receiverID, err)
	}
	return row.ConversationID, true, nil
}

func (l *MessageLog) MarkRead(ctx context.Context, ids []uuid.UUID, readerID uuid.UUID, readAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := l.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id IN ? AND receiver_id = ? AND is_read = false", ids, readerID).
		Updates(map[string]interface{}{"is_read": true, "read_at": readAt})
	if res.Error != nil {
		return 0, fmt.Errorf("mark read for reader %s: %w", readerID, res.Error)
	}
	return res.RowsAffected, nil
}
