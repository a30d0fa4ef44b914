package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is the only persisted messaging entity. A conversation is the
// set of messages sharing a ConversationID; it never gets a row of its
// own.
type Message struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	ConversationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_messages_conversation" json:"conversation_id"`
	SenderID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_messages_sender" json:"sender_id"`
	ReceiverID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_messages_receiver" json:"receiver_id"`
	ListingID      *uuid.UUID `gorm:"type:uuid;index:idx_messages_listing" json:"listing_id,omitempty"`
	Body           string     `gorm:"type:text;not null" json:"body"`

	IsRead bool       `gorm:"not null;default:false" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	// Snapshot of the sender's merchant role at send time. Display only,
	// never an authorization signal.
	IsSenderMerchant bool `gorm:"not null;default:false" json:"is_sender_merchant"`

	CreatedAt time.Time `gorm:"index:idx_messages_created_at" json:"created_at"`
}

// Counterparty returns the participant of this message that is not the
// given user.
func (m *Message) Counterparty(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves reports whether the user is on either side of this message.
func (m *Message) Involves(userID uuid.UUID) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}
