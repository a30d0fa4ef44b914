package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing is the product a conversation can be about. The catalog is
// owned elsewhere; messaging only reads title and thumbnail for thread
// rendering.
type Listing struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	SellerID     uuid.UUID `gorm:"type:uuid;not null;index" json:"seller_id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Price        float64   `gorm:"type:numeric(12,2);default:0.00" json:"price"`
	Currency     string    `gorm:"size:3;not null;default:'KES'" json:"currency"`
	ThumbnailURL *string   `gorm:"size:255" json:"thumbnail_url"`
	Status       string    `gorm:"size:20;not null;default:'active'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
