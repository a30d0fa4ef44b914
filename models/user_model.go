package models

import (
	"time"

	"github.com/google/uuid"
)

// User mirrors the account records owned by the identity service. Only
// the fields the messaging layer renders (name, avatar) or stamps onto
// messages (role) live here.
type User struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	FullName          string    `gorm:"size:255;not null" json:"full_name"`
	Role              string    `gorm:"size:20;not null;default:'buyer'" json:"role"`
	ProfilePictureURL *string   `gorm:"size:255" json:"profile_picture_url"`
	IsActive          bool      `gorm:"default:true" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	RoleBuyer    = "buyer"
	RoleMerchant = "merchant"
)
