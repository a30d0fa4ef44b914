package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mainamwangi/soko_chat/models"
	"gorm.io/gorm"
)

// DisplayIdentity is the best-available rendering info for a user.
type DisplayIdentity struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
}

// IdentityDirectory resolves display identities in one batched call per
// id set. The thread aggregator is its only caller.
type IdentityDirectory interface {
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]DisplayIdentity, error)
}

// RoleLookup answers whether a user currently holds the merchant role.
// Best effort: used only to stamp IsSenderMerchant at send time.
type RoleLookup interface {
	IsMerchant(ctx context.Context, userID uuid.UUID) (bool, error)
}

// UserDirectory backs both lookups with the users table the identity
// service replicates into our database.
type UserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (d *UserDirectory) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]DisplayIdentity, error) {
	result := make(map[uuid.UUID]DisplayIdentity, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []models.User
	if err := d.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("lookup identities: %w", err)
	}
	for _, u := range users {
		result[u.ID] = DisplayIdentity{
			ID:        u.ID,
			FullName:  u.FullName,
			AvatarURL: u.ProfilePictureURL,
		}
	}
	return result, nil
}

func (d *UserDirectory) IsMerchant(ctx context.Context, userID uuid.UUID) (bool, error) {
	var user models.User
	err := d.db.WithContext(ctx).Select("role").Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup role for %s: %w", userID, err)
	}
	return user.Role == models.RoleMerchant, nil
}
