package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mainamwangi/soko_chat/models"
	"gorm.io/gorm"
)

// ListingCard is what the conversation list renders for a product
// context.
type ListingCard struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
}

// ListingCatalog resolves listing cards in one batched call per id set.
type ListingCatalog interface {
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ListingCard, error)
}

type ListingDirectory struct {
	db *gorm.DB
}

func NewListingDirectory(db *gorm.DB) *ListingDirectory {
	return &ListingDirectory{db: db}
}

func (d *ListingDirectory) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ListingCard, error) {
	result := make(map[uuid.UUID]ListingCard, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var listings []models.Listing
	if err := d.db.WithContext(ctx).Where("id IN ?", ids).Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("lookup listings: %w", err)
	}
	for _, l := range listings {
		result[l.ID] = ListingCard{
			ID:           l.ID,
			Title:        l.Title,
			Price:        l.Price,
			Currency:     l.Currency,
			ThumbnailURL: l.ThumbnailURL,
		}
	}
	return result, nil
}
