// Package repository declares the storage interfaces the services depend on.
//
// Services only ever see these interfaces; the sqlite package implements them
// and the service tests swap in in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/item-atlas/internal/model"
)

// Sort orders for ItemRepository.List.
const (
	SortRecent   = "recent"
	SortFavorite = "favorite"
)

// Page size bounds applied by List implementations.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ListOptions narrows and orders an item listing.
//
// Empty GameVersion / ShardID mean "any". ViewerID is used for the hasLiked
// flag and for showing the viewer their own pending items; empty means anonymous.
type ListOptions struct {
	Sort          string
	GameVersion   string
	ShardID       string
	ViewerID      string
	ViewerIsAdmin bool
	Limit         int
	Offset        int
}

// UserRepository is the user directory.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByExternalID(ctx context.Context, provider, externalID string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// UpdateProfile overwrites the provider-owned fields (external id,
	// display name, avatar, discriminator, email). Role is left untouched.
	UpdateProfile(ctx context.Context, user *model.User) error

	SetRole(ctx context.Context, id string, role model.Role) error
	List(ctx context.Context) ([]model.User, error)
}

// ItemRepository stores item locations.
type ItemRepository interface {
	Create(ctx context.Context, item *model.Item) error
	GetByID(ctx context.Context, id string) (*model.Item, error)

	// GetView returns one item with author data, like count and the viewer's
	// hasLiked flag. Visibility is the caller's concern.
	GetView(ctx context.Context, id, viewerID string) (*model.ItemView, error)

	List(ctx context.Context, opts ListOptions) ([]model.ItemView, error)
	Filters(ctx context.Context) (*model.Filters, error)

	// DeleteWithLikes removes the item and every like referencing it in one
	// transaction. Returns apperror.ErrNotFound when the item is already gone.
	DeleteWithLikes(ctx context.Context, id string) error
}

// LikeRepository is the like ledger.
type LikeRepository interface {
	// Insert returns apperror.ErrConflict when the pair already exists and
	// apperror.ErrNotFound when the item does not.
	Insert(ctx context.Context, userID, itemID string) error

	// Delete is a no-op when the pair does not exist.
	Delete(ctx context.Context, userID, itemID string) error

	Exists(ctx context.Context, userID, itemID string) (bool, error)
	Count(ctx context.Context, itemID string) (int, error)
}
