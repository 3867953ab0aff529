// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// AUTHORIZATION AT THE POINT OF MUTATION:
// Every mutating service method takes the caller's *model.Session and runs the
// auth guard predicates itself, right before touching the repository. Handlers
// and route middleware may reject earlier, but the check here is the one that
// counts: nothing reaches a repository write without passing it.
//
// DEPENDENCY INJECTION:
// Services take repository interfaces, never *sqlite.DB. Tests pass in-memory
// fakes; main.go passes the SQLite tables.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/item-atlas/internal/apperror"
	"github.com/sakif/item-atlas/internal/auth"
	"github.com/sakif/item-atlas/internal/cache"
	"github.com/sakif/item-atlas/internal/model"
	"github.com/sakif/item-atlas/internal/repository"
)

// Validation limits for new items.
const (
	MaxLocationLength    = 120
	MaxDescriptionLength = 2000
	MaxGameVersionLength = 32
	MaxShardIDLength     = 64
	MaxImagePathLength   = 512
)

// ItemService handles item locations: create, read, list and delete.
type ItemService struct {
	items  repository.ItemRepository
	counts cache.LikeCounts
	logger *slog.Logger
}

// NewItemService creates a new ItemService. counts may be cache.Nop{}.
func NewItemService(items repository.ItemRepository, counts cache.LikeCounts, logger *slog.Logger) *ItemService {
	return &ItemService{
		items:  items,
		counts: counts,
		logger: logger,
	}
}

// CreateItemInput is the caller-supplied part of a new item.
// ImagePath and PreviewImagePath are either both set or both empty.
type CreateItemInput struct {
	Location         string `json:"location"`
	Description      string `json:"description"`
	GameVersion      string `json:"gameVersion"`
	ShardID          string `json:"shardId"`
	ImagePath        string `json:"imagePath"`
	PreviewImagePath string `json:"previewImagePath"`
}

// ListParams are the caller-facing list options.
type ListParams struct {
	Sort        string
	GameVersion string
	ShardID     string
	Limit       int
	Offset      int
}

// Page returns the limit and offset List applies: an unset limit is
// repository.DefaultLimit, a larger one is capped at repository.MaxLimit.
func (p ListParams) Page() (limit, offset int) {
	limit = p.Limit
	if limit <= 0 {
		limit = repository.DefaultLimit
	}
	if limit > repository.MaxLimit {
		limit = repository.MaxLimit
	}
	return limit, max(p.Offset, 0)
}

// Create validates and saves a new item authored by the session's user.
//
// Items by an ADMIN are public immediately. Items by a CONTRIBUTOR start
// pending validation (IsPublic=false) and are only listed to their author
// and administrators.
func (s *ItemService) Create(ctx context.Context, session *model.Session, in CreateItemInput) (*model.Item, error) {
	if session == nil || session.UserID == "" {
		return nil, apperror.Unauthenticated()
	}
	if !auth.CanWrite(session) {
		return nil, apperror.Forbidden("your role cannot submit items")
	}

	in, err := validateCreate(in)
	if err != nil {
		return nil, err
	}

	authorID := session.UserID
	item := &model.Item{
		AuthorID:    &authorID,
		Location:    in.Location,
		Description: in.Description,
		GameVersion: in.GameVersion,
		ShardID:     in.ShardID,
		IsPublic:    session.Role == model.RoleAdmin,
	}
	if in.ImagePath != "" {
		item.ImagePath = &in.ImagePath
		item.PreviewImagePath = &in.PreviewImagePath
	}

	if err := s.items.Create(ctx, item); err != nil {
		s.logger.Error("failed to create item",
			slog.String("authorID", authorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating item: %w", err)
	}

	s.logger.Info("item created",
		slog.String("id", item.ID),
		slog.String("authorID", authorID),
		slog.Bool("public", item.IsPublic),
	)

	return item, nil
}

// validateCreate trims and checks the input, returning the cleaned copy.
func validateCreate(in CreateItemInput) (CreateItemInput, error) {
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)
	in.GameVersion = strings.TrimSpace(in.GameVersion)
	in.ShardID = strings.TrimSpace(in.ShardID)
	in.ImagePath = strings.TrimSpace(in.ImagePath)
	in.PreviewImagePath = strings.TrimSpace(in.PreviewImagePath)

	required := []struct {
		field, value string
		max          int
	}{
		{"location", in.Location, MaxLocationLength},
		{"description", in.Description, MaxDescriptionLength},
		{"gameVersion", in.GameVersion, MaxGameVersionLength},
		{"shardId", in.ShardID, MaxShardIDLength},
	}
	for _, r := range required {
		if r.value == "" {
			return in, apperror.ValidationFailed(r.field, r.field+" is required")
		}
		if len(r.value) > r.max {
			return in, apperror.ValidationFailed(r.field,
				fmt.Sprintf("%s must be %d characters or less", r.field, r.max))
		}
	}

	if (in.ImagePath == "") != (in.PreviewImagePath == "") {
		return in, apperror.ValidationFailed("imagePath",
			"imagePath and previewImagePath must be provided together")
	}
	if len(in.ImagePath) > MaxImagePathLength || len(in.PreviewImagePath) > MaxImagePathLength {
		return in, apperror.ValidationFailed("imagePath",
			fmt.Sprintf("image paths must be %d characters or less", MaxImagePathLength))
	}

	return in, nil
}

// Get returns one item as seen by session (nil for anonymous).
// A pending item is reported as not found to anyone but its author and admins.
func (s *ItemService) Get(ctx context.Context, session *model.Session, id string) (*model.ItemView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "item ID is required")
	}

	view, err := s.items.GetView(ctx, id, viewerID(session))
	if err != nil {
		return nil, err
	}
	if !canSee(session, &view.Item) {
		return nil, apperror.NotFound("item", id)
	}

	return view, nil
}

// List returns items for the list page.
//
// SORT OPTIONS:
//   - "recent" (default): newest first
//   - "favorite":         most liked first, ties broken by newest
func (s *ItemService) List(ctx context.Context, session *model.Session, p ListParams) ([]model.ItemView, error) {
	sort := strings.ToLower(strings.TrimSpace(p.Sort))
	switch sort {
	case "":
		sort = repository.SortRecent
	case repository.SortRecent, repository.SortFavorite:
	default:
		return nil, apperror.ValidationFailed("sort",
			fmt.Sprintf("sort must be %q or %q", repository.SortRecent, repository.SortFavorite))
	}

	limit, offset := p.Page()

	items, err := s.items.List(ctx, repository.ListOptions{
		Sort:          sort,
		GameVersion:   strings.TrimSpace(p.GameVersion),
		ShardID:       strings.TrimSpace(p.ShardID),
		ViewerID:      viewerID(session),
		ViewerIsAdmin: auth.CanAdminister(session),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		s.logger.Error("failed to list items", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing items: %w", err)
	}

	return items, nil
}

// Filters returns the game versions and shards the list can be narrowed to.
func (s *ItemService) Filters(ctx context.Context) (*model.Filters, error) {
	f, err := s.items.Filters(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading filters: %w", err)
	}
	return f, nil
}

// Delete removes an item and all of its likes.
//
//  1. Load the item; absent → NotFound.
//  2. auth.CanDelete(session, item.AuthorID); false → Forbidden, nothing deleted.
//  3. Delete likes and item in one transaction (repository.DeleteWithLikes).
//
// A concurrent delete that wins the race makes step 3 report NotFound.
func (s *ItemService) Delete(ctx context.Context, session *model.Session, id string) error {
	if session == nil {
		return apperror.Unauthenticated()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "item ID is required")
	}

	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !auth.CanDelete(session, ownerOf(item)) {
		s.logger.Warn("item delete forbidden",
			slog.String("id", id),
			slog.String("userID", session.UserID),
		)
		return apperror.Forbidden("you can only delete your own items")
	}

	if err := s.items.DeleteWithLikes(ctx, id); err != nil {
		return err
	}

	if err := s.counts.Invalidate(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate like count", slog.String("id", id), slog.String("error", err.Error()))
	}

	s.logger.Info("item deleted",
		slog.String("id", id),
		slog.String("by", session.UserID),
	)
	return nil
}

// canSee reports whether session may see item: public items are visible to
// everyone, pending ones to the author and admins.
func canSee(session *model.Session, item *model.Item) bool {
	if item.IsPublic || auth.CanAdminister(session) {
		return true
	}
	return session != nil && item.OwnedBy(session.UserID)
}

func ownerOf(item *model.Item) string {
	if item.AuthorID == nil {
		return ""
	}
	return *item.AuthorID
}

func viewerID(session *model.Session) string {
	if session == nil {
		return ""
	}
	return session.UserID
}
