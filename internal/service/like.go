package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/item-atlas/internal/apperror"
	"github.com/sakif/item-atlas/internal/cache"
	"github.com/sakif/item-atlas/internal/metrics"
	"github.com/sakif/item-atlas/internal/model"
	"github.com/sakif/item-atlas/internal/repository"
)

// Like actions, used as metric labels.
const (
	actionLike   = "like"
	actionUnlike = "unlike"
)

// LikeService is the like ledger.
//
// INVARIANTS:
//   - at most one like per (user, item): the storage primary key enforces
//     it, a duplicate like is apperror.ErrConflict
//   - the like count is always COUNT(*) over the ledger; Item has no counter
//   - anonymous callers are rejected before the ledger is touched
//
// The like-count cache is read-through: a miss recounts from the ledger and
// stores the result, every mutation drops the entry and bumps its
// generation (see package cache).
type LikeService struct {
	items   repository.ItemRepository
	likes   repository.LikeRepository
	counts  cache.LikeCounts
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewLikeService creates a LikeService. counts may be cache.Nop{}, m may be nil.
func NewLikeService(
	items repository.ItemRepository,
	likes repository.LikeRepository,
	counts cache.LikeCounts,
	m *metrics.Metrics,
	logger *slog.Logger,
) *LikeService {
	return &LikeService{
		items:   items,
		likes:   likes,
		counts:  counts,
		metrics: m,
		logger:  logger,
	}
}

// LikeState is what the client needs to redraw a like button.
type LikeState struct {
	ItemID   string `json:"itemId"`
	Likes    int    `json:"likes"`
	HasLiked bool   `json:"hasLiked"`
}

// Like records that the session's user likes itemID.
//
// Errors: Unauthenticated (no session), NotFound (item gone or not visible),
// Conflict (already liked; the client should reload its state, not retry).
func (s *LikeService) Like(ctx context.Context, session *model.Session, itemID string) (*LikeState, error) {
	state, err := s.like(ctx, session, itemID)
	s.metrics.LikeMutation(actionLike, outcomeOf(err))
	return state, err
}

func (s *LikeService) like(ctx context.Context, session *model.Session, itemID string) (*LikeState, error) {
	itemID, err := s.checkMutation(ctx, session, itemID)
	if err != nil {
		return nil, err
	}

	if err := s.likes.Insert(ctx, session.UserID, itemID); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Info("duplicate like rejected",
				slog.String("itemID", itemID),
				slog.String("userID", session.UserID),
			)
		}
		return nil, err
	}
	s.invalidate(ctx, itemID)

	s.logger.Info("item liked", slog.String("itemID", itemID), slog.String("userID", session.UserID))
	return s.State(ctx, session, itemID)
}

// Unlike removes the session user's like of itemID. Unliking an item that
// was not liked is a no-op; unliking a deleted item is NotFound.
func (s *LikeService) Unlike(ctx context.Context, session *model.Session, itemID string) (*LikeState, error) {
	state, err := s.unlike(ctx, session, itemID)
	s.metrics.LikeMutation(actionUnlike, outcomeOf(err))
	return state, err
}

func (s *LikeService) unlike(ctx context.Context, session *model.Session, itemID string) (*LikeState, error) {
	itemID, err := s.checkMutation(ctx, session, itemID)
	if err != nil {
		return nil, err
	}

	if err := s.likes.Delete(ctx, session.UserID, itemID); err != nil {
		return nil, err
	}
	s.invalidate(ctx, itemID)

	s.logger.Info("item unliked", slog.String("itemID", itemID), slog.String("userID", session.UserID))
	return s.State(ctx, session, itemID)
}

// Toggle flips the like: currentlyLiked=true unlikes, false likes.
func (s *LikeService) Toggle(ctx context.Context, session *model.Session, itemID string, currentlyLiked bool) (*LikeState, error) {
	if currentlyLiked {
		return s.Unlike(ctx, session, itemID)
	}
	return s.Like(ctx, session, itemID)
}

// State returns the like count of itemID and whether session has liked it.
// Anonymous callers get HasLiked=false.
func (s *LikeService) State(ctx context.Context, session *model.Session, itemID string) (*LikeState, error) {
	count, err := s.Count(ctx, itemID)
	if err != nil {
		return nil, err
	}

	state := &LikeState{ItemID: itemID, Likes: count}
	if uid := viewerID(session); uid != "" {
		liked, err := s.likes.Exists(ctx, uid, itemID)
		if err != nil {
			return nil, fmt.Errorf("checking like: %w", err)
		}
		state.HasLiked = liked
	}
	return state, nil
}

// Count returns the number of likes of itemID, through the cache.
// A cache failure falls back to counting the ledger.
//
// The recount is only stored under the generation read before counting, so
// a like or unlike that lands in between leaves the entry empty instead of
// stale.
func (s *LikeService) Count(ctx context.Context, itemID string) (int, error) {
	n, ok, gen, err := s.counts.Get(ctx, itemID)
	switch {
	case err != nil:
		s.metrics.CacheLookup(metrics.CacheError)
		s.logger.Warn("like count cache unavailable", slog.String("error", err.Error()))
	case ok:
		s.metrics.CacheLookup(metrics.CacheHit)
		return n, nil
	default:
		s.metrics.CacheLookup(metrics.CacheMiss)
	}
	cacheUp := err == nil

	n, err = s.likes.Count(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("counting likes: %w", err)
	}
	if cacheUp {
		if err := s.counts.Set(ctx, itemID, n, gen); err != nil {
			s.logger.Warn("failed to cache like count", slog.String("error", err.Error()))
		}
	}
	return n, nil
}

// checkMutation runs the shared preconditions of like and unlike: a signed-in
// user with a directory record, and an item the user is allowed to see.
func (s *LikeService) checkMutation(ctx context.Context, session *model.Session, itemID string) (string, error) {
	if session == nil || session.UserID == "" {
		return "", apperror.Unauthenticated()
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return "", apperror.ValidationFailed("id", "item ID is required")
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return "", err
	}
	if !canSee(session, item) {
		return "", apperror.NotFound("item", itemID)
	}
	return itemID, nil
}

func (s *LikeService) invalidate(ctx context.Context, itemID string) {
	if err := s.counts.Invalidate(ctx, itemID); err != nil {
		s.logger.Warn("failed to invalidate like count",
			slog.String("itemID", itemID),
			slog.String("error", err.Error()),
		)
	}
}

// outcomeOf maps an error onto a short metric label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, apperror.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return "conflict"
	case errors.Is(err, apperror.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
