package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/item-atlas/internal/apperror"
	"github.com/sakif/item-atlas/internal/auth"
	"github.com/sakif/item-atlas/internal/model"
	"github.com/sakif/item-atlas/internal/service"
)

// ItemHandler serves the item list, single items and likes.
//
// The handler only parses and encodes. Every permission check happens in
// ItemService / LikeService, which get the session from the request context.
type ItemHandler struct {
	items  *service.ItemService
	likes  *service.LikeService
	logger *slog.Logger
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(items *service.ItemService, likes *service.LikeService, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{
		items:  items,
		likes:  likes,
		logger: logger,
	}
}

// ItemListResponse wraps the list so fields can be added without breaking clients.
// Limit and Offset are the values applied, not the ones asked for.
type ItemListResponse struct {
	Items  []model.ItemView `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// HandleList returns items.
//
// HTTP: GET /api/items?sort=recent|favorite&gameVersion=1.2&shard=eu-1&limit=20&offset=0
func (h *ItemHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	params := service.ListParams{
		Sort:        q.Get("sort"),
		GameVersion: q.Get("gameVersion"),
		ShardID:     q.Get("shard"),
		Limit:       limit,
		Offset:      offset,
	}

	items, err := h.items.List(r.Context(), auth.SessionFromContext(r.Context()), params)
	if err != nil {
		writeError(w, err)
		return
	}

	limit, offset = params.Page()
	writeJSON(w, http.StatusOK, ItemListResponse{Items: items, Limit: limit, Offset: offset})
}

// HandleFilters returns the game versions and shards to filter by.
//
// HTTP: GET /api/items/filters
func (h *ItemHandler) HandleFilters(w http.ResponseWriter, r *http.Request) {
	f, err := h.items.Filters(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HandleGet returns one item. likes and hasLiked come from the same read
// of the ledger.
//
// HTTP: GET /api/items/{id}
func (h *ItemHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.items.Get(r.Context(), auth.SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleCreate submits a new item.
//
// HTTP: POST /api/items
// REQUEST BODY: {"location": "...", "description": "...", "gameVersion": "1.2", "shardId": "eu-1"}
func (h *ItemHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateItemInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	item, err := h.items.Create(r.Context(), auth.SessionFromContext(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// HandleDelete removes an item and its likes.
//
// HTTP: DELETE /api/items/{id}
// Response: 204 No Content
func (h *ItemHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.items.Delete(r.Context(), auth.SessionFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLike likes an item and returns the fresh like state.
//
// HTTP: POST /api/items/{id}/like
// 409 means the caller already likes it; the client should reload its state.
func (h *ItemHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	state, err := h.likes.Like(r.Context(), auth.SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleUnlike removes the caller's like.
//
// HTTP: DELETE /api/items/{id}/like
func (h *ItemHandler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	state, err := h.likes.Unlike(r.Context(), auth.SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleLikes returns the like state of an item.
//
// HTTP: GET /api/items/{id}/likes
func (h *ItemHandler) HandleLikes(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	id := chi.URLParam(r, "id")

	// Same visibility rule as the item itself.
	if _, err := h.items.Get(r.Context(), session, id); err != nil {
		writeError(w, err)
		return
	}

	state, err := h.likes.State(r.Context(), session, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
