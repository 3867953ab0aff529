package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/item-atlas/internal/auth"
	"github.com/sakif/item-atlas/internal/service"
)

// UserHandler exposes user management to administrators.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleList returns every user.
//
// HTTP: GET /api/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context(), auth.SessionFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// HandleSetRole changes a user's role.
//
// HTTP: PUT /api/users/{id}/role
// REQUEST BODY: {"role": "CONTRIBUTOR"}
// Response: 204 No Content
func (h *UserHandler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.users.SetRole(r.Context(), auth.SessionFromContext(r.Context()), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
