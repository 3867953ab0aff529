package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/item-atlas/internal/apperror"
	"github.com/sakif/item-atlas/internal/auth"
	"github.com/sakif/item-atlas/internal/model"
	"github.com/sakif/item-atlas/internal/repository"
)

// UserService is the user-management surface. Every method requires an
// administrator session.
type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// List returns every user in the directory.
func (s *UserService) List(ctx context.Context, session *model.Session) ([]model.User, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// SetRole changes a user's role. role is parsed case-insensitively.
func (s *UserService) SetRole(ctx context.Context, session *model.Session, id, role string) error {
	if err := requireAdmin(session); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "user ID is required")
	}
	r, err := model.ParseRole(role)
	if err != nil {
		return apperror.ValidationFailed("role", err.Error())
	}

	if err := s.users.SetRole(ctx, id, r); err != nil {
		return err
	}

	s.logger.Info("user role changed",
		slog.String("userID", id),
		slog.String("role", string(r)),
		slog.String("by", session.UserID),
	)
	return nil
}

func requireAdmin(session *model.Session) error {
	if session == nil {
		return apperror.Unauthenticated()
	}
	if !auth.CanAdminister(session) {
		return apperror.Forbidden("administrator role required")
	}
	return nil
}
