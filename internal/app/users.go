package app

import (
	"context"
	"strings"

	"habitly/api/internal/store"
)

// UserView is the wire shape of a user; the password hash never leaves the
// service layer.
type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func toUserView(user store.User) UserView {
	return UserView{ID: user.ID, Username: user.Username, Role: user.Role}
}

// Users lists accounts, optionally narrowed to one role.
func (s *Service) Users(ctx context.Context, role string) ([]UserView, error) {
	var users []store.User
	var err error
	if role != "" {
		users, err = s.store.ListUsersByRole(ctx, role)
	} else {
		users, err = s.store.ListUsers(ctx)
	}
	if err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(users))
	for _, user := range users {
		views = append(views, toUserView(user))
	}
	return views, nil
}

func (s *Service) UserByUsername(ctx context.Context, username string) (UserView, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return UserView{}, notFound("User not found")
	}
	return toUserView(user), nil
}

// UpdateUsername renames the caller's account. Taken names are a Conflict.
func (s *Service) UpdateUsername(ctx context.Context, userID, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return validation("username is required")
	}
	if existing, err := s.store.GetUserByUsername(ctx, username); err == nil && existing.ID != userID {
		return conflict("Username already taken")
	}
	return s.store.UpdateUsername(ctx, userID, username)
}

// DeleteUser removes the account and everything hanging off it. Each step is
// idempotent, so an interrupted delete can be re-invoked safely.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.store.DeleteCollections(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteTrackers(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteFriendshipsOf(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteFriendRequestsOf(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteSummary(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteLevel(ctx, userID); err != nil {
		return err
	}
	return s.store.DeleteUser(ctx, userID)
}
