package app

import (
	"context"

	"habitly/api/internal/rbac"
	"habitly/api/internal/store"
)

// SendRequest creates a pending friend request. A pending request in either
// direction, or an existing friendship, is a Conflict.
func (s *Service) SendRequest(ctx context.Context, fromID, toUsername string) error {
	to, err := s.store.GetUserByUsername(ctx, toUsername)
	if err != nil {
		return notFound("User not found")
	}
	if to.ID == fromID {
		return conflict("You cannot send a friend request to yourself")
	}
	pending, err := s.store.HasPendingRequestBetween(ctx, fromID, to.ID)
	if err != nil {
		return err
	}
	if pending {
		return conflict("A friend request between you is already pending")
	}
	friends, err := s.store.AreFriends(ctx, fromID, to.ID)
	if err != nil {
		return err
	}
	if friends {
		return conflict("You are already friends")
	}
	return s.store.InsertFriendRequest(ctx, fromID, to.ID)
}

// RemoveRequest withdraws a pending request the caller sent.
func (s *Service) RemoveRequest(ctx context.Context, fromID, toUsername string) error {
	to, err := s.store.GetUserByUsername(ctx, toUsername)
	if err != nil {
		return notFound("User not found")
	}
	found, err := s.store.DeleteFriendRequest(ctx, fromID, to.ID)
	if err != nil {
		return err
	}
	if !found {
		return notFound("No pending friend request to that user")
	}
	return nil
}

// AcceptRequest consumes a pending request addressed to the caller and
// creates the symmetric friend edge in one transaction.
func (s *Service) AcceptRequest(ctx context.Context, fromUsername, toID string) error {
	from, err := s.store.GetUserByUsername(ctx, fromUsername)
	if err != nil {
		return notFound("User not found")
	}
	accepted, err := s.store.AcceptFriendRequest(ctx, from.ID, toID)
	if err != nil {
		return err
	}
	if !accepted {
		return notFound("No pending friend request from that user")
	}
	return nil
}

// RejectRequest deletes a pending request addressed to the caller; the pair
// returns to having no request.
func (s *Service) RejectRequest(ctx context.Context, fromUsername, toID string) error {
	from, err := s.store.GetUserByUsername(ctx, fromUsername)
	if err != nil {
		return notFound("User not found")
	}
	found, err := s.store.DeleteFriendRequest(ctx, from.ID, toID)
	if err != nil {
		return err
	}
	if !found {
		return notFound("No pending friend request from that user")
	}
	return nil
}

// Follow adds the friend edge directly, bypassing the request cycle. This is
// a separate path from accept; both mutate the same edge. Idempotent.
func (s *Service) Follow(ctx context.Context, userID, targetUsername string) error {
	target, err := s.store.GetUserByUsername(ctx, targetUsername)
	if err != nil {
		return notFound("User not found")
	}
	if target.ID == userID {
		return conflict("You cannot follow yourself")
	}
	return s.store.InsertFriendship(ctx, userID, target.ID)
}

// Unfollow removes the friend edge directly. Idempotent.
func (s *Service) Unfollow(ctx context.Context, userID, targetUsername string) error {
	target, err := s.store.GetUserByUsername(ctx, targetUsername)
	if err != nil {
		return notFound("User not found")
	}
	return s.store.DeleteFriendship(ctx, userID, target.ID)
}

// RemoveFriend removes the symmetric edge; both parties stop being friends
// in the same write.
func (s *Service) RemoveFriend(ctx context.Context, userID, friendUsername string) error {
	friend, err := s.store.GetUserByUsername(ctx, friendUsername)
	if err != nil {
		return notFound("User not found")
	}
	return s.store.DeleteFriendship(ctx, userID, friend.ID)
}

// Friends returns the usernames of everyone with a friend edge to userID.
func (s *Service) Friends(ctx context.Context, userID string) ([]string, error) {
	friends, err := s.store.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	return usernames(friends), nil
}

// Followers returns friends who are not content creators.
func (s *Service) Followers(ctx context.Context, userID string) ([]string, error) {
	return s.friendsByRole(ctx, userID, false)
}

// Followings returns friends who are content creators.
func (s *Service) Followings(ctx context.Context, userID string) ([]string, error) {
	return s.friendsByRole(ctx, userID, true)
}

func (s *Service) friendsByRole(ctx context.Context, userID string, creators bool) ([]string, error) {
	friends, err := s.store.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(friends))
	for _, friend := range friends {
		isCreator := rbac.Role(friend.Role) == rbac.RoleContentCreator
		if isCreator == creators {
			names = append(names, friend.Username)
		}
	}
	return names, nil
}

// PendingRequest is one incoming friend request with names resolved.
type PendingRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Requests returns all pending requests addressed to userID.
func (s *Service) Requests(ctx context.Context, userID string) ([]PendingRequest, error) {
	pending, err := s.store.ListPendingRequests(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pending)*2)
	for _, req := range pending {
		ids = append(ids, req.FromID, req.ToID)
	}
	names, err := s.store.UsernamesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	requests := make([]PendingRequest, 0, len(pending))
	for _, req := range pending {
		requests = append(requests, PendingRequest{
			From: names[req.FromID],
			To:   names[req.ToID],
		})
	}
	return requests, nil
}

func usernames(users []store.User) []string {
	names := make([]string, 0, len(users))
	for _, user := range users {
		names = append(names, user.Username)
	}
	return names
}
