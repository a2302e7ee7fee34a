package app

import (
	"context"
	"reflect"
	"testing"

	"habitly/api/internal/rbac"
	"habitly/api/internal/store"
)

func userLookup(users map[string]store.User) func(ctx context.Context, username string) (store.User, error) {
	return func(ctx context.Context, username string) (store.User, error) {
		for _, user := range users {
			if user.Username == username {
				return user, nil
			}
		}
		return store.User{}, errNoUser
	}
}

var errNoUser = notFound("User not found")

func TestSendRequestPendingConflict(t *testing.T) {
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_2": {ID: "usr_2", Username: "pat"},
		}),
		hasPendingRequestBetweenFn: func(ctx context.Context, a, b string) (bool, error) {
			return true, nil
		},
	}
	err := newTestService(fs).SendRequest(context.Background(), "usr_1", "pat")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 409 {
		t.Fatalf("got status %d, want 409", domainErr.Status)
	}
}

func TestSendRequestReverseDirectionAlsoConflicts(t *testing.T) {
	// The pending check is direction-agnostic; the store is asked about the
	// pair, not the ordered edge.
	var askedA, askedB string
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_2": {ID: "usr_2", Username: "pat"},
		}),
		hasPendingRequestBetweenFn: func(ctx context.Context, a, b string) (bool, error) {
			askedA, askedB = a, b
			return true, nil
		},
	}
	err := newTestService(fs).SendRequest(context.Background(), "usr_1", "pat")
	asDomainError(t, err)
	if askedA != "usr_1" || askedB != "usr_2" {
		t.Fatalf("asked about (%q, %q)", askedA, askedB)
	}
}

func TestSendRequestToSelf(t *testing.T) {
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_1": {ID: "usr_1", Username: "me"},
		}),
	}
	err := newTestService(fs).SendRequest(context.Background(), "usr_1", "me")
	domainErr := asDomainError(t, err)
	if domainErr.Code != "CONFLICT" {
		t.Fatalf("got code %q, want CONFLICT", domainErr.Code)
	}
}

func TestSendRequestAlreadyFriends(t *testing.T) {
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_2": {ID: "usr_2", Username: "pat"},
		}),
		areFriendsFn: func(ctx context.Context, a, b string) (bool, error) {
			return true, nil
		},
	}
	err := newTestService(fs).SendRequest(context.Background(), "usr_1", "pat")
	domainErr := asDomainError(t, err)
	if domainErr.Code != "CONFLICT" {
		t.Fatalf("got code %q, want CONFLICT", domainErr.Code)
	}
}

func TestAcceptRequestMissing(t *testing.T) {
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_2": {ID: "usr_2", Username: "pat"},
		}),
	}
	err := newTestService(fs).AcceptRequest(context.Background(), "pat", "usr_1")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 404 {
		t.Fatalf("got status %d, want 404", domainErr.Status)
	}
}

func TestAcceptRequestConsumesPendingRow(t *testing.T) {
	var acceptedFrom, acceptedTo string
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_2": {ID: "usr_2", Username: "pat"},
		}),
		acceptFriendRequestFn: func(ctx context.Context, fromID, toID string) (bool, error) {
			acceptedFrom, acceptedTo = fromID, toID
			return true, nil
		},
	}
	if err := newTestService(fs).AcceptRequest(context.Background(), "pat", "usr_1"); err != nil {
		t.Fatalf("AcceptRequest: %v", err)
	}
	if acceptedFrom != "usr_2" || acceptedTo != "usr_1" {
		t.Fatalf("accepted (%q, %q)", acceptedFrom, acceptedTo)
	}
}

func TestRejectRequestMissing(t *testing.T) {
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_2": {ID: "usr_2", Username: "pat"},
		}),
	}
	err := newTestService(fs).RejectRequest(context.Background(), "pat", "usr_1")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 404 {
		t.Fatalf("got status %d, want 404", domainErr.Status)
	}
}

func TestFollowSelf(t *testing.T) {
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_1": {ID: "usr_1", Username: "me"},
		}),
	}
	err := newTestService(fs).Follow(context.Background(), "usr_1", "me")
	domainErr := asDomainError(t, err)
	if domainErr.Code != "CONFLICT" {
		t.Fatalf("got code %q, want CONFLICT", domainErr.Code)
	}
}

func TestFollowSkipsRequestCycle(t *testing.T) {
	inserted := false
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_2": {ID: "usr_2", Username: "pat"},
		}),
		insertFriendRequestFn: func(ctx context.Context, fromID, toID string) error {
			t.Fatal("Follow must not create a friend request")
			return nil
		},
		insertFriendshipFn: func(ctx context.Context, a, b string) error {
			inserted = true
			return nil
		},
	}
	if err := newTestService(fs).Follow(context.Background(), "usr_1", "pat"); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if !inserted {
		t.Fatal("expected friendship insert")
	}
}

func TestUnfollowAbsentEdgeIsNoop(t *testing.T) {
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_2": {ID: "usr_2", Username: "pat"},
		}),
	}
	if err := newTestService(fs).Unfollow(context.Background(), "usr_1", "pat"); err != nil {
		t.Fatalf("Unfollow: %v", err)
	}
}

func TestFollowersFollowingsSplitByRole(t *testing.T) {
	fs := &fakeStore{
		listFriendsFn: func(ctx context.Context, userID string) ([]store.User, error) {
			return []store.User{
				{ID: "usr_2", Username: "pat", Role: string(rbac.RoleRegularUser)},
				{ID: "usr_3", Username: "coach", Role: string(rbac.RoleContentCreator)},
				{ID: "usr_4", Username: "sam", Role: string(rbac.RoleRegularUser)},
			}, nil
		},
	}
	service := newTestService(fs)

	followers, err := service.Followers(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("Followers: %v", err)
	}
	if !reflect.DeepEqual(followers, []string{"pat", "sam"}) {
		t.Fatalf("followers = %v", followers)
	}

	followings, err := service.Followings(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("Followings: %v", err)
	}
	if !reflect.DeepEqual(followings, []string{"coach"}) {
		t.Fatalf("followings = %v", followings)
	}
}

func TestRequestsResolveUsernames(t *testing.T) {
	fs := &fakeStore{
		listPendingRequestsFn: func(ctx context.Context, toID string) ([]store.FriendRequest, error) {
			return []store.FriendRequest{{FromID: "usr_2", ToID: "usr_1"}}, nil
		},
		usernamesByIDsFn: func(ctx context.Context, ids []string) (map[string]string, error) {
			return map[string]string{"usr_1": "me", "usr_2": "pat"}, nil
		},
	}
	requests, err := newTestService(fs).Requests(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	want := []PendingRequest{{From: "pat", To: "me"}}
	if !reflect.DeepEqual(requests, want) {
		t.Fatalf("requests = %v, want %v", requests, want)
	}
}
