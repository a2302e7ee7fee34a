package app

import (
	"context"
	"testing"

	"habitly/api/internal/search"
	"habitly/api/internal/store"
)

func TestCreatePostRequiresContent(t *testing.T) {
	_, err := newTestService(&fakeStore{}).CreatePost(context.Background(), "usr_1", "   ", "Lifestyle", "")
	domainErr := asDomainError(t, err)
	if domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("got code %q, want VALIDATION_ERROR", domainErr.Code)
	}
}

func TestPostsComposeAuthorAndCategoryFilters(t *testing.T) {
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_2": {ID: "usr_2", Username: "coach"},
		}),
		listPostsByAuthorFn: func(ctx context.Context, authorID string) ([]store.Post, error) {
			return []store.Post{
				{ID: "pst_1", AuthorID: authorID, Category: "Lifestyle"},
				{ID: "pst_2", AuthorID: authorID, Category: "Entertainment"},
			}, nil
		},
	}
	posts, err := newTestService(fs).Posts(context.Background(), "coach", "Entertainment", "")
	if err != nil {
		t.Fatalf("Posts: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != "pst_2" {
		t.Fatalf("got %+v, want only pst_2", posts)
	}
}

func TestPostsAllCategoryIsPassthrough(t *testing.T) {
	fs := &fakeStore{
		listPostsFn: func(ctx context.Context) ([]store.Post, error) {
			return []store.Post{{ID: "pst_1"}, {ID: "pst_2"}}, nil
		},
		listPostsByCategoryFn: func(ctx context.Context, category string) ([]store.Post, error) {
			t.Fatalf("category query for %q; All must not filter", category)
			return nil, nil
		},
	}
	posts, err := newTestService(fs).Posts(context.Background(), "", "All", "")
	if err != nil {
		t.Fatalf("Posts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}
}

func TestPostsRoleFilter(t *testing.T) {
	fs := &fakeStore{
		listPostsFn: func(ctx context.Context) ([]store.Post, error) {
			return []store.Post{
				{ID: "pst_1", AuthorID: "usr_2"},
				{ID: "pst_2", AuthorID: "usr_3"},
			}, nil
		},
		listUsersByRoleFn: func(ctx context.Context, role string) ([]store.User, error) {
			return []store.User{{ID: "usr_3", Role: role}}, nil
		},
	}
	posts, err := newTestService(fs).Posts(context.Background(), "", "", "ContentCreator")
	if err != nil {
		t.Fatalf("Posts: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != "pst_2" {
		t.Fatalf("got %+v, want only pst_2", posts)
	}
}

func TestUpdatePostByNonAuthor(t *testing.T) {
	fs := &fakeStore{
		getPostFn: func(ctx context.Context, id string) (store.Post, error) {
			return store.Post{ID: id, AuthorID: "usr_2"}, nil
		},
	}
	_, err := newTestService(fs).UpdatePost(context.Background(), "pst_1", "usr_1", "new content", "", "")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 403 || domainErr.Code != "FORBIDDEN" {
		t.Fatalf("got %d %q, want 403 FORBIDDEN", domainErr.Status, domainErr.Code)
	}
}

func TestUpdatePostBlankFieldsKeepValues(t *testing.T) {
	var gotContent, gotCategory, gotColor string
	fs := &fakeStore{
		getPostFn: func(ctx context.Context, id string) (store.Post, error) {
			return store.Post{ID: id, AuthorID: "usr_1", Content: "old", Category: "Lifestyle"}, nil
		},
		updatePostFn: func(ctx context.Context, id, content, category, backgroundColor string) (bool, error) {
			gotContent, gotCategory, gotColor = content, category, backgroundColor
			return true, nil
		},
	}
	if _, err := newTestService(fs).UpdatePost(context.Background(), "pst_1", "usr_1", "", "Entertainment", ""); err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	// The store treats blank fields as keep-current; the service passes them
	// through untouched.
	if gotContent != "" || gotCategory != "Entertainment" || gotColor != "" {
		t.Fatalf("store got (%q, %q, %q)", gotContent, gotCategory, gotColor)
	}
}

func TestDeletePostByNonAuthor(t *testing.T) {
	fs := &fakeStore{
		getPostFn: func(ctx context.Context, id string) (store.Post, error) {
			return store.Post{ID: id, AuthorID: "usr_2"}, nil
		},
	}
	err := newTestService(fs).DeletePost(context.Background(), "pst_1", "usr_1")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 403 {
		t.Fatalf("got status %d, want 403", domainErr.Status)
	}
}

func TestAdjustQualityMissingPost(t *testing.T) {
	err := newTestService(&fakeStore{}).IncrementPostQuality(context.Background(), "pst_missing")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 404 {
		t.Fatalf("got status %d, want 404", domainErr.Status)
	}
}

func TestAttachPostImageWithoutUploads(t *testing.T) {
	_, err := newTestService(&fakeStore{}).AttachPostImage(context.Background(), "pst_1", "usr_1", nil, 0, "image/png")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 503 || domainErr.Code != "UPLOADS_UNAVAILABLE" {
		t.Fatalf("got %d %q, want 503 UPLOADS_UNAVAILABLE", domainErr.Status, domainErr.Code)
	}
}

func TestSearchPostsWithoutBackend(t *testing.T) {
	response := newTestService(&fakeStore{}).SearchPosts(context.Background(), search.Query{Text: "run"})
	if response.Results == nil {
		t.Fatal("results must be non-nil")
	}
	if len(response.Results) != 0 || response.Query != "run" {
		t.Fatalf("got %+v", response)
	}
}
