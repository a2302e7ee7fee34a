package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"habitly/api/internal/search"
	"habitly/api/internal/store"
	"habitly/api/internal/util"
)

// CreatePost stores a new post and pushes it to the search index.
func (s *Service) CreatePost(ctx context.Context, authorID, content, category, backgroundColor string) (store.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return store.Post{}, validation("content is required")
	}
	post := store.Post{
		ID:              util.NewID("pst"),
		AuthorID:        authorID,
		Content:         content,
		Category:        strings.TrimSpace(category),
		BackgroundColor: strings.TrimSpace(backgroundColor),
	}
	if err := s.store.InsertPost(ctx, post); err != nil {
		return store.Post{}, err
	}
	s.indexPost(post)
	return post, nil
}

func (s *Service) Post(ctx context.Context, postID string) (store.Post, error) {
	return s.store.GetPost(ctx, postID)
}

// Posts lists posts, optionally narrowed by author username, category, or
// author role. Filters compose.
func (s *Service) Posts(ctx context.Context, authorUsername, category, role string) ([]store.Post, error) {
	var posts []store.Post
	var err error

	switch {
	case authorUsername != "":
		author, lookupErr := s.store.GetUserByUsername(ctx, authorUsername)
		if lookupErr != nil {
			return nil, notFound("User not found")
		}
		posts, err = s.store.ListPostsByAuthor(ctx, author.ID)
	case category != "" && category != "All":
		posts, err = s.store.ListPostsByCategory(ctx, category)
	default:
		posts, err = s.store.ListPosts(ctx)
	}
	if err != nil {
		return nil, err
	}

	if category != "" && category != "All" && authorUsername != "" {
		posts = filterPosts(posts, func(p store.Post) bool { return p.Category == category })
	}
	if role != "" {
		authors, err := s.store.ListUsersByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]struct{}, len(authors))
		for _, author := range authors {
			byID[author.ID] = struct{}{}
		}
		posts = filterPosts(posts, func(p store.Post) bool {
			_, ok := byID[p.AuthorID]
			return ok
		})
	}
	return posts, nil
}

func filterPosts(posts []store.Post, keep func(store.Post) bool) []store.Post {
	filtered := make([]store.Post, 0, len(posts))
	for _, post := range posts {
		if keep(post) {
			filtered = append(filtered, post)
		}
	}
	return filtered
}

// UpdatePost patches a post's fields; blank fields keep their value. Only
// the author may update.
func (s *Service) UpdatePost(ctx context.Context, postID, actorID, content, category, backgroundColor string) (store.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, notFound("Post not found")
	}
	if post.AuthorID != actorID {
		return store.Post{}, forbidden()
	}
	if _, err := s.store.UpdatePost(ctx, postID, content, category, backgroundColor); err != nil {
		return store.Post{}, err
	}
	updated, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}
	s.indexPost(updated)
	return updated, nil
}

// DeletePost removes a post. Only the author may delete.
func (s *Service) DeletePost(ctx context.Context, postID, actorID string) error {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return notFound("Post not found")
	}
	if post.AuthorID != actorID {
		return forbidden()
	}
	if err := s.store.DeletePost(ctx, postID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeletePost(postID)
	}
	if s.uploads != nil && post.ImageKey != "" {
		_ = s.uploads.Remove(ctx, post.ImageKey)
	}
	return nil
}

// IncrementPostQuality raises the quality rating by one.
func (s *Service) IncrementPostQuality(ctx context.Context, postID string) error {
	return s.adjustQuality(ctx, postID, 1)
}

// DecrementPostQuality lowers the quality rating by one.
func (s *Service) DecrementPostQuality(ctx context.Context, postID string) error {
	return s.adjustQuality(ctx, postID, -1)
}

func (s *Service) adjustQuality(ctx context.Context, postID string, delta int) error {
	found, err := s.store.AdjustPostQuality(ctx, postID, delta)
	if err != nil {
		return err
	}
	if !found {
		return notFound("Post not found")
	}
	return nil
}

// AttachPostImage uploads an image to object storage and records its key on
// the post. Only the author may attach.
func (s *Service) AttachPostImage(ctx context.Context, postID, actorID string, body io.Reader, size int64, contentType string) (string, error) {
	if s.uploads == nil {
		return "", domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Image storage is not configured", nil)
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return "", notFound("Post not found")
	}
	if post.AuthorID != actorID {
		return "", forbidden()
	}

	key := "posts/" + postID + "/" + util.NewID("img")
	if _, err := s.uploads.Put(ctx, key, body, size, contentType); err != nil {
		return "", err
	}
	if _, err := s.store.SetPostImage(ctx, postID, key); err != nil {
		return "", err
	}
	if post.ImageKey != "" && post.ImageKey != key {
		_ = s.uploads.Remove(ctx, post.ImageKey)
	}
	return key, nil
}

// PostImageURL returns a time-limited download URL for the post's image.
func (s *Service) PostImageURL(ctx context.Context, postID string) (string, error) {
	if s.uploads == nil {
		return "", domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Image storage is not configured", nil)
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return "", notFound("Post not found")
	}
	if post.ImageKey == "" {
		return "", notFound("Post has no image")
	}
	return s.uploads.PresignedURL(ctx, post.ImageKey, 15*time.Minute)
}

// SearchPosts runs a full-text query over posts.
func (s *Service) SearchPosts(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) indexPost(post store.Post) {
	if s.search == nil {
		return
	}
	s.search.IndexPost(search.PostRecord{
		ID:       post.ID,
		AuthorID: post.AuthorID,
		Content:  post.Content,
		Category: post.Category,
	})
}
