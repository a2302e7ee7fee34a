package app

import (
	"context"
	"strings"

	"habitly/api/internal/store"
	"habitly/api/internal/util"
)

// CategoryRoot is the parent of the default collections.
const CategoryRoot = "Root"

// DefaultCategories are the root collections every regular user gets at
// first sign-in. Summary counts are ordered to match.
var DefaultCategories = []string{
	"Lifestyle",
	"HealthAndFitness",
	"Entertainment",
	"FoodAndCooking",
	"FashionAndBeauty",
	"EducationAndDIY",
}

func isDefaultCategory(name string) bool {
	for _, category := range DefaultCategories {
		if category == name {
			return true
		}
	}
	return false
}

// EnsureDefaultCollections creates any missing default root collections for
// the user. Safe to call on every sign-in.
func (s *Service) EnsureDefaultCollections(ctx context.Context, ownerID string) error {
	for _, category := range DefaultCategories {
		if _, err := s.store.GetCollection(ctx, ownerID, category); err == nil {
			continue
		}
		if err := s.store.InsertCollection(ctx, store.Collection{
			ID:      util.NewID("col"),
			OwnerID: ownerID,
			Parent:  CategoryRoot,
			Title:   category,
		}); err != nil {
			return err
		}
	}
	return nil
}

// CreateCollection makes a collection under a parent category. A parent that
// is not one of the default categories falls back to Lifestyle.
func (s *Service) CreateCollection(ctx context.Context, ownerID, parent, title, deadline string) (store.Collection, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Collection{}, validation("title is required")
	}
	if !isDefaultCategory(parent) {
		parent = DefaultCategories[0]
	}
	if _, err := s.store.GetCollection(ctx, ownerID, title); err == nil {
		return store.Collection{}, conflict("You already have a collection with that title")
	}
	collection := store.Collection{
		ID:       util.NewID("col"),
		OwnerID:  ownerID,
		Parent:   parent,
		Title:    title,
		Deadline: strings.TrimSpace(deadline),
	}
	if err := s.store.InsertCollection(ctx, collection); err != nil {
		return store.Collection{}, err
	}
	return collection, nil
}

func (s *Service) Collections(ctx context.Context, ownerID string) ([]store.Collection, error) {
	return s.store.ListCollections(ctx, ownerID)
}

// CollectionContents returns the posts saved in one collection.
func (s *Service) CollectionContents(ctx context.Context, ownerID, title string) ([]store.Post, error) {
	collection, err := s.store.GetCollection(ctx, ownerID, title)
	if err != nil {
		return nil, notFound("Collection not found")
	}
	return s.store.ListCollectionPosts(ctx, collection.ID)
}

// AddToCollection saves a post into a collection and refreshes the owner's
// summary counts.
func (s *Service) AddToCollection(ctx context.Context, ownerID, title, postID string) error {
	collection, err := s.store.GetCollection(ctx, ownerID, title)
	if err != nil {
		return notFound("Collection not found")
	}
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return notFound("Post not found")
	}
	if err := s.store.AddPostToCollection(ctx, collection.ID, postID); err != nil {
		return err
	}
	return s.recomputeSummary(ctx, ownerID)
}

// RemoveFromCollection drops a post from a collection and refreshes the
// owner's summary counts. Removing an absent post is a no-op.
func (s *Service) RemoveFromCollection(ctx context.Context, ownerID, title, postID string) error {
	collection, err := s.store.GetCollection(ctx, ownerID, title)
	if err != nil {
		return notFound("Collection not found")
	}
	if err := s.store.RemovePostFromCollection(ctx, collection.ID, postID); err != nil {
		return err
	}
	return s.recomputeSummary(ctx, ownerID)
}

// UpdateCollectionDeadline sets a new deadline on the collection.
func (s *Service) UpdateCollectionDeadline(ctx context.Context, ownerID, title, deadline string) error {
	found, err := s.store.UpdateCollectionDeadline(ctx, ownerID, title, deadline)
	if err != nil {
		return err
	}
	if !found {
		return notFound("Collection not found")
	}
	return nil
}

// ShareCollection grants the recipient read access. Idempotent.
func (s *Service) ShareCollection(ctx context.Context, ownerID, title, recipientUsername string) error {
	recipient, err := s.store.GetUserByUsername(ctx, recipientUsername)
	if err != nil {
		return notFound("User not found")
	}
	if recipient.ID == ownerID {
		return conflict("You cannot share a collection with yourself")
	}
	collection, err := s.store.GetCollection(ctx, ownerID, title)
	if err != nil {
		return notFound("Collection not found")
	}
	return s.store.AddCollectionShare(ctx, collection.ID, recipient.ID)
}

// UnshareCollection revokes the recipient's access; no-op when absent.
func (s *Service) UnshareCollection(ctx context.Context, ownerID, title, recipientUsername string) error {
	recipient, err := s.store.GetUserByUsername(ctx, recipientUsername)
	if err != nil {
		return notFound("User not found")
	}
	collection, err := s.store.GetCollection(ctx, ownerID, title)
	if err != nil {
		return notFound("Collection not found")
	}
	return s.store.RemoveCollectionShare(ctx, collection.ID, recipient.ID)
}

// SharedCollections returns collections shared to recipientID, optionally
// filtered to a title.
func (s *Service) SharedCollections(ctx context.Context, recipientID, title string) ([]store.Collection, error) {
	collections, err := s.store.ListSharedCollections(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return collections, nil
	}
	filtered := make([]store.Collection, 0, len(collections))
	for _, collection := range collections {
		if collection.Title == title {
			filtered = append(filtered, collection)
		}
	}
	return filtered, nil
}

// DeleteCollection removes the collection, its saved-post links, and its
// shares.
func (s *Service) DeleteCollection(ctx context.Context, ownerID, title string) error {
	found, err := s.store.DeleteCollection(ctx, ownerID, title)
	if err != nil {
		return err
	}
	if !found {
		return notFound("Collection not found")
	}
	return nil
}

// DeleteCollections removes every collection the user owns. Idempotent.
func (s *Service) DeleteCollections(ctx context.Context, ownerID string) error {
	return s.store.DeleteCollections(ctx, ownerID)
}

// recomputeSummary rewrites the user's per-category saved-post counts from
// the current contents of the default collections.
func (s *Service) recomputeSummary(ctx context.Context, ownerID string) error {
	counts := make([]int, 0, len(DefaultCategories))
	for _, category := range DefaultCategories {
		collection, err := s.store.GetCollection(ctx, ownerID, category)
		if err != nil {
			counts = append(counts, 0)
			continue
		}
		length, err := s.store.CollectionLength(ctx, collection.ID)
		if err != nil {
			return err
		}
		counts = append(counts, length)
	}
	return s.store.UpsertSummary(ctx, ownerID, counts)
}

// Summary returns the saved-post counts for a user looked up by username.
func (s *Service) Summary(ctx context.Context, username string) (store.Summary, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return store.Summary{}, notFound("User not found")
	}
	summary, err := s.store.GetSummary(ctx, user.ID)
	if err != nil {
		return store.Summary{}, notFound("No summary yet")
	}
	return summary, nil
}

// RecommendCategory returns the default category in which the caller has the
// fewest saved posts.
func (s *Service) RecommendCategory(ctx context.Context, userID string) (string, error) {
	summary, err := s.store.GetSummary(ctx, userID)
	if err != nil {
		return "", notFound("No summary yet")
	}
	if len(summary.Counts) == 0 {
		return DefaultCategories[0], nil
	}
	low := 0
	for i, count := range summary.Counts {
		if i < len(DefaultCategories) && count < summary.Counts[low] {
			low = i
		}
	}
	if low >= len(DefaultCategories) {
		low = 0
	}
	return DefaultCategories[low], nil
}
