package app

import (
	"context"
	"reflect"
	"testing"

	"habitly/api/internal/store"
)

func TestEnsureDefaultCollectionsCreatesMissing(t *testing.T) {
	existing := map[string]store.Collection{
		"Lifestyle": {ID: "col_1", OwnerID: "usr_1", Parent: CategoryRoot, Title: "Lifestyle"},
	}
	var created []store.Collection
	fs := &fakeStore{
		getCollectionFn: func(ctx context.Context, ownerID, title string) (store.Collection, error) {
			if collection, ok := existing[title]; ok {
				return collection, nil
			}
			return store.Collection{}, errNoUser
		},
		insertCollectionFn: func(ctx context.Context, c store.Collection) error {
			created = append(created, c)
			return nil
		},
	}
	if err := newTestService(fs).EnsureDefaultCollections(context.Background(), "usr_1"); err != nil {
		t.Fatalf("EnsureDefaultCollections: %v", err)
	}
	if len(created) != len(DefaultCategories)-1 {
		t.Fatalf("created %d collections, want %d", len(created), len(DefaultCategories)-1)
	}
	for _, collection := range created {
		if collection.Parent != CategoryRoot {
			t.Fatalf("collection %q has parent %q", collection.Title, collection.Parent)
		}
		if collection.Title == "Lifestyle" {
			t.Fatal("recreated an existing default collection")
		}
	}
}

func TestCreateCollectionUnknownParentFallsBack(t *testing.T) {
	var inserted store.Collection
	fs := &fakeStore{
		insertCollectionFn: func(ctx context.Context, c store.Collection) error {
			inserted = c
			return nil
		},
	}
	_, err := newTestService(fs).CreateCollection(context.Background(), "usr_1", "NotACategory", "Runs", "")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if inserted.Parent != "Lifestyle" {
		t.Fatalf("got parent %q, want Lifestyle", inserted.Parent)
	}
}

func TestCreateCollectionDuplicateTitle(t *testing.T) {
	fs := &fakeStore{
		getCollectionFn: func(ctx context.Context, ownerID, title string) (store.Collection, error) {
			return store.Collection{ID: "col_1", OwnerID: ownerID, Title: title}, nil
		},
	}
	_, err := newTestService(fs).CreateCollection(context.Background(), "usr_1", "Lifestyle", "Runs", "")
	domainErr := asDomainError(t, err)
	if domainErr.Code != "CONFLICT" {
		t.Fatalf("got code %q, want CONFLICT", domainErr.Code)
	}
}

func TestAddToCollectionRefreshesSummary(t *testing.T) {
	collections := map[string]store.Collection{
		"Lifestyle":        {ID: "col_life", Title: "Lifestyle"},
		"Runs":             {ID: "col_runs", Title: "Runs"},
		"HealthAndFitness": {ID: "col_health", Title: "HealthAndFitness"},
	}
	lengths := map[string]int{"col_life": 2, "col_health": 1}
	var summary []int
	fs := &fakeStore{
		getCollectionFn: func(ctx context.Context, ownerID, title string) (store.Collection, error) {
			if collection, ok := collections[title]; ok {
				return collection, nil
			}
			return store.Collection{}, errNoUser
		},
		getPostFn: func(ctx context.Context, id string) (store.Post, error) {
			return store.Post{ID: id}, nil
		},
		collectionLengthFn: func(ctx context.Context, collectionID string) (int, error) {
			return lengths[collectionID], nil
		},
		upsertSummaryFn: func(ctx context.Context, userID string, counts []int) error {
			summary = counts
			return nil
		},
	}
	if err := newTestService(fs).AddToCollection(context.Background(), "usr_1", "Runs", "pst_1"); err != nil {
		t.Fatalf("AddToCollection: %v", err)
	}
	want := []int{2, 1, 0, 0, 0, 0}
	if !reflect.DeepEqual(summary, want) {
		t.Fatalf("summary = %v, want %v", summary, want)
	}
}

func TestAddToCollectionMissingPost(t *testing.T) {
	fs := &fakeStore{
		getCollectionFn: func(ctx context.Context, ownerID, title string) (store.Collection, error) {
			return store.Collection{ID: "col_1", Title: title}, nil
		},
	}
	err := newTestService(fs).AddToCollection(context.Background(), "usr_1", "Runs", "pst_missing")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 404 {
		t.Fatalf("got status %d, want 404", domainErr.Status)
	}
}

func TestRemoveFromCollectionAbsentPostIsNoop(t *testing.T) {
	fs := &fakeStore{
		getCollectionFn: func(ctx context.Context, ownerID, title string) (store.Collection, error) {
			return store.Collection{ID: "col_1", Title: title}, nil
		},
	}
	if err := newTestService(fs).RemoveFromCollection(context.Background(), "usr_1", "Runs", "pst_gone"); err != nil {
		t.Fatalf("RemoveFromCollection: %v", err)
	}
}

func TestUpdateDeadlineMissingCollection(t *testing.T) {
	err := newTestService(&fakeStore{}).UpdateCollectionDeadline(context.Background(), "usr_1", "Nope", "2026-12-31")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 404 {
		t.Fatalf("got status %d, want 404", domainErr.Status)
	}
}

func TestRecommendCategoryPicksLowestCount(t *testing.T) {
	fs := &fakeStore{
		getSummaryFn: func(ctx context.Context, userID string) (store.Summary, error) {
			return store.Summary{UserID: userID, Counts: []int{4, 2, 7, 1, 3, 5}}, nil
		},
	}
	category, err := newTestService(fs).RecommendCategory(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("RecommendCategory: %v", err)
	}
	if category != "FoodAndCooking" {
		t.Fatalf("got %q, want FoodAndCooking", category)
	}
}

func TestRecommendCategoryNoSummary(t *testing.T) {
	_, err := newTestService(&fakeStore{}).RecommendCategory(context.Background(), "usr_1")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 404 {
		t.Fatalf("got status %d, want 404", domainErr.Status)
	}
}

func TestSummaryByUsername(t *testing.T) {
	fs := &fakeStore{
		getUserByUsernameFn: userLookup(map[string]store.User{
			"usr_1": {ID: "usr_1", Username: "dana"},
		}),
		getSummaryFn: func(ctx context.Context, userID string) (store.Summary, error) {
			return store.Summary{UserID: userID, Counts: []int{1, 0, 0, 0, 0, 2}}, nil
		},
	}
	summary, err := newTestService(fs).Summary(context.Background(), "dana")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !reflect.DeepEqual(summary.Counts, []int{1, 0, 0, 0, 0, 2}) {
		t.Fatalf("counts = %v", summary.Counts)
	}
}
