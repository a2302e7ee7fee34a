package app

import (
	"context"
	"database/sql"
	"testing"

	"habitly/api/internal/store"
)

func TestMakeTrackerStartsEmpty(t *testing.T) {
	var inserted store.Tracker
	fs := &fakeStore{
		insertTrackerFn: func(ctx context.Context, tracker store.Tracker) error {
			inserted = tracker
			return nil
		},
	}
	tracker, err := newTestService(fs).MakeTracker(context.Background(), "usr_1", "  Morning Run  ")
	if err != nil {
		t.Fatalf("MakeTracker: %v", err)
	}
	if tracker.Title != "Morning Run" {
		t.Fatalf("got title %q, want trimmed", tracker.Title)
	}
	if len(inserted.Days) != store.TrackerDays {
		t.Fatalf("got %d day slots, want %d", len(inserted.Days), store.TrackerDays)
	}
	if inserted.CheckedDays() != 0 {
		t.Fatalf("new tracker has %d checked days", inserted.CheckedDays())
	}
}

func TestMakeTrackerDuplicateTitle(t *testing.T) {
	fs := &fakeStore{
		getTrackerFn: func(ctx context.Context, ownerID, title string) (store.Tracker, error) {
			return store.Tracker{ID: "trk_1", OwnerID: ownerID, Title: title}, nil
		},
	}
	_, err := newTestService(fs).MakeTracker(context.Background(), "usr_1", "Morning Run")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 409 || domainErr.Code != "CONFLICT" {
		t.Fatalf("got %d %q, want 409 CONFLICT", domainErr.Status, domainErr.Code)
	}
}

func TestMakeTrackerBlankTitle(t *testing.T) {
	_, err := newTestService(&fakeStore{}).MakeTracker(context.Background(), "usr_1", "   ")
	domainErr := asDomainError(t, err)
	if domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("got code %q, want VALIDATION_ERROR", domainErr.Code)
	}
}

func TestMakeTrackerReservedTitle(t *testing.T) {
	fs := &fakeStore{
		insertTrackerFn: func(ctx context.Context, tracker store.Tracker) error {
			t.Fatalf("inserted reserved title %q", tracker.Title)
			return nil
		},
	}
	for _, title := range []string{"shared", "id", "share", "unshare", "Shared", "ID"} {
		_, err := newTestService(fs).MakeTracker(context.Background(), "usr_1", title)
		domainErr := asDomainError(t, err)
		if domainErr.Code != "VALIDATION_ERROR" {
			t.Fatalf("title %q: got code %q, want VALIDATION_ERROR", title, domainErr.Code)
		}
	}
}

func TestCheckDayRecomputesProgression(t *testing.T) {
	var gotExp, gotLevel int
	fs := &fakeStore{
		setTrackerDayFn: func(ctx context.Context, ownerID, title string, day int, checked bool) (bool, error) {
			if day != 12 || !checked {
				t.Fatalf("SetTrackerDay(%d, %v)", day, checked)
			}
			return true, nil
		},
		trackerCheckedCountsFn: func(ctx context.Context, ownerID string) ([]int, error) {
			return []int{3, 5, 0}, nil
		},
		upsertLevelFn: func(ctx context.Context, userID string, exp, level int) error {
			gotExp, gotLevel = exp, level
			return nil
		},
	}
	if err := newTestService(fs).CheckDay(context.Background(), "usr_1", "Morning Run", 12); err != nil {
		t.Fatalf("CheckDay: %v", err)
	}
	if gotExp != 8 {
		t.Fatalf("got experience %d, want 8", gotExp)
	}
	if gotLevel != 1 {
		t.Fatalf("got level %d, want 1", gotLevel)
	}
}

func TestUncheckDayRecomputesProgression(t *testing.T) {
	var gotExp int
	fs := &fakeStore{
		setTrackerDayFn: func(ctx context.Context, ownerID, title string, day int, checked bool) (bool, error) {
			if checked {
				t.Fatal("expected uncheck")
			}
			return true, nil
		},
		trackerCheckedCountsFn: func(ctx context.Context, ownerID string) ([]int, error) {
			return []int{3, 4, 0}, nil
		},
		upsertLevelFn: func(ctx context.Context, userID string, exp, level int) error {
			gotExp = exp
			return nil
		},
	}
	if err := newTestService(fs).UncheckDay(context.Background(), "usr_1", "Morning Run", 12); err != nil {
		t.Fatalf("UncheckDay: %v", err)
	}
	if gotExp != 7 {
		t.Fatalf("got experience %d, want 7", gotExp)
	}
}

func TestCheckDayOutOfRange(t *testing.T) {
	service := newTestService(&fakeStore{
		setTrackerDayFn: func(ctx context.Context, ownerID, title string, day int, checked bool) (bool, error) {
			t.Fatal("store must not be reached for out-of-range days")
			return false, nil
		},
	})
	for _, day := range []int{-1, 365, 400} {
		err := service.CheckDay(context.Background(), "usr_1", "Morning Run", day)
		domainErr := asDomainError(t, err)
		if domainErr.Status != 422 || domainErr.Code != "RANGE_ERROR" {
			t.Fatalf("day %d: got %d %q, want 422 RANGE_ERROR", day, domainErr.Status, domainErr.Code)
		}
	}
}

func TestCheckDayMissingTracker(t *testing.T) {
	err := newTestService(&fakeStore{}).CheckDay(context.Background(), "usr_1", "Nope", 3)
	domainErr := asDomainError(t, err)
	if domainErr.Status != 404 || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("got %d %q, want 404 NOT_FOUND", domainErr.Status, domainErr.Code)
	}
}

func TestShareTrackerWithSelf(t *testing.T) {
	fs := &fakeStore{
		getUserByUsernameFn: func(ctx context.Context, username string) (store.User, error) {
			return store.User{ID: "usr_1", Username: username}, nil
		},
	}
	err := newTestService(fs).ShareTracker(context.Background(), "usr_1", "Morning Run", "me")
	domainErr := asDomainError(t, err)
	if domainErr.Code != "CONFLICT" {
		t.Fatalf("got code %q, want CONFLICT", domainErr.Code)
	}
}

func TestShareTrackerUnknownRecipient(t *testing.T) {
	err := newTestService(&fakeStore{}).ShareTracker(context.Background(), "usr_1", "Morning Run", "ghost")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 404 {
		t.Fatalf("got status %d, want 404", domainErr.Status)
	}
}

func TestShareTrackerIdempotent(t *testing.T) {
	shares := 0
	fs := &fakeStore{
		getUserByUsernameFn: func(ctx context.Context, username string) (store.User, error) {
			return store.User{ID: "usr_2", Username: username}, nil
		},
		getTrackerFn: func(ctx context.Context, ownerID, title string) (store.Tracker, error) {
			return store.Tracker{ID: "trk_1", OwnerID: ownerID, Title: title, Days: store.EmptyDays()}, nil
		},
		addTrackerShareFn: func(ctx context.Context, trackerID, recipientID string) error {
			shares++
			return nil
		},
	}
	service := newTestService(fs)
	for i := 0; i < 2; i++ {
		if err := service.ShareTracker(context.Background(), "usr_1", "Morning Run", "pat"); err != nil {
			t.Fatalf("ShareTracker #%d: %v", i+1, err)
		}
	}
	if shares != 2 {
		t.Fatalf("AddTrackerShare called %d times, want 2", shares)
	}
}

func TestUnshareTrackerAbsentIsNoop(t *testing.T) {
	fs := &fakeStore{
		getUserByUsernameFn: func(ctx context.Context, username string) (store.User, error) {
			return store.User{ID: "usr_2", Username: username}, nil
		},
		getTrackerFn: func(ctx context.Context, ownerID, title string) (store.Tracker, error) {
			return store.Tracker{ID: "trk_1", OwnerID: ownerID, Title: title, Days: store.EmptyDays()}, nil
		},
	}
	if err := newTestService(fs).UnshareTracker(context.Background(), "usr_1", "Morning Run", "pat"); err != nil {
		t.Fatalf("UnshareTracker: %v", err)
	}
}

func TestDeleteTrackerMissing(t *testing.T) {
	err := newTestService(&fakeStore{}).DeleteTracker(context.Background(), "usr_1", "Nope")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 404 {
		t.Fatalf("got status %d, want 404", domainErr.Status)
	}
}

func TestTotalCheckedDays(t *testing.T) {
	days := []byte(store.EmptyDays())
	for _, day := range []int{0, 90, 364} {
		days[day] = '1'
	}
	fs := &fakeStore{
		getTrackerFn: func(ctx context.Context, ownerID, title string) (store.Tracker, error) {
			return store.Tracker{ID: "trk_1", OwnerID: ownerID, Title: title, Days: string(days)}, nil
		},
	}
	total, err := newTestService(fs).TotalCheckedDays(context.Background(), "usr_1", "Morning Run")
	if err != nil {
		t.Fatalf("TotalCheckedDays: %v", err)
	}
	if total != 3 {
		t.Fatalf("got %d, want 3", total)
	}
}

func TestSharedTrackersTitleFilter(t *testing.T) {
	fs := &fakeStore{
		listSharedTrackersFn: func(ctx context.Context, recipientID string) ([]store.Tracker, error) {
			return []store.Tracker{
				{ID: "trk_1", Title: "Morning Run", Days: store.EmptyDays()},
				{ID: "trk_2", Title: "Reading", Days: store.EmptyDays()},
			}, nil
		},
	}
	trackers, err := newTestService(fs).SharedTrackers(context.Background(), "usr_2", "Reading")
	if err != nil {
		t.Fatalf("SharedTrackers: %v", err)
	}
	if len(trackers) != 1 || trackers[0].ID != "trk_2" {
		t.Fatalf("got %+v, want only trk_2", trackers)
	}
}

func TestTrackerByIDMissing(t *testing.T) {
	fs := &fakeStore{
		getTrackerByIDFn: func(ctx context.Context, id string) (store.Tracker, error) {
			return store.Tracker{}, sql.ErrNoRows
		},
	}
	_, err := newTestService(fs).TrackerByID(context.Background(), "trk_missing")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 404 {
		t.Fatalf("got status %d, want 404", domainErr.Status)
	}
}
