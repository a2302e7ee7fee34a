package app

import (
	"context"
	"strings"

	"habitly/api/internal/progression"
	"habitly/api/internal/store"
	"habitly/api/internal/util"
)

// reservedTrackerTitles are titles that collide with literal path segments
// under /api/trackers/ and would never be reachable by title.
var reservedTrackerTitles = map[string]bool{
	"shared":  true,
	"id":      true,
	"share":   true,
	"unshare": true,
}

// MakeTracker creates an all-unchecked tracker. Titles are unique per owner.
func (s *Service) MakeTracker(ctx context.Context, ownerID, title string) (store.Tracker, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Tracker{}, validation("title is required")
	}
	if reservedTrackerTitles[strings.ToLower(title)] {
		return store.Tracker{}, validation("that title is reserved")
	}
	if _, err := s.store.GetTracker(ctx, ownerID, title); err == nil {
		return store.Tracker{}, conflict("You already have a tracker with that title")
	}
	tracker := store.Tracker{
		ID:      util.NewID("trk"),
		OwnerID: ownerID,
		Title:   title,
		Days:    store.EmptyDays(),
	}
	if err := s.store.InsertTracker(ctx, tracker); err != nil {
		return store.Tracker{}, err
	}
	return tracker, nil
}

func (s *Service) Trackers(ctx context.Context, ownerID string) ([]store.Tracker, error) {
	return s.store.ListTrackers(ctx, ownerID)
}

func (s *Service) TrackerByID(ctx context.Context, trackerID string) (store.Tracker, error) {
	tracker, err := s.store.GetTrackerByID(ctx, trackerID)
	if err != nil {
		return store.Tracker{}, notFound("Tracker not found")
	}
	return tracker, nil
}

// SharedTrackers returns trackers shared to recipientID, optionally filtered
// to a title.
func (s *Service) SharedTrackers(ctx context.Context, recipientID, title string) ([]store.Tracker, error) {
	trackers, err := s.store.ListSharedTrackers(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return trackers, nil
	}
	filtered := make([]store.Tracker, 0, len(trackers))
	for _, tracker := range trackers {
		if tracker.Title == title {
			filtered = append(filtered, tracker)
		}
	}
	return filtered, nil
}

// CheckDay marks one day slot and recomputes the owner's progression.
// Idempotent: re-checking a checked day still succeeds and still recomputes.
func (s *Service) CheckDay(ctx context.Context, ownerID, title string, day int) error {
	return s.setDay(ctx, ownerID, title, day, true)
}

// UncheckDay clears one day slot and recomputes the owner's progression.
func (s *Service) UncheckDay(ctx context.Context, ownerID, title string, day int) error {
	return s.setDay(ctx, ownerID, title, day, false)
}

func (s *Service) setDay(ctx context.Context, ownerID, title string, day int, checked bool) error {
	if day < 0 || day >= store.TrackerDays {
		return outOfRange("day must be between 0 and 364")
	}
	found, err := s.store.SetTrackerDay(ctx, ownerID, title, day, checked)
	if err != nil {
		return err
	}
	if !found {
		return notFound("Tracker not found")
	}
	return s.recomputeProgression(ctx, ownerID)
}

// recomputeProgression re-reads every tracker the user owns and rewrites the
// level record from the summed totals. The per-user lock keeps the
// read-aggregate / persist pair from interleaving with a concurrent check on
// another tracker of the same user.
func (s *Service) recomputeProgression(ctx context.Context, userID string) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	counts, err := s.store.TrackerCheckedCounts(ctx, userID)
	if err != nil {
		return err
	}
	exp := progression.Experience(counts)
	level := progression.LevelFor(exp, s.cfg.LevelStep)
	return s.store.UpsertLevel(ctx, userID, exp, level)
}

// TotalCheckedDays returns the count of checked slots in one tracker.
func (s *Service) TotalCheckedDays(ctx context.Context, ownerID, title string) (int, error) {
	tracker, err := s.store.GetTracker(ctx, ownerID, title)
	if err != nil {
		return 0, err
	}
	return tracker.CheckedDays(), nil
}

// ShareTracker grants the recipient read access. Re-sharing with the same
// recipient is a no-op.
func (s *Service) ShareTracker(ctx context.Context, ownerID, title, recipientUsername string) error {
	recipient, err := s.store.GetUserByUsername(ctx, recipientUsername)
	if err != nil {
		return notFound("User not found")
	}
	if recipient.ID == ownerID {
		return conflict("You cannot share a tracker with yourself")
	}
	tracker, err := s.store.GetTracker(ctx, ownerID, title)
	if err != nil {
		return notFound("Tracker not found")
	}
	return s.store.AddTrackerShare(ctx, tracker.ID, recipient.ID)
}

// UnshareTracker revokes the recipient's access. Unsharing a recipient never
// present in the share set succeeds as a no-op.
func (s *Service) UnshareTracker(ctx context.Context, ownerID, title, recipientUsername string) error {
	recipient, err := s.store.GetUserByUsername(ctx, recipientUsername)
	if err != nil {
		return notFound("User not found")
	}
	tracker, err := s.store.GetTracker(ctx, ownerID, title)
	if err != nil {
		return notFound("Tracker not found")
	}
	return s.store.RemoveTrackerShare(ctx, tracker.ID, recipient.ID)
}

// DeleteTracker removes the tracker and purges it from every recipient's
// shared view.
func (s *Service) DeleteTracker(ctx context.Context, ownerID, title string) error {
	found, err := s.store.DeleteTracker(ctx, ownerID, title)
	if err != nil {
		return err
	}
	if !found {
		return notFound("Tracker not found")
	}
	return nil
}

// DeleteTrackers removes every tracker the user owns. Idempotent.
func (s *Service) DeleteTrackers(ctx context.Context, ownerID string) error {
	return s.store.DeleteTrackers(ctx, ownerID)
}
