package app

import (
	"context"

	"habitly/api/internal/progression"
	"habitly/api/internal/store"
)

// UpdateExp overwrites the caller's level record from an ordered sequence of
// per-tracker checked-day counts. Normally driven by check/uncheck
// recomputation; exposed for callers that supply the aggregate themselves.
func (s *Service) UpdateExp(ctx context.Context, userID string, counts []int) (store.LevelRecord, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	exp := progression.Experience(counts)
	level := progression.LevelFor(exp, s.cfg.LevelStep)
	if err := s.store.UpsertLevel(ctx, userID, exp, level); err != nil {
		return store.LevelRecord{}, err
	}
	return store.LevelRecord{UserID: userID, Experience: exp, Level: level}, nil
}

// Level returns the stored level for a user looked up by username.
func (s *Service) Level(ctx context.Context, username string) (int, error) {
	record, err := s.levelRecord(ctx, username)
	if err != nil {
		return 0, err
	}
	return record.Level, nil
}

// Experience returns the stored experience for a user looked up by username.
func (s *Service) Experience(ctx context.Context, username string) (int, error) {
	record, err := s.levelRecord(ctx, username)
	if err != nil {
		return 0, err
	}
	return record.Experience, nil
}

func (s *Service) levelRecord(ctx context.Context, username string) (store.LevelRecord, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return store.LevelRecord{}, notFound("User not found")
	}
	record, err := s.store.GetLevel(ctx, user.ID)
	if err != nil {
		return store.LevelRecord{}, notFound("No tracking activity yet")
	}
	return record, nil
}

// DeleteLevel removes the caller's level record. Idempotent.
func (s *Service) DeleteLevel(ctx context.Context, userID string) error {
	return s.store.DeleteLevel(ctx, userID)
}
