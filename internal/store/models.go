package store

import (
	"strings"
	"time"
)

// TrackerDays is the fixed slot count of a tracker's year grid. The store is
// calendar-agnostic: day indices are caller-interpreted and leap days are
// not modeled.
const TrackerDays = 365

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Tracker is a named, owned year grid of daily checks. Days holds exactly
// TrackerDays characters, '1' for checked and '0' for unchecked.
type Tracker struct {
	ID        string
	OwnerID   string
	Title     string
	Days      string
	CreatedAt time.Time
}

// EmptyDays returns the all-unchecked day grid.
func EmptyDays() string {
	return strings.Repeat("0", TrackerDays)
}

// DayChecked reports whether the slot at day is checked. Out-of-range days
// read as unchecked; range validation belongs to the service layer.
func (t Tracker) DayChecked(day int) bool {
	if day < 0 || day >= len(t.Days) {
		return false
	}
	return t.Days[day] == '1'
}

// CheckedDays counts the checked slots.
func (t Tracker) CheckedDays() int {
	return strings.Count(t.Days, "1")
}

// FriendRequest is a directional pending offer to establish a friendship.
// Accepted and rejected requests are deleted, so only pending rows exist.
type FriendRequest struct {
	FromID    string
	ToID      string
	CreatedAt time.Time
}

// LevelRecord holds the derived experience/level pair for one user. It is
// only ever written by progression recomputation.
type LevelRecord struct {
	UserID     string
	Experience int
	Level      int
	UpdatedAt  time.Time
}

type Post struct {
	ID              string
	AuthorID        string
	Content         string
	Category        string
	BackgroundColor string
	Quality         int
	ImageKey        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Collection struct {
	ID        string
	OwnerID   string
	Parent    string
	Title     string
	Deadline  string
	CreatedAt time.Time
}

// Summary holds per-default-category saved-post counts for one user.
type Summary struct {
	UserID    string
	Counts    []int
	UpdatedAt time.Time
}
