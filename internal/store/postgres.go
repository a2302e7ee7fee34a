package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Username, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at FROM users WHERE username=$1
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	return s.listUsers(ctx, `SELECT id, username, password_hash, role, created_at FROM users ORDER BY username`)
}

func (s *PostgresStore) ListUsersByRole(ctx context.Context, role string) ([]User, error) {
	return s.listUsers(ctx, `SELECT id, username, password_hash, role, created_at FROM users WHERE role=$1 ORDER BY username`, role)
}

func (s *PostgresStore) listUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UsernamesByIDs resolves user ids to usernames. Missing ids are simply
// absent from the result map.
func (s *PostgresStore) UsernamesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, username FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("usernames by ids: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string, len(ids))
	for rows.Next() {
		var id, username string
		if err := rows.Scan(&id, &username); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		names[id] = username
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usernames: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) UpdateUsername(ctx context.Context, userID, username string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET username=$2 WHERE id=$1`, userID, username)
	if err != nil {
		return fmt.Errorf("update username: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ---- trackers ----

func (s *PostgresStore) InsertTracker(ctx context.Context, tracker Tracker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trackers (id, owner_id, title, days)
		VALUES ($1, $2, $3, $4)
	`, tracker.ID, tracker.OwnerID, tracker.Title, tracker.Days)
	if err != nil {
		return fmt.Errorf("insert tracker: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTracker(ctx context.Context, ownerID, title string) (Tracker, error) {
	var tracker Tracker
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, days, created_at FROM trackers WHERE owner_id=$1 AND title=$2
	`, ownerID, title).Scan(&tracker.ID, &tracker.OwnerID, &tracker.Title, &tracker.Days, &tracker.CreatedAt)
	if err != nil {
		return Tracker{}, err
	}
	return tracker, nil
}

func (s *PostgresStore) GetTrackerByID(ctx context.Context, trackerID string) (Tracker, error) {
	var tracker Tracker
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, days, created_at FROM trackers WHERE id=$1
	`, trackerID).Scan(&tracker.ID, &tracker.OwnerID, &tracker.Title, &tracker.Days, &tracker.CreatedAt)
	if err != nil {
		return Tracker{}, err
	}
	return tracker, nil
}

func (s *PostgresStore) ListTrackers(ctx context.Context, ownerID string) ([]Tracker, error) {
	return s.listTrackers(ctx, `
		SELECT id, owner_id, title, days, created_at
		FROM trackers
		WHERE owner_id=$1
		ORDER BY created_at
	`, ownerID)
}

// ListSharedTrackers returns every tracker shared to recipientID by any
// owner.
func (s *PostgresStore) ListSharedTrackers(ctx context.Context, recipientID string) ([]Tracker, error) {
	return s.listTrackers(ctx, `
		SELECT t.id, t.owner_id, t.title, t.days, t.created_at
		FROM trackers t
		JOIN tracker_shares ts ON ts.tracker_id = t.id
		WHERE ts.recipient_id=$1
		ORDER BY t.created_at
	`, recipientID)
}

func (s *PostgresStore) listTrackers(ctx context.Context, query string, args ...any) ([]Tracker, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	defer rows.Close()

	trackers := make([]Tracker, 0)
	for rows.Next() {
		var tracker Tracker
		if err := rows.Scan(&tracker.ID, &tracker.OwnerID, &tracker.Title, &tracker.Days, &tracker.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tracker: %w", err)
		}
		trackers = append(trackers, tracker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trackers: %w", err)
	}
	return trackers, nil
}

// SetTrackerDay flips one day slot in a single UPDATE so concurrent checks
// on the same tracker never lose updates. Returns false when the tracker
// does not exist. The caller validates the day range; overlay is 1-indexed.
func (s *PostgresStore) SetTrackerDay(ctx context.Context, ownerID, title string, day int, checked bool) (bool, error) {
	mark := "0"
	if checked {
		mark = "1"
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE trackers
		SET days = overlay(days placing $4 from $3 for 1)
		WHERE owner_id=$1 AND title=$2
	`, ownerID, title, day+1, mark)
	if err != nil {
		return false, fmt.Errorf("set tracker day: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set tracker day rows: %w", err)
	}
	return affected > 0, nil
}

// TrackerCheckedCounts returns the checked-day count of every tracker the
// user owns, in creation order. This is the aggregate input to progression.
func (s *PostgresStore) TrackerCheckedCounts(ctx context.Context, ownerID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT length(replace(days, '0', ''))
		FROM trackers
		WHERE owner_id=$1
		ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("tracker checked counts: %w", err)
	}
	defer rows.Close()

	counts := make([]int, 0)
	for rows.Next() {
		var count int
		if err := rows.Scan(&count); err != nil {
			return nil, fmt.Errorf("scan checked count: %w", err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checked counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) AddTrackerShare(ctx context.Context, trackerID, recipientID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracker_shares (tracker_id, recipient_id)
		VALUES ($1, $2)
		ON CONFLICT (tracker_id, recipient_id) DO NOTHING
	`, trackerID, recipientID)
	if err != nil {
		return fmt.Errorf("add tracker share: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveTrackerShare(ctx context.Context, trackerID, recipientID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM tracker_shares WHERE tracker_id=$1 AND recipient_id=$2
	`, trackerID, recipientID)
	if err != nil {
		return fmt.Errorf("remove tracker share: %w", err)
	}
	return nil
}

// DeleteTracker removes the tracker; its share rows go with it via the
// foreign key cascade, purging every recipient's shared view. Returns false
// when no such tracker existed.
func (s *PostgresStore) DeleteTracker(ctx context.Context, ownerID, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM trackers WHERE owner_id=$1 AND title=$2
	`, ownerID, title)
	if err != nil {
		return false, fmt.Errorf("delete tracker: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete tracker rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteTrackers(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM trackers WHERE owner_id=$1`, ownerID)
	if err != nil {
		return fmt.Errorf("delete trackers: %w", err)
	}
	return nil
}

// ---- friend graph ----

func (s *PostgresStore) InsertFriendRequest(ctx context.Context, fromID, toID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friend_requests (from_id, to_id)
		VALUES ($1, $2)
	`, fromID, toID)
	if err != nil {
		return fmt.Errorf("insert friend request: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteFriendRequest(ctx context.Context, fromID, toID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM friend_requests WHERE from_id=$1 AND to_id=$2
	`, fromID, toID)
	if err != nil {
		return false, fmt.Errorf("delete friend request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete friend request rows: %w", err)
	}
	return affected > 0, nil
}

// HasPendingRequestBetween reports whether a pending request exists in
// either direction between the two users.
func (s *PostgresStore) HasPendingRequestBetween(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM friend_requests
			WHERE (from_id=$1 AND to_id=$2) OR (from_id=$2 AND to_id=$1)
		)
	`, a, b).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return exists, nil
}

// AcceptFriendRequest consumes the pending request and creates the friend
// edge in one transaction. Returns false when no pending request exists for
// that direction.
func (s *PostgresStore) AcceptFriendRequest(ctx context.Context, fromID, toID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin accept tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM friend_requests WHERE from_id=$1 AND to_id=$2
	`, fromID, toID)
	if err != nil {
		return false, fmt.Errorf("consume friend request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume friend request rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO friendships (user_a, user_b)
		VALUES (LEAST($1, $2), GREATEST($1, $2))
		ON CONFLICT (user_a, user_b) DO NOTHING
	`, fromID, toID); err != nil {
		return false, fmt.Errorf("insert friendship: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit accept tx: %w", err)
	}
	return true, nil
}

// InsertFriendship stores the symmetric edge as one canonical row (lesser
// id first), so both directions appear and disappear atomically. Idempotent.
func (s *PostgresStore) InsertFriendship(ctx context.Context, a, b string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friendships (user_a, user_b)
		VALUES (LEAST($1, $2), GREATEST($1, $2))
		ON CONFLICT (user_a, user_b) DO NOTHING
	`, a, b)
	if err != nil {
		return fmt.Errorf("insert friendship: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteFriendship(ctx context.Context, a, b string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM friendships WHERE user_a=LEAST($1, $2) AND user_b=GREATEST($1, $2)
	`, a, b)
	if err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	return nil
}

func (s *PostgresStore) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM friendships WHERE user_a=LEAST($1, $2) AND user_b=GREATEST($1, $2)
		)
	`, a, b).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListFriends(ctx context.Context, userID string) ([]User, error) {
	return s.listUsers(ctx, `
		SELECT u.id, u.username, u.password_hash, u.role, u.created_at
		FROM friendships f
		JOIN users u ON u.id = CASE WHEN f.user_a=$1 THEN f.user_b ELSE f.user_a END
		WHERE f.user_a=$1 OR f.user_b=$1
		ORDER BY u.username
	`, userID)
}

func (s *PostgresStore) ListPendingRequests(ctx context.Context, toID string) ([]FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, created_at
		FROM friend_requests
		WHERE to_id=$1
		ORDER BY created_at
	`, toID)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	requests := make([]FriendRequest, 0)
	for rows.Next() {
		var req FriendRequest
		if err := rows.Scan(&req.FromID, &req.ToID, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend requests: %w", err)
	}
	return requests, nil
}

func (s *PostgresStore) DeleteFriendshipsOf(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM friendships WHERE user_a=$1 OR user_b=$1
	`, userID)
	if err != nil {
		return fmt.Errorf("delete friendships: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteFriendRequestsOf(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM friend_requests WHERE from_id=$1 OR to_id=$1
	`, userID)
	if err != nil {
		return fmt.Errorf("delete friend requests: %w", err)
	}
	return nil
}

// ---- levels ----

func (s *PostgresStore) UpsertLevel(ctx context.Context, userID string, experience, level int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO levels (user_id, experience, level, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET experience=EXCLUDED.experience, level=EXCLUDED.level, updated_at=NOW()
	`, userID, experience, level)
	if err != nil {
		return fmt.Errorf("upsert level: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLevel(ctx context.Context, userID string) (LevelRecord, error) {
	var record LevelRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, experience, level, updated_at FROM levels WHERE user_id=$1
	`, userID).Scan(&record.UserID, &record.Experience, &record.Level, &record.UpdatedAt)
	if err != nil {
		return LevelRecord{}, err
	}
	return record, nil
}

func (s *PostgresStore) DeleteLevel(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM levels WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete level: %w", err)
	}
	return nil
}

// ---- posts ----

func (s *PostgresStore) InsertPost(ctx context.Context, post Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, content, category, background_color)
		VALUES ($1, $2, $3, $4, $5)
	`, post.ID, post.AuthorID, post.Content, post.Category, post.BackgroundColor)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	var post Post
	err := s.db.QueryRowContext(ctx, `
		SELECT id, author_id, content, category, background_color, quality, image_key, created_at, updated_at
		FROM posts WHERE id=$1
	`, postID).Scan(&post.ID, &post.AuthorID, &post.Content, &post.Category, &post.BackgroundColor,
		&post.Quality, &post.ImageKey, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return Post{}, err
	}
	return post, nil
}

func (s *PostgresStore) ListPosts(ctx context.Context) ([]Post, error) {
	return s.listPosts(ctx, `
		SELECT id, author_id, content, category, background_color, quality, image_key, created_at, updated_at
		FROM posts ORDER BY created_at DESC
	`)
}

func (s *PostgresStore) ListPostsByAuthor(ctx context.Context, authorID string) ([]Post, error) {
	return s.listPosts(ctx, `
		SELECT id, author_id, content, category, background_color, quality, image_key, created_at, updated_at
		FROM posts WHERE author_id=$1 ORDER BY created_at DESC
	`, authorID)
}

func (s *PostgresStore) ListPostsByCategory(ctx context.Context, category string) ([]Post, error) {
	return s.listPosts(ctx, `
		SELECT id, author_id, content, category, background_color, quality, image_key, created_at, updated_at
		FROM posts WHERE category=$1 ORDER BY created_at DESC
	`, category)
}

func (s *PostgresStore) listPosts(ctx context.Context, query string, args ...any) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0)
	for rows.Next() {
		var post Post
		if err := rows.Scan(&post.ID, &post.AuthorID, &post.Content, &post.Category, &post.BackgroundColor,
			&post.Quality, &post.ImageKey, &post.CreatedAt, &post.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func (s *PostgresStore) UpdatePost(ctx context.Context, postID, content, category, backgroundColor string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET content = COALESCE(NULLIF($2, ''), content),
			category = COALESCE(NULLIF($3, ''), category),
			background_color = COALESCE(NULLIF($4, ''), background_color),
			updated_at = NOW()
		WHERE id=$1
	`, postID, content, category, backgroundColor)
	if err != nil {
		return false, fmt.Errorf("update post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update post rows: %w", err)
	}
	return affected > 0, nil
}

// AdjustPostQuality shifts the quality rating by delta atomically.
func (s *PostgresStore) AdjustPostQuality(ctx context.Context, postID string, delta int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET quality = quality + $2, updated_at = NOW() WHERE id=$1
	`, postID, delta)
	if err != nil {
		return false, fmt.Errorf("adjust post quality: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("adjust post quality rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) SetPostImage(ctx context.Context, postID, imageKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET image_key=$2, updated_at=NOW() WHERE id=$1
	`, postID, imageKey)
	if err != nil {
		return false, fmt.Errorf("set post image: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set post image rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id=$1`, postID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// ---- collections ----

func (s *PostgresStore) InsertCollection(ctx context.Context, collection Collection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (id, owner_id, parent, title, deadline)
		VALUES ($1, $2, $3, $4, $5)
	`, collection.ID, collection.OwnerID, collection.Parent, collection.Title, collection.Deadline)
	if err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCollection(ctx context.Context, ownerID, title string) (Collection, error) {
	var collection Collection
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, parent, title, deadline, created_at
		FROM collections WHERE owner_id=$1 AND title=$2
	`, ownerID, title).Scan(&collection.ID, &collection.OwnerID, &collection.Parent,
		&collection.Title, &collection.Deadline, &collection.CreatedAt)
	if err != nil {
		return Collection{}, err
	}
	return collection, nil
}

func (s *PostgresStore) GetCollectionByID(ctx context.Context, collectionID string) (Collection, error) {
	var collection Collection
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, parent, title, deadline, created_at
		FROM collections WHERE id=$1
	`, collectionID).Scan(&collection.ID, &collection.OwnerID, &collection.Parent,
		&collection.Title, &collection.Deadline, &collection.CreatedAt)
	if err != nil {
		return Collection{}, err
	}
	return collection, nil
}

func (s *PostgresStore) ListCollections(ctx context.Context, ownerID string) ([]Collection, error) {
	return s.listCollections(ctx, `
		SELECT id, owner_id, parent, title, deadline, created_at
		FROM collections WHERE owner_id=$1 ORDER BY created_at
	`, ownerID)
}

func (s *PostgresStore) ListSharedCollections(ctx context.Context, recipientID string) ([]Collection, error) {
	return s.listCollections(ctx, `
		SELECT c.id, c.owner_id, c.parent, c.title, c.deadline, c.created_at
		FROM collections c
		JOIN collection_shares cs ON cs.collection_id = c.id
		WHERE cs.recipient_id=$1
		ORDER BY c.created_at
	`, recipientID)
}

func (s *PostgresStore) listCollections(ctx context.Context, query string, args ...any) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	collections := make([]Collection, 0)
	for rows.Next() {
		var collection Collection
		if err := rows.Scan(&collection.ID, &collection.OwnerID, &collection.Parent,
			&collection.Title, &collection.Deadline, &collection.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		collections = append(collections, collection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return collections, nil
}

func (s *PostgresStore) UpdateCollectionDeadline(ctx context.Context, ownerID, title, deadline string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE collections SET deadline=$3 WHERE owner_id=$1 AND title=$2
	`, ownerID, title, deadline)
	if err != nil {
		return false, fmt.Errorf("update collection deadline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update collection deadline rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) AddPostToCollection(ctx context.Context, collectionID, postID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_posts (collection_id, post_id)
		VALUES ($1, $2)
		ON CONFLICT (collection_id, post_id) DO NOTHING
	`, collectionID, postID)
	if err != nil {
		return fmt.Errorf("add post to collection: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemovePostFromCollection(ctx context.Context, collectionID, postID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM collection_posts WHERE collection_id=$1 AND post_id=$2
	`, collectionID, postID)
	if err != nil {
		return fmt.Errorf("remove post from collection: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCollectionPosts(ctx context.Context, collectionID string) ([]Post, error) {
	return s.listPosts(ctx, `
		SELECT p.id, p.author_id, p.content, p.category, p.background_color, p.quality, p.image_key, p.created_at, p.updated_at
		FROM collection_posts cp
		JOIN posts p ON p.id = cp.post_id
		WHERE cp.collection_id=$1
		ORDER BY p.created_at DESC
	`, collectionID)
}

func (s *PostgresStore) CollectionLength(ctx context.Context, collectionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM collection_posts WHERE collection_id=$1
	`, collectionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("collection length: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AddCollectionShare(ctx context.Context, collectionID, recipientID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_shares (collection_id, recipient_id)
		VALUES ($1, $2)
		ON CONFLICT (collection_id, recipient_id) DO NOTHING
	`, collectionID, recipientID)
	if err != nil {
		return fmt.Errorf("add collection share: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveCollectionShare(ctx context.Context, collectionID, recipientID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM collection_shares WHERE collection_id=$1 AND recipient_id=$2
	`, collectionID, recipientID)
	if err != nil {
		return fmt.Errorf("remove collection share: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCollection(ctx context.Context, ownerID, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM collections WHERE owner_id=$1 AND title=$2
	`, ownerID, title)
	if err != nil {
		return false, fmt.Errorf("delete collection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete collection rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteCollections(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE owner_id=$1`, ownerID)
	if err != nil {
		return fmt.Errorf("delete collections: %w", err)
	}
	return nil
}

// ---- summaries ----

func (s *PostgresStore) UpsertSummary(ctx context.Context, userID string, counts []int) error {
	payload, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal summary counts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO summaries (user_id, counts, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET counts=EXCLUDED.counts, updated_at=NOW()
	`, userID, string(payload))
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, userID string) (Summary, error) {
	var summary Summary
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, counts, updated_at FROM summaries WHERE user_id=$1
	`, userID).Scan(&summary.UserID, &payload, &summary.UpdatedAt)
	if err != nil {
		return Summary{}, err
	}
	if err := json.Unmarshal([]byte(payload), &summary.Counts); err != nil {
		return Summary{}, fmt.Errorf("unmarshal summary counts: %w", err)
	}
	return summary, nil
}

func (s *PostgresStore) DeleteSummary(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM summaries WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete summary: %w", err)
	}
	return nil
}

// ---- sessions (Postgres fallback when Redis is not configured) ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.role, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash=$1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)
	`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
