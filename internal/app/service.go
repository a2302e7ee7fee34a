package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"habitly/api/internal/auth"
	"habitly/api/internal/authpw"
	"habitly/api/internal/config"
	"habitly/api/internal/export"
	"habitly/api/internal/rbac"
	"habitly/api/internal/search"
	"habitly/api/internal/store"
	"habitly/api/internal/uploads"
	"habitly/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByUsername(context.Context, string) (store.User, error)
	ListUsers(context.Context) ([]store.User, error)
	ListUsersByRole(context.Context, string) ([]store.User, error)
	UsernamesByIDs(context.Context, []string) (map[string]string, error)
	UpdateUsername(context.Context, string, string) error
	DeleteUser(context.Context, string) error

	InsertTracker(context.Context, store.Tracker) error
	GetTracker(context.Context, string, string) (store.Tracker, error)
	GetTrackerByID(context.Context, string) (store.Tracker, error)
	ListTrackers(context.Context, string) ([]store.Tracker, error)
	ListSharedTrackers(context.Context, string) ([]store.Tracker, error)
	SetTrackerDay(context.Context, string, string, int, bool) (bool, error)
	TrackerCheckedCounts(context.Context, string) ([]int, error)
	AddTrackerShare(context.Context, string, string) error
	RemoveTrackerShare(context.Context, string, string) error
	DeleteTracker(context.Context, string, string) (bool, error)
	DeleteTrackers(context.Context, string) error

	InsertFriendRequest(context.Context, string, string) error
	DeleteFriendRequest(context.Context, string, string) (bool, error)
	HasPendingRequestBetween(context.Context, string, string) (bool, error)
	AcceptFriendRequest(context.Context, string, string) (bool, error)
	InsertFriendship(context.Context, string, string) error
	DeleteFriendship(context.Context, string, string) error
	AreFriends(context.Context, string, string) (bool, error)
	ListFriends(context.Context, string) ([]store.User, error)
	ListPendingRequests(context.Context, string) ([]store.FriendRequest, error)
	DeleteFriendshipsOf(context.Context, string) error
	DeleteFriendRequestsOf(context.Context, string) error

	UpsertLevel(context.Context, string, int, int) error
	GetLevel(context.Context, string) (store.LevelRecord, error)
	DeleteLevel(context.Context, string) error

	InsertPost(context.Context, store.Post) error
	GetPost(context.Context, string) (store.Post, error)
	ListPosts(context.Context) ([]store.Post, error)
	ListPostsByAuthor(context.Context, string) ([]store.Post, error)
	ListPostsByCategory(context.Context, string) ([]store.Post, error)
	UpdatePost(context.Context, string, string, string, string) (bool, error)
	AdjustPostQuality(context.Context, string, int) (bool, error)
	SetPostImage(context.Context, string, string) (bool, error)
	DeletePost(context.Context, string) error

	InsertCollection(context.Context, store.Collection) error
	GetCollection(context.Context, string, string) (store.Collection, error)
	GetCollectionByID(context.Context, string) (store.Collection, error)
	ListCollections(context.Context, string) ([]store.Collection, error)
	ListSharedCollections(context.Context, string) ([]store.Collection, error)
	UpdateCollectionDeadline(context.Context, string, string, string) (bool, error)
	AddPostToCollection(context.Context, string, string) error
	RemovePostFromCollection(context.Context, string, string) error
	ListCollectionPosts(context.Context, string) ([]store.Post, error)
	CollectionLength(context.Context, string) (int, error)
	AddCollectionShare(context.Context, string, string) error
	RemoveCollectionShare(context.Context, string, string) error
	DeleteCollection(context.Context, string, string) (bool, error)
	DeleteCollections(context.Context, string) error

	UpsertSummary(context.Context, string, []int) error
	GetSummary(context.Context, string) (store.Summary, error)
	DeleteSummary(context.Context, string) error

	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions; backed by Redis when configured,
// Postgres otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	search   *search.Service
	uploads  *uploads.Service
	exporter *export.Service

	// userMu guards userLocks; each entry serializes progression
	// recomputation for one user.
	userMu    sync.Mutex
	userLocks map[string]*sync.Mutex
}

// New wires the service layer. searchSvc and uploadsSvc may be nil when the
// corresponding backend is not configured.
func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, authSvc *authpw.Service, searchSvc *search.Service, uploadsSvc *uploads.Service) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		authpw:    authSvc,
		search:    searchSvc,
		uploads:   uploadsSvc,
		userLocks: make(map[string]*sync.Mutex),
	}
	s.exporter = export.NewService(reportStore{s})
	return s
}

func (s *Service) userLock(userID string) *sync.Mutex {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	mu, ok := s.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.userLocks[userID] = mu
	}
	return mu
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// SignUp registers an account and opens a session. Regular users get their
// default root collections on the spot.
func (s *Service) SignUp(ctx context.Context, username, password, role string) (Session, error) {
	user, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Username: username,
		Password: password,
		Role:     role,
	})
	if err != nil {
		switch {
		case errors.Is(err, authpw.ErrUsernameTaken):
			return Session{}, conflict("Username already taken")
		case errors.Is(err, authpw.ErrBadRole):
			return Session{}, validation(err.Error())
		default:
			return Session{}, validation(err.Error())
		}
	}
	if rbac.Role(user.Role) == rbac.RoleRegularUser {
		if err := s.EnsureDefaultCollections(ctx, user.ID); err != nil {
			return Session{}, err
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, username, password)
	if err != nil {
		return Session{}, domainError(401, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}
	if rbac.Role(user.Role) == rbac.RoleRegularUser {
		if err := s.EnsureDefaultCollections(ctx, user.ID); err != nil {
			return Session{}, err
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		Role:     user.Role,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := s.authpw.ChangePassword(ctx, userID, currentPassword, newPassword); err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return domainError(401, "INVALID_CREDENTIALS", "Current password is incorrect", nil)
		}
		return err
	}
	return nil
}

// ExportTrackerReport renders the year report for one tracker.
func (s *Service) ExportTrackerReport(ctx context.Context, ownerID, title string, format export.Format) (*export.Result, error) {
	result, err := s.exporter.Export(ctx, export.Request{
		OwnerID: ownerID,
		Title:   title,
		Format:  format,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reportStore adapts the service to the exporter's data contract.
type reportStore struct {
	s *Service
}

func (r reportStore) GetReport(ctx context.Context, ownerID, title string) (export.Report, error) {
	tracker, err := r.s.store.GetTracker(ctx, ownerID, title)
	if err != nil {
		return export.Report{}, err
	}
	owner, err := r.s.store.GetUserByID(ctx, ownerID)
	if err != nil {
		return export.Report{}, err
	}
	report := export.Report{
		Owner:       owner.Username,
		Title:       tracker.Title,
		Days:        tracker.Days,
		CheckedDays: tracker.CheckedDays(),
		GeneratedAt: time.Now(),
	}
	// No activity yet is fine; the report shows zeros.
	if record, err := r.s.store.GetLevel(ctx, ownerID); err == nil {
		report.Experience = record.Experience
		report.Level = record.Level
	}
	return report, nil
}
