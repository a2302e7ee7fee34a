package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"habitly/api/internal/auth"
	"habitly/api/internal/export"
	"habitly/api/internal/rbac"
	"habitly/api/internal/search"
	"habitly/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	routes     []route
}

// route maps one operation to its handler and the permission the access
// gate checks before the handler runs. The gate is evaluated uniformly here,
// never inside handlers, and a denial is an explicit 403 rather than a
// silent no-op.
type route struct {
	method  string
	pattern string
	action  rbac.Action
	handle  func(w http.ResponseWriter, r *http.Request, session Session, params map[string]string)
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	s := &HTTPServer{service: service, corsOrigin: corsOrigin}
	s.routes = []route{
		// trackers. Literal segments sort before :title, so MakeTracker
		// rejects the reserved titles they would shadow.
		{http.MethodPost, "/api/trackers", rbac.ActionRead, s.handleMakeTracker},
		{http.MethodGet, "/api/trackers", rbac.ActionRead, s.handleListTrackers},
		{http.MethodDelete, "/api/trackers", rbac.ActionTrack, s.handleDeleteTrackers},
		{http.MethodGet, "/api/trackers/shared/:title", rbac.ActionRead, s.handleSharedTrackers},
		{http.MethodGet, "/api/trackers/id/:id", rbac.ActionRead, s.handleTrackerByID},
		{http.MethodPost, "/api/trackers/share", rbac.ActionShare, s.handleShareTracker},
		{http.MethodPost, "/api/trackers/unshare", rbac.ActionShare, s.handleUnshareTracker},
		{http.MethodPatch, "/api/trackers/:title/check", rbac.ActionTrack, s.handleCheckDay},
		{http.MethodPatch, "/api/trackers/:title/uncheck", rbac.ActionTrack, s.handleUncheckDay},
		{http.MethodGet, "/api/trackers/:title/total", rbac.ActionRead, s.handleTotalCheckedDays},
		{http.MethodGet, "/api/trackers/:title/export", rbac.ActionRead, s.handleExportTracker},
		{http.MethodDelete, "/api/trackers/:title", rbac.ActionTrack, s.handleDeleteTracker},

		// friends
		{http.MethodGet, "/api/friends", rbac.ActionRead, s.handleFriends},
		{http.MethodGet, "/api/friends/followers", rbac.ActionRead, s.handleFollowers},
		{http.MethodGet, "/api/friends/followings", rbac.ActionRead, s.handleFollowings},
		{http.MethodGet, "/api/friends/requests", rbac.ActionRead, s.handleRequests},
		{http.MethodPost, "/api/friends/requests/:to", rbac.ActionFollow, s.handleSendRequest},
		{http.MethodDelete, "/api/friends/requests/:to", rbac.ActionFollow, s.handleRemoveRequest},
		{http.MethodPut, "/api/friends/accept/:from", rbac.ActionFollow, s.handleAcceptRequest},
		{http.MethodPut, "/api/friends/reject/:from", rbac.ActionFollow, s.handleRejectRequest},
		{http.MethodPost, "/api/friends/follow", rbac.ActionFollow, s.handleFollow},
		{http.MethodPost, "/api/friends/unfollow", rbac.ActionFollow, s.handleUnfollow},
		{http.MethodDelete, "/api/friends/:friend", rbac.ActionFollow, s.handleRemoveFriend},

		// leveling
		{http.MethodPut, "/api/level", rbac.ActionTrack, s.handleUpdateExp},
		{http.MethodDelete, "/api/level", rbac.ActionTrack, s.handleDeleteLevel},
		{http.MethodGet, "/api/level/exp/:user", rbac.ActionRead, s.handleGetExp},
		{http.MethodGet, "/api/level/:user", rbac.ActionRead, s.handleGetLevel},

		// posts
		{http.MethodGet, "/api/posts", rbac.ActionRead, s.handleListPosts},
		{http.MethodPost, "/api/posts", rbac.ActionPost, s.handleCreatePost},
		{http.MethodGet, "/api/search", rbac.ActionRead, s.handleSearch},
		{http.MethodPatch, "/api/posts/:id/increment", rbac.ActionRead, s.handleIncrementQuality},
		{http.MethodPatch, "/api/posts/:id/decrement", rbac.ActionRead, s.handleDecrementQuality},
		{http.MethodPost, "/api/posts/:id/image", rbac.ActionPost, s.handleAttachPostImage},
		{http.MethodGet, "/api/posts/:id/image", rbac.ActionRead, s.handlePostImageURL},
		{http.MethodGet, "/api/posts/:id", rbac.ActionRead, s.handleGetPost},
		{http.MethodPatch, "/api/posts/:id", rbac.ActionPost, s.handleUpdatePost},
		{http.MethodDelete, "/api/posts/:id", rbac.ActionPost, s.handleDeletePost},

		// collections
		{http.MethodPost, "/api/collections", rbac.ActionRead, s.handleCreateCollection},
		{http.MethodGet, "/api/collections", rbac.ActionRead, s.handleListCollections},
		{http.MethodPatch, "/api/collections", rbac.ActionCurate, s.handleUpdateDeadline},
		{http.MethodPatch, "/api/collections/add", rbac.ActionCurate, s.handleAddToCollection},
		{http.MethodPatch, "/api/collections/remove", rbac.ActionCurate, s.handleRemoveFromCollection},
		{http.MethodPost, "/api/collections/share", rbac.ActionShare, s.handleShareCollection},
		{http.MethodPost, "/api/collections/unshare", rbac.ActionShare, s.handleUnshareCollection},
		{http.MethodGet, "/api/collections/shared/:title", rbac.ActionRead, s.handleSharedCollections},
		{http.MethodGet, "/api/collections/:title", rbac.ActionRead, s.handleCollectionContents},
		{http.MethodDelete, "/api/collections/:title", rbac.ActionCurate, s.handleDeleteCollection},

		// summary
		{http.MethodPost, "/api/summary/explore", rbac.ActionCurate, s.handleRecommendCategory},
		{http.MethodGet, "/api/summary/:user", rbac.ActionRead, s.handleGetSummary},

		// users
		{http.MethodGet, "/api/users", rbac.ActionRead, s.handleListUsers},
		{http.MethodPatch, "/api/users/username", rbac.ActionRead, s.handleUpdateUsername},
		{http.MethodPatch, "/api/users/password", rbac.ActionRead, s.handleChangePassword},
		{http.MethodDelete, "/api/users", rbac.ActionRead, s.handleDeleteUser},
		{http.MethodGet, "/api/users/:username", rbac.ActionRead, s.handleGetUser},
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "username": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "username": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "username": session.Username, "userId": session.UserID, "role": session.Role})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	for _, rt := range s.routes {
		if rt.method != r.Method {
			continue
		}
		params, match := matchPattern(rt.pattern, r.URL.Path)
		if !match {
			continue
		}
		if !s.service.Can(session.Role, rt.action) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		rt.handle(w, r, session, params)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// ---- auth ----

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignUp(r.Context(), body.Username, body.Password, body.Role)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Username, body.Password)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"username":     session.Username,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

// ---- trackers ----

func (s *HTTPServer) handleMakeTracker(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	tracker, err := s.service.MakeTracker(r.Context(), session.UserID, body.Title)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, trackerPayload(tracker))
}

func (s *HTTPServer) handleListTrackers(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	trackers, err := s.service.Trackers(r.Context(), session.UserID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trackers": trackerPayloads(trackers)})
}

func (s *HTTPServer) handleTrackerByID(w http.ResponseWriter, r *http.Request, _ Session, params map[string]string) {
	tracker, err := s.service.TrackerByID(r.Context(), params["id"])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, trackerPayload(tracker))
}

func (s *HTTPServer) handleSharedTrackers(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	trackers, err := s.service.SharedTrackers(r.Context(), session.UserID, params["title"])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trackers": trackerPayloads(trackers)})
}

func (s *HTTPServer) handleCheckDay(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	s.handleSetDay(w, r, session, params, true)
}

func (s *HTTPServer) handleUncheckDay(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	s.handleSetDay(w, r, session, params, false)
}

func (s *HTTPServer) handleSetDay(w http.ResponseWriter, r *http.Request, session Session, params map[string]string, checked bool) {
	var body struct {
		Day int `json:"day"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	var err error
	if checked {
		err = s.service.CheckDay(r.Context(), session.UserID, params["title"], body.Day)
	} else {
		err = s.service.UncheckDay(r.Context(), session.UserID, params["title"], body.Day)
	}
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleTotalCheckedDays(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	total, err := s.service.TotalCheckedDays(r.Context(), session.UserID, params["title"])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total})
}

func (s *HTTPServer) handleShareTracker(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Title string `json:"title"`
		To    string `json:"to"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ShareTracker(r.Context(), session.UserID, body.Title, body.To); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleUnshareTracker(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Title string `json:"title"`
		From  string `json:"from"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.UnshareTracker(r.Context(), session.UserID, body.Title, body.From); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDeleteTracker(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	if err := s.service.DeleteTracker(r.Context(), session.UserID, params["title"]); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDeleteTrackers(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	if err := s.service.DeleteTrackers(r.Context(), session.UserID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleExportTracker(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	format := export.Format(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = export.FormatHTML
	}
	result, err := s.service.ExportTrackerReport(r.Context(), session.UserID, params["title"], format)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available", nil)
			return
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// ---- friends ----

func (s *HTTPServer) handleFriends(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	names, err := s.service.Friends(r.Context(), session.UserID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"friends": names})
}

func (s *HTTPServer) handleFollowers(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	names, err := s.service.Followers(r.Context(), session.UserID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"followers": names})
}

func (s *HTTPServer) handleFollowings(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	names, err := s.service.Followings(r.Context(), session.UserID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"followings": names})
}

func (s *HTTPServer) handleRequests(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	requests, err := s.service.Requests(r.Context(), session.UserID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (s *HTTPServer) handleSendRequest(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	if err := s.service.SendRequest(r.Context(), session.UserID, params["to"]); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleRemoveRequest(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	if err := s.service.RemoveRequest(r.Context(), session.UserID, params["to"]); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAcceptRequest(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	if err := s.service.AcceptRequest(r.Context(), params["from"], session.UserID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleRejectRequest(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	if err := s.service.RejectRequest(r.Context(), params["from"], session.UserID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleFollow(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Username string `json:"username"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.Follow(r.Context(), session.UserID, body.Username); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleUnfollow(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Username string `json:"username"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.Unfollow(r.Context(), session.UserID, body.Username); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleRemoveFriend(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	if err := s.service.RemoveFriend(r.Context(), session.UserID, params["friend"]); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- leveling ----

func (s *HTTPServer) handleUpdateExp(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Counts []int `json:"counts"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	record, err := s.service.UpdateExp(r.Context(), session.UserID, body.Counts)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experience": record.Experience, "level": record.Level})
}

func (s *HTTPServer) handleGetLevel(w http.ResponseWriter, r *http.Request, _ Session, params map[string]string) {
	level, err := s.service.Level(r.Context(), params["user"])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"level": level})
}

func (s *HTTPServer) handleGetExp(w http.ResponseWriter, r *http.Request, _ Session, params map[string]string) {
	exp, err := s.service.Experience(r.Context(), params["user"])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experience": exp})
}

func (s *HTTPServer) handleDeleteLevel(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	if err := s.service.DeleteLevel(r.Context(), session.UserID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- posts ----

func (s *HTTPServer) handleListPosts(w http.ResponseWriter, r *http.Request, _ Session, _ map[string]string) {
	posts, err := s.service.Posts(r.Context(),
		strings.TrimSpace(r.URL.Query().Get("author")),
		strings.TrimSpace(r.URL.Query().Get("category")),
		strings.TrimSpace(r.URL.Query().Get("role")),
	)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": postPayloads(posts)})
}

func (s *HTTPServer) handleCreatePost(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Content         string `json:"content"`
		Category        string `json:"category"`
		BackgroundColor string `json:"backgroundColor"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	post, err := s.service.CreatePost(r.Context(), session.UserID, body.Content, body.Category, body.BackgroundColor)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, postPayload(post))
}

func (s *HTTPServer) handleGetPost(w http.ResponseWriter, r *http.Request, _ Session, params map[string]string) {
	post, err := s.service.Post(r.Context(), params["id"])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, postPayload(post))
}

func (s *HTTPServer) handleUpdatePost(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	var body struct {
		Content         string `json:"content"`
		Category        string `json:"category"`
		BackgroundColor string `json:"backgroundColor"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	post, err := s.service.UpdatePost(r.Context(), params["id"], session.UserID, body.Content, body.Category, body.BackgroundColor)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, postPayload(post))
}

func (s *HTTPServer) handleDeletePost(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	if err := s.service.DeletePost(r.Context(), params["id"], session.UserID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleIncrementQuality(w http.ResponseWriter, r *http.Request, _ Session, params map[string]string) {
	if err := s.service.IncrementPostQuality(r.Context(), params["id"]); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDecrementQuality(w http.ResponseWriter, r *http.Request, _ Session, params map[string]string) {
	if err := s.service.DecrementPostQuality(r.Context(), params["id"]); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAttachPostImage(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "image file is required", nil)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	key, err := s.service.AttachPostImage(r.Context(), params["id"], session.UserID, file, header.Size, contentType)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imageKey": key})
}

func (s *HTTPServer) handlePostImageURL(w http.ResponseWriter, r *http.Request, _ Session, params map[string]string) {
	url, err := s.service.PostImageURL(r.Context(), params["id"])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, _ Session, _ map[string]string) {
	q := search.Query{
		Text:           strings.TrimSpace(r.URL.Query().Get("q")),
		FilterCategory: strings.TrimSpace(r.URL.Query().Get("category")),
		FilterAuthorID: strings.TrimSpace(r.URL.Query().Get("author")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		q.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		q.Offset = parsed
	}
	writeJSON(w, http.StatusOK, s.service.SearchPosts(r.Context(), q))
}

// ---- collections ----

func (s *HTTPServer) handleCreateCollection(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Parent   string `json:"parent"`
		Title    string `json:"title"`
		Deadline string `json:"deadline"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	collection, err := s.service.CreateCollection(r.Context(), session.UserID, body.Parent, body.Title, body.Deadline)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, collectionPayload(collection))
}

func (s *HTTPServer) handleListCollections(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	collections, err := s.service.Collections(r.Context(), session.UserID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": collectionPayloads(collections)})
}

func (s *HTTPServer) handleCollectionContents(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	posts, err := s.service.CollectionContents(r.Context(), session.UserID, params["title"])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": postPayloads(posts)})
}

func (s *HTTPServer) handleAddToCollection(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Title string `json:"title"`
		Post  string `json:"post"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.AddToCollection(r.Context(), session.UserID, body.Title, body.Post); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleRemoveFromCollection(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Title string `json:"title"`
		Post  string `json:"post"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.RemoveFromCollection(r.Context(), session.UserID, body.Title, body.Post); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleUpdateDeadline(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Title    string `json:"title"`
		Deadline string `json:"deadline"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.UpdateCollectionDeadline(r.Context(), session.UserID, body.Title, body.Deadline); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleShareCollection(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Title string `json:"title"`
		To    string `json:"to"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ShareCollection(r.Context(), session.UserID, body.Title, body.To); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleUnshareCollection(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Title string `json:"title"`
		From  string `json:"from"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.UnshareCollection(r.Context(), session.UserID, body.Title, body.From); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSharedCollections(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	collections, err := s.service.SharedCollections(r.Context(), session.UserID, params["title"])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": collectionPayloads(collections)})
}

func (s *HTTPServer) handleDeleteCollection(w http.ResponseWriter, r *http.Request, session Session, params map[string]string) {
	if err := s.service.DeleteCollection(r.Context(), session.UserID, params["title"]); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- summary ----

func (s *HTTPServer) handleGetSummary(w http.ResponseWriter, r *http.Request, _ Session, params map[string]string) {
	summary, err := s.service.Summary(r.Context(), params["user"])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       params["user"],
		"categories": DefaultCategories,
		"counts":     summary.Counts,
	})
}

func (s *HTTPServer) handleRecommendCategory(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	category, err := s.service.RecommendCategory(r.Context(), session.UserID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category})
}

// ---- users ----

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request, _ Session, _ map[string]string) {
	users, err := s.service.Users(r.Context(), strings.TrimSpace(r.URL.Query().Get("role")))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request, _ Session, params map[string]string) {
	user, err := s.service.UserByUsername(r.Context(), params["username"])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateUsername(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		Username string `json:"username"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.UpdateUsername(r.Context(), session.UserID, body.Username); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleChangePassword(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ChangePassword(r.Context(), session.UserID, body.CurrentPassword, body.NewPassword); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request, session Session, _ map[string]string) {
	if err := s.service.DeleteUser(r.Context(), session.UserID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- payloads ----

func trackerPayload(t store.Tracker) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"ownerId":     t.OwnerID,
		"title":       t.Title,
		"days":        t.Days,
		"checkedDays": t.CheckedDays(),
	}
}

func trackerPayloads(trackers []store.Tracker) []map[string]any {
	payloads := make([]map[string]any, 0, len(trackers))
	for _, tracker := range trackers {
		payloads = append(payloads, trackerPayload(tracker))
	}
	return payloads
}

func postPayload(p store.Post) map[string]any {
	return map[string]any{
		"id":              p.ID,
		"authorId":        p.AuthorID,
		"content":         p.Content,
		"category":        p.Category,
		"backgroundColor": p.BackgroundColor,
		"quality":         p.Quality,
		"hasImage":        p.ImageKey != "",
	}
}

func postPayloads(posts []store.Post) []map[string]any {
	payloads := make([]map[string]any, 0, len(posts))
	for _, post := range posts {
		payloads = append(payloads, postPayload(post))
	}
	return payloads
}

func collectionPayload(c store.Collection) map[string]any {
	return map[string]any{
		"id":       c.ID,
		"ownerId":  c.OwnerID,
		"parent":   c.Parent,
		"title":    c.Title,
		"deadline": c.Deadline,
	}
}

func collectionPayloads(collections []store.Collection) []map[string]any {
	payloads := make([]map[string]any, 0, len(collections))
	for _, collection := range collections {
		payloads = append(payloads, collectionPayload(collection))
	}
	return payloads
}

// ---- plumbing ----

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		// Token errors and a deleted account both read as unauthorized.
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// matchPattern matches a path against a pattern with :param segments. Routes
// are checked in table order, so literal segments shadow parameter ones.
func matchPattern(pattern, path string) (map[string]string, bool) {
	patternParts := splitPath(pattern)
	pathParts := splitPath(path)
	if len(patternParts) != len(pathParts) {
		return nil, false
	}
	params := make(map[string]string)
	for i, part := range patternParts {
		if strings.HasPrefix(part, ":") {
			params[part[1:]] = pathParts[i]
			continue
		}
		if part != pathParts[i] {
			return nil, false
		}
	}
	return params, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
