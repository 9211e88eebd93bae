package api

import (
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/nerrad567/leitura-auth/internal/auth"
)

// tokenTypeBearer is the token_type of every issued pair.
const tokenTypeBearer = "Bearer"

// maxDeviceInfoLength caps the stored device description.
const maxDeviceInfoLength = 255

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Device   string `json:"device,omitempty"`
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is the response body for login and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// handleLogin authenticates a user, opens a session and returns a token pair.
// The body may be JSON or an HTML/OAuth2 password form.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, msg, ok := decodeLogin(r)
	if !ok {
		writeBadRequest(w, msg)
		return
	}

	user, err := s.directory.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.metrics.observeLogin(loginDenied)
			s.auditLoginFailed(r.Context(), req.Username, clientIP(r))
		} else {
			s.metrics.observeLogin(loginError)
		}
		s.writeAuthError(w, r, err)
		return
	}

	sess, err := s.sessions.CreateSession(r.Context(), user, deviceInfo(r, req.Device))
	if err != nil {
		s.metrics.observeLogin(loginError)
		s.writeAuthError(w, r, err)
		return
	}

	resp, err := s.issueTokens(user, sess)
	if err != nil {
		s.metrics.observeLogin(loginError)
		s.writeAuthError(w, r, fmt.Errorf("%w: %w", auth.ErrSessionCreationFailed, err))
		return
	}

	s.metrics.observeLogin(loginSuccess)
	s.logger.Info("user logged in", "user_id", user.ID, "session_id", sess.ID)
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates the token pair of the session named by a refresh token.
// A refresh token works once; replays and rotated-away tokens get 401.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if msg, ok := decodeJSON(r, &req); !ok {
		writeBadRequest(w, msg)
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	claims, err := s.codec.DecodeRefresh(req.RefreshToken)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	// A rejected request must leave the session's tokens untouched, so
	// ownership and account state are checked before rotation.
	pending, err := s.sessions.PendingRefresh(r.Context(), claims.SessionID)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	if pending == nil || pending.UserID != claims.Subject {
		s.writeAuthError(w, r, fmt.Errorf("%w: refresh token is not current", auth.ErrInvalidToken))
		return
	}

	user, err := s.directory.LookupID(r.Context(), pending.UserID)
	if errors.Is(err, auth.ErrNotFound) || (err == nil && !user.IsActive) {
		s.writeAuthError(w, r, fmt.Errorf("%w: account unavailable", auth.ErrInvalidToken))
		return
	}
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	sess, err := s.sessions.RefreshSession(r.Context(), claims.SessionID)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	if sess == nil {
		s.writeAuthError(w, r, fmt.Errorf("%w: refresh token is not current", auth.ErrInvalidToken))
		return
	}

	resp, err := s.issueTokens(user, sess)
	if err != nil {
		s.writeAuthError(w, r, fmt.Errorf("%w: %w", auth.ErrSessionOperationFailed, err))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLogout revokes the session the request authenticated with.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	revoked, err := s.sessions.LogoutSession(r.Context(), sess.SessionToken)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	count := 0
	if revoked {
		count = 1
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": count})
}

// handleLogoutAll revokes every active session of the caller.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	count, err := s.sessions.LogoutAll(r.Context(), user.ID)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"revoked": count})
}

// handleListSessions returns the caller's live sessions, most recent first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	sessions, err := s.sessions.ActiveSessions(r.Context(), user.ID)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []auth.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleSessionsCleanup purges expired and stale sessions. Admin only.
func (s *Server) handleSessionsCleanup(w http.ResponseWriter, r *http.Request) {
	if err := auth.RequirePermission(userFromContext(r.Context()), auth.PermSessionPurge); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	n, err := s.sessions.CleanupExpired(r.Context())
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"purged": n})
}

// issueTokens signs the access/refresh pair for sess.
func (s *Server) issueTokens(user *auth.User, sess *auth.Session) (tokenResponse, error) {
	access, err := s.codec.IssueAccess(user.Username, sess.SessionToken)
	if err != nil {
		return tokenResponse{}, err
	}
	refresh, err := s.codec.IssueRefresh(user.ID, sess.RefreshToken)
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int(s.codec.AccessTTL().Seconds()),
	}, nil
}

// decodeLogin reads credentials from a JSON body or a urlencoded form.
func decodeLogin(r *http.Request) (loginRequest, string, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // empty type falls through to JSON

	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return loginRequest{}, "invalid form body", false
		}
		return loginRequest{
			Username: r.PostForm.Get("username"),
			Password: r.PostForm.Get("password"),
			Device:   r.PostForm.Get("device"),
		}, "", true
	}

	var req loginRequest
	if msg, ok := decodeJSON(r, &req); !ok {
		return loginRequest{}, msg, false
	}
	return req, "", true
}

// deviceInfo describes the client. The explicit device label wins over the
// User-Agent; the IP honours the first X-Forwarded-For hop.
func deviceInfo(r *http.Request, device string) auth.DeviceInfo {
	ua := r.UserAgent()
	if device == "" {
		device = ua
	}
	return auth.DeviceInfo{
		Device:    truncate(device, maxDeviceInfoLength),
		IP:        clientIP(r),
		UserAgent: truncate(ua, maxDeviceInfoLength),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
