package mockapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/smartcampus/campus-client/internal/audit"
	"github.com/smartcampus/campus-client/internal/jwt"
	"github.com/smartcampus/campus-client/internal/session"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	User         *session.User `json:"user,omitempty"`
}

// AddAccount registers a user that can log in with password.
func (s *Server) AddAccount(user session.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[user.Email] = &account{user: user, password: password}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if !readJSON(w, r, &creds) {
		return
	}

	s.mu.Lock()
	acct, found := s.accounts[creds.Email]
	valid := found && acct.password == creds.Password
	var user session.User
	if valid {
		user = acct.user
	}
	s.mu.Unlock()

	if !valid {
		audit.Log(r.Context()).Error = "invalid credentials"
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	resp, err := s.grant(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not issue token")
		return
	}

	s.logins.Add(1)

	resp.User = &user
	writeJSON(w, http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// handleRefresh rotates the refresh token: each one can be used once. The
// response carries no user record.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshes.Add(1)

	var req refreshRequest
	if !readJSON(w, r, &req) {
		return
	}

	if s.rejectRefresh.Load() {
		writeError(w, http.StatusUnauthorized, "Refresh token has expired")
		return
	}

	s.mu.Lock()
	userID, found := s.refreshTokens[req.RefreshToken]
	delete(s.refreshTokens, req.RefreshToken)
	acct := s.accountByID(userID)
	var user session.User
	if acct != nil {
		user = acct.user
	}
	s.mu.Unlock()

	if !found || acct == nil {
		audit.Log(r.Context()).Error = "unknown refresh token"
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	resp, err := s.grant(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLogout revokes the presented access token and every refresh token of
// the caller.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := jwt.RequireClaimsFromContext(r.Context())

	s.mu.Lock()
	delete(s.activeTokens, claims.ID)
	for token, userID := range s.refreshTokens {
		if userID == claims.Subject {
			delete(s.refreshTokens, token)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.caller(w, r, func(*account) {})
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type profileUpdate struct {
	Name       string `json:"name"`
	StudentID  string `json:"studentId"`
	Department string `json:"department"`
	AvatarURL  string `json:"avatarUrl"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update profileUpdate
	if !readJSON(w, r, &update) {
		return
	}

	user, ok := s.caller(w, r, func(acct *account) {
		if update.Name != "" {
			acct.user.Name = update.Name
		}
		if update.StudentID != "" {
			acct.user.StudentID = update.StudentID
		}
		if update.Department != "" {
			acct.user.Department = update.Department
		}
		if update.AvatarURL != "" {
			acct.user.AvatarURL = update.AvatarURL
		}
	})
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// caller applies fn to the account of the authenticated user and returns a
// copy of its profile, answering 404 when the account no longer exists.
func (s *Server) caller(w http.ResponseWriter, r *http.Request, fn func(*account)) (session.User, bool) {
	claims := jwt.RequireClaimsFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.accountByID(claims.Subject)
	if acct == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return session.User{}, false
	}

	fn(acct)
	return acct.user, true
}

// accountByID must be called with s.mu held.
func (s *Server) accountByID(id string) *account {
	for _, acct := range s.accounts {
		if acct.user.ID == id {
			return acct
		}
	}
	return nil
}

// grant issues a new access and refresh token pair for user.
func (s *Server) grant(user session.User) (tokenResponse, error) {
	access, _, err := s.issuer.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return tokenResponse{}, err
	}

	claims, err := s.issuer.Verify(access)
	if err != nil {
		return tokenResponse{}, err
	}

	refresh := uuid.NewString()

	s.mu.Lock()
	s.activeTokens[claims.ID] = user.ID
	s.refreshTokens[refresh] = user.ID
	s.mu.Unlock()

	return tokenResponse{AccessToken: access, RefreshToken: refresh}, nil
}
