// Package mockapi is an in-memory implementation of the campus HTTP API. It
// backs the local development server and the client's end-to-end tests.
package mockapi

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/justinas/alice"
	"github.com/rs/zerolog/log"
	"github.com/smartcampus/campus-client/internal/audit"
	"github.com/smartcampus/campus-client/internal/campus"
	"github.com/smartcampus/campus-client/internal/jwt"
	"github.com/smartcampus/campus-client/internal/observe"
	"github.com/smartcampus/campus-client/internal/session"
)

const maxRequestBytes = 1 * 1024 * 1024

// Server holds the campus data and the credentials it has handed out. Its
// knobs allow tests to expire access tokens and break the refresh endpoint.
type Server struct {
	issuer *jwt.Issuer

	mu            sync.Mutex
	accounts      map[string]*account // by email
	activeTokens  map[string]string   // access token ID -> user ID
	refreshTokens map[string]string   // refresh token -> user ID

	issues      *collection[campus.Issue]
	lostFound   *collection[campus.LostItem]
	help        *collection[campus.HelpPost]
	feedback    *collection[campus.Feedback]
	polls       *collection[campus.Poll]
	confessions *collection[campus.Confession]
	events      *collection[campus.Event]

	votes         map[string]map[string]string // poll ID -> user ID -> option ID
	registrations map[string]map[string]bool   // event ID -> user ID

	rejectRefresh atomic.Bool
	refreshes     atomic.Int64
	logins        atomic.Int64
}

type account struct {
	user     session.User
	password string
}

func New(issuer *jwt.Issuer) *Server {
	s := &Server{
		issuer:        issuer,
		accounts:      map[string]*account{},
		activeTokens:  map[string]string{},
		refreshTokens: map[string]string{},
		issues:        newCollection(func(i campus.Issue) string { return i.ID }),
		lostFound:     newCollection(func(i campus.LostItem) string { return i.ID }),
		help:          newCollection(func(p campus.HelpPost) string { return p.ID }),
		feedback:      newCollection(func(f campus.Feedback) string { return f.ID }),
		polls:         newCollection(func(p campus.Poll) string { return p.ID }),
		confessions:   newCollection(func(c campus.Confession) string { return c.ID }),
		events:        newCollection(func(e campus.Event) string { return e.ID }),
		votes:         map[string]map[string]string{},
		registrations: map[string]map[string]bool{},
	}

	s.seed()

	return s
}

// Handler returns the routes of the API, each instrumented and audited.
func (s *Server) Handler() http.Handler {
	mux := observe.NewMux(http.NewServeMux(), audit.Middleware(), maxRequestSize(maxRequestBytes))

	authorized := alice.New(jwt.Middleware(s.issuer), s.requireActiveToken)

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.Handle("POST /api/auth/logout", authorized.ThenFunc(s.handleLogout))
	mux.Handle("GET /api/users/profile", authorized.ThenFunc(s.handleProfile))
	mux.Handle("PUT /api/users/profile", authorized.ThenFunc(s.handleUpdateProfile))

	routeCollection(mux, authorized, "issues", s.issues, s.buildIssue, nil)
	routeCollection(mux, authorized, "lost-found", s.lostFound, s.buildLostItem, nil)
	routeCollection(mux, authorized, "help", s.help, s.buildHelpPost, nil)
	routeCollection(mux, authorized, "feedback", s.feedback, s.buildFeedback, nil)
	routeCollection(mux, authorized, "confessions", s.confessions, s.buildConfession, nil)
	routeCollection(mux, authorized, "polls", s.polls, s.buildPoll, s.pollView)
	routeCollection(mux, authorized, "events", s.events, s.buildEvent, s.eventView)

	mux.Handle("POST /api/polls/{id}/vote", authorized.ThenFunc(s.handleVote))
	mux.Handle("POST /api/events/{id}/register", authorized.ThenFunc(s.handleRegister))

	// healthchecks are not included in telemetry
	root := http.NewServeMux()
	root.Handle("GET /healthcheck", http.HandlerFunc(handleHealthCheck))
	root.Handle("/", mux)

	return root
}

// ExpireAccessTokens revokes every access token issued so far. Protected
// requests carrying them are answered with 401 until the client refreshes.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.activeTokens)
}

// RejectRefresh makes the refresh endpoint answer 401 while set.
func (s *Server) RejectRefresh(reject bool) {
	s.rejectRefresh.Store(reject)
}

// Refreshes returns the number of refresh requests received.
func (s *Server) Refreshes() int {
	return int(s.refreshes.Load())
}

// Logins returns the number of successful logins.
func (s *Server) Logins() int {
	return int(s.logins.Load())
}

// requireActiveToken rejects verified tokens that were since revoked.
func (s *Server) requireActiveToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := jwt.RequireClaimsFromContext(r.Context())

		s.mu.Lock()
		_, active := s.activeTokens[claims.ID]
		s.mu.Unlock()

		if !active {
			writeError(w, http.StatusUnauthorized, "Token has expired")
			return
		}

		entry := audit.Log(r.Context())
		entry.Authorized = true
		entry.AuthSubject = claims.Subject

		next.ServeHTTP(w, r)
	})
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	defer drainRequestBody(r)

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// errorResponse is the error body of the API.
type errorResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// writeConflict uses the alternate "error" field some endpoints of the
// service answer with.
func writeConflict(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusConflict, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// the status code has been written, so we can only log
		log.Info().Err(err).Msg("failed to write JSON response")
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return false
	}
	return true
}

// drainRequestBody consumes the request body so HTTP/1 connections can be
// reused.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		_, _ = io.CopyN(io.Discard, r.Body, maxRequestBytes)
	}
}
