// Package session holds the process-wide credential state of the client.
//
// A Store owns exactly one Session. Readers receive full copies, and every
// mutation replaces the Session as a whole under the write lock, so a reader
// never observes a new access token paired with a stale refresh token.
// Mutations are written through to durable storage before the lock is
// released, which keeps the persisted order equal to the in-memory order.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// User is the profile record returned by the remote service.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	StudentID  string `json:"studentId,omitempty"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
}

// Session is the credential set of the signed in user. Absent values are
// empty strings (tokens) or nil (user).
type Session struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// Empty reports whether every field is absent.
func (s Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.User == nil
}

func (s Session) clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Update carries the result of a token refresh. Empty fields leave the
// corresponding Session value unchanged.
type Update struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// State is the credential validity of the Session.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Persistence is durable storage for a single Session.
type Persistence interface {
	Load(ctx context.Context) (Session, bool, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

type Store struct {
	mu        sync.RWMutex
	current   Session
	state     State
	persister Persistence
}

// Open creates a Store, loading any persisted Session before returning. A nil
// persister keeps the Session in memory only.
func Open(ctx context.Context, persister Persistence) (*Store, error) {
	s := &Store{persister: persister}

	if persister == nil {
		return s, nil
	}

	loaded, found, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading persisted session: %w", err)
	}

	if found {
		s.current = loaded.clone()
		s.state = stateOf(s.current)
		log.Debug().Stringer("state", s.state).Msg("session: restored from storage")
	}

	return s, nil
}

// Snapshot returns a copy of the current Session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current.clone()
}

// AccessToken returns the current access token, or "" when absent.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current.AccessToken
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Replace sets a new Session in full, as after a login.
func (s *Store) Replace(ctx context.Context, next Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit(ctx, next.clone(), stateOf(next))
}

// Merge applies a refresh result. The access token must be present.
func (s *Store) Merge(ctx context.Context, u Update) error {
	if u.AccessToken == "" {
		return fmt.Errorf("session update requires an access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.merge(ctx, u)
}

// MergeIfCurrent applies a refresh result only while accessToken is still
// the current access token, so the result of a refresh started before a new
// login is never paired with that login's tokens. It reports whether the
// update was applied.
func (s *Store) MergeIfCurrent(ctx context.Context, accessToken string, u Update) (bool, error) {
	if u.AccessToken == "" {
		return false, fmt.Errorf("session update requires an access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.AccessToken != accessToken {
		return false, nil
	}
	return true, s.merge(ctx, u)
}

// merge must be called with the write lock held.
func (s *Store) merge(ctx context.Context, u Update) error {
	next := s.current.clone()
	next.AccessToken = u.AccessToken
	if u.RefreshToken != "" {
		next.RefreshToken = u.RefreshToken
	}
	if u.User != nil {
		user := *u.User
		next.User = &user
	}

	return s.commit(ctx, next, Authenticated)
}

// SetUser replaces the stored profile record, leaving tokens untouched.
func (s *Store) SetUser(ctx context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.clone()
	next.User = &user

	return s.commit(ctx, next, s.state)
}

// Clear resets every field to absent.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit(ctx, Session{}, Unauthenticated)
}

// BeginRefresh decides whether a request rejected while carrying the stale
// access token needs a token refresh. When the Session already holds a
// different access token (another caller refreshed or logged in) it returns
// that Session and false. Otherwise an authenticated Session moves to
// Refreshing and is returned with true.
func (s *Store) BeginRefresh(stale string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.AccessToken != "" && s.current.AccessToken != stale {
		return s.current.clone(), false
	}

	if s.state == Authenticated {
		s.state = Refreshing
	}
	return s.current.clone(), true
}

// ClearIfCurrent clears the Session only while accessToken is still the
// current access token. It reports whether the Session was cleared.
func (s *Store) ClearIfCurrent(ctx context.Context, accessToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.AccessToken != accessToken {
		return false, nil
	}
	return true, s.commit(ctx, Session{}, Unauthenticated)
}

// commit must be called with the write lock held. The in-memory Session is
// authoritative: it changes even when persistence fails.
func (s *Store) commit(ctx context.Context, next Session, state State) error {
	s.current = next
	s.state = state

	if s.persister == nil {
		return nil
	}

	var err error
	if next.Empty() {
		err = s.persister.Clear(ctx)
	} else {
		err = s.persister.Save(ctx, next)
	}
	if err != nil {
		log.Warn().Err(err).Stringer("state", state).Msg("session: write-through failed")
		return fmt.Errorf("persisting session: %w", err)
	}

	return nil
}

func stateOf(s Session) State {
	if s.AccessToken == "" {
		return Unauthenticated
	}
	return Authenticated
}
