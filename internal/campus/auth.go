package campus

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/smartcampus/campus-client/internal/cache"
	"github.com/smartcampus/campus-client/internal/gateway"
	"github.com/smartcampus/campus-client/internal/session"
)

const profileTag = "profile"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	User         *session.User `json:"user"`
}

// Login exchanges credentials for a new Session. Responses cached for any
// previous user are discarded.
func (c *Client) Login(ctx context.Context, email, password string) (session.User, error) {
	if err := errors.Join(required("email", email), required("password", password)); err != nil {
		return session.User{}, err
	}

	resp, err := gateway.Do[loginResponse](ctx, c.gateway, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      loginRequest{Email: email, Password: password},
		Anonymous: true,
	})
	if err != nil {
		return session.User{}, err
	}

	if resp.AccessToken == "" {
		return session.User{}, &gateway.NetworkError{Err: errors.New("malformed login response: no access token")}
	}

	c.purge(ctx)

	s := session.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}
	if err := c.session.Replace(ctx, s); err != nil {
		return session.User{}, fmt.Errorf("signed in, but the session could not be saved: %w", err)
	}

	if resp.User == nil {
		return session.User{}, nil
	}
	return *resp.User, nil
}

// Logout ends the Session. The Session and the response cache are cleared
// even when the remote call fails; only a failure to clear the stored Session
// is returned.
func (c *Client) Logout(ctx context.Context) error {
	if c.session.AccessToken() != "" {
		_, err := c.gateway.Execute(ctx, gateway.Request{
			Method: http.MethodPost,
			Path:   "/auth/logout",
		})
		if err != nil {
			zerolog.Ctx(ctx).Info().Err(err).Msg("remote logout failed; clearing local session")
		}
	}

	c.purge(ctx)

	return c.session.Clear(ctx)
}

// Profile returns the signed in user's profile.
func (c *Client) Profile(ctx context.Context) (session.User, error) {
	var user session.User
	err := c.query(ctx, cache.Key("profile.get"), []string{profileTag}, "/users/profile", &user)
	return user, err
}

// ProfileUpdate holds the profile fields to change. Empty fields are left
// unchanged.
type ProfileUpdate struct {
	Name       string `json:"name,omitempty"`
	StudentID  string `json:"studentId,omitempty"`
	Department string `json:"department,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
}

func (u ProfileUpdate) Validate() error {
	if u == (ProfileUpdate{}) {
		return &ValidationError{Field: "profile", Reason: "at least one field must be changed"}
	}
	return nil
}

// UpdateProfile changes the profile and stores the returned record in the
// Session.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (session.User, error) {
	if err := update.Validate(); err != nil {
		return session.User{}, err
	}

	var user session.User
	if err := c.mutate(ctx, http.MethodPut, "/users/profile", update, &user, profileTag); err != nil {
		return session.User{}, err
	}

	if err := c.session.SetUser(ctx, user); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("updated profile could not be saved to the session")
	}

	return user, nil
}

func (c *Client) purge(ctx context.Context) {
	if err := c.responses.Purge(ctx); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("response cache purge failed")
	}
}
