package campus_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/smartcampus/campus-client/internal/cache"
	"github.com/smartcampus/campus-client/internal/campus"
	"github.com/smartcampus/campus-client/internal/gateway"
	"github.com/smartcampus/campus-client/internal/mockapi"
	"github.com/smartcampus/campus-client/internal/session"
	"github.com/smartcampus/campus-client/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_PopulatesSession(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, store := newClient(t, api)

	user, err := client.Login(context.Background(), mockapi.DemoEmail, mockapi.DemoPassword)
	require.NoError(t, err)

	assert.Equal(t, mockapi.DemoEmail, user.Email)

	s := store.Snapshot()
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)
	require.NotNil(t, s.User)
	assert.Equal(t, user, *s.User)
	assert.Equal(t, session.Authenticated, store.State())
}

func TestLogin_RejectedCredentials(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, store := newClient(t, api)

	_, err := client.Login(context.Background(), mockapi.DemoEmail, "wrong")

	var httpErr *gateway.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, "Invalid email or password", httpErr.Message())

	assert.True(t, store.Snapshot().Empty())
	assert.Zero(t, api.Refreshes())
}

func TestLogin_RequiresCredentials(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)

	_, err := client.Login(context.Background(), "", "")

	var validation *campus.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.ErrorContains(t, err, "email")
	assert.ErrorContains(t, err, "password")
	assert.Zero(t, api.Requests(http.MethodPost, "/api/auth/login"))
}

func TestLogout_ClearsSessionAndCache(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, store := newClient(t, api)
	ctx := context.Background()
	login(t, client)

	_, err := client.Issues.List(ctx)
	require.NoError(t, err)

	require.NoError(t, client.Logout(ctx))

	assert.True(t, store.Snapshot().Empty())
	assert.Equal(t, session.Unauthenticated, store.State())
	assert.Equal(t, 1, api.Requests(http.MethodPost, "/api/auth/logout"))

	// the next user must not see responses cached for the previous one
	login(t, client)
	_, err = client.Issues.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, api.Requests(http.MethodGet, "/api/issues"))
}

func TestLogout_ClearsSessionWhenRemoteCallFails(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, store := newClient(t, api)
	login(t, client)

	api.ExpireAccessTokens()
	api.RejectRefresh(true)

	require.NoError(t, client.Logout(context.Background()))

	assert.True(t, store.Snapshot().Empty())
}

func TestLogout_WithoutSessionSkipsRemoteCall(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)

	require.NoError(t, client.Logout(context.Background()))

	assert.Zero(t, api.Requests(http.MethodPost, "/api/auth/logout"))
}

func TestList_ServedFromCacheUntilCreate(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)
	ctx := context.Background()
	login(t, client)

	first, err := client.Issues.List(ctx)
	require.NoError(t, err)
	second, err := client.Issues.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, api.Requests(http.MethodGet, "/api/issues"))

	created, err := client.Issues.Create(ctx, campus.NewIssue{
		Title:       "Cracked window",
		Description: "Window in room 101 is cracked.",
		Location:    "Room 101",
	})
	require.NoError(t, err)

	third, err := client.Issues.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, api.Requests(http.MethodGet, "/api/issues"))
	require.Len(t, third, len(first)+1)
	assert.Equal(t, created.ID, third[0].ID)
}

func TestCreate_LeavesOtherResourcesCached(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)
	ctx := context.Background()
	login(t, client)

	_, err := client.Help.List(ctx)
	require.NoError(t, err)

	_, err = client.Confessions.Create(ctx, campus.NewConfession{Content: "I like Mondays."})
	require.NoError(t, err)

	_, err = client.Help.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, api.Requests(http.MethodGet, "/api/help"))
}

func TestCreate_ValidatesBeforeSending(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)
	ctx := context.Background()
	login(t, client)

	tests := []struct {
		name  string
		path  string
		field string
		call  func() error
	}{
		{
			name:  "issue",
			path:  "/api/issues",
			field: "location",
			call: func() error {
				_, err := client.Issues.Create(ctx, campus.NewIssue{Title: "t", Description: "d"})
				return err
			},
		},
		{
			name:  "lost item",
			path:  "/api/lost-found",
			field: "type",
			call: func() error {
				_, err := client.LostFound.Create(ctx, campus.NewLostItem{Title: "t", Kind: "stolen", Location: "l"})
				return err
			},
		},
		{
			name:  "help post",
			path:  "/api/help",
			field: "urgency",
			call: func() error {
				_, err := client.Help.Create(ctx, campus.NewHelpPost{Title: "t", Description: "d", Urgency: "now"})
				return err
			},
		},
		{
			name:  "feedback",
			path:  "/api/feedback",
			field: "rating",
			call: func() error {
				_, err := client.Feedback.Create(ctx, campus.NewFeedback{Subject: "s", Message: "m", Rating: 6})
				return err
			},
		},
		{
			name:  "poll",
			path:  "/api/polls",
			field: "options",
			call: func() error {
				_, err := client.Polls.Create(ctx, campus.NewPoll{Question: "q", Options: []string{"only"}})
				return err
			},
		},
		{
			name:  "confession",
			path:  "/api/confessions",
			field: "content",
			call: func() error {
				_, err := client.Confessions.Create(ctx, campus.NewConfession{Content: "   "})
				return err
			},
		},
		{
			name:  "event",
			path:  "/api/events",
			field: "endsAt",
			call: func() error {
				start := time.Now().Add(time.Hour)
				_, err := client.Events.Create(ctx, campus.NewEvent{
					Title:    "t",
					Location: "l",
					StartsAt: start,
					EndsAt:   start.Add(-time.Minute),
				})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()

			var validation *campus.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.ErrorContains(t, err, tt.field)
			assert.Zero(t, api.Requests(http.MethodPost, tt.path))
		})
	}
}

func TestGet_RejectsInvalidIdentifiers(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)
	login(t, client)

	for _, id := range []string{"", ".", ".."} {
		_, err := client.Issues.Get(context.Background(), id)

		var validation *campus.ValidationError
		assert.ErrorAs(t, err, &validation, "id %q", id)
	}
}

func TestGet_NotFound(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)
	login(t, client)

	_, err := client.Events.Get(context.Background(), "missing")

	var httpErr *gateway.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestVote_InvalidatesPollListAndDetail(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)
	ctx := context.Background()
	login(t, client)

	polls, err := client.Polls.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, polls)
	poll := polls[0]

	detail, err := client.Polls.Get(ctx, poll.ID)
	require.NoError(t, err)
	assert.False(t, detail.HasVoted)

	voted, err := client.Polls.Vote(ctx, poll.ID, poll.Options[0].ID)
	require.NoError(t, err)
	assert.True(t, voted.HasVoted)
	assert.Equal(t, 1, voted.Options[0].Votes)

	detail, err = client.Polls.Get(ctx, poll.ID)
	require.NoError(t, err)
	assert.True(t, detail.HasVoted)

	_, err = client.Polls.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, api.Requests(http.MethodGet, "/api/polls"))
	assert.Equal(t, 2, api.Requests(http.MethodGet, "/api/polls/"+poll.ID))
}

func TestVote_ConflictMessage(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)
	ctx := context.Background()
	login(t, client)

	polls, err := client.Polls.List(ctx)
	require.NoError(t, err)
	poll := polls[0]

	_, err = client.Polls.Vote(ctx, poll.ID, poll.Options[0].ID)
	require.NoError(t, err)

	_, err = client.Polls.Vote(ctx, poll.ID, poll.Options[1].ID)

	var httpErr *gateway.HTTPError
	require.ErrorAs(t, err, &httpErr)
	status, message := httpErr.Status()
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already voted", message)
}

func TestRegister_InvalidatesEvent(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)
	ctx := context.Background()
	login(t, client)

	events, err := client.Events.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	event := events[0]

	registered, err := client.Events.Register(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, registered.IsRegistered)

	events, err = client.Events.List(ctx)
	require.NoError(t, err)
	assert.True(t, events[0].IsRegistered)
	assert.Equal(t, event.Registered+1, events[0].Registered)
}

func TestProfile_UpdateStoresUserInSession(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, store := newClient(t, api)
	ctx := context.Background()
	login(t, client)

	before, err := client.Profile(ctx)
	require.NoError(t, err)

	updated, err := client.UpdateProfile(ctx, campus.ProfileUpdate{Department: "Mathematics"})
	require.NoError(t, err)

	assert.Equal(t, "Mathematics", updated.Department)
	assert.Equal(t, before.Name, updated.Name)
	require.NotNil(t, store.Snapshot().User)
	assert.Equal(t, updated, *store.Snapshot().User)

	after, err := client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, updated, after)
	assert.Equal(t, 2, api.Requests(http.MethodGet, "/api/users/profile"))
}

func TestProfile_UpdateRequiresAChange(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)
	login(t, client)

	_, err := client.UpdateProfile(context.Background(), campus.ProfileUpdate{})

	var validation *campus.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Zero(t, api.Requests(http.MethodPut, "/api/users/profile"))
}

func TestExpiredToken_RefreshedTransparently(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, store := newClient(t, api)
	ctx := context.Background()
	login(t, client)
	before := store.Snapshot()

	api.ExpireAccessTokens()

	profile, err := client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, mockapi.DemoEmail, profile.Email)

	after := store.Snapshot()
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.NotEqual(t, before.RefreshToken, after.RefreshToken)
	assert.Equal(t, before.User, after.User, "user is kept when the refresh response omits it")
	assert.Equal(t, 1, api.Refreshes())
}

func TestExpiredToken_ConcurrentRequestsShareOneRefresh(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, _ := newClient(t, api)
	ctx := context.Background()
	login(t, client)

	api.ExpireAccessTokens()

	calls := []func() error{
		func() error { _, err := client.Issues.List(ctx); return err },
		func() error { _, err := client.LostFound.List(ctx); return err },
		func() error { _, err := client.Help.List(ctx); return err },
		func() error { _, err := client.Feedback.List(ctx); return err },
		func() error { _, err := client.Polls.List(ctx); return err },
		func() error { _, err := client.Confessions.List(ctx); return err },
		func() error { _, err := client.Events.List(ctx); return err },
		func() error { _, err := client.Profile(ctx); return err },
	}

	errs := make([]error, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Go(func() {
			errs[i] = call()
		})
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, api.Refreshes())
}

func TestExpiredToken_RejectedRefreshEndsSession(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, store := newClient(t, api)
	ctx := context.Background()
	login(t, client)

	api.ExpireAccessTokens()
	api.RejectRefresh(true)

	_, err := client.Events.List(ctx)

	require.ErrorIs(t, err, gateway.ErrSessionExpired)
	assert.True(t, store.Snapshot().Empty())
	assert.Equal(t, session.Unauthenticated, store.State())

	// without a session, a protected call fails without another refresh
	_, err = client.Issues.List(ctx)
	assert.True(t, errors.Is(err, gateway.ErrSessionExpired))
	assert.Equal(t, 1, api.Refreshes())
}

func TestExpiredToken_EndedSessionDiscardsCachedResponses(t *testing.T) {
	api := testhelpers.StartCampusAPI(t)
	client, store := newClient(t, api)
	ctx := context.Background()
	login(t, client)

	_, err := client.Profile(ctx)
	require.NoError(t, err)
	issues, err := client.Issues.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, issues)

	api.ExpireAccessTokens()
	api.RejectRefresh(true)

	_, err = client.Events.List(ctx)
	require.ErrorIs(t, err, gateway.ErrSessionExpired)
	require.True(t, store.Snapshot().Empty())

	_, err = client.Profile(ctx)
	assert.ErrorIs(t, err, gateway.ErrSessionExpired)

	_, err = client.Issues.List(ctx)
	assert.ErrorIs(t, err, gateway.ErrSessionExpired)

	// signing in again fetches fresh responses
	api.RejectRefresh(false)
	login(t, client)

	before := api.Requests(http.MethodGet, "/api/issues")
	_, err = client.Issues.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, api.Requests(http.MethodGet, "/api/issues"))
}

func newClient(t *testing.T, api *testhelpers.CampusAPI) (*campus.Client, *session.Store) {
	t.Helper()
	testhelpers.SetupLogger(t)

	store, err := session.Open(context.Background(), nil)
	require.NoError(t, err)

	gw, err := gateway.New(store, gateway.Options{
		BaseURL: api.URL,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	memory, err := cache.NewMemory[[]byte](time.Minute, 100)
	require.NoError(t, err)
	responses := cache.NewTagged[[]byte](memory)
	t.Cleanup(func() { _ = responses.Close() })

	return campus.New(gw, store, responses), store
}

func login(t *testing.T, client *campus.Client) {
	t.Helper()

	_, err := client.Login(context.Background(), mockapi.DemoEmail, mockapi.DemoPassword)
	require.NoError(t, err)
}
