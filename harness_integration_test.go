//go:build integration

package main

import (
	"context"
	"strconv"
	"testing"

	"github.com/smartcampus/campus-client/internal/config"
	"github.com/smartcampus/campus-client/internal/mockapi"
	"github.com/smartcampus/campus-client/internal/server"
	"github.com/smartcampus/campus-client/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValkeySession runs the client against the mock API with the session
// stored encrypted in a Valkey container, as a shared deployment would.
func TestValkeySession(t *testing.T) {
	testhelpers.SetupLogger(t)

	api := testhelpers.StartCampusAPI(t)
	sessionCfg := testhelpers.RunValkeyContainer(t)

	t.Setenv("CAMPUS_API_URL", api.URL)
	t.Setenv("SESSION_STORE", sessionCfg.Type)
	t.Setenv("SESSION_KEY", sessionCfg.Key)
	t.Setenv("VALKEY_ADDRESS", sessionCfg.Valkey.Address)
	t.Setenv("VALKEY_TLS", strconv.FormatBool(sessionCfg.Valkey.TLS))
	t.Setenv("VALKEY_USERNAME", sessionCfg.Valkey.Username)
	t.Setenv("VALKEY_PASSWORD", sessionCfg.Valkey.Password)
	t.Setenv("SESSION_ENCRYPTION_ENABLED", "true")
	t.Setenv("SESSION_ENCRYPTION_KEYSET_FILE", sessionCfg.Encryption.KeysetFile)

	_, stderr, code := invoke(t, "login", mockapi.DemoEmail, mockapi.DemoPassword)
	require.Equal(t, 0, code, stderr)

	api.ExpireAccessTokens()

	stdout, stderr, code := invoke(t, "list", "issues")
	require.Equal(t, 0, code, stderr)
	assert.NotEmpty(t, stdout)
	assert.Equal(t, 1, api.Refreshes())

	_, stderr, code = invoke(t, "logout")
	require.Equal(t, 0, code, stderr)

	stdout, _, code = invoke(t, "status")
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"authenticated": false}`, stdout)
}

// TestConfigureClient_Valkey checks the wiring directly, without the
// environment.
func TestConfigureClient_Valkey(t *testing.T) {
	testhelpers.SetupLogger(t)
	ctx := context.Background()

	api := testhelpers.StartCampusAPI(t)

	cfg, err := config.Load(ctx)
	require.NoError(t, err)
	cfg.API.URL = api.URL
	cfg.Session = testhelpers.RunValkeyContainer(t)

	hooks := &server.ShutdownHooks{}
	t.Cleanup(func() { _ = hooks.Execute(context.Background()) })

	client, err := configureClient(ctx, cfg, hooks)
	require.NoError(t, err)

	user, err := client.Login(ctx, mockapi.DemoEmail, mockapi.DemoPassword)
	require.NoError(t, err)
	assert.Equal(t, mockapi.DemoEmail, user.Email)

	profile, err := client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, user, profile)
}
