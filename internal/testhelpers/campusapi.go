package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smartcampus/campus-client/internal/jwt"
	"github.com/smartcampus/campus-client/internal/mockapi"
	"github.com/stretchr/testify/require"
)

// CampusAPI is a running mock campus API that counts the requests it serves.
type CampusAPI struct {
	*mockapi.Server
	URL string

	mu       sync.Mutex
	requests map[string]int
}

// StartCampusAPI starts a mock campus API for the duration of the test.
func StartCampusAPI(t *testing.T) *CampusAPI {
	t.Helper()

	issuer, err := jwt.NewIssuer("campus-test", []byte(strings.Repeat("t", 32)), time.Hour)
	require.NoError(t, err)

	api := &CampusAPI{
		Server:   mockapi.New(issuer),
		requests: map[string]int{},
	}

	handler := api.Server.Handler()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.requests[r.Method+" "+r.URL.Path]++
		api.mu.Unlock()

		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	api.URL = server.URL

	return api
}

// Requests returns the number of requests received for method and path,
// e.g. Requests("GET", "/api/issues").
func (a *CampusAPI) Requests(method, path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.requests[method+" "+path]
}
