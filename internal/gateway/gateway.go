// Package gateway sends requests to the campus API on behalf of the signed in
// user.
//
// Protected requests carry the access token held by the session Store. A
// request rejected with 401 waits for a single shared token refresh and is
// then replayed exactly once with the renewed token. When the refresh fails,
// or the replay is rejected again, the Session is cleared and the caller
// receives ErrSessionExpired.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/smartcampus/campus-client/internal/session"
	"golang.org/x/sync/singleflight"
)

const (
	// APIPrefix is prepended to every request path.
	APIPrefix = "/api"

	// RefreshPath is the token renewal endpoint, relative to APIPrefix.
	RefreshPath = "/auth/refresh"

	refreshFlightKey = "refresh"
	maxResponseBytes = 10 << 20 // 10 MB
)

// Request describes a call to the remote service. Path is relative to the
// API prefix. A non-nil Body is sent as JSON.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any
	Anonymous bool
}

// Response is a successful reply from the remote service.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v. An empty body leaves v unchanged.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &NetworkError{Err: fmt.Errorf("malformed response body: %w", err)}
	}
	return nil
}

type Options struct {
	// BaseURL is the service origin, e.g. http://localhost:5000.
	BaseURL string
	// Timeout bounds each request, and each token refresh.
	Timeout time.Duration
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
	Observer  Observer
}

type Gateway struct {
	base     *url.URL
	client   *http.Client
	timeout  time.Duration
	session  *session.Store
	observer Observer
	flight   singleflight.Group
}

func New(store *session.Store, opts Options) (*Gateway, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("API base URL must be absolute: %q", opts.BaseURL)
	}
	base = base.JoinPath(APIPrefix)

	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Gateway{
		base: base,
		client: &http.Client{
			Transport: opts.Transport,
			Timeout:   opts.Timeout,
		},
		timeout:  opts.Timeout,
		session:  store,
		observer: observer,
	}, nil
}

// Execute sends req and returns the successful response. Errors are one of
// ErrSessionExpired, *HTTPError or *NetworkError.
func (g *Gateway) Execute(ctx context.Context, req Request) (*Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()

	var token string
	if !req.Anonymous {
		token = g.session.AccessToken()
	}

	resp, err := g.send(ctx, req, body, token, requestID, false)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || req.Anonymous {
		return successful(resp)
	}

	renewed, err := g.reauthorize(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err = g.send(ctx, req, body, renewed, requestID, true)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// A renewed token was rejected too. Refreshing again could loop, so the
		// Session ends here unless someone else has replaced it meanwhile.
		_, _ = g.session.ClearIfCurrent(ctx, renewed)
		return nil, fmt.Errorf("%w: renewed credential was rejected", ErrSessionExpired)
	}

	return successful(resp)
}

// Do executes req and decodes the JSON response into T.
func Do[T any](ctx context.Context, g *Gateway, req Request) (T, error) {
	var out T

	resp, err := g.Execute(ctx, req)
	if err != nil {
		return out, err
	}

	if err := resp.Decode(&out); err != nil {
		return out, err
	}

	return out, nil
}

// reauthorize returns an access token that is worth replaying a request
// rejected while carrying stale. Concurrent callers share one refresh; a
// caller whose context ends stops waiting without cancelling the refresh.
func (g *Gateway) reauthorize(ctx context.Context, stale string) (string, error) {
	if current := g.session.AccessToken(); current != "" && current != stale {
		return current, nil
	}

	detached := context.WithoutCancel(ctx)

	ch := g.flight.DoChan(refreshFlightKey, func() (any, error) {
		return g.refresh(detached, stale)
	})

	select {
	case result := <-ch:
		if result.Err != nil {
			return "", result.Err
		}
		return result.Val.(string), nil
	case <-ctx.Done():
		return "", &NetworkError{Err: ctx.Err()}
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	User         *session.User `json:"user"`
}

func (g *Gateway) refresh(ctx context.Context, stale string) (string, error) {
	current, proceed := g.session.BeginRefresh(stale)
	if !proceed {
		// renewed by an earlier refresh that this request missed
		return current.AccessToken, nil
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	token, err := g.renew(ctx, current)
	g.observer.Refreshed(ctx, RefreshOutcome{Duration: time.Since(start), Err: err})

	if err != nil {
		// in-memory state is cleared even if storage fails; the store logs
		// that. A Session replaced by a login meanwhile is left alone.
		_, _ = g.session.ClearIfCurrent(ctx, current.AccessToken)
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	return token, nil
}

// renew exchanges the refresh token of current for a new access token and
// merges the result, unless the Session was replaced while the call was
// outstanding. In that case the replacing Session's token is returned.
func (g *Gateway) renew(ctx context.Context, current session.Session) (string, error) {
	refreshToken := current.RefreshToken
	if refreshToken == "" {
		return "", errors.New("no refresh token available")
	}

	req := Request{
		Method:    http.MethodPost,
		Path:      RefreshPath,
		Body:      refreshRequest{RefreshToken: refreshToken},
		Anonymous: true,
	}
	body, err := encodeBody(req.Body)
	if err != nil {
		return "", err
	}

	resp, err := g.send(ctx, req, body, "", uuid.NewString(), false)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("token refresh rejected with status %d", resp.StatusCode)
	}

	var renewed refreshResponse
	if err := resp.Decode(&renewed); err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	if renewed.AccessToken == "" {
		return "", errors.New("token refresh response has no access token")
	}

	// a storage failure is logged by the store; the in-memory Session is
	// already updated and usable
	merged, _ := g.session.MergeIfCurrent(ctx, current.AccessToken, session.Update{
		AccessToken:  renewed.AccessToken,
		RefreshToken: renewed.RefreshToken,
		User:         renewed.User,
	})
	if !merged {
		replacement := g.session.AccessToken()
		if replacement == "" {
			return "", errors.New("session ended while the token was refreshed")
		}
		return replacement, nil
	}

	return renewed.AccessToken, nil
}

func (g *Gateway) send(ctx context.Context, req Request, body []byte, token, requestID string, replay bool) (*Response, error) {
	target := g.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if !req.Anonymous && token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	exchange := Exchange{
		RequestID: requestID,
		Method:    req.Method,
		URL:       target.String(),
		Replay:    replay,
	}

	start := time.Now()
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		exchange.Duration = time.Since(start)
		exchange.Err = err
		g.observer.Exchanged(ctx, exchange)
		return nil, &NetworkError{Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	exchange.Duration = time.Since(start)
	if err != nil {
		exchange.Err = err
		g.observer.Exchanged(ctx, exchange)
		return nil, &NetworkError{Err: fmt.Errorf("reading response body: %w", err)}
	}

	exchange.Status = httpResp.StatusCode
	g.observer.Exchanged(ctx, exchange)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

func successful(resp *Response) (*Response, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return resp, nil
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return data, nil
}
