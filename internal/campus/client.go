// Package campus exposes one typed operation per campus API endpoint. Queries
// are served from a tagged response cache; mutations invalidate the tags they
// affect.
package campus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/smartcampus/campus-client/internal/cache"
	"github.com/smartcampus/campus-client/internal/gateway"
	"github.com/smartcampus/campus-client/internal/session"
)

// Responses caches raw response bodies keyed by operation and arguments.
type Responses = cache.Tagged[[]byte]

type Client struct {
	gateway   *gateway.Gateway
	session   *session.Store
	responses *Responses

	Issues      *Resource[Issue, NewIssue]
	LostFound   *Resource[LostItem, NewLostItem]
	Help        *Resource[HelpPost, NewHelpPost]
	Feedback    *Resource[Feedback, NewFeedback]
	Polls       *Polls
	Confessions *Resource[Confession, NewConfession]
	Events      *Events
}

func New(gw *gateway.Gateway, store *session.Store, responses *Responses) *Client {
	c := &Client{
		gateway:   gw,
		session:   store,
		responses: responses,
	}

	c.Issues = newResource[Issue, NewIssue](c, "issues", "/issues")
	c.LostFound = newResource[LostItem, NewLostItem](c, "lost-found", "/lost-found")
	c.Help = newResource[HelpPost, NewHelpPost](c, "help", "/help")
	c.Feedback = newResource[Feedback, NewFeedback](c, "feedback", "/feedback")
	c.Polls = &Polls{Resource: newResource[Poll, NewPoll](c, "polls", "/polls")}
	c.Confessions = newResource[Confession, NewConfession](c, "confessions", "/confessions")
	c.Events = &Events{Resource: newResource[Event, NewEvent](c, "events", "/events")}

	return c
}

// Session returns a copy of the current Session.
func (c *Client) Session() session.Session {
	return c.session.Snapshot()
}

// query serves a GET from the response cache, fetching and caching it on a
// miss. Cache failures only cost a request. Without a Session the cache is
// bypassed, so responses fetched for an ended Session are never served.
func (c *Client) query(ctx context.Context, key string, tags []string, path string, out any) error {
	logger := zerolog.Ctx(ctx)

	if c.session.AccessToken() != "" {
		body, found, err := c.responses.Get(ctx, key)
		if err != nil {
			logger.Debug().Err(err).Str("key", key).Msg("response cache read failed")
		}
		if found {
			if err := json.Unmarshal(body, out); err == nil {
				return nil
			}
			_ = c.responses.Invalidate(ctx, key)
		}
	}

	resp, err := c.execute(ctx, gateway.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return err
	}

	if err := c.responses.Put(ctx, key, resp.Body, tags...); err != nil {
		logger.Debug().Err(err).Str("key", key).Msg("response cache write failed")
	}

	return nil
}

// mutate sends a protected request and invalidates tags on success.
func (c *Client) mutate(ctx context.Context, method, path string, body any, out any, tags ...string) error {
	resp, err := c.execute(ctx, gateway.Request{Method: method, Path: path, Body: body})
	if err != nil {
		return err
	}

	c.invalidate(ctx, tags...)

	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// execute sends a protected request. When the gateway ends the Session, the
// responses cached for it are discarded with it.
func (c *Client) execute(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	resp, err := c.gateway.Execute(ctx, req)
	if errors.Is(err, gateway.ErrSessionExpired) {
		c.purge(ctx)
	}
	return resp, err
}

func (c *Client) invalidate(ctx context.Context, tags ...string) {
	if len(tags) == 0 {
		return
	}

	n, err := c.responses.InvalidateTags(ctx, tags...)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Strs("tags", tags).Msg("response cache invalidation failed")
	}
	zerolog.Ctx(ctx).Debug().Strs("tags", tags).Int("entries", n).Msg("response cache invalidated")
}

func itemPath(base, id string) string {
	return base + "/" + url.PathEscape(id)
}

func itemTag(resource, id string) string {
	return resource + ":" + id
}
