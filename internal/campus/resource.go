package campus

import (
	"context"
	"net/http"

	"github.com/smartcampus/campus-client/internal/cache"
)

type validator interface {
	Validate() error
}

// Resource is a collection endpoint supporting list, detail and create.
// Lists are cached under the resource tag; details under "<resource>:<id>".
type Resource[T any, N validator] struct {
	client *Client
	name   string
	path   string
}

func newResource[T any, N validator](c *Client, name, path string) *Resource[T, N] {
	return &Resource[T, N]{client: c, name: name, path: path}
}

// Name is the resource name used in cache tags and command arguments.
func (r *Resource[T, N]) Name() string {
	return r.name
}

func (r *Resource[T, N]) List(ctx context.Context) ([]T, error) {
	var items []T

	err := r.client.query(ctx, cache.Key(r.name+".list"), []string{r.name}, r.path, &items)
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (r *Resource[T, N]) Get(ctx context.Context, id string) (T, error) {
	var item T

	if err := validID("id", id); err != nil {
		return item, err
	}

	err := r.client.query(ctx, cache.Key(r.name+".get", id), []string{itemTag(r.name, id)}, itemPath(r.path, id), &item)
	return item, err
}

// Create validates n before sending it. A created item invalidates cached
// lists of the resource.
func (r *Resource[T, N]) Create(ctx context.Context, n N) (T, error) {
	var item T

	if err := n.Validate(); err != nil {
		return item, err
	}

	err := r.client.mutate(ctx, http.MethodPost, r.path, n, &item, r.name)
	return item, err
}

type Polls struct {
	*Resource[Poll, NewPoll]
}

type voteRequest struct {
	OptionID string `json:"optionId"`
}

// Vote records a vote for optionID and returns the updated poll.
func (p *Polls) Vote(ctx context.Context, pollID, optionID string) (Poll, error) {
	var poll Poll

	if err := validID("poll id", pollID); err != nil {
		return poll, err
	}
	if err := required("option id", optionID); err != nil {
		return poll, err
	}

	err := p.client.mutate(ctx, http.MethodPost, itemPath(p.path, pollID)+"/vote",
		voteRequest{OptionID: optionID}, &poll,
		p.name, itemTag(p.name, pollID),
	)
	return poll, err
}

type Events struct {
	*Resource[Event, NewEvent]
}

// Register signs the current user up for an event and returns the updated
// event.
func (e *Events) Register(ctx context.Context, eventID string) (Event, error) {
	var event Event

	if err := validID("event id", eventID); err != nil {
		return event, err
	}

	err := e.client.mutate(ctx, http.MethodPost, itemPath(e.path, eventID)+"/register",
		nil, &event,
		e.name, itemTag(e.name, eventID),
	)
	return event, err
}
