package mockapi

import (
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/justinas/alice"
	"github.com/smartcampus/campus-client/internal/campus"
	"github.com/smartcampus/campus-client/internal/jwt"
	"github.com/smartcampus/campus-client/internal/observe"
)

// collection is an ordered, concurrency-safe set of items, newest first.
type collection[T any] struct {
	mu    sync.RWMutex
	order []string
	items map[string]T
	id    func(T) string
}

func newCollection[T any](id func(T) string) *collection[T] {
	return &collection[T]{items: map[string]T{}, id: id}
}

func (c *collection[T]) add(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.id(item)
	if _, exists := c.items[id]; !exists {
		c.order = slices.Insert(c.order, 0, id)
	}
	c.items[id] = item
}

func (c *collection[T]) list() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]T, 0, len(c.order))
	for _, id := range c.order {
		items = append(items, c.items[id])
	}
	return items
}

func (c *collection[T]) get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[id]
	return item, found
}

// update applies fn to the stored item. The item is left unchanged when fn
// fails.
func (c *collection[T]) update(id string, fn func(*T) error) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[id]
	if !found {
		return item, false, nil
	}

	if err := fn(&item); err != nil {
		return item, true, err
	}

	c.items[id] = item
	return item, true, nil
}

type validator interface {
	Validate() error
}

// routeCollection registers list, detail and create routes for c. build turns
// a validated creation request into a stored item; personalise, when set,
// adjusts an item for the caller.
func routeCollection[T any, N validator](
	mux *observe.Mux,
	chain alice.Chain,
	name string,
	c *collection[T],
	build func(claims jwt.Claims, n N) T,
	personalise func(claims jwt.Claims, item T) T,
) {
	if personalise == nil {
		personalise = func(_ jwt.Claims, item T) T { return item }
	}

	mux.Handle("GET /api/"+name, chain.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := jwt.RequireClaimsFromContext(r.Context())

		items := c.list()
		for i := range items {
			items[i] = personalise(claims, items[i])
		}

		writeJSON(w, http.StatusOK, items)
	}))

	mux.Handle("GET /api/"+name+"/{id}", chain.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		item, found := c.get(r.PathValue("id"))
		if !found {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}

		writeJSON(w, http.StatusOK, personalise(jwt.RequireClaimsFromContext(r.Context()), item))
	}))

	mux.Handle("POST /api/"+name, chain.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		var n N
		if !readJSON(w, r, &n) {
			return
		}

		if err := n.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		claims := jwt.RequireClaimsFromContext(r.Context())
		item := build(claims, n)
		c.add(item)

		writeJSON(w, http.StatusCreated, personalise(claims, item))
	}))
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func (s *Server) buildIssue(claims jwt.Claims, n campus.NewIssue) campus.Issue {
	return campus.Issue{
		ID:          uuid.NewString(),
		Title:       n.Title,
		Description: n.Description,
		Category:    n.Category,
		Location:    n.Location,
		Status:      "open",
		ImageURL:    n.ImageURL,
		ReporterID:  claims.Subject,
		CreatedAt:   now(),
	}
}

func (s *Server) buildLostItem(claims jwt.Claims, n campus.NewLostItem) campus.LostItem {
	return campus.LostItem{
		ID:          uuid.NewString(),
		Title:       n.Title,
		Description: n.Description,
		Kind:        n.Kind,
		Location:    n.Location,
		ContactInfo: n.ContactInfo,
		ImageURL:    n.ImageURL,
		Status:      "open",
		ReporterID:  claims.Subject,
		CreatedAt:   now(),
	}
}

func (s *Server) buildHelpPost(claims jwt.Claims, n campus.NewHelpPost) campus.HelpPost {
	urgency := n.Urgency
	if urgency == "" {
		urgency = "medium"
	}

	return campus.HelpPost{
		ID:          uuid.NewString(),
		Title:       n.Title,
		Description: n.Description,
		Category:    n.Category,
		Urgency:     urgency,
		Status:      "open",
		AuthorID:    claims.Subject,
		CreatedAt:   now(),
	}
}

func (s *Server) buildFeedback(_ jwt.Claims, n campus.NewFeedback) campus.Feedback {
	return campus.Feedback{
		ID:        uuid.NewString(),
		Subject:   n.Subject,
		Message:   n.Message,
		Category:  n.Category,
		Rating:    n.Rating,
		Anonymous: n.Anonymous,
		CreatedAt: now(),
	}
}

func (s *Server) buildConfession(_ jwt.Claims, n campus.NewConfession) campus.Confession {
	return campus.Confession{
		ID:        uuid.NewString(),
		Content:   n.Content,
		CreatedAt: now(),
	}
}

func (s *Server) buildPoll(claims jwt.Claims, n campus.NewPoll) campus.Poll {
	options := make([]campus.PollOption, 0, len(n.Options))
	for _, text := range n.Options {
		options = append(options, campus.PollOption{ID: uuid.NewString(), Text: text})
	}

	return campus.Poll{
		ID:        uuid.NewString(),
		Question:  n.Question,
		Options:   options,
		EndsAt:    n.EndsAt,
		CreatedBy: claims.Subject,
		CreatedAt: now(),
	}
}

func (s *Server) buildEvent(claims jwt.Claims, n campus.NewEvent) campus.Event {
	organizer := n.Organizer
	if organizer == "" {
		organizer = claims.Email
	}

	return campus.Event{
		ID:          uuid.NewString(),
		Title:       n.Title,
		Description: n.Description,
		Location:    n.Location,
		Organizer:   organizer,
		StartsAt:    n.StartsAt,
		EndsAt:      n.EndsAt,
		Capacity:    n.Capacity,
	}
}

func (s *Server) pollView(claims jwt.Claims, p campus.Poll) campus.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, p.HasVoted = s.votes[p.ID][claims.Subject]
	p.Options = slices.Clone(p.Options)
	return p
}

func (s *Server) eventView(claims jwt.Claims, e campus.Event) campus.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.IsRegistered = s.registrations[e.ID][claims.Subject]
	return e
}

var (
	errAlreadyVoted      = errors.New("already voted")
	errUnknownOption     = errors.New("unknown poll option")
	errPollClosed        = errors.New("poll has closed")
	errAlreadyRegistered = errors.New("already registered")
	errEventFull         = errors.New("event is full")
)

type voteRequest struct {
	OptionID string `json:"optionId"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if !readJSON(w, r, &req) {
		return
	}

	claims := jwt.RequireClaimsFromContext(r.Context())
	pollID := r.PathValue("id")

	s.mu.Lock()
	poll, found, err := s.polls.update(pollID, func(p *campus.Poll) error {
		if _, voted := s.votes[p.ID][claims.Subject]; voted {
			return errAlreadyVoted
		}
		if p.EndsAt != nil && now().After(*p.EndsAt) {
			return errPollClosed
		}

		// the stored slice may be shared with earlier responses
		p.Options = slices.Clone(p.Options)
		i := slices.IndexFunc(p.Options, func(o campus.PollOption) bool { return o.ID == req.OptionID })
		if i < 0 {
			return errUnknownOption
		}
		p.Options[i].Votes++

		if s.votes[p.ID] == nil {
			s.votes[p.ID] = map[string]string{}
		}
		s.votes[p.ID][claims.Subject] = req.OptionID
		return nil
	})
	s.mu.Unlock()

	switch {
	case !found:
		writeError(w, http.StatusNotFound, "Poll not found")
	case errors.Is(err, errUnknownOption):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeConflict(w, err.Error())
	default:
		writeJSON(w, http.StatusOK, s.pollView(claims, poll))
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	claims := jwt.RequireClaimsFromContext(r.Context())
	eventID := r.PathValue("id")

	s.mu.Lock()
	event, found, err := s.events.update(eventID, func(e *campus.Event) error {
		if s.registrations[e.ID][claims.Subject] {
			return errAlreadyRegistered
		}
		if e.Capacity > 0 && e.Registered >= e.Capacity {
			return errEventFull
		}

		e.Registered++

		if s.registrations[e.ID] == nil {
			s.registrations[e.ID] = map[string]bool{}
		}
		s.registrations[e.ID][claims.Subject] = true
		return nil
	})
	s.mu.Unlock()

	switch {
	case !found:
		writeError(w, http.StatusNotFound, "Event not found")
	case err != nil:
		writeConflict(w, err.Error())
	default:
		writeJSON(w, http.StatusOK, s.eventView(claims, event))
	}
}
