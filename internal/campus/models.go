package campus

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Issue is a facilities problem reported on campus.
type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Location    string    `json:"location"`
	Status      string    `json:"status"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	ReporterID  string    `json:"reporterId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type NewIssue struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Location    string `json:"location"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

func (n NewIssue) Validate() error {
	return errors.Join(
		required("title", n.Title),
		required("description", n.Description),
		required("location", n.Location),
	)
}

// LostItem is an entry on the lost & found board.
type LostItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Kind        string    `json:"type"`
	Location    string    `json:"location"`
	ContactInfo string    `json:"contactInfo,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Status      string    `json:"status"`
	ReporterID  string    `json:"reporterId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type NewLostItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	// Kind is "lost" or "found".
	Kind        string `json:"type"`
	Location    string `json:"location"`
	ContactInfo string `json:"contactInfo,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

func (n NewLostItem) Validate() error {
	var kind error
	if n.Kind != "lost" && n.Kind != "found" {
		kind = &ValidationError{Field: "type", Reason: `must be "lost" or "found"`}
	}
	return errors.Join(
		required("title", n.Title),
		kind,
		required("location", n.Location),
	)
}

// HelpPost is a request for help from other students.
type HelpPost struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Urgency     string    `json:"urgency"`
	Status      string    `json:"status"`
	AuthorID    string    `json:"authorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type NewHelpPost struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Urgency     string `json:"urgency,omitempty"`
}

func (n NewHelpPost) Validate() error {
	var urgency error
	switch n.Urgency {
	case "", "low", "medium", "high":
	default:
		urgency = &ValidationError{Field: "urgency", Reason: "must be low, medium or high"}
	}
	return errors.Join(
		required("title", n.Title),
		required("description", n.Description),
		urgency,
	)
}

// Feedback is a rated comment on a campus service.
type Feedback struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	Rating    int       `json:"rating"`
	Anonymous bool      `json:"anonymous"`
	CreatedAt time.Time `json:"createdAt"`
}

type NewFeedback struct {
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Rating    int    `json:"rating"`
	Anonymous bool   `json:"anonymous"`
}

func (n NewFeedback) Validate() error {
	var rating error
	if n.Rating < 1 || n.Rating > 5 {
		rating = &ValidationError{Field: "rating", Reason: "must be between 1 and 5"}
	}
	return errors.Join(
		required("subject", n.Subject),
		required("message", n.Message),
		rating,
	)
}

type PollOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

type Poll struct {
	ID        string       `json:"id"`
	Question  string       `json:"question"`
	Options   []PollOption `json:"options"`
	EndsAt    *time.Time   `json:"endsAt,omitempty"`
	HasVoted  bool         `json:"hasVoted"`
	CreatedBy string       `json:"createdBy"`
	CreatedAt time.Time    `json:"createdAt"`
}

type NewPoll struct {
	Question string     `json:"question"`
	Options  []string   `json:"options"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
}

func (n NewPoll) Validate() error {
	var options error
	if len(n.Options) < 2 {
		options = &ValidationError{Field: "options", Reason: "at least two are required"}
	}
	for i, o := range n.Options {
		if strings.TrimSpace(o) == "" {
			options = errors.Join(options, &ValidationError{Field: fmt.Sprintf("options[%d]", i), Reason: "is required"})
		}
	}
	return errors.Join(required("question", n.Question), options)
}

// Confession is an anonymous post. It carries no author.
type Confession struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
}

const maxConfessionLength = 1000

type NewConfession struct {
	Content string `json:"content"`
}

func (n NewConfession) Validate() error {
	if utf8.RuneCountInString(n.Content) > maxConfessionLength {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("must be at most %d characters", maxConfessionLength)}
	}
	return required("content", strings.TrimSpace(n.Content))
}

type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	Organizer    string    `json:"organizer"`
	StartsAt     time.Time `json:"startsAt"`
	EndsAt       time.Time `json:"endsAt"`
	Capacity     int       `json:"capacity,omitempty"`
	Registered   int       `json:"registered"`
	IsRegistered bool      `json:"isRegistered"`
}

type NewEvent struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Organizer   string    `json:"organizer,omitempty"`
	StartsAt    time.Time `json:"startsAt"`
	EndsAt      time.Time `json:"endsAt"`
	Capacity    int       `json:"capacity,omitempty"`
}

func (n NewEvent) Validate() error {
	var period error
	switch {
	case n.StartsAt.IsZero():
		period = &ValidationError{Field: "startsAt", Reason: "is required"}
	case !n.EndsAt.IsZero() && n.EndsAt.Before(n.StartsAt):
		period = &ValidationError{Field: "endsAt", Reason: "must not be before startsAt"}
	}

	var capacity error
	if n.Capacity < 0 {
		capacity = &ValidationError{Field: "capacity", Reason: "must not be negative"}
	}

	return errors.Join(
		required("title", n.Title),
		required("location", n.Location),
		period,
		capacity,
	)
}
