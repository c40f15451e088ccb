package mockapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/smartcampus/campus-client/internal/campus"
	"github.com/smartcampus/campus-client/internal/session"
)

// Credentials of the account every server starts with.
const (
	DemoEmail    = "a@b.com"
	DemoPassword = "secret"
)

func (s *Server) seed() {
	demo := session.User{
		ID:         uuid.NewString(),
		Name:       "Alex Student",
		Email:      DemoEmail,
		StudentID:  "S1024",
		Department: "Computer Science",
		Role:       "student",
	}
	s.AddAccount(demo, DemoPassword)

	created := now().Add(-48 * time.Hour)
	start := now().Add(7 * 24 * time.Hour)

	s.issues.add(campus.Issue{
		ID:          uuid.NewString(),
		Title:       "Broken light in library",
		Description: "The reading lamp at desk 14 flickers constantly.",
		Category:    "electrical",
		Location:    "Library, 2nd floor",
		Status:      "open",
		ReporterID:  demo.ID,
		CreatedAt:   created,
	})
	s.issues.add(campus.Issue{
		ID:          uuid.NewString(),
		Title:       "Leaking tap",
		Description: "Cold tap in the east wing bathroom does not shut off.",
		Category:    "plumbing",
		Location:    "Engineering building",
		Status:      "in-progress",
		ReporterID:  demo.ID,
		CreatedAt:   created.Add(time.Hour),
	})

	s.lostFound.add(campus.LostItem{
		ID:          uuid.NewString(),
		Title:       "Blue water bottle",
		Description: "Steel bottle with a campus radio sticker.",
		Kind:        "found",
		Location:    "Gym",
		Status:      "open",
		ReporterID:  demo.ID,
		CreatedAt:   created,
	})

	s.help.add(campus.HelpPost{
		ID:          uuid.NewString(),
		Title:       "Study partner for linear algebra",
		Description: "Looking for someone to work through problem sets.",
		Category:    "academic",
		Urgency:     "low",
		Status:      "open",
		AuthorID:    demo.ID,
		CreatedAt:   created,
	})

	s.feedback.add(campus.Feedback{
		ID:        uuid.NewString(),
		Subject:   "Cafeteria hours",
		Message:   "Please keep the cafeteria open later during exams.",
		Category:  "dining",
		Rating:    4,
		CreatedAt: created,
	})

	s.polls.add(campus.Poll{
		ID:       uuid.NewString(),
		Question: "Best time for the spring festival?",
		Options: []campus.PollOption{
			{ID: uuid.NewString(), Text: "April"},
			{ID: uuid.NewString(), Text: "May"},
		},
		CreatedBy: demo.ID,
		CreatedAt: created,
	})

	s.confessions.add(campus.Confession{
		ID:        uuid.NewString(),
		Content:   "I have never once returned a library book on time.",
		Likes:     12,
		CreatedAt: created,
	})

	s.events.add(campus.Event{
		ID:          uuid.NewString(),
		Title:       "Robotics club open night",
		Description: "Meet the team and drive a rover.",
		Location:    "Lab 3",
		Organizer:   "Robotics club",
		StartsAt:    start,
		EndsAt:      start.Add(2 * time.Hour),
		Capacity:    30,
	})
}
