// Package views composes event, user, and feedback data into enriched view
// models served through the cache. All reads here tolerate a cold or absent
// cache; hits only shortcut the recomputation.
package views

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"eventhub/internal/apperr"
	"eventhub/internal/cache"
	eventdb "eventhub/internal/event/db"
	"eventhub/internal/logger"
	"eventhub/internal/models"
)

const (
	detailTTL    = 10 * time.Minute
	listTTL      = 5 * time.Minute
	dashboardTTL = 15 * time.Minute

	// maxExperiences bounds the free-text excerpts embedded in a detail view.
	maxExperiences = 20
)

// EventStore is the slice of the event store the aggregator reads from.
type EventStore interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context, q eventdb.ListQuery) ([]models.Event, int, error)
	IsAttendee(ctx context.Context, eventID, userID string) (bool, error)
	CreatedBy(ctx context.Context, userID string) ([]models.Event, error)
	JoinedBy(ctx context.Context, userID string) ([]models.Event, error)
}

// FeedbackStore supplies the feedback rows for ratings aggregation.
type FeedbackStore interface {
	FeedbacksByEvent(ctx context.Context, eventID string) ([]models.Feedback, error)
}

// UserStore resolves the dashboard owner.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type Service struct {
	Events   EventStore
	Feedback FeedbackStore
	Users    UserStore
	Cache    cache.Cache
	Logger   *logger.Logger
}

func NewService(events EventStore, feedback FeedbackStore, users UserStore, c cache.Cache, log *logger.Logger) *Service {
	return &Service{Events: events, Feedback: feedback, Users: users, Cache: c, Logger: log}
}

type Experience struct {
	AttendeeName    string    `json:"attendee_name"`
	EventExperience string    `json:"event_experience"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

type Ratings struct {
	TotalFeedbacks     int          `json:"total_feedbacks"`
	AverageHostRating  float64      `json:"average_host_rating"`
	AverageEventRating float64      `json:"average_event_rating"`
	Experiences        []Experience `json:"experiences"`
}

type EventDetail struct {
	Event   models.Event `json:"event"`
	Joined  bool         `json:"joined"`
	Ratings Ratings      `json:"ratings"`
}

type EventList struct {
	Events []models.Event `json:"events"`
	Total  int            `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

type Dashboard struct {
	User          models.UserSummary `json:"user"`
	CreatedEvents []models.Event     `json:"created_events"`
	JoinedEvents  []models.Event     `json:"joined_events"`
}

// EventDetail assembles one event with viewer-dependent joined status and
// aggregated ratings. The cache key carries the viewer because the same
// event renders differently per user.
func (s *Service) EventDetail(ctx context.Context, eventID, viewerID string) (*EventDetail, error) {
	viewer := viewerID
	if viewer == "" {
		viewer = "anonymous"
	}
	key := cache.Key("event:details", map[string]string{
		"eventId": eventID,
		"userId":  viewer,
	})

	var cached EventDetail
	if s.Cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	event, err := s.Events.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	joined := false
	if viewerID != "" {
		joined, err = s.Events.IsAttendee(ctx, eventID, viewerID)
		if err != nil {
			return nil, fmt.Errorf("membership check: %w", err)
		}
	}

	feedbacks, err := s.Feedback.FeedbacksByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}

	detail := &EventDetail{
		Event:   *event,
		Joined:  joined,
		Ratings: aggregateRatings(feedbacks),
	}

	s.Cache.Set(ctx, key, detail, detailTTL)
	return detail, nil
}

// ListEvents serves the upcoming-events listing through the cache. Every
// filter and pagination parameter participates in the key.
func (s *Service) ListEvents(ctx context.Context, q eventdb.ListQuery) (*EventList, error) {
	q.Normalize()
	key := cache.Key("events:list", map[string]string{
		"search": q.Search,
		"tags":   strings.Join(q.Tags, ","),
		"sort":   q.Sort,
		"page":   fmt.Sprintf("%d", q.Page),
		"limit":  fmt.Sprintf("%d", q.Limit),
	})

	var cached EventList
	if s.Cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	events, total, err := s.Events.ListEvents(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []models.Event{}
	}

	list := &EventList{Events: events, Total: total, Page: q.Page, Limit: q.Limit}
	s.Cache.Set(ctx, key, list, listTTL)
	return list, nil
}

// Dashboard returns the caller's profile with created and joined events.
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	key := cache.Key("user:dashboard", map[string]string{"userId": userID})

	var cached Dashboard
	if s.Cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	user, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}

	created, err := s.Events.CreatedBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load created events: %w", err)
	}
	joined, err := s.Events.JoinedBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load joined events: %w", err)
	}
	if created == nil {
		created = []models.Event{}
	}
	if joined == nil {
		joined = []models.Event{}
	}

	dashboard := &Dashboard{User: user.Summary(), CreatedEvents: created, JoinedEvents: joined}
	s.Cache.Set(ctx, key, dashboard, dashboardTTL)
	return dashboard, nil
}

// aggregateRatings computes arithmetic means rounded to one decimal place,
// with 0 as the defined value when no feedback exists.
func aggregateRatings(feedbacks []models.Feedback) Ratings {
	ratings := Ratings{Experiences: []Experience{}}
	ratings.TotalFeedbacks = len(feedbacks)
	if len(feedbacks) == 0 {
		return ratings
	}

	var hostSum, eventSum int
	for _, fb := range feedbacks {
		hostSum += fb.HostRating
		eventSum += fb.EventRating
	}
	ratings.AverageHostRating = round1(float64(hostSum) / float64(len(feedbacks)))
	ratings.AverageEventRating = round1(float64(eventSum) / float64(len(feedbacks)))

	for _, fb := range feedbacks {
		if len(ratings.Experiences) == maxExperiences {
			break
		}
		ratings.Experiences = append(ratings.Experiences, Experience{
			AttendeeName:    fb.AttendeeName,
			EventExperience: fb.EventExperience,
			SubmittedAt:     fb.SubmittedAt,
		})
	}
	return ratings
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
