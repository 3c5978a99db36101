package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/apperr"
	"eventhub/internal/cache"
	eventdb "eventhub/internal/event/db"
	"eventhub/internal/logger"
	"eventhub/internal/models"
)

// DBLayer is the slice of the event store the ledger needs.
type DBLayer interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	AddAttendee(ctx context.Context, eventID, userID string) (bool, int, error)
	RemoveAttendee(ctx context.Context, eventID, userID string) (bool, int, error)
	Attendees(ctx context.Context, eventID string) ([]models.User, error)
}

// ActivityPublisher streams compact activity records for downstream
// consumers. Publishing is best-effort.
type ActivityPublisher interface {
	Publish(topic, key string, value []byte) error
}

type Service struct {
	DB       DBLayer
	Cache    cache.Cache
	Activity ActivityPublisher
	Topic    string
	Logger   *logger.Logger
	BaseURL  string
}

func NewService(db DBLayer, c cache.Cache, activity ActivityPublisher, topic string, log *logger.Logger, baseURL string) *Service {
	return &Service{DB: db, Cache: c, Activity: activity, Topic: topic, Logger: log, BaseURL: baseURL}
}

// CreateInput is the validated payload for event creation.
type CreateInput struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Date            time.Time `json:"date"`
	LocationAddress string    `json:"location_address"`
	Lat             float64   `json:"lat"`
	Lng             float64   `json:"lng"`
	Tags            []string  `json:"tags"`
	Category        string    `json:"category"`
	DurationMinutes int       `json:"duration_minutes"`
	Capacity        int       `json:"capacity"`
	IsFree          bool      `json:"is_free"`
	EntryFeeAmount  float64   `json:"entry_fee_amount"`
	AgeRestriction  string    `json:"age_restriction"`
	ContactName     string    `json:"contact_name"`
	ContactEmail    string    `json:"contact_email"`
	ContactPhone    string    `json:"contact_phone"`
}

type CreateResult struct {
	EventID   string `json:"event_id"`
	ShareLink string `json:"share_link"`
}

type JoinResult struct {
	Message       string `json:"message"`
	Joined        bool   `json:"joined"`
	AttendeeCount int    `json:"attendee_count"`
}

type LeaveResult struct {
	Message       string `json:"message"`
	Left          bool   `json:"left"`
	AttendeeCount int    `json:"attendee_count"`
}

// Create validates the input, persists the event, and invalidates the list
// and dashboard read paths.
func (s *Service) Create(ctx context.Context, organizerID string, input CreateInput) (*CreateResult, error) {
	if err := validateCreate(&input); err != nil {
		return nil, err
	}

	event := &models.Event{
		ID:              uuid.New().String(),
		Title:           strings.TrimSpace(input.Title),
		Description:     strings.TrimSpace(input.Description),
		Date:            input.Date,
		LocationAddress: strings.TrimSpace(input.LocationAddress),
		Lat:             input.Lat,
		Lng:             input.Lng,
		OrganizerID:     organizerID,
		AttendeeCount:   0,
		Category:        input.Category,
		DurationMinutes: input.DurationMinutes,
		Capacity:        input.Capacity,
		IsFree:          input.IsFree,
		EntryFeeAmount:  input.EntryFeeAmount,
		AgeRestriction:  input.AgeRestriction,
		ContactName:     strings.TrimSpace(input.ContactName),
		ContactEmail:    strings.TrimSpace(input.ContactEmail),
		ContactPhone:    strings.TrimSpace(input.ContactPhone),
		CreatedAt:       time.Now(),
		Tags:            NormalizeTags(input.Tags),
	}

	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.Cache.InvalidatePattern(ctx, "events:list:*")
	s.Cache.InvalidatePattern(ctx, "user:dashboard:*")
	s.publishActivity(ctx, "event.created", event.ID, organizerID)

	return &CreateResult{
		EventID:   event.ID,
		ShareLink: fmt.Sprintf("%s/events/%s", s.BaseURL, event.ID),
	}, nil
}

// Delete removes an event. Only the organizer may delete; attendee rows go
// with it, which cascades the removal into every user's joined set.
func (s *Service) Delete(ctx context.Context, eventID, callerID string) error {
	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.OrganizerID != callerID {
		return apperr.Forbidden("only organizer can delete this event")
	}

	if err := s.DB.DeleteEvent(ctx, eventID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	s.Cache.InvalidatePattern(ctx, "events:list:*")
	s.Cache.InvalidatePattern(ctx, fmt.Sprintf("event:details:eventId:%s:*", eventID))
	s.Cache.InvalidatePattern(ctx, "user:dashboard:*")
	s.publishActivity(ctx, "event.deleted", eventID, callerID)
	return nil
}

// Join adds the caller to the event's attendee set. Joining twice is a no-op
// reported as "already joined"; the counter moves exactly once.
func (s *Service) Join(ctx context.Context, eventID, userID string) (*JoinResult, error) {
	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if event.Date.Before(time.Now()) {
		return nil, apperr.InvalidState("cannot join a past event")
	}
	if event.OrganizerID == userID {
		return nil, apperr.InvalidState("organizer does not need to join their own event")
	}

	added, count, err := s.DB.AddAttendee(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("join event: %w", err)
	}
	if !added {
		return &JoinResult{Message: "Already joined", Joined: false, AttendeeCount: count}, nil
	}

	s.Cache.InvalidatePattern(ctx, fmt.Sprintf("event:details:eventId:%s:*", eventID))
	s.Cache.InvalidatePattern(ctx, "user:dashboard:*")
	s.publishActivity(ctx, "event.joined", eventID, userID)

	return &JoinResult{Message: "Joined event", Joined: true, AttendeeCount: count}, nil
}

// Leave removes the caller from the attendee set. A second leave reports
// left=false and changes nothing.
func (s *Service) Leave(ctx context.Context, eventID, userID string) (*LeaveResult, error) {
	removed, count, err := s.DB.RemoveAttendee(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("leave event: %w", err)
	}

	s.Cache.InvalidatePattern(ctx, fmt.Sprintf("event:details:eventId:%s:*", eventID))
	s.Cache.InvalidatePattern(ctx, "user:dashboard:*")

	if !removed {
		return &LeaveResult{Message: "You were not an attendee", Left: false, AttendeeCount: count}, nil
	}

	s.publishActivity(ctx, "event.left", eventID, userID)
	return &LeaveResult{Message: "Left event", Left: true, AttendeeCount: count}, nil
}

// Attendees lists the attendee set; organizer only.
func (s *Service) Attendees(ctx context.Context, eventID, callerID string) ([]models.UserSummary, error) {
	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != callerID {
		return nil, apperr.Forbidden("only organizer can view attendees")
	}

	users, err := s.DB.Attendees(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}

	summaries := make([]models.UserSummary, len(users))
	for i, user := range users {
		summaries[i] = user.Summary()
	}
	return summaries, nil
}

func (s *Service) publishActivity(ctx context.Context, kind, eventID, userID string) {
	if s.Activity == nil {
		return
	}
	record := map[string]interface{}{
		"type":     kind,
		"event_id": eventID,
		"user_id":  userID,
		"at":       time.Now().UTC(),
	}
	value, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := s.Activity.Publish(s.Topic, eventID, value); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("publish %s for event %s: %v", kind, eventID, err))
	}
}

// NormalizeTags lowercases, trims, and dedupes tags, preserving first-seen
// order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func validateCreate(input *CreateInput) error {
	var problems []string
	if strings.TrimSpace(input.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(input.Description) == "" {
		problems = append(problems, "description is required")
	}
	if input.Date.IsZero() {
		problems = append(problems, "date is required")
	}
	if strings.TrimSpace(input.LocationAddress) == "" {
		problems = append(problems, "location address is required")
	}
	if !models.ValidCategories[input.Category] {
		problems = append(problems, "category is invalid")
	}
	if input.DurationMinutes < 15 {
		problems = append(problems, "duration must be at least 15 minutes")
	}
	if input.Capacity < 1 {
		problems = append(problems, "capacity must be at least 1")
	}
	if input.EntryFeeAmount < 0 {
		problems = append(problems, "entry fee cannot be negative")
	}
	if !input.IsFree && input.EntryFeeAmount <= 0 {
		problems = append(problems, "paid events need an entry fee amount")
	}
	if input.AgeRestriction == "" {
		input.AgeRestriction = models.AgeAll
	} else if !models.ValidAgeRestrictions[input.AgeRestriction] {
		problems = append(problems, "age restriction is invalid")
	}
	if len(problems) > 0 {
		return apperr.Validation(strings.Join(problems, ", "))
	}
	return nil
}

// ParseListQuery builds a store query from raw request values.
func ParseListQuery(search, tagsParam, sort, page, limit string) eventdb.ListQuery {
	q := eventdb.ListQuery{Search: search, Sort: sort}
	if tagsParam != "" {
		q.Tags = NormalizeTags(strings.Split(tagsParam, ","))
	}
	if n, err := strconv.Atoi(page); err == nil {
		q.Page = n
	}
	if n, err := strconv.Atoi(limit); err == nil {
		q.Limit = n
	}
	q.Normalize()
	return q
}
