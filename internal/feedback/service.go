package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/apperr"
	"eventhub/internal/cache"
	"eventhub/internal/logger"
	"eventhub/internal/models"
	"eventhub/internal/notifier"
	"eventhub/internal/utils"
)

// tokenValidity is how long an issued feedback token can be redeemed.
const tokenValidity = 7 * 24 * time.Hour

// DBLayer is the feedback/token store surface the workflow needs.
type DBLayer interface {
	FeedbacksByEvent(ctx context.Context, eventID string) ([]models.Feedback, error)
	HasFeedback(ctx context.Context, eventID, attendeeID string) (bool, error)
	CreateFeedback(ctx context.Context, feedback *models.Feedback) error
	CreateToken(ctx context.Context, token *models.FeedbackToken) error
	GetTokenByValue(ctx context.Context, token string) (*models.FeedbackToken, error)
	CreateFeedbackAndConsumeToken(ctx context.Context, feedback *models.Feedback, tokenID string) error
}

// EventDB is the slice of the event store the workflow consults.
type EventDB interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	IsAttendee(ctx context.Context, eventID, userID string) (bool, error)
	Attendees(ctx context.Context, eventID string) ([]models.User, error)
	PastEventsPendingFeedback(ctx context.Context, now time.Time) ([]models.Event, error)
	MarkFeedbackSent(ctx context.Context, eventID string) error
}

type Service struct {
	DB       DBLayer
	Events   EventDB
	Notifier notifier.Notifier
	Cache    cache.Cache
	Logger   *logger.Logger
	BaseURL  string
}

func NewService(db DBLayer, events EventDB, n notifier.Notifier, c cache.Cache, log *logger.Logger, baseURL string) *Service {
	return &Service{DB: db, Events: events, Notifier: n, Cache: c, Logger: log, BaseURL: baseURL}
}

// Submission is the rating form payload.
type Submission struct {
	AttendeeName    string `json:"attendee_name"`
	HostRating      int    `json:"host_rating"`
	EventRating     int    `json:"event_rating"`
	HostFeedback    string `json:"host_feedback"`
	EventExperience string `json:"event_experience"`
}

// Summary is the caller-facing shape of a created feedback row.
type Summary struct {
	ID           string    `json:"id"`
	AttendeeName string    `json:"attendee_name"`
	HostRating   int       `json:"host_rating"`
	EventRating  int       `json:"event_rating"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// IssuedToken is what IssueTokens reports back to the organizer.
type IssuedToken struct {
	AttendeeName  string `json:"attendee_name"`
	AttendeeEmail string `json:"attendee_email"`
	Token         string `json:"token"`
	FeedbackLink  string `json:"feedback_link"`
}

// Eligibility is the result of the token-less feasibility check.
type Eligibility struct {
	CanProvideFeedback bool   `json:"can_provide_feedback"`
	EventTitle         string `json:"event_title"`
}

// TokenInfo is returned by ValidateToken so the form can render the event.
type TokenInfo struct {
	EventID    string    `json:"event_id"`
	EventTitle string    `json:"event_title"`
	EventDate  time.Time `json:"event_date"`
	TokenValid bool      `json:"token_valid"`
}

// IssueTokens generates one fresh single-use token per attendee who has not
// reviewed the event yet and dispatches each via the notifier. Organizer only.
func (s *Service) IssueTokens(ctx context.Context, eventID, callerID string) ([]IssuedToken, error) {
	event, err := s.Events.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != callerID {
		return nil, apperr.Forbidden("only the event organizer can generate feedback tokens")
	}

	issued, err := s.issueForEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	return issued, nil
}

func (s *Service) issueForEvent(ctx context.Context, event *models.Event) ([]IssuedToken, error) {
	attendees, err := s.Events.Attendees(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}

	issued := []IssuedToken{}
	expiresAt := time.Now().Add(tokenValidity)

	for _, attendee := range attendees {
		reviewed, err := s.DB.HasFeedback(ctx, event.ID, attendee.ID)
		if err != nil {
			return nil, fmt.Errorf("feedback lookup: %w", err)
		}
		if reviewed {
			continue
		}

		value, err := utils.NewFeedbackToken()
		if err != nil {
			return nil, err
		}
		token := &models.FeedbackToken{
			ID:         uuid.New().String(),
			EventID:    event.ID,
			AttendeeID: attendee.ID,
			Token:      value,
			ExpiresAt:  expiresAt,
			CreatedAt:  time.Now(),
		}
		if err := s.DB.CreateToken(ctx, token); err != nil {
			return nil, fmt.Errorf("persist token: %w", err)
		}

		link := fmt.Sprintf("%s/feedback?token=%s", s.BaseURL, value)
		s.Notifier.Send(ctx, attendee.Email,
			fmt.Sprintf("How was %s? Share your feedback", event.Title),
			feedbackMailBody(event.Title, attendee.Name, link))

		issued = append(issued, IssuedToken{
			AttendeeName:  attendee.Name,
			AttendeeEmail: attendee.Email,
			Token:         value,
			FeedbackLink:  link,
		})
	}
	return issued, nil
}

// RedeemToken consumes a single-use token and creates the feedback row.
// The two writes happen in one transaction; see the store for the race
// semantics.
func (s *Service) RedeemToken(ctx context.Context, tokenValue, userID string, sub Submission) (*Summary, error) {
	if err := validateSubmission(&sub); err != nil {
		return nil, err
	}

	token, err := s.DB.GetTokenByValue(ctx, tokenValue)
	if err != nil {
		return nil, fmt.Errorf("token lookup: %w", err)
	}
	if token == nil {
		return nil, apperr.InvalidToken("invalid feedback token")
	}
	if token.AttendeeID != userID {
		return nil, apperr.Forbidden("this token is not valid for your account")
	}
	if token.ExpiresAt.Before(time.Now()) {
		return nil, apperr.Expired("feedback token has expired")
	}
	if token.Used {
		return nil, apperr.AlreadyUsed("this feedback token has already been used")
	}

	if err := s.checkEligibility(ctx, token.EventID, userID, apperr.KindInvalidState); err != nil {
		return nil, err
	}

	feedback := newFeedback(token.EventID, userID, sub)
	if err := s.DB.CreateFeedbackAndConsumeToken(ctx, feedback, token.ID); err != nil {
		return nil, err
	}

	s.Cache.InvalidatePattern(ctx, fmt.Sprintf("event:details:eventId:%s:*", token.EventID))
	return summarize(feedback), nil
}

// ValidateToken runs the redeem checks without consuming anything, so the
// form can be rendered before submission.
func (s *Service) ValidateToken(ctx context.Context, tokenValue, userID string) (*TokenInfo, error) {
	if tokenValue == "" {
		return nil, apperr.Validation("token is required")
	}

	token, err := s.DB.GetTokenByValue(ctx, tokenValue)
	if err != nil {
		return nil, fmt.Errorf("token lookup: %w", err)
	}
	if token == nil {
		return nil, apperr.InvalidToken("invalid feedback token")
	}
	if token.AttendeeID != userID {
		return nil, apperr.Forbidden("this token is not valid for your account")
	}
	if token.ExpiresAt.Before(time.Now()) {
		return nil, apperr.Expired("feedback token has expired")
	}
	if token.Used {
		return nil, apperr.AlreadyUsed("this feedback token has already been used")
	}

	event, err := s.Events.GetEventByID(ctx, token.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEligibility(ctx, token.EventID, userID, apperr.KindInvalidState); err != nil {
		return nil, err
	}

	return &TokenInfo{
		EventID:    event.ID,
		EventTitle: event.Title,
		EventDate:  event.Date,
		TokenValid: true,
	}, nil
}

// ValidateAttendance is the token-less feasibility check for submitters who
// reach the form by direct navigation.
func (s *Service) ValidateAttendance(ctx context.Context, eventID, userID string) (*Eligibility, error) {
	event, err := s.Events.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEligibility(ctx, eventID, userID, apperr.KindForbidden); err != nil {
		return nil, err
	}
	return &Eligibility{CanProvideFeedback: true, EventTitle: event.Title}, nil
}

// Submit creates feedback without a token. Same guards as ValidateAttendance
// plus submission validation; the unique index remains the backstop.
func (s *Service) Submit(ctx context.Context, eventID, userID string, sub Submission) (*Summary, error) {
	if err := validateSubmission(&sub); err != nil {
		return nil, err
	}
	if _, err := s.Events.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	if err := s.checkEligibility(ctx, eventID, userID, apperr.KindForbidden); err != nil {
		return nil, err
	}

	feedback := newFeedback(eventID, userID, sub)
	if err := s.DB.CreateFeedback(ctx, feedback); err != nil {
		return nil, err
	}

	s.Cache.InvalidatePattern(ctx, fmt.Sprintf("event:details:eventId:%s:*", eventID))
	return summarize(feedback), nil
}

// SweepPastEvents issues tokens for ended events that have none yet and
// marks them so the sweep is one-shot per event. Returns how many events
// were processed.
func (s *Service) SweepPastEvents(ctx context.Context) (int, error) {
	events, err := s.Events.PastEventsPendingFeedback(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("load past events: %w", err)
	}

	processed := 0
	for i := range events {
		event := &events[i]
		if _, err := s.issueForEvent(ctx, event); err != nil {
			s.Logger.Error("FEEDBACK", fmt.Sprintf("sweep: issue tokens for event %s: %v", event.ID, err))
			continue
		}
		if err := s.Events.MarkFeedbackSent(ctx, event.ID); err != nil {
			s.Logger.Error("FEEDBACK", fmt.Sprintf("sweep: mark event %s: %v", event.ID, err))
			continue
		}
		processed++
	}
	return processed, nil
}

// checkEligibility enforces the shared guards: the caller must be in the
// attendee set and must not have submitted feedback already. The token-less
// paths reject a non-attendee as Forbidden; the token paths, where the guard
// is a backstop behind the token's attendee binding, use InvalidState.
func (s *Service) checkEligibility(ctx context.Context, eventID, userID string, notAttendee apperr.Kind) error {
	attended, err := s.Events.IsAttendee(ctx, eventID, userID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !attended {
		return apperr.New(notAttendee, "you must have attended this event to provide feedback")
	}

	reviewed, err := s.DB.HasFeedback(ctx, eventID, userID)
	if err != nil {
		return fmt.Errorf("feedback lookup: %w", err)
	}
	if reviewed {
		return apperr.Conflict("you have already submitted feedback for this event")
	}
	return nil
}

func newFeedback(eventID, userID string, sub Submission) *models.Feedback {
	return &models.Feedback{
		ID:              uuid.New().String(),
		EventID:         eventID,
		AttendeeID:      userID,
		AttendeeName:    strings.TrimSpace(sub.AttendeeName),
		HostRating:      sub.HostRating,
		EventRating:     sub.EventRating,
		HostFeedback:    strings.TrimSpace(sub.HostFeedback),
		EventExperience: strings.TrimSpace(sub.EventExperience),
		SubmittedAt:     time.Now(),
	}
}

func summarize(feedback *models.Feedback) *Summary {
	return &Summary{
		ID:           feedback.ID,
		AttendeeName: feedback.AttendeeName,
		HostRating:   feedback.HostRating,
		EventRating:  feedback.EventRating,
		SubmittedAt:  feedback.SubmittedAt,
	}
}

func validateSubmission(sub *Submission) error {
	var problems []string
	if strings.TrimSpace(sub.AttendeeName) == "" {
		problems = append(problems, "attendee name is required")
	}
	if sub.HostRating < 1 || sub.HostRating > 5 {
		problems = append(problems, "host rating must be between 1 and 5")
	}
	if sub.EventRating < 1 || sub.EventRating > 5 {
		problems = append(problems, "event rating must be between 1 and 5")
	}
	if len(problems) > 0 {
		return apperr.Validation(strings.Join(problems, ", "))
	}
	return nil
}

func feedbackMailBody(eventTitle, attendeeName, link string) string {
	return fmt.Sprintf(
		"Hi %s,\n\nThanks for attending %s. We'd love to hear how it went.\n\nShare your feedback here (link valid for 7 days):\n%s\n\n— EventHub",
		attendeeName, eventTitle, link)
}
