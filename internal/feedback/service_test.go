package feedback_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventhub/internal/apperr"
	"eventhub/internal/cache"
	"eventhub/internal/feedback"
	"eventhub/internal/logger"
	"eventhub/internal/models"
)

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) FeedbacksByEvent(ctx context.Context, eventID string) ([]models.Feedback, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Feedback), args.Error(1)
}

func (m *MockDBLayer) HasFeedback(ctx context.Context, eventID, attendeeID string) (bool, error) {
	args := m.Called(ctx, eventID, attendeeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) CreateFeedback(ctx context.Context, fb *models.Feedback) error {
	args := m.Called(ctx, fb)
	return args.Error(0)
}

func (m *MockDBLayer) CreateToken(ctx context.Context, token *models.FeedbackToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockDBLayer) GetTokenByValue(ctx context.Context, token string) (*models.FeedbackToken, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FeedbackToken), args.Error(1)
}

func (m *MockDBLayer) CreateFeedbackAndConsumeToken(ctx context.Context, fb *models.Feedback, tokenID string) error {
	args := m.Called(ctx, fb, tokenID)
	return args.Error(0)
}

type MockEventDB struct {
	mock.Mock
}

func (m *MockEventDB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockEventDB) IsAttendee(ctx context.Context, eventID, userID string) (bool, error) {
	args := m.Called(ctx, eventID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventDB) Attendees(ctx context.Context, eventID string) ([]models.User, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockEventDB) PastEventsPendingFeedback(ctx context.Context, now time.Time) ([]models.Event, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockEventDB) MarkFeedbackSent(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// recordingNotifier captures every dispatched mail.
type recordingNotifier struct {
	recipients []string
	subjects   []string
	bodies     []string
}

func (n *recordingNotifier) Send(_ context.Context, recipient, subject, body string) {
	n.recipients = append(n.recipients, recipient)
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
}

func newTestService(db *MockDBLayer, events *MockEventDB, n *recordingNotifier) *feedback.Service {
	return feedback.NewService(db, events, n, cache.NewNoop(), logger.NewLogger(), "http://localhost:5173")
}

func validSubmission() feedback.Submission {
	return feedback.Submission{
		AttendeeName:    "Sam",
		HostRating:      4,
		EventRating:     5,
		EventExperience: "Great venue",
	}
}

func activeToken() *models.FeedbackToken {
	return &models.FeedbackToken{
		ID:         "t1",
		EventID:    "e1",
		AttendeeID: "u1",
		Token:      "abc123",
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}
}

func TestRedeemToken(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	db.On("GetTokenByValue", mock.Anything, "abc123").Return(activeToken(), nil)
	events.On("IsAttendee", mock.Anything, "e1", "u1").Return(true, nil)
	db.On("HasFeedback", mock.Anything, "e1", "u1").Return(false, nil)
	db.On("CreateFeedbackAndConsumeToken", mock.Anything, mock.MatchedBy(func(fb *models.Feedback) bool {
		return fb.EventID == "e1" && fb.AttendeeID == "u1" && fb.HostRating == 4
	}), "t1").Return(nil)

	summary, err := svc.RedeemToken(context.Background(), "abc123", "u1", validSubmission())
	require.NoError(t, err)
	assert.NotEmpty(t, summary.ID)
	assert.Equal(t, 5, summary.EventRating)
	db.AssertExpectations(t)
}

func TestRedeemUnknownToken(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	db.On("GetTokenByValue", mock.Anything, "nope").Return(nil, nil)

	_, err := svc.RedeemToken(context.Background(), "nope", "u1", validSubmission())
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
}

func TestRedeemTokenOfAnotherAccount(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	db.On("GetTokenByValue", mock.Anything, "abc123").Return(activeToken(), nil)

	_, err := svc.RedeemToken(context.Background(), "abc123", "someone-else", validSubmission())
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestRedeemExpiredToken(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	token := activeToken()
	token.ExpiresAt = time.Now().Add(-time.Minute)
	db.On("GetTokenByValue", mock.Anything, "abc123").Return(token, nil)

	_, err := svc.RedeemToken(context.Background(), "abc123", "u1", validSubmission())
	assert.True(t, apperr.IsKind(err, apperr.KindExpired))
}

func TestRedeemUsedToken(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	token := activeToken()
	token.Used = true
	db.On("GetTokenByValue", mock.Anything, "abc123").Return(token, nil)

	_, err := svc.RedeemToken(context.Background(), "abc123", "u1", validSubmission())
	assert.True(t, apperr.IsKind(err, apperr.KindAlreadyUsed))
	db.AssertNotCalled(t, "CreateFeedbackAndConsumeToken")
}

func TestRedeemRejectsBadRatings(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	sub := validSubmission()
	sub.HostRating = 0
	sub.EventRating = 6

	_, err := svc.RedeemToken(context.Background(), "abc123", "u1", sub)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	db.AssertNotCalled(t, "GetTokenByValue")
}

func TestRedeemRequiresAttendance(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	db.On("GetTokenByValue", mock.Anything, "abc123").Return(activeToken(), nil)
	events.On("IsAttendee", mock.Anything, "e1", "u1").Return(false, nil)

	_, err := svc.RedeemToken(context.Background(), "abc123", "u1", validSubmission())
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
}

func TestValidateAttendanceRejectsNonAttendee(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	events.On("GetEventByID", mock.Anything, "e1").Return(&models.Event{ID: "e1", Title: "Go Meetup"}, nil)
	events.On("IsAttendee", mock.Anything, "e1", "stranger").Return(false, nil)

	_, err := svc.ValidateAttendance(context.Background(), "e1", "stranger")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestValidateAttendanceForAttendee(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	events.On("GetEventByID", mock.Anything, "e1").Return(&models.Event{ID: "e1", Title: "Go Meetup"}, nil)
	events.On("IsAttendee", mock.Anything, "e1", "u1").Return(true, nil)
	db.On("HasFeedback", mock.Anything, "e1", "u1").Return(false, nil)

	eligibility, err := svc.ValidateAttendance(context.Background(), "e1", "u1")
	require.NoError(t, err)
	assert.True(t, eligibility.CanProvideFeedback)
	assert.Equal(t, "Go Meetup", eligibility.EventTitle)
}

func TestSubmitRejectsNonAttendee(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	events.On("GetEventByID", mock.Anything, "e1").Return(&models.Event{ID: "e1"}, nil)
	events.On("IsAttendee", mock.Anything, "e1", "stranger").Return(false, nil)

	_, err := svc.Submit(context.Background(), "e1", "stranger", validSubmission())
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	db.AssertNotCalled(t, "CreateFeedback")
}

func TestSubmitWithoutToken(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	events.On("GetEventByID", mock.Anything, "e1").Return(&models.Event{ID: "e1"}, nil)
	events.On("IsAttendee", mock.Anything, "e1", "u1").Return(true, nil)
	db.On("HasFeedback", mock.Anything, "e1", "u1").Return(false, nil)
	db.On("CreateFeedback", mock.Anything, mock.Anything).Return(nil)

	summary, err := svc.Submit(context.Background(), "e1", "u1", validSubmission())
	require.NoError(t, err)
	assert.Equal(t, "Sam", summary.AttendeeName)
}

func TestSubmitTwiceIsConflict(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	events.On("GetEventByID", mock.Anything, "e1").Return(&models.Event{ID: "e1"}, nil)
	events.On("IsAttendee", mock.Anything, "e1", "u1").Return(true, nil)
	db.On("HasFeedback", mock.Anything, "e1", "u1").Return(true, nil)

	_, err := svc.Submit(context.Background(), "e1", "u1", validSubmission())
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	db.AssertNotCalled(t, "CreateFeedback")
}

func TestIssueTokensSkipsReviewedAttendees(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	notifier := &recordingNotifier{}
	svc := newTestService(db, events, notifier)

	events.On("GetEventByID", mock.Anything, "e1").Return(&models.Event{
		ID:          "e1",
		Title:       "Go Meetup",
		OrganizerID: "org1",
	}, nil)
	events.On("Attendees", mock.Anything, "e1").Return([]models.User{
		{ID: "u1", Name: "A", Email: "a@example.com"},
		{ID: "u2", Name: "B", Email: "b@example.com"},
	}, nil)
	db.On("HasFeedback", mock.Anything, "e1", "u1").Return(true, nil)
	db.On("HasFeedback", mock.Anything, "e1", "u2").Return(false, nil)
	db.On("CreateToken", mock.Anything, mock.MatchedBy(func(tok *models.FeedbackToken) bool {
		return tok.AttendeeID == "u2" && len(tok.Token) == 64
	})).Return(nil)

	issued, err := svc.IssueTokens(context.Background(), "e1", "org1")
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, "b@example.com", issued[0].AttendeeEmail)
	assert.Contains(t, issued[0].FeedbackLink, "/feedback?token=")

	require.Len(t, notifier.recipients, 1)
	assert.Equal(t, "b@example.com", notifier.recipients[0])
	assert.Contains(t, notifier.bodies[0], issued[0].Token)
}

func TestIssueTokensRequiresOrganizer(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	events.On("GetEventByID", mock.Anything, "e1").Return(&models.Event{
		ID:          "e1",
		OrganizerID: "org1",
	}, nil)

	_, err := svc.IssueTokens(context.Background(), "e1", "u1")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	events.AssertNotCalled(t, "Attendees")
}

func TestValidateTokenReportsEvent(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	svc := newTestService(db, events, &recordingNotifier{})

	db.On("GetTokenByValue", mock.Anything, "abc123").Return(activeToken(), nil)
	events.On("GetEventByID", mock.Anything, "e1").Return(&models.Event{
		ID:    "e1",
		Title: "Go Meetup",
		Date:  time.Now().Add(-time.Hour),
	}, nil)
	events.On("IsAttendee", mock.Anything, "e1", "u1").Return(true, nil)
	db.On("HasFeedback", mock.Anything, "e1", "u1").Return(false, nil)

	info, err := svc.ValidateToken(context.Background(), "abc123", "u1")
	require.NoError(t, err)
	assert.True(t, info.TokenValid)
	assert.Equal(t, "Go Meetup", info.EventTitle)
}

func TestSweepPastEvents(t *testing.T) {
	db := new(MockDBLayer)
	events := new(MockEventDB)
	notifier := &recordingNotifier{}
	svc := newTestService(db, events, notifier)

	events.On("PastEventsPendingFeedback", mock.Anything, mock.Anything).Return([]models.Event{
		{ID: "e1", Title: "Ended", OrganizerID: "org1"},
	}, nil)
	events.On("Attendees", mock.Anything, "e1").Return([]models.User{
		{ID: "u1", Name: "A", Email: "a@example.com"},
	}, nil)
	db.On("HasFeedback", mock.Anything, "e1", "u1").Return(false, nil)
	db.On("CreateToken", mock.Anything, mock.Anything).Return(nil)
	events.On("MarkFeedbackSent", mock.Anything, "e1").Return(nil)

	processed, err := svc.SweepPastEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Len(t, notifier.recipients, 1)
	events.AssertExpectations(t)
}
