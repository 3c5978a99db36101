package user_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"eventhub/internal/apperr"
	"eventhub/internal/auth"
	"eventhub/internal/logger"
	"eventhub/internal/models"
	"eventhub/internal/user"
)

const testSecret = "test-secret-key"

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDBLayer) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDBLayer) UpsertUnverified(ctx context.Context, u *models.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockDBLayer) MarkVerified(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockDBLayer) ReplaceOtp(ctx context.Context, otp *models.OtpVerification) error {
	args := m.Called(ctx, otp)
	return args.Error(0)
}

func (m *MockDBLayer) GetOtp(ctx context.Context, email string) (*models.OtpVerification, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OtpVerification), args.Error(1)
}

func (m *MockDBLayer) DeleteOtp(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

type recordingNotifier struct {
	recipients []string
	bodies     []string
}

func (n *recordingNotifier) Send(_ context.Context, recipient, _, body string) {
	n.recipients = append(n.recipients, recipient)
	n.bodies = append(n.bodies, body)
}

func newTestService(db *MockDBLayer, n *recordingNotifier) *user.Service {
	return user.NewService(db, n, logger.NewLogger(), testSecret, time.Hour)
}

func hashOf(t *testing.T, value string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestRequestOtpRegistersAndMailsCode(t *testing.T) {
	db := new(MockDBLayer)
	notifier := &recordingNotifier{}
	svc := newTestService(db, notifier)

	var storedOtp *models.OtpVerification
	db.On("GetUserByEmail", mock.Anything, "sam@example.com").Return(nil, nil)
	db.On("UpsertUnverified", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.Email == "sam@example.com" && !u.IsVerified && u.PasswordHash != "hunter2-long"
	})).Return(nil)
	db.On("ReplaceOtp", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		storedOtp = args.Get(1).(*models.OtpVerification)
	}).Return(nil)

	err := svc.RequestOtp(context.Background(), "Sam", "Sam@Example.com", "hunter2-long")
	require.NoError(t, err)

	require.Len(t, notifier.recipients, 1)
	assert.Equal(t, "sam@example.com", notifier.recipients[0])

	// The mailed code must verify against the stored hash.
	code := regexp.MustCompile(`\d{6}`).FindString(notifier.bodies[0])
	require.NotEmpty(t, code)
	require.NotNil(t, storedOtp)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(storedOtp.HashedOtp), []byte(code)))
	assert.True(t, storedOtp.ExpiresAt.After(time.Now()))
}

func TestRequestOtpRejectsVerifiedEmail(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, &recordingNotifier{})

	db.On("GetUserByEmail", mock.Anything, "sam@example.com").Return(&models.User{
		ID:         "u1",
		Email:      "sam@example.com",
		IsVerified: true,
	}, nil)

	err := svc.RequestOtp(context.Background(), "Sam", "sam@example.com", "hunter2-long")
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	db.AssertNotCalled(t, "UpsertUnverified")
}

func TestRequestOtpValidation(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, &recordingNotifier{})

	err := svc.RequestOtp(context.Background(), "", "not-an-email", "short")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	db.AssertNotCalled(t, "GetUserByEmail")
}

func TestVerifyOtpOpensSession(t *testing.T) {
	db := new(MockDBLayer)
	notifier := &recordingNotifier{}
	svc := newTestService(db, notifier)

	db.On("GetOtp", mock.Anything, "sam@example.com").Return(&models.OtpVerification{
		Email:     "sam@example.com",
		HashedOtp: hashOf(t, "123456"),
		ExpiresAt: time.Now().Add(time.Minute),
	}, nil)
	db.On("GetUserByEmail", mock.Anything, "sam@example.com").Return(&models.User{
		ID:    "u1",
		Name:  "Sam",
		Email: "sam@example.com",
	}, nil)
	db.On("MarkVerified", mock.Anything, "u1").Return(nil)
	db.On("DeleteOtp", mock.Anything, "sam@example.com").Return(nil)

	session, err := svc.VerifyOtp(context.Background(), "sam@example.com", "123456")
	require.NoError(t, err)

	userID, err := auth.ParseUserID(testSecret, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "sam@example.com", session.User.Email)
	assert.Len(t, notifier.recipients, 1, "welcome mail goes out after verification")
	db.AssertExpectations(t)
}

func TestVerifyOtpWrongCode(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, &recordingNotifier{})

	db.On("GetOtp", mock.Anything, "sam@example.com").Return(&models.OtpVerification{
		Email:     "sam@example.com",
		HashedOtp: hashOf(t, "123456"),
		ExpiresAt: time.Now().Add(time.Minute),
	}, nil)

	_, err := svc.VerifyOtp(context.Background(), "sam@example.com", "654321")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
	db.AssertNotCalled(t, "MarkVerified")
}

func TestVerifyOtpExpiredCode(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, &recordingNotifier{})

	db.On("GetOtp", mock.Anything, "sam@example.com").Return(&models.OtpVerification{
		Email:     "sam@example.com",
		HashedOtp: hashOf(t, "123456"),
		ExpiresAt: time.Now().Add(-time.Minute),
	}, nil)
	db.On("DeleteOtp", mock.Anything, "sam@example.com").Return(nil)

	_, err := svc.VerifyOtp(context.Background(), "sam@example.com", "123456")
	assert.True(t, apperr.IsKind(err, apperr.KindExpired))
}

func TestVerifyOtpWithoutPendingCode(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, &recordingNotifier{})

	db.On("GetOtp", mock.Anything, "sam@example.com").Return(nil, nil)

	_, err := svc.VerifyOtp(context.Background(), "sam@example.com", "123456")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
}

func TestLogin(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, &recordingNotifier{})

	db.On("GetUserByEmail", mock.Anything, "sam@example.com").Return(&models.User{
		ID:           "u1",
		Email:        "sam@example.com",
		PasswordHash: hashOf(t, "hunter2-long"),
		IsVerified:   true,
	}, nil)

	session, err := svc.Login(context.Background(), "sam@example.com", "hunter2-long")
	require.NoError(t, err)

	userID, err := auth.ParseUserID(testSecret, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestLoginWrongPassword(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, &recordingNotifier{})

	db.On("GetUserByEmail", mock.Anything, "sam@example.com").Return(&models.User{
		ID:           "u1",
		Email:        "sam@example.com",
		PasswordHash: hashOf(t, "hunter2-long"),
		IsVerified:   true,
	}, nil)

	_, err := svc.Login(context.Background(), "sam@example.com", "wrong-password")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestLoginUnknownEmailLooksLikeWrongPassword(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, &recordingNotifier{})

	db.On("GetUserByEmail", mock.Anything, "nobody@example.com").Return(nil, nil)

	_, err := svc.Login(context.Background(), "nobody@example.com", "hunter2-long")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestLoginUnverifiedAccount(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, &recordingNotifier{})

	db.On("GetUserByEmail", mock.Anything, "sam@example.com").Return(&models.User{
		ID:           "u1",
		Email:        "sam@example.com",
		PasswordHash: hashOf(t, "hunter2-long"),
		IsVerified:   false,
	}, nil)

	_, err := svc.Login(context.Background(), "sam@example.com", "hunter2-long")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
}
