package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"eventhub/internal/apperr"
	"eventhub/internal/auth"
	"eventhub/internal/logger"
	"eventhub/internal/models"
	"eventhub/internal/notifier"
	"eventhub/internal/utils"
)

const otpValidity = 5 * time.Minute

// DBLayer is the user/otp store surface the identity flow needs.
type DBLayer interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpsertUnverified(ctx context.Context, user *models.User) error
	MarkVerified(ctx context.Context, userID string) error
	ReplaceOtp(ctx context.Context, otp *models.OtpVerification) error
	GetOtp(ctx context.Context, email string) (*models.OtpVerification, error)
	DeleteOtp(ctx context.Context, email string) error
}

type Service struct {
	DB       DBLayer
	Notifier notifier.Notifier
	Logger   *logger.Logger
	Secret   string
	TokenTTL time.Duration
}

func NewService(db DBLayer, n notifier.Notifier, log *logger.Logger, secret string, tokenTTL time.Duration) *Service {
	return &Service{DB: db, Notifier: n, Logger: log, Secret: secret, TokenTTL: tokenTTL}
}

// Session is what a successful verification or login yields.
type Session struct {
	Token string             `json:"token"`
	User  models.UserSummary `json:"user"`
}

// RequestOtp registers (or re-registers) an unverified account and emails a
// six digit code valid for five minutes. A verified email cannot re-register.
func (s *Service) RequestOtp(ctx context.Context, name, email, password string) error {
	email = normalizeEmail(email)
	if err := validateRegistration(name, email, password); err != nil {
		return err
	}

	existing, err := s.DB.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("user lookup: %w", err)
	}
	if existing != nil && existing.IsVerified {
		return apperr.Conflict("an account with this email already exists")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	account := &models.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(passwordHash),
		IsVerified:   false,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.DB.UpsertUnverified(ctx, account); err != nil {
		return fmt.Errorf("store account: %w", err)
	}

	code, err := utils.NewOtp()
	if err != nil {
		return err
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}
	if err := s.DB.ReplaceOtp(ctx, &models.OtpVerification{
		Email:     email,
		HashedOtp: string(codeHash),
		ExpiresAt: time.Now().Add(otpValidity),
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	s.Notifier.Send(ctx, email, "Your EventHub verification code",
		fmt.Sprintf("Hi %s,\n\nYour verification code is %s. It expires in 5 minutes.\n\n— EventHub", account.Name, code))
	return nil
}

// VerifyOtp checks the pending code, marks the account verified, and opens a
// session.
func (s *Service) VerifyOtp(ctx context.Context, email, code string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return nil, apperr.Validation("email and otp are required")
	}

	pending, err := s.DB.GetOtp(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("otp lookup: %w", err)
	}
	if pending == nil {
		return nil, apperr.InvalidToken("no verification pending for this email")
	}
	if pending.ExpiresAt.Before(time.Now()) {
		_ = s.DB.DeleteOtp(ctx, email)
		return nil, apperr.Expired("verification code has expired, request a new one")
	}
	if bcrypt.CompareHashAndPassword([]byte(pending.HashedOtp), []byte(code)) != nil {
		return nil, apperr.InvalidToken("incorrect verification code")
	}

	account, err := s.DB.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if account == nil {
		return nil, apperr.NotFound("account not found")
	}

	if err := s.DB.MarkVerified(ctx, account.ID); err != nil {
		return nil, fmt.Errorf("mark verified: %w", err)
	}
	if err := s.DB.DeleteOtp(ctx, email); err != nil {
		s.Logger.Warn("USER", fmt.Sprintf("VerifyOtp: delete otp for %s: %v", email, err))
	}

	session, err := s.openSession(account)
	if err != nil {
		return nil, err
	}

	s.Notifier.Send(ctx, email, "Welcome to EventHub",
		fmt.Sprintf("Hi %s,\n\nYour account is verified. Go find your next event!\n\n— EventHub", account.Name))
	return session, nil
}

// Login opens a session for a verified account. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	account, err := s.DB.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if account == nil {
		return nil, apperr.Validation("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Validation("invalid credentials")
	}
	if !account.IsVerified {
		return nil, apperr.InvalidState("account is not verified yet")
	}

	return s.openSession(account)
}

func (s *Service) openSession(account *models.User) (*Session, error) {
	token, err := auth.IssueToken(s.Secret, account.ID, s.TokenTTL)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: account.Summary()}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(name, email, password string) error {
	var problems []string
	if strings.TrimSpace(name) == "" {
		problems = append(problems, "name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		problems = append(problems, "email is invalid")
	}
	if len(password) < 8 {
		problems = append(problems, "password must be at least 8 characters")
	}
	if len(problems) > 0 {
		return apperr.Validation(strings.Join(problems, ", "))
	}
	return nil
}
