package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"eventhub/internal/apperr"
	"eventhub/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- FEEDBACK ----------------

// FeedbacksByEvent returns all feedback rows for an event, newest first.
func (d *DB) FeedbacksByEvent(ctx context.Context, eventID string) ([]models.Feedback, error) {
	var feedbacks []models.Feedback
	err := d.Bun.NewSelect().
		Model(&feedbacks).
		Where("event_id = ?", eventID).
		Order("submitted_at DESC").
		Scan(ctx)
	return feedbacks, err
}

// HasFeedback reports whether (event, attendee) already has a feedback row.
func (d *DB) HasFeedback(ctx context.Context, eventID, attendeeID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Feedback)(nil)).
		Where("event_id = ?", eventID).
		Where("attendee_id = ?", attendeeID).
		Exists(ctx)
}

// CreateFeedback inserts a feedback row for the token-less submission path.
// The unique (event_id, attendee_id) index turns a duplicate into Conflict.
func (d *DB) CreateFeedback(ctx context.Context, feedback *models.Feedback) error {
	_, err := d.Bun.NewInsert().Model(feedback).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("feedback already submitted for this event")
		}
		return err
	}
	return nil
}

// ---------------- TOKENS ----------------

// CreateToken persists a freshly issued feedback token.
func (d *DB) CreateToken(ctx context.Context, token *models.FeedbackToken) error {
	_, err := d.Bun.NewInsert().Model(token).Exec(ctx)
	return err
}

// GetTokenByValue returns the token row, or nil when the value is unknown.
func (d *DB) GetTokenByValue(ctx context.Context, token string) (*models.FeedbackToken, error) {
	var row models.FeedbackToken
	err := d.Bun.NewSelect().
		Model(&row).
		Where("token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// CreateFeedbackAndConsumeToken performs the redeem write pair as one
// transaction: insert the feedback row, then flip the token used=false→true.
// The feedback unique index is the real linearization point; losing the race
// on it surfaces as Conflict, and losing the race on the flag (a concurrent
// winner already flipped it) rolls the insert back and surfaces AlreadyUsed.
// Either way a retry can never produce a second feedback row.
func (d *DB) CreateFeedbackAndConsumeToken(ctx context.Context, feedback *models.Feedback, tokenID string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(feedback).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("feedback already submitted for this event")
			}
			return err
		}

		res, err := tx.NewUpdate().
			Model((*models.FeedbackToken)(nil)).
			Set("used = ?", true).
			Where("id = ?", tokenID).
			Where("used = ?", false).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.AlreadyUsed("this feedback token has already been used")
		}
		return nil
	})
}

// isUniqueViolation recognizes unique-index violations from both the
// postgres driver and the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
