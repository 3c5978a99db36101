package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"eventhub/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- USERS ----------------

// GetUserByEmail returns the user row, or nil when the email is unknown.
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID returns the user row, or nil when the id is unknown.
func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// UpsertUnverified creates the user, or refreshes the stored credentials when
// an unverified row with the same email already exists. Verified rows are
// never touched; the caller rejects those before getting here.
func (d *DB) UpsertUnverified(ctx context.Context, user *models.User) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var existing models.User
		err := tx.NewSelect().
			Model(&existing).
			Where("email = ?", user.Email).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			_, err = tx.NewInsert().Model(user).Exec(ctx)
			return err
		}

		user.ID = existing.ID
		_, err = tx.NewUpdate().
			Model(user).
			Column("name", "password_hash", "updated_at").
			Where("id = ?", existing.ID).
			Exec(ctx)
		return err
	})
}

// MarkVerified flips the verification flag after a successful OTP check.
func (d *DB) MarkVerified(ctx context.Context, userID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.User)(nil)).
		Set("is_verified = ?", true).
		Where("id = ?", userID).
		Exec(ctx)
	return err
}

// ---------------- OTP ----------------

// ReplaceOtp drops any pending code for the email and stores the new one.
func (d *DB) ReplaceOtp(ctx context.Context, otp *models.OtpVerification) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.OtpVerification)(nil)).
			Where("email = ?", otp.Email).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(otp).Exec(ctx)
		return err
	})
}

// GetOtp returns the pending code for an email, or nil when there is none.
func (d *DB) GetOtp(ctx context.Context, email string) (*models.OtpVerification, error) {
	var otp models.OtpVerification
	err := d.Bun.NewSelect().
		Model(&otp).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &otp, nil
}

// DeleteOtp removes the pending code for an email.
func (d *DB) DeleteOtp(ctx context.Context, email string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.OtpVerification)(nil)).
		Where("email = ?", email).
		Exec(ctx)
	return err
}
