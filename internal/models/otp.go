package models

import (
	"time"

	"github.com/uptrace/bun"
)

// OtpVerification holds the bcrypt hash of a pending one-time password.
// One row per email; replaced on every new request, removed on verification
// or when found expired.
type OtpVerification struct {
	bun.BaseModel `bun:"table:otp_verifications"`

	Email     string    `bun:"email,pk" json:"email"`
	HashedOtp string    `bun:"hashed_otp,notnull" json:"-"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
