package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// NewFeedbackToken returns a fresh 32-byte cryptographically random token,
// hex encoded (64 characters).
func NewFeedbackToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate feedback token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewOtp returns a 6-digit one-time password, zero padded.
func NewOtp() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
