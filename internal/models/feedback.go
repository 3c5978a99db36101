package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Feedback is immutable once created. The unique (event_id, attendee_id) pair
// is the linearization point for at-most-once feedback submission.
type Feedback struct {
	bun.BaseModel `bun:"table:feedbacks"`

	ID              string    `bun:"id,pk" json:"id"`
	EventID         string    `bun:"event_id,notnull,unique:ux_feedback_event_attendee" json:"event_id"`
	AttendeeID      string    `bun:"attendee_id,notnull,unique:ux_feedback_event_attendee" json:"attendee_id"`
	AttendeeName    string    `bun:"attendee_name,notnull" json:"attendee_name"`
	HostRating      int       `bun:"host_rating,notnull" json:"host_rating"`
	EventRating     int       `bun:"event_rating,notnull" json:"event_rating"`
	HostFeedback    string    `bun:"host_feedback,nullzero" json:"host_feedback,omitempty"`
	EventExperience string    `bun:"event_experience,nullzero" json:"event_experience,omitempty"`
	SubmittedAt     time.Time `bun:"submitted_at,notnull,default:current_timestamp" json:"submitted_at"`
}

// FeedbackToken is a single-use credential for feedback submission.
// used transitions false→true exactly once, in the same transaction that
// creates the Feedback row.
type FeedbackToken struct {
	bun.BaseModel `bun:"table:feedback_tokens"`

	ID         string    `bun:"id,pk" json:"id"`
	EventID    string    `bun:"event_id,notnull" json:"event_id"`
	AttendeeID string    `bun:"attendee_id,notnull" json:"attendee_id"`
	Token      string    `bun:"token,unique,notnull" json:"token"`
	ExpiresAt  time.Time `bun:"expires_at,notnull" json:"expires_at"`
	Used       bool      `bun:"used,notnull,default:false" json:"used"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
