package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event categories accepted at creation time.
const (
	CategoryMeetup     = "Meetup"
	CategoryWorkshop   = "Workshop"
	CategoryConference = "Conference"
	CategorySocial     = "Social"
	CategoryOther      = "Other"
)

// Age restriction labels.
const (
	AgeAll       = "All Ages"
	AgeEighteen  = "18+"
	AgeTwentyOne = "21+"
	AgeOther     = "Other"
)

var ValidCategories = map[string]bool{
	CategoryMeetup:     true,
	CategoryWorkshop:   true,
	CategoryConference: true,
	CategorySocial:     true,
	CategoryOther:      true,
}

var ValidAgeRestrictions = map[string]bool{
	AgeAll:       true,
	AgeEighteen:  true,
	AgeTwentyOne: true,
	AgeOther:     true,
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID              string    `bun:"id,pk" json:"id"`
	Title           string    `bun:"title,notnull" json:"title"`
	Description     string    `bun:"description,nullzero" json:"description"`
	Date            time.Time `bun:"date,notnull" json:"date"`
	LocationAddress string    `bun:"location_address,nullzero" json:"location_address"`
	Lat             float64   `bun:"lat,nullzero" json:"lat,omitempty"`
	Lng             float64   `bun:"lng,nullzero" json:"lng,omitempty"`
	OrganizerID     string    `bun:"organizer_id,notnull" json:"organizer_id"`
	// AttendeeCount is denormalized and must always equal the number of
	// event_attendees rows for this event.
	AttendeeCount   int       `bun:"attendee_count,notnull,default:0" json:"attendee_count"`
	Category        string    `bun:"category,notnull" json:"category"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration_minutes"`
	Capacity        int       `bun:"capacity,notnull" json:"capacity"` // advisory, not enforced on join
	IsFree          bool      `bun:"is_free,notnull,default:true" json:"is_free"`
	EntryFeeAmount  float64   `bun:"entry_fee_amount,notnull,default:0" json:"entry_fee_amount"`
	AgeRestriction  string    `bun:"age_restriction,notnull,default:'All Ages'" json:"age_restriction"`
	ContactName     string    `bun:"contact_name,nullzero" json:"contact_name,omitempty"`
	ContactEmail    string    `bun:"contact_email,nullzero" json:"contact_email,omitempty"`
	ContactPhone    string    `bun:"contact_phone,nullzero" json:"contact_phone,omitempty"`
	FeedbackSent    bool      `bun:"feedback_sent,notnull,default:false" json:"-"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`

	// Tags live in event_tags and are loaded alongside the event.
	Tags []string `bun:"-" json:"tags"`
}

type EventTag struct {
	bun.BaseModel `bun:"table:event_tags"`

	EventID string `bun:"event_id,pk" json:"event_id"`
	Tag     string `bun:"tag,pk" json:"tag"`
}

// EventAttendee is one membership in an event's attendee set. The same table,
// read from the user side, is the user's joined-events set.
type EventAttendee struct {
	bun.BaseModel `bun:"table:event_attendees"`

	EventID  string    `bun:"event_id,pk" json:"event_id"`
	UserID   string    `bun:"user_id,pk" json:"user_id"`
	JoinedAt time.Time `bun:"joined_at,notnull,default:current_timestamp" json:"joined_at"`
}
