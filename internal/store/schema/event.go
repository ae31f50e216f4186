package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/captvenkat/xainik-tracking/internal/domain"
)

// Event represents the events table - append-only record of raw pitch
// interaction events. Rows are never mutated or deleted by normal
// operation.
type Event struct {
	// ID is a ULID assigned at ingestion time; lexicographic order
	// follows arrival order
	ID string `gorm:"column:id;primaryKey;type:varchar(26)"`
	// VisitorID is the actor who triggered the interaction
	VisitorID string `gorm:"column:visitor_id;not null;type:text;index:idx_events_pitch_visitor,priority:2"`
	// PitchID is the pitch the interaction concerns
	PitchID string `gorm:"column:pitch_id;not null;type:text;index:idx_events_pitch_visitor,priority:1"`
	// ReferralID references the referral this event was resolved to
	ReferralID *string `gorm:"column:referral_id;type:varchar(36);index:idx_events_referral"`
	// EventType is the interaction type from the closed event set
	EventType domain.EventType `gorm:"column:event_type;not null;type:text"`
	// Platform identifies the surface the interaction came from
	Platform domain.Platform `gorm:"column:platform;type:text"`
	// UserAgent is the raw client user agent, when available
	UserAgent *string `gorm:"column:user_agent;type:text"`
	// IPHash is a caller-supplied hash of the client IP; never the raw address
	IPHash *string `gorm:"column:ip_hash;type:text"`
	// SessionID groups events from one browsing session
	SessionID *string `gorm:"column:session_id;type:text"`
	// Metadata carries opaque key/value context supplied by the client
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	// OccurredAt is when the interaction happened on the client
	OccurredAt time.Time `gorm:"column:occurred_at;not null;type:timestamptz"`
	// CreatedAt is when the event was recorded
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Event model
func (Event) TableName() string {
	return "events"
}
