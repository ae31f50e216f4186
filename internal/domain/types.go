package domain

import (
	"time"
)

// EventType represents the type of pitch interaction event
type EventType string

const (
	EventTypePitchViewed     EventType = "PITCH_VIEWED"
	EventTypePitchShared     EventType = "PITCH_SHARED"
	EventTypePosterShared    EventType = "POSTER_SHARED"
	EventTypeCallClicked     EventType = "CALL_CLICKED"
	EventTypePhoneClicked    EventType = "PHONE_CLICKED"
	EventTypeEmailClicked    EventType = "EMAIL_CLICKED"
	EventTypeLinkedinClicked EventType = "LINKEDIN_CLICKED"
	EventTypeResumeRequested EventType = "RESUME_REQUESTED"
)

// IsValidEventType checks if an event type is part of the closed set
func IsValidEventType(t EventType) bool {
	switch t {
	case EventTypePitchViewed, EventTypePitchShared, EventTypePosterShared,
		EventTypeCallClicked, EventTypePhoneClicked, EventTypeEmailClicked,
		EventTypeLinkedinClicked, EventTypeResumeRequested:
		return true
	}
	return false
}

// IsShareEventType reports whether the event represents the visitor
// sharing the pitch onward. Share events stamp the visitor as the
// supporter on the referral they resolve to.
func IsShareEventType(t EventType) bool {
	return t == EventTypePitchShared || t == EventTypePosterShared
}

// DefaultConversionEventTypes is the default set of high-value event
// types that credit a supporter with a conversion. The effective set is
// a configuration point (tracking.conversion_event_types).
var DefaultConversionEventTypes = []EventType{
	EventTypeCallClicked,
	EventTypePhoneClicked,
	EventTypeEmailClicked,
}

// Platform identifies the sharing/arrival surface of an event
type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformLinkedIn Platform = "linkedin"
	PlatformTwitter  Platform = "twitter"
	PlatformEmail    Platform = "email"
	PlatformOther    Platform = "other"
)

// ReferralSourceType distinguishes direct arrivals from share-chain hops
type ReferralSourceType string

const (
	// ReferralSourceDirect marks the single no-share-link entry path for
	// a (pitch, visitor) pair
	ReferralSourceDirect ReferralSourceType = "direct"
	// ReferralSourceChain marks one traversal of a share link; every hop
	// is a distinct referral row
	ReferralSourceChain ReferralSourceType = "chain"
)

// Submission is the normalized internal contract both ingestion
// channels (JSON and pixel) map onto before processing.
type Submission struct {
	EventType        EventType         `json:"event_type"`
	PitchID          string            `json:"pitch_id"`
	VisitorID        string            `json:"visitor_id"`
	ReferralID       *string           `json:"referral_id,omitempty"`
	ParentReferralID *string           `json:"parent_referral_id,omitempty"`
	Platform         Platform          `json:"platform,omitempty"`
	UserAgent        *string           `json:"user_agent,omitempty"`
	IPHash           *string           `json:"ip_hash,omitempty"`
	SessionID        *string           `json:"session_id,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	OccurredAt       *time.Time        `json:"occurred_at,omitempty"`
}

// Validate checks the required submission fields
func (s *Submission) Validate() error {
	if s.PitchID == "" || s.VisitorID == "" {
		return ErrInvalidSubmission
	}
	if !IsValidEventType(s.EventType) {
		return ErrInvalidSubmission
	}
	return nil
}

// TrackingEvent is the normalized recorded-event notification published
// to NATS for downstream consumers (notification UIs, dashboards).
type TrackingEvent struct {
	EventID    string    `json:"event_id"`
	EventType  EventType `json:"event_type"`
	PitchID    string    `json:"pitch_id"`
	VisitorID  string    `json:"visitor_id"`
	ReferralID string    `json:"referral_id"`
	Platform   Platform  `json:"platform,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
