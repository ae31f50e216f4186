package store

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/captvenkat/xainik-tracking/internal/domain"
	"github.com/captvenkat/xainik-tracking/internal/store/schema"
)

// CreateEventInput holds the fields for recording an interaction event
type CreateEventInput struct {
	VisitorID  string
	PitchID    string
	ReferralID *string
	EventType  domain.EventType
	Platform   domain.Platform
	UserAgent  *string
	IPHash     *string
	SessionID  *string
	Metadata   datatypes.JSON
	OccurredAt time.Time
}

// CreateReferralInput holds the fields for creating a referral node
type CreateReferralInput struct {
	OwnerID          string
	PitchID          string
	SupporterID      *string
	Platform         domain.Platform
	ParentReferralID *string
	SourceType       domain.ReferralSourceType
	AttributionDepth int
}

// UpsertAttributionChainInput holds the resolved root of a chain walk
type UpsertAttributionChainInput struct {
	OwnerID             string
	PitchID             string
	OriginalReferralID  string
	OriginalSupporterID *string
	ChainDepth          int
	LastActivityAt      time.Time
}

// CreditConversionInput holds the key and timestamp of one conversion credit
type CreditConversionInput struct {
	OwnerID        string
	PitchID        string
	SupporterID    string
	LastActivityAt time.Time
}

// Store defines the interface for database operations
type Store interface {
	// CreateEvent appends one interaction event and returns it
	CreateEvent(ctx context.Context, input CreateEventInput) (*schema.Event, error)
	// GetReferralByID retrieves a referral by its id
	GetReferralByID(ctx context.Context, id string) (*schema.Referral, error)
	// GetDirectReferral retrieves the direct referral for a (pitch, owner) pair
	GetDirectReferral(ctx context.Context, pitchID, ownerID string) (*schema.Referral, error)
	// GetOrCreateDirectReferral inserts the direct referral for a
	// (pitch, owner) pair, or returns the existing one if a concurrent
	// writer won the insert
	GetOrCreateDirectReferral(ctx context.Context, input CreateReferralInput) (*schema.Referral, error)
	// CreateChainReferral creates a new chain hop referral
	CreateChainReferral(ctx context.Context, input CreateReferralInput) (*schema.Referral, error)
	// UpsertAttributionChain creates or advances the roll-up row for a chain root
	UpsertAttributionChain(ctx context.Context, input UpsertAttributionChainInput) error
	// IncrementSupporterConversions atomically credits one conversion
	IncrementSupporterConversions(ctx context.Context, input CreditConversionInput) error
	// GetAttributionChain retrieves the roll-up row for a chain root
	GetAttributionChain(ctx context.Context, originalReferralID string) (*schema.AttributionChain, error)
	// GetSupporterPerformance retrieves one supporter's ledger row for a pitch
	GetSupporterPerformance(ctx context.Context, ownerID, pitchID, supporterID string) (*schema.SupporterPerformance, error)
	// ListSupporterPerformance lists the credit ledger for a pitch
	ListSupporterPerformance(ctx context.Context, pitchID string) ([]*schema.SupporterPerformance, error)
	// ListAttributionChains lists the chain roll-ups for a pitch
	ListAttributionChains(ctx context.Context, pitchID string) ([]*schema.AttributionChain, error)
	// ListEventsByReferral lists events recorded against a referral
	ListEventsByReferral(ctx context.Context, referralID string) ([]*schema.Event, error)
}
