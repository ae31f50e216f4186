package schema

import (
	"time"
)

// AttributionChain represents the attribution_chains table - a
// denormalized summary keyed by the root referral of a share chain, so
// "who ultimately caused this" is a single-row lookup. Exactly one row
// exists per original_referral_id; chain_depth only grows and
// last_activity_at only advances.
type AttributionChain struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// OwnerID is the root referral's owner
	OwnerID string `gorm:"column:owner_id;not null;type:text"`
	// PitchID is the pitch the chain leads to
	PitchID string `gorm:"column:pitch_id;not null;type:text;index:idx_attribution_chains_pitch"`
	// OriginalReferralID is the root referral of the chain
	OriginalReferralID string `gorm:"column:original_referral_id;not null;unique;type:varchar(36)"`
	// OriginalSupporterID is the supporter on the root referral
	OriginalSupporterID *string `gorm:"column:original_supporter_id;type:text"`
	// ChainDepth is the deepest attribution depth observed under this root
	ChainDepth int `gorm:"column:chain_depth;not null;default:0"`
	// LastActivityAt is the time of the most recent chained event under this root
	LastActivityAt time.Time `gorm:"column:last_activity_at;not null;type:timestamptz"`
	// CreatedAt is when the first chained event under this root was observed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the AttributionChain model
func (AttributionChain) TableName() string {
	return "attribution_chains"
}
