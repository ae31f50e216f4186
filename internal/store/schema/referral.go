package schema

import (
	"time"

	"github.com/captvenkat/xainik-tracking/internal/domain"
)

// Referral represents the referrals table - one lineage node per entry
// path into a pitch. Direct arrivals collapse onto a single row per
// (pitch_id, owner_id); every share-link traversal gets its own chain
// row. Rows are never deleted and supporter_id is immutable after
// insert.
type Referral struct {
	// ID is a UUID assigned at creation
	ID string `gorm:"column:id;primaryKey;type:varchar(36)"`
	// OwnerID is the visitor identity this entry path belongs to.
	// Part of the partial unique index guarding direct referrals
	// (see db/init_pg_db.sql, idx_referrals_direct).
	OwnerID string `gorm:"column:owner_id;not null;type:text;index:idx_referrals_pitch_owner,priority:2"`
	// PitchID is the pitch this referral leads to
	PitchID string `gorm:"column:pitch_id;not null;type:text;index:idx_referrals_pitch_owner,priority:1"`
	// SupporterID is the user credited for conversions attributed to
	// this referral; nil for anonymous direct arrivals
	SupporterID *string `gorm:"column:supporter_id;type:text"`
	// ShareLink is the token embedded in share URLs minted for this referral
	ShareLink string `gorm:"column:share_link;not null;type:varchar(36)"`
	// Platform is the surface the referral was created from
	Platform domain.Platform `gorm:"column:platform;type:text"`
	// ParentReferralID links a chain hop to the referral whose share
	// link was followed; nil for direct referrals
	ParentReferralID *string `gorm:"column:parent_referral_id;type:varchar(36);index:idx_referrals_parent"`
	// SourceType is 'direct' or 'chain'
	SourceType domain.ReferralSourceType `gorm:"column:source_type;not null;type:text"`
	// AttributionDepth is 0 for direct referrals and parent depth + 1
	// for chain hops
	AttributionDepth int `gorm:"column:attribution_depth;not null;default:0"`
	// CreatedAt is when this referral was first resolved
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Referral model
func (Referral) TableName() string {
	return "referrals"
}
