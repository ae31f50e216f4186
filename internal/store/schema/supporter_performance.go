package schema

import (
	"time"
)

// SupporterPerformance represents the supporter_performance table - a
// running credit ledger per (owner, pitch, supporter). The conversion
// counter is only ever advanced with an atomic SQL increment, never
// overwritten.
type SupporterPerformance struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// OwnerID is the root referral owner the credit is recorded under
	OwnerID string `gorm:"column:owner_id;not null;type:text;uniqueIndex:idx_supporter_performance_key,priority:1"`
	// PitchID is the pitch the conversions concern
	PitchID string `gorm:"column:pitch_id;not null;type:text;uniqueIndex:idx_supporter_performance_key,priority:2"`
	// SupporterID is the credited supporter
	SupporterID string `gorm:"column:supporter_id;not null;type:text;uniqueIndex:idx_supporter_performance_key,priority:3"`
	// TotalAttributedConversions counts conversions credited to this supporter
	TotalAttributedConversions int64 `gorm:"column:total_attributed_conversions;not null;default:0"`
	// LastActivityAt is the time of the most recent credited conversion
	LastActivityAt time.Time `gorm:"column:last_activity_at;not null;type:timestamptz"`
	// CreatedAt is when the first conversion was credited
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the SupporterPerformance model
func (SupporterPerformance) TableName() string {
	return "supporter_performance"
}
