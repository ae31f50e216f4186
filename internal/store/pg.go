package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/captvenkat/xainik-tracking/internal/domain"
	"github.com/captvenkat/xainik-tracking/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a
// GORM database connection. It accesses the underlying *sql.DB and sets
// the pool configuration. Zero values fall back to defaults:
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool
// settings into safe values.
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// unavailable tags a storage round-trip failure so callers can match
// domain.ErrStorageUnavailable. The cause stays in the chain too:
// the pixel path matches context.DeadlineExceeded through it to decide
// whether to complete the submission asynchronously.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, err, domain.ErrStorageUnavailable)
}

// CreateEvent appends one interaction event. Events are immutable
// facts; there is no update path.
func (s *pgStore) CreateEvent(ctx context.Context, input CreateEventInput) (*schema.Event, error) {
	if input.PitchID == "" || input.VisitorID == "" || input.EventType == "" || input.OccurredAt.IsZero() {
		return nil, fmt.Errorf("missing required event fields: %w", domain.ErrInvalidEvent)
	}

	event := schema.Event{
		ID:         ulid.Make().String(),
		VisitorID:  input.VisitorID,
		PitchID:    input.PitchID,
		ReferralID: input.ReferralID,
		EventType:  input.EventType,
		Platform:   input.Platform,
		UserAgent:  input.UserAgent,
		IPHash:     input.IPHash,
		SessionID:  input.SessionID,
		Metadata:   input.Metadata,
		OccurredAt: input.OccurredAt,
	}

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, unavailable("failed to create event", err)
	}

	return &event, nil
}

// GetReferralByID retrieves a referral by its id
func (s *pgStore) GetReferralByID(ctx context.Context, id string) (*schema.Referral, error) {
	var referral schema.Referral
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, unavailable("failed to get referral", err)
	}
	return &referral, nil
}

// GetDirectReferral retrieves the direct referral for a (pitch, owner) pair
func (s *pgStore) GetDirectReferral(ctx context.Context, pitchID, ownerID string) (*schema.Referral, error) {
	var referral schema.Referral
	err := s.db.WithContext(ctx).
		Where("pitch_id = ? AND owner_id = ? AND source_type = ?", pitchID, ownerID, domain.ReferralSourceDirect).
		First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, unavailable("failed to get direct referral", err)
	}
	return &referral, nil
}

// GetOrCreateDirectReferral inserts the direct referral for a
// (pitch, owner) pair. The insert races against concurrent resolutions
// for the same pair, so it relies on the partial unique index
// idx_referrals_direct: ON CONFLICT DO NOTHING, then re-read the winner
// when no row was inserted. Insert-or-fetch, not read-then-insert,
// closes the race window entirely.
func (s *pgStore) GetOrCreateDirectReferral(ctx context.Context, input CreateReferralInput) (*schema.Referral, error) {
	referral := schema.Referral{
		ID:               uuid.NewString(),
		OwnerID:          input.OwnerID,
		PitchID:          input.PitchID,
		SupporterID:      input.SupporterID,
		ShareLink:        uuid.NewString(),
		Platform:         input.Platform,
		SourceType:       domain.ReferralSourceDirect,
		AttributionDepth: 0,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pitch_id"}, {Name: "owner_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Name: "source_type"}, Value: string(domain.ReferralSourceDirect)},
		}},
		DoNothing: true,
	}).Create(&referral)
	if res.Error != nil {
		return nil, unavailable("failed to create direct referral", res.Error)
	}

	// No row inserted means someone else just created it; read the winner
	if res.RowsAffected == 0 {
		existing, err := s.GetDirectReferral(ctx, input.PitchID, input.OwnerID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, unavailable("failed to re-read direct referral after conflict", gorm.ErrRecordNotFound)
		}
		return existing, nil
	}

	return &referral, nil
}

// CreateChainReferral creates a new chain hop referral. Each share-link
// traversal is a distinct row, so this is a plain insert.
func (s *pgStore) CreateChainReferral(ctx context.Context, input CreateReferralInput) (*schema.Referral, error) {
	referral := schema.Referral{
		ID:               uuid.NewString(),
		OwnerID:          input.OwnerID,
		PitchID:          input.PitchID,
		SupporterID:      input.SupporterID,
		ShareLink:        uuid.NewString(),
		Platform:         input.Platform,
		ParentReferralID: input.ParentReferralID,
		SourceType:       domain.ReferralSourceChain,
		AttributionDepth: input.AttributionDepth,
	}

	if err := s.db.WithContext(ctx).Create(&referral).Error; err != nil {
		return nil, unavailable("failed to create chain referral", err)
	}

	return &referral, nil
}

// UpsertAttributionChain creates or advances the roll-up row keyed by
// the chain root. Conflicts take the max of observed depths and advance
// last_activity_at, so repeated resolution of the same referral
// converges on the same row.
func (s *pgStore) UpsertAttributionChain(ctx context.Context, input UpsertAttributionChainInput) error {
	row := schema.AttributionChain{
		OwnerID:             input.OwnerID,
		PitchID:             input.PitchID,
		OriginalReferralID:  input.OriginalReferralID,
		OriginalSupporterID: input.OriginalSupporterID,
		ChainDepth:          input.ChainDepth,
		LastActivityAt:      input.LastActivityAt,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "original_referral_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"chain_depth":      gorm.Expr("GREATEST(attribution_chains.chain_depth, EXCLUDED.chain_depth)"),
			"last_activity_at": gorm.Expr("GREATEST(attribution_chains.last_activity_at, EXCLUDED.last_activity_at)"),
		}),
	}).Create(&row).Error
	if err != nil {
		return unavailable("failed to upsert attribution chain", err)
	}

	return nil
}

// IncrementSupporterConversions atomically credits one conversion to a
// supporter. The increment happens inside the ON CONFLICT clause so
// concurrent credits for the same key never lose updates.
func (s *pgStore) IncrementSupporterConversions(ctx context.Context, input CreditConversionInput) error {
	row := schema.SupporterPerformance{
		OwnerID:                    input.OwnerID,
		PitchID:                    input.PitchID,
		SupporterID:                input.SupporterID,
		TotalAttributedConversions: 1,
		LastActivityAt:             input.LastActivityAt,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "pitch_id"}, {Name: "supporter_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_attributed_conversions": gorm.Expr("supporter_performance.total_attributed_conversions + 1"),
			"last_activity_at":             gorm.Expr("GREATEST(supporter_performance.last_activity_at, EXCLUDED.last_activity_at)"),
		}),
	}).Create(&row).Error
	if err != nil {
		return unavailable("failed to credit conversion", err)
	}

	return nil
}

// GetAttributionChain retrieves the roll-up row for a chain root
func (s *pgStore) GetAttributionChain(ctx context.Context, originalReferralID string) (*schema.AttributionChain, error) {
	var row schema.AttributionChain
	err := s.db.WithContext(ctx).Where("original_referral_id = ?", originalReferralID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, unavailable("failed to get attribution chain", err)
	}
	return &row, nil
}

// GetSupporterPerformance retrieves one supporter's ledger row for a pitch
func (s *pgStore) GetSupporterPerformance(ctx context.Context, ownerID, pitchID, supporterID string) (*schema.SupporterPerformance, error) {
	var row schema.SupporterPerformance
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND pitch_id = ? AND supporter_id = ?", ownerID, pitchID, supporterID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, unavailable("failed to get supporter performance", err)
	}
	return &row, nil
}

// ListSupporterPerformance lists the credit ledger for a pitch, most
// converted supporters first
func (s *pgStore) ListSupporterPerformance(ctx context.Context, pitchID string) ([]*schema.SupporterPerformance, error) {
	var rows []*schema.SupporterPerformance
	err := s.db.WithContext(ctx).
		Where("pitch_id = ?", pitchID).
		Order("total_attributed_conversions DESC").
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("failed to list supporter performance", err)
	}
	return rows, nil
}

// ListAttributionChains lists the chain roll-ups for a pitch, most
// recently active first
func (s *pgStore) ListAttributionChains(ctx context.Context, pitchID string) ([]*schema.AttributionChain, error) {
	var rows []*schema.AttributionChain
	err := s.db.WithContext(ctx).
		Where("pitch_id = ?", pitchID).
		Order("last_activity_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("failed to list attribution chains", err)
	}
	return rows, nil
}

// ListEventsByReferral lists events recorded against a referral in
// arrival order
func (s *pgStore) ListEventsByReferral(ctx context.Context, referralID string) ([]*schema.Event, error) {
	var rows []*schema.Event
	err := s.db.WithContext(ctx).
		Where("referral_id = ?", referralID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("failed to list events by referral", err)
	}
	return rows, nil
}
