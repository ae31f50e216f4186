package tracking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/captvenkat/xainik-tracking/internal/domain"
	"github.com/captvenkat/xainik-tracking/internal/logger"
	"github.com/captvenkat/xainik-tracking/internal/store"
	"github.com/captvenkat/xainik-tracking/internal/store/schema"
)

// Aggregator credits supporters with conversions on high-value event
// types. It is the only component that writes supporter_performance
// rows.
type Aggregator struct {
	store       store.Store
	chains      *ChainResolver
	conversions map[domain.EventType]bool
}

// NewAggregator creates a conversion aggregator. conversions is the
// configured set of event types that count as conversions; a nil or
// empty set falls back to the defaults.
func NewAggregator(s store.Store, chains *ChainResolver, conversions map[domain.EventType]bool) *Aggregator {
	if len(conversions) == 0 {
		conversions = make(map[domain.EventType]bool, len(domain.DefaultConversionEventTypes))
		for _, t := range domain.DefaultConversionEventTypes {
			conversions[t] = true
		}
	}
	return &Aggregator{store: s, chains: chains, conversions: conversions}
}

// IsConversion reports whether the event type is in the configured
// conversion set
func (a *Aggregator) IsConversion(t domain.EventType) bool {
	return a.conversions[t]
}

// Credit credits the supporter ultimately responsible for the referral
// with one conversion. For chain referrals the credit goes to the root
// supporter; direct referrals credit their own supporter. A referral
// with no resolvable supporter (fully anonymous arrival) records
// nothing, which is a normal outcome.
//
// The increment is atomic at the store layer, so concurrent credits for
// the same supporter never lose updates.
func (a *Aggregator) Credit(ctx context.Context, referral *schema.Referral, eventType domain.EventType) error {
	if !a.IsConversion(eventType) {
		return nil
	}

	root := referral
	if referral.SourceType == domain.ReferralSourceChain {
		resolved, err := a.chains.Root(ctx, referral)
		if err != nil {
			return err
		}
		root = resolved
	}

	if root.SupporterID == nil {
		logger.DebugCtx(ctx, "conversion with no resolvable supporter, skipping credit",
			zap.String("referral_id", referral.ID),
			zap.String("event_type", string(eventType)),
		)
		return nil
	}

	return a.store.IncrementSupporterConversions(ctx, store.CreditConversionInput{
		OwnerID:        root.OwnerID,
		PitchID:        root.PitchID,
		SupporterID:    *root.SupporterID,
		LastActivityAt: time.Now().UTC(),
	})
}
