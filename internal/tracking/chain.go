package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/captvenkat/xainik-tracking/internal/domain"
	"github.com/captvenkat/xainik-tracking/internal/store"
	"github.com/captvenkat/xainik-tracking/internal/store/schema"
)

// ChainResolver walks chain referrals to their root and maintains the
// denormalized attribution_chains roll-up. It is the only component
// that writes attribution_chains rows.
type ChainResolver struct {
	store   store.Store
	maxHops int
}

// NewChainResolver creates a chain resolver. maxHops bounds the lineage
// walk; zero or negative falls back to the default bound.
func NewChainResolver(s store.Store, maxHops int) *ChainResolver {
	if maxHops <= 0 {
		maxHops = domain.DEFAULT_MAX_CHAIN_WALK_HOPS
	}
	return &ChainResolver{store: s, maxHops: maxHops}
}

// Root follows parent links from the given referral to the root of its
// chain: the first direct node, or the last resolvable node if the
// chain is broken. The walk keeps a visited set so cycles fail with
// domain.ErrChainTooDeep immediately instead of burning the hop bound.
func (c *ChainResolver) Root(ctx context.Context, referral *schema.Referral) (*schema.Referral, error) {
	current := referral
	visited := map[string]bool{}

	for hops := 0; ; hops++ {
		if current.SourceType == domain.ReferralSourceDirect || current.ParentReferralID == nil {
			return current, nil
		}
		if hops >= c.maxHops || visited[current.ID] {
			return nil, fmt.Errorf("walk from referral %s stopped at %s after %d hops: %w",
				referral.ID, current.ID, hops, domain.ErrChainTooDeep)
		}
		visited[current.ID] = true

		parent, err := c.store.GetReferralByID(ctx, *current.ParentReferralID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			// Broken chain: the last resolvable node acts as root
			return current, nil
		}
		current = parent
	}
}

// Update resolves the root of the chain containing the given referral
// and upserts the roll-up row keyed by that root. Repeated calls for
// the same referral converge on the same row: conflicts keep the max
// observed depth and only advance last_activity_at.
func (c *ChainResolver) Update(ctx context.Context, referral *schema.Referral) error {
	root, err := c.Root(ctx, referral)
	if err != nil {
		return err
	}

	return c.store.UpsertAttributionChain(ctx, store.UpsertAttributionChainInput{
		OwnerID:             root.OwnerID,
		PitchID:             root.PitchID,
		OriginalReferralID:  root.ID,
		OriginalSupporterID: root.SupporterID,
		ChainDepth:          referral.AttributionDepth,
		LastActivityAt:      time.Now().UTC(),
	})
}
