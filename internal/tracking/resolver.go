package tracking

import (
	"context"
	"fmt"

	"github.com/captvenkat/xainik-tracking/internal/domain"
	"github.com/captvenkat/xainik-tracking/internal/store"
	"github.com/captvenkat/xainik-tracking/internal/store/schema"
)

// ResolveInput holds the references an incoming event carries
type ResolveInput struct {
	PitchID string
	OwnerID string
	// SupporterID is stamped onto any referral created by this
	// resolution; immutable afterwards
	SupporterID *string
	// ExplicitReferralID short-circuits resolution to an existing referral
	ExplicitReferralID *string
	// ParentReferralID marks the arrival as a share-link traversal
	ParentReferralID *string
	Platform         domain.Platform
}

// Resolver finds-or-creates the referral record for an incoming event.
// It is the only component that creates referral rows.
type Resolver struct {
	store store.Store
}

// NewResolver creates a referral resolver over the given store
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve maps an event submission to exactly one referral:
//
//   - an explicit referral id is validated and returned unchanged;
//   - a parent referral id always creates a new chain hop, one row per
//     share-link traversal, with depth = parent depth + 1;
//   - otherwise the arrival is direct and collapses onto the single
//     direct referral for the (pitch, owner) pair, created on first use.
//
// Concurrent direct resolutions for the same pair converge on one row
// regardless of arrival order; the store's insert-or-fetch guarantees it.
func (r *Resolver) Resolve(ctx context.Context, input ResolveInput) (*schema.Referral, error) {
	if input.ExplicitReferralID != nil {
		referral, err := r.store.GetReferralByID(ctx, *input.ExplicitReferralID)
		if err != nil {
			return nil, err
		}
		if referral == nil {
			return nil, fmt.Errorf("referral %s: %w", *input.ExplicitReferralID, domain.ErrReferralNotFound)
		}
		return referral, nil
	}

	if input.ParentReferralID != nil {
		// Missing parent is tolerated: the hop still records its link
		// and starts at depth 1, as if the parent had depth 0
		depth := 1
		parent, err := r.store.GetReferralByID(ctx, *input.ParentReferralID)
		if err != nil {
			return nil, err
		}
		if parent != nil {
			depth = parent.AttributionDepth + 1
		}

		return r.store.CreateChainReferral(ctx, store.CreateReferralInput{
			OwnerID:          input.OwnerID,
			PitchID:          input.PitchID,
			SupporterID:      input.SupporterID,
			Platform:         input.Platform,
			ParentReferralID: input.ParentReferralID,
			SourceType:       domain.ReferralSourceChain,
			AttributionDepth: depth,
		})
	}

	return r.store.GetOrCreateDirectReferral(ctx, store.CreateReferralInput{
		OwnerID:     input.OwnerID,
		PitchID:     input.PitchID,
		SupporterID: input.SupporterID,
		Platform:    input.Platform,
		SourceType:  domain.ReferralSourceDirect,
	})
}
