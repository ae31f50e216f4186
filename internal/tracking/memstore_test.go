package tracking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/captvenkat/xainik-tracking/internal/domain"
	"github.com/captvenkat/xainik-tracking/internal/store"
	"github.com/captvenkat/xainik-tracking/internal/store/schema"
)

// memStore is an in-memory store.Store for pipeline tests. It mirrors
// the database constraints that matter to the pipeline: the single
// direct referral per (pitch, owner), the one-row-per-root chain
// roll-up with monotonic depth, and the atomic conversion counter.
type memStore struct {
	mu          sync.Mutex
	events      []*schema.Event
	referrals   map[string]*schema.Referral
	chains      map[string]*schema.AttributionChain
	performance map[string]*schema.SupporterPerformance
	// failStorage makes every write report storage unavailability
	failStorage bool
}

func newMemStore() *memStore {
	return &memStore{
		referrals:   map[string]*schema.Referral{},
		chains:      map[string]*schema.AttributionChain{},
		performance: map[string]*schema.SupporterPerformance{},
	}
}

func (m *memStore) CreateEvent(_ context.Context, input store.CreateEventInput) (*schema.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStorage {
		return nil, fmt.Errorf("create event: %w", domain.ErrStorageUnavailable)
	}
	if input.PitchID == "" || input.VisitorID == "" || input.EventType == "" || input.OccurredAt.IsZero() {
		return nil, domain.ErrInvalidEvent
	}

	event := &schema.Event{
		ID:         ulid.Make().String(),
		VisitorID:  input.VisitorID,
		PitchID:    input.PitchID,
		ReferralID: input.ReferralID,
		EventType:  input.EventType,
		Platform:   input.Platform,
		Metadata:   input.Metadata,
		OccurredAt: input.OccurredAt,
	}
	m.events = append(m.events, event)
	return event, nil
}

func (m *memStore) GetReferralByID(_ context.Context, id string) (*schema.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.referrals[id], nil
}

func (m *memStore) GetDirectReferral(_ context.Context, pitchID, ownerID string) (*schema.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findDirect(pitchID, ownerID), nil
}

func (m *memStore) findDirect(pitchID, ownerID string) *schema.Referral {
	for _, r := range m.referrals {
		if r.PitchID == pitchID && r.OwnerID == ownerID && r.SourceType == domain.ReferralSourceDirect {
			return r
		}
	}
	return nil
}

func (m *memStore) GetOrCreateDirectReferral(_ context.Context, input store.CreateReferralInput) (*schema.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStorage {
		return nil, fmt.Errorf("create direct referral: %w", domain.ErrStorageUnavailable)
	}

	if existing := m.findDirect(input.PitchID, input.OwnerID); existing != nil {
		return existing, nil
	}

	referral := &schema.Referral{
		ID:          uuid.NewString(),
		OwnerID:     input.OwnerID,
		PitchID:     input.PitchID,
		SupporterID: input.SupporterID,
		ShareLink:   uuid.NewString(),
		Platform:    input.Platform,
		SourceType:  domain.ReferralSourceDirect,
	}
	m.referrals[referral.ID] = referral
	return referral, nil
}

func (m *memStore) CreateChainReferral(_ context.Context, input store.CreateReferralInput) (*schema.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStorage {
		return nil, fmt.Errorf("create chain referral: %w", domain.ErrStorageUnavailable)
	}

	referral := &schema.Referral{
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
	m.referrals[referral.ID] = referral
	return referral, nil
}

// addReferral installs a pre-built referral row, for shaping lineages
// (cycles, broken parents) that the write paths never produce.
func (m *memStore) addReferral(r *schema.Referral) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.referrals[r.ID] = r
}

func (m *memStore) UpsertAttributionChain(_ context.Context, input store.UpsertAttributionChainInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStorage {
		return fmt.Errorf("upsert attribution chain: %w", domain.ErrStorageUnavailable)
	}

	existing, ok := m.chains[input.OriginalReferralID]
	if !ok {
		m.chains[input.OriginalReferralID] = &schema.AttributionChain{
			OwnerID:             input.OwnerID,
			PitchID:             input.PitchID,
			OriginalReferralID:  input.OriginalReferralID,
			OriginalSupporterID: input.OriginalSupporterID,
			ChainDepth:          input.ChainDepth,
			LastActivityAt:      input.LastActivityAt,
		}
		return nil
	}
	if input.ChainDepth > existing.ChainDepth {
		existing.ChainDepth = input.ChainDepth
	}
	if input.LastActivityAt.After(existing.LastActivityAt) {
		existing.LastActivityAt = input.LastActivityAt
	}
	return nil
}

func (m *memStore) IncrementSupporterConversions(_ context.Context, input store.CreditConversionInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStorage {
		return fmt.Errorf("credit conversion: %w", domain.ErrStorageUnavailable)
	}

	key := input.OwnerID + "/" + input.PitchID + "/" + input.SupporterID
	existing, ok := m.performance[key]
	if !ok {
		m.performance[key] = &schema.SupporterPerformance{
			OwnerID:                    input.OwnerID,
			PitchID:                    input.PitchID,
			SupporterID:                input.SupporterID,
			TotalAttributedConversions: 1,
			LastActivityAt:             input.LastActivityAt,
		}
		return nil
	}
	existing.TotalAttributedConversions++
	if input.LastActivityAt.After(existing.LastActivityAt) {
		existing.LastActivityAt = input.LastActivityAt
	}
	return nil
}

func (m *memStore) GetAttributionChain(_ context.Context, originalReferralID string) (*schema.AttributionChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chains[originalReferralID], nil
}

func (m *memStore) GetSupporterPerformance(_ context.Context, ownerID, pitchID, supporterID string) (*schema.SupporterPerformance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.performance[ownerID+"/"+pitchID+"/"+supporterID], nil
}

func (m *memStore) ListSupporterPerformance(_ context.Context, pitchID string) ([]*schema.SupporterPerformance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*schema.SupporterPerformance
	for _, row := range m.performance {
		if row.PitchID == pitchID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TotalAttributedConversions > rows[j].TotalAttributedConversions
	})
	return rows, nil
}

func (m *memStore) ListAttributionChains(_ context.Context, pitchID string) ([]*schema.AttributionChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*schema.AttributionChain
	for _, row := range m.chains {
		if row.PitchID == pitchID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].LastActivityAt.After(rows[j].LastActivityAt)
	})
	return rows, nil
}

func (m *memStore) ListEventsByReferral(_ context.Context, referralID string) ([]*schema.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*schema.Event
	for _, row := range m.events {
		if row.ReferralID != nil && *row.ReferralID == referralID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (m *memStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *memStore) setFailStorage(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStorage = fail
}

var _ store.Store = (*memStore)(nil)

// buildChain shapes a direct root plus n chain hops, each the child of
// the previous, and returns all nodes root-first.
func buildChain(m *memStore, pitchID string, n int) []*schema.Referral {
	supporter := "supporter-root"
	root := &schema.Referral{
		ID:          uuid.NewString(),
		OwnerID:     "owner-root",
		PitchID:     pitchID,
		SupporterID: &supporter,
		ShareLink:   uuid.NewString(),
		SourceType:  domain.ReferralSourceDirect,
	}
	m.addReferral(root)

	nodes := []*schema.Referral{root}
	parent := root
	for i := 1; i <= n; i++ {
		hopSupporter := fmt.Sprintf("supporter-%d", i)
		hop := &schema.Referral{
			ID:               uuid.NewString(),
			OwnerID:          fmt.Sprintf("visitor-%d", i),
			PitchID:          pitchID,
			SupporterID:      &hopSupporter,
			ShareLink:        uuid.NewString(),
			ParentReferralID: &parent.ID,
			SourceType:       domain.ReferralSourceChain,
			AttributionDepth: i,
		}
		m.addReferral(hop)
		nodes = append(nodes, hop)
		parent = hop
	}
	return nodes
}

// buildCycle shapes n chain referrals whose parent links form a loop
func buildCycle(m *memStore, pitchID string, n int) *schema.Referral {
	nodes := make([]*schema.Referral, n)
	for i := range nodes {
		nodes[i] = &schema.Referral{
			ID:               uuid.NewString(),
			OwnerID:          fmt.Sprintf("visitor-%d", i),
			PitchID:          pitchID,
			ShareLink:        uuid.NewString(),
			SourceType:       domain.ReferralSourceChain,
			AttributionDepth: i + 1,
		}
	}
	for i := range nodes {
		parent := nodes[(i+1)%n]
		nodes[i].ParentReferralID = &parent.ID
		m.addReferral(nodes[i])
	}
	return nodes[0]
}

func directInput(pitchID, ownerID string) store.CreateReferralInput {
	return store.CreateReferralInput{
		OwnerID:    ownerID,
		PitchID:    pitchID,
		SourceType: domain.ReferralSourceDirect,
	}
}

func submissionAt(eventType domain.EventType, pitchID, visitorID string, at time.Time) domain.Submission {
	return domain.Submission{
		EventType:  eventType,
		PitchID:    pitchID,
		VisitorID:  visitorID,
		Platform:   domain.PlatformWeb,
		OccurredAt: &at,
	}
}
