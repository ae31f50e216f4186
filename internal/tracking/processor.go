package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/captvenkat/xainik-tracking/internal/domain"
	"github.com/captvenkat/xainik-tracking/internal/logger"
	"github.com/captvenkat/xainik-tracking/internal/messaging"
	"github.com/captvenkat/xainik-tracking/internal/store"
)

// ProcessorConfig holds pipeline tuning knobs
type ProcessorConfig struct {
	// PixelBudget is the synchronous processing budget for the pixel
	// channel; work that exceeds it is completed asynchronously
	PixelBudget time.Duration
	// ConversionEventTypes is the configured conversion set
	ConversionEventTypes map[domain.EventType]bool
	// MaxChainWalkHops bounds chain root resolution
	MaxChainWalkHops int
	// WorkerPoolSize and WorkerQueueSize size the async completion pool
	WorkerPoolSize  int
	WorkerQueueSize int
}

// Result reports the ids assigned on the critical path
type Result struct {
	EventID    string `json:"eventId"`
	ReferralID string `json:"referralId"`
}

// Pipeline is the ingestion surface the API layer drives
type Pipeline interface {
	// Process runs the full pipeline for one submission
	Process(ctx context.Context, sub domain.Submission) (*Result, error)
	// ProcessPixel runs the pipeline under the pixel budget, completing
	// overruns asynchronously; it never reports failures
	ProcessPixel(sub domain.Submission)
}

// Processor drives the fixed ingestion order: referral resolution,
// event record, then best-effort chain roll-up and conversion credit.
// It holds no cross-request state; all write races are settled by the
// store's constraints.
type Processor struct {
	store      store.Store
	resolver   *Resolver
	chains     *ChainResolver
	aggregator *Aggregator
	publisher  messaging.Publisher
	// breaker guards the derived-state stages so a degraded database
	// turns chain/credit work into logged skips instead of queue
	// saturation; the primary record path is never behind it
	breaker     *gobreaker.CircuitBreaker
	pool        pond.Pool
	pixelBudget time.Duration
}

// NewProcessor wires the pipeline. publisher may be nil when no broker
// is configured.
func NewProcessor(cfg ProcessorConfig, s store.Store, publisher messaging.Publisher) *Processor {
	chains := NewChainResolver(s, cfg.MaxChainWalkHops)

	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 20
	}
	queueSize := cfg.WorkerQueueSize
	if queueSize <= 0 {
		queueSize = 2048
	}
	pixelBudget := cfg.PixelBudget
	if pixelBudget <= 0 {
		pixelBudget = domain.DEFAULT_PIXEL_BUDGET_MS * time.Millisecond
	}

	return &Processor{
		store:      s,
		resolver:   NewResolver(s),
		chains:     chains,
		aggregator: NewAggregator(s, chains, cfg.ConversionEventTypes),
		publisher:  publisher,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "attribution-bookkeeping",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		pool: pond.NewPool(
			poolSize,
			pond.WithQueueSize(queueSize),
		),
		pixelBudget: pixelBudget,
	}
}

// Process runs the full pipeline for one submission. Only critical-path
// failures (referral resolution, event record) are returned; chain
// roll-up, conversion credit and event publication are best-effort and
// logged. Derived state dropped here is repairable from the referral
// table.
func (p *Processor) Process(ctx context.Context, sub domain.Submission) (*Result, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	occurredAt := time.Now().UTC()
	if sub.OccurredAt != nil {
		occurredAt = sub.OccurredAt.UTC()
	}

	// The visitor becomes the supporter on referrals created by share
	// events and by chain hops (the traverser may re-share onward);
	// plain direct arrivals stay anonymous
	var supporterID *string
	if domain.IsShareEventType(sub.EventType) || sub.ParentReferralID != nil {
		visitor := sub.VisitorID
		supporterID = &visitor
	}

	// Metadata is encoded before any write so a bad submission cannot
	// fail after the referral already exists
	var metadata datatypes.JSON
	if len(sub.Metadata) > 0 {
		raw, err := json.Marshal(sub.Metadata)
		if err != nil {
			return nil, domain.ErrInvalidSubmission
		}
		metadata = raw
	}

	referral, err := p.resolver.Resolve(ctx, ResolveInput{
		PitchID:            sub.PitchID,
		OwnerID:            sub.VisitorID,
		SupporterID:        supporterID,
		ExplicitReferralID: sub.ReferralID,
		ParentReferralID:   sub.ParentReferralID,
		Platform:           sub.Platform,
	})
	if err != nil {
		return nil, err
	}

	event, err := p.store.CreateEvent(ctx, store.CreateEventInput{
		VisitorID:  sub.VisitorID,
		PitchID:    sub.PitchID,
		ReferralID: &referral.ID,
		EventType:  sub.EventType,
		Platform:   sub.Platform,
		UserAgent:  sub.UserAgent,
		IPHash:     sub.IPHash,
		SessionID:  sub.SessionID,
		Metadata:   metadata,
		OccurredAt: occurredAt,
	})
	if err != nil {
		return nil, err
	}

	if referral.SourceType == domain.ReferralSourceChain {
		if err := p.bestEffort(func() error { return p.chains.Update(ctx, referral) }); err != nil {
			logChainFailure(ctx, err, referral.ID, sub.EventType)
		}
	}

	if p.aggregator.IsConversion(sub.EventType) {
		if err := p.bestEffort(func() error { return p.aggregator.Credit(ctx, referral, sub.EventType) }); err != nil {
			logger.WarnCtx(ctx, "conversion credit failed",
				zap.Error(err),
				zap.String("referral_id", referral.ID),
				zap.String("event_type", string(sub.EventType)),
			)
		}
	}

	p.publish(ctx, event.ID, referral.ID, sub, occurredAt)

	return &Result{EventID: event.ID, ReferralID: referral.ID}, nil
}

// ProcessPixel runs the pipeline under the pixel budget. When the
// budget is exceeded the whole submission is resubmitted to the worker
// pool with a detached context, so the pixel response never waits on
// attribution bookkeeping. At-least-once semantics are safe: every
// write in the pipeline is an idempotent or commutative upsert.
func (p *Processor) ProcessPixel(sub domain.Submission) {
	ctx, cancel := context.WithTimeout(context.Background(), p.pixelBudget)
	defer cancel()

	_, err := p.Process(ctx, sub)
	if err == nil {
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		logger.Debug("pixel budget exceeded, completing submission asynchronously",
			zap.String("pitch_id", sub.PitchID),
			zap.String("event_type", string(sub.EventType)),
		)
		p.pool.Submit(func() {
			p.processAsync(sub)
		})
		return
	}

	// The pixel channel never surfaces failures; log and move on
	logger.Warn("pixel submission dropped",
		zap.Error(err),
		zap.String("pitch_id", sub.PitchID),
		zap.String("event_type", string(sub.EventType)),
	)
}

// processAsync retries a resubmitted pipeline while storage reports
// itself unavailable; any other failure is final
func (p *Processor) processAsync(sub domain.Submission) {
	operation := func() error {
		_, err := p.Process(context.Background(), sub)
		if err != nil && !errors.Is(err, domain.ErrStorageUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, b); err != nil {
		logger.Warn("async pixel submission dropped",
			zap.Error(err),
			zap.String("pitch_id", sub.PitchID),
			zap.String("event_type", string(sub.EventType)),
		)
	}
}

func (p *Processor) bestEffort(fn func() error) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (p *Processor) publish(ctx context.Context, eventID, referralID string, sub domain.Submission, occurredAt time.Time) {
	if p.publisher == nil {
		return
	}

	err := p.publisher.PublishEvent(ctx, &domain.TrackingEvent{
		EventID:    eventID,
		EventType:  sub.EventType,
		PitchID:    sub.PitchID,
		VisitorID:  sub.VisitorID,
		ReferralID: referralID,
		Platform:   sub.Platform,
		OccurredAt: occurredAt,
	})
	if err != nil {
		logger.WarnCtx(ctx, "failed to publish tracking event",
			zap.Error(err),
			zap.String("event_id", eventID),
		)
	}
}

// logChainFailure keeps enough context to replay the roll-up by hand.
// ErrChainTooDeep is a data-integrity signal, not noise; it logs at
// error level so it reaches alerting.
func logChainFailure(ctx context.Context, err error, referralID string, eventType domain.EventType) {
	fields := []zap.Field{
		zap.String("referral_id", referralID),
		zap.String("event_type", string(eventType)),
	}
	if errors.Is(err, domain.ErrChainTooDeep) {
		logger.ErrorCtx(ctx, err, fields...)
		return
	}
	logger.WarnCtx(ctx, "attribution chain update failed", append(fields, zap.Error(err))...)
}

// Close drains the async completion pool
func (p *Processor) Close() {
	p.pool.StopAndWait()
}
