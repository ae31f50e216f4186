package domain

import "errors"

var (
	// ErrReferralNotFound is returned when an explicit referral id is
	// supplied but no such referral exists
	ErrReferralNotFound = errors.New("referral not found")

	// ErrChainTooDeep is returned when a lineage walk exceeds the hop
	// bound or revisits a node. It signals a cycle or a corrupted parent
	// pointer and is surfaced in operational logs, never to end users.
	ErrChainTooDeep = errors.New("attribution chain too deep")

	// ErrStorageUnavailable is returned when a storage round-trip fails;
	// callers may retry
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidEvent is returned when an event is missing required
	// fields at store time
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidSubmission is returned when an ingestion submission is
	// missing required fields or carries an unknown event type
	ErrInvalidSubmission = errors.New("invalid submission")
)
