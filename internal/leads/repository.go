package leads

import (
	"context"
	"errors"
)

var (
	// ErrLeadNotFound is returned when no lead exists for the given id.
	ErrLeadNotFound = errors.New("leads: lead not found")

	// ErrNoPendingClaim is returned by FinalizeBooking when the store holds
	// no pending claim to consume (already finalized, released, or never
	// claimed).
	ErrNoPendingClaim = errors.New("leads: no pending claim to finalize")
)

// Repository is the lead row store. Claiming is the single serialization
// point of the whole system: the store applies it as a conditional
// single-row update, so concurrent claims resolve to exactly one winner.
type Repository interface {
	// UpsertByExternalID creates the lead on first contact or returns the
	// existing one. New leads start active with the bot enabled.
	UpsertByExternalID(ctx context.Context, externalID, source string) (*Lead, error)

	// GetByExternalID fetches a lead, ErrLeadNotFound when absent.
	GetByExternalID(ctx context.Context, externalID string) (*Lead, error)

	SetStatus(ctx context.Context, externalID string, status Status) error
	SetBotEnabled(ctx context.Context, externalID string, enabled bool) error

	// ClaimPendingSlot conditionally sets the pending-slot fields: the
	// update applies only if the lead has no finalized booking and no live
	// (unexpired) claim. claimed=false with a nil error is the race-loss
	// outcome, not a failure; the caller must re-read the lead to discover
	// the existing pending/booked state.
	ClaimPendingSlot(ctx context.Context, externalID string, claim PendingClaim) (lead *Lead, claimed bool, err error)

	// ReleasePendingClaim clears the pending fields. Releasing an absent
	// claim is a no-op.
	ReleasePendingClaim(ctx context.Context, externalID string) error

	// FinalizeBooking atomically moves the pending fields into the booked
	// fields, records the collected contact details, and marks the lead
	// booked. Fails with ErrNoPendingClaim when there is nothing to consume.
	FinalizeBooking(ctx context.Context, externalID string, booking Booking, address, phone string) (*Lead, error)
}
