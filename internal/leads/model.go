package leads

import (
	"time"
)

// Status is the lifecycle state of a lead.
type Status string

const (
	StatusActive        Status = "active"
	StatusBooked        Status = "booked"
	StatusDead          Status = "dead"
	StatusNeedsFollowup Status = "needs_followup"
)

// ClaimTTL is the maximum age at which a pending claim remains valid. An
// older claim is functionally absent and must be released before a fresh
// claim is attempted.
const ClaimTTL = 15 * time.Minute

// PendingClaim is a provisional, time-limited reservation of a slot while
// customer details are collected. At most one exists per lead, and only
// while no finalized booking exists.
type PendingClaim struct {
	SlotLabel string    `json:"slot_label"`
	SlotStart time.Time `json:"slot_start"`
	SlotEnd   time.Time `json:"slot_end"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Expired reports whether the claim has outlived the TTL.
func (c *PendingClaim) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	return now.Sub(c.ClaimedAt) > ClaimTTL
}

// Complete reports whether the claim carries every field finalize needs.
// A structurally incomplete claim is treated as corruption: released and
// re-offered, never partially repaired.
func (c *PendingClaim) Complete() bool {
	return c != nil && c.SlotLabel != "" && !c.SlotStart.IsZero() && !c.SlotEnd.IsZero() && !c.ClaimedAt.IsZero()
}

// Booking is a finalized calendar reservation.
type Booking struct {
	EventID   string    `json:"event_id"`
	SlotLabel string    `json:"slot_label"`
	SlotStart time.Time `json:"slot_start"`
	SlotEnd   time.Time `json:"slot_end"`
	BookedAt  time.Time `json:"booked_at"`
}

// Lead is the durable identity for one messaging-platform user, keyed by the
// platform's opaque per-user id. Created on first contact, never deleted.
type Lead struct {
	ID         string        `json:"id"`
	ExternalID string        `json:"external_id"`
	Source     string        `json:"source"`
	Status     Status        `json:"status"`
	BotEnabled bool          `json:"bot_enabled"`
	Pending    *PendingClaim `json:"pending,omitempty"`
	Booked     *Booking      `json:"booked,omitempty"`
	Address    string        `json:"address,omitempty"`
	Phone      string        `json:"phone,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// HasLiveClaim reports a structurally complete, unexpired pending claim.
func (l *Lead) HasLiveClaim(now time.Time) bool {
	return l != nil && l.Pending.Complete() && !l.Pending.Expired(now)
}
