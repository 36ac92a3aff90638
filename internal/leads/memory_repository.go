package leads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository with a mutex-guarded map. Used in
// tests and local development; the claim path mirrors the conditional-update
// semantics of the DynamoDB table.
type InMemoryRepository struct {
	mu    sync.Mutex
	leads map[string]*Lead
	now   func() time.Time
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		now:   time.Now,
	}
}

// WithClock overrides the repository time source. Tests only.
func (r *InMemoryRepository) WithClock(now func() time.Time) *InMemoryRepository {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *InMemoryRepository) UpsertByExternalID(ctx context.Context, externalID, source string) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lead, ok := r.leads[externalID]; ok {
		return cloneLead(lead), nil
	}
	now := r.now()
	lead := &Lead{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Source:     source,
		Status:     StatusActive,
		BotEnabled: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.leads[externalID] = lead
	return cloneLead(lead), nil
}

func (r *InMemoryRepository) GetByExternalID(ctx context.Context, externalID string) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[externalID]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return cloneLead(lead), nil
}

func (r *InMemoryRepository) SetStatus(ctx context.Context, externalID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[externalID]
	if !ok {
		return ErrLeadNotFound
	}
	lead.Status = status
	lead.UpdatedAt = r.now()
	return nil
}

func (r *InMemoryRepository) SetBotEnabled(ctx context.Context, externalID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[externalID]
	if !ok {
		return ErrLeadNotFound
	}
	lead.BotEnabled = enabled
	lead.UpdatedAt = r.now()
	return nil
}

func (r *InMemoryRepository) ClaimPendingSlot(ctx context.Context, externalID string, claim PendingClaim) (*Lead, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[externalID]
	if !ok {
		return nil, false, nil
	}
	now := r.now()
	if lead.Booked != nil {
		return nil, false, nil
	}
	if lead.Pending != nil && !lead.Pending.Expired(now) {
		return nil, false, nil
	}
	claim.ClaimedAt = now
	lead.Pending = &claim
	lead.UpdatedAt = now
	return cloneLead(lead), true, nil
}

func (r *InMemoryRepository) ReleasePendingClaim(ctx context.Context, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[externalID]
	if !ok {
		return ErrLeadNotFound
	}
	lead.Pending = nil
	lead.UpdatedAt = r.now()
	return nil
}

func (r *InMemoryRepository) FinalizeBooking(ctx context.Context, externalID string, booking Booking, address, phone string) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[externalID]
	if !ok {
		return nil, ErrLeadNotFound
	}
	if lead.Pending == nil || lead.Booked != nil {
		return nil, ErrNoPendingClaim
	}
	now := r.now()
	booking.BookedAt = now
	lead.Booked = &booking
	lead.Pending = nil
	lead.Address = address
	lead.Phone = phone
	lead.Status = StatusBooked
	lead.UpdatedAt = now
	return cloneLead(lead), nil
}

func cloneLead(l *Lead) *Lead {
	out := *l
	if l.Pending != nil {
		p := *l.Pending
		out.Pending = &p
	}
	if l.Booked != nil {
		b := *l.Booked
		out.Booked = &b
	}
	return &out
}
